package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

const firstRunOptionsName = ".first_run_options"

// persistedOptions is the subset of Options serialized to .first_run_options.
// It is built by the hand-written key list in snapshot; MustMatchOptions and
// ChangingOptions name keys of that map.
type persistedOptions map[string]interface{}

func snapshot(o *Options) persistedOptions {
	return persistedOptions{
		"likes":                 o.Likes,
		"blosxom":               o.Blosxom,
		"dirs":                  o.Dirs,
		"hostdirs":              o.HostDirs,
		"image_names":           string(o.ImageNames),
		"json":                  o.JSON,
		"use_server_timestamps": o.UseServerTimestamps,
	}
}

// ReconcileFirstRunOptions loads <outdir>/.first_run_options if present and
// compares it against o. Mismatches in MustMatchOptions always abort.
// Mismatches in ChangingOptions abort only when complete is false (archive
// is incomplete/resumable) and ignoreDiffopt is not set, matching spec.md §4.6.
//
// On first run (no .first_run_options yet) it writes the snapshot instead.
func ReconcileFirstRunOptions(o *Options, complete bool, ignoreDiffopt bool) error {
	path := filepath.Join(o.OutDir, firstRunOptionsName)

	prev, err := loadPersistedOptions(path)
	if os.IsNotExist(err) {
		return savePersistedOptions(path, snapshot(o))
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cur := snapshot(o)

	for _, key := range MustMatchOptions {
		if !equalValue(prev[key], cur[key]) {
			return fmt.Errorf("option %q changed since the first run (%v -> %v); this archive cannot be resumed with different output-layout options", key, prev[key], cur[key])
		}
	}

	if complete || ignoreDiffopt {
		return nil
	}

	for _, key := range ChangingOptions {
		if !equalValue(prev[key], cur[key]) {
			return fmt.Errorf("option %q changed since the incomplete first run (%v -> %v); pass --ignore-diffopt to proceed anyway", key, prev[key], cur[key])
		}
	}

	return nil
}

func equalValue(a, b interface{}) bool {
	if a == nil {
		a = false
	}
	if b == nil {
		b = false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func loadPersistedOptions(path string) (persistedOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	out := persistedOptions{}
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return out, nil
}

func savePersistedOptions(path string, opts persistedOptions) error {
	buf := &bytes.Buffer{}
	if err := toml.NewEncoder(buf).Encode(map[string]interface{}(opts)); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CompleteSentinelPath returns the path of the .complete marker for outDir.
func CompleteSentinelPath(outDir string) string {
	return filepath.Join(outDir, ".complete")
}

// IsComplete reports whether a previous run finished successfully.
func IsComplete(outDir string) bool {
	_, err := os.Stat(CompleteSentinelPath(outDir))
	return err == nil
}

// WriteCompleteSentinel writes the .complete marker, fsyncing the containing
// directory afterwards so the marker survives a crash immediately after.
func WriteCompleteSentinel(outDir string) error {
	path := CompleteSentinelPath(outDir)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return err
	}

	dir, err := os.Open(outDir)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
