package retriever

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// partFile is the guard object from DESIGN NOTES §9 ("Ownership of temp
// files"): it owns a dot-prefixed temporary file and the open directory
// handle it lives in, and "promotion to final name" is an explicit commit.
// If commit is never called, close releases both handles and unlinks the
// temp file, leaving no partial file at the final name (spec.md §3, §8).
type partFile struct {
	dir      *os.File
	dirPath  string
	destName string // final basename within dir
	tmpPath  string
	file     *os.File
	committed bool
}

// openPartFile creates (or reopens, for resume) a temp file 0600 in the
// same directory as the destination, per spec.md §4.1 step 8.
func openPartFile(destDir, destName string, resume bool, existingTmp string) (*partFile, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	dir, err := os.Open(destDir)
	if err != nil {
		return nil, err
	}

	tmpPath := existingTmp
	flags := os.O_WRONLY | os.O_CREATE
	if resume && tmpPath != "" {
		flags |= os.O_APPEND
	} else {
		tmpPath = filepath.Join(destDir, fmt.Sprintf(".%s.%d", destName, rand.Int63()))
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(tmpPath, flags, 0o600)
	if err != nil {
		dir.Close()
		return nil, err
	}

	return &partFile{dir: dir, dirPath: destDir, destName: destName, tmpPath: tmpPath, file: f}, nil
}

func (p *partFile) Write(b []byte) (int, error) { return p.file.Write(b) }

func (p *partFile) TempPath() string { return p.tmpPath }

// Commit finalizes the transfer: chmod 0644, fsync the file, set mtime,
// optionally rename to an adjusted basename, rename into place, and fsync
// the containing directory (spec.md §4.1 "Finalization").
func (p *partFile) Commit(finalName string, mtime time.Time) error {
	if err := p.file.Chmod(0o644); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		return err
	}

	finalPath := filepath.Join(p.dirPath, finalName)
	if err := os.Rename(p.tmpPath, finalPath); err != nil {
		return err
	}
	p.committed = true

	if !mtime.IsZero() {
		if err := os.Chtimes(finalPath, mtime, mtime); err != nil {
			return err
		}
	}

	return p.dir.Sync()
}

// Close releases the handles, unlinking the temp file if Commit was never
// called.
func (p *partFile) Close() error {
	if !p.committed {
		_ = p.file.Close()
		_ = os.Remove(p.tmpPath)
	}
	return p.dir.Close()
}
