// Package config describes the per-blog option set: what gets persisted to
// .first_run_options, which options must match across runs, and which may
// change only with --ignore-diffopt.
package config

import "time"

// ImageNamePolicy selects the filename scheme for downloaded media.
type ImageNamePolicy string

const (
	ImageNameOriginal ImageNamePolicy = "o"  // original basename from the URL
	ImageNameID        ImageNamePolicy = "i"  // <id>[offset]<ext>
	ImageNameBlogID     ImageNamePolicy = "bi" // <blog>_<id>[offset]<ext>
)

// Options is the full set of semantic flags for one backup invocation,
// mirroring spec.md §6. Field names match the CLI flags in cmd/backup.go.
type Options struct {
	// Output layout
	OutDir     string          `toml:"-"`
	Dirs       bool            `toml:"dirs"`
	HostDirs   bool            `toml:"hostdirs"`
	ImageNames ImageNamePolicy `toml:"image_names"`
	Blosxom    bool            `toml:"blosxom"`

	// Selectors (not persisted: they vary run to run and don't gate resume)
	Tags       []string `toml:"-"`
	Type       []string `toml:"-"`
	Request    map[string][]string `toml:"-"`
	Filter     string   `toml:"-"`
	NoReblog   bool     `toml:"-"`
	OnlyReblog bool     `toml:"-"`
	Period     string   `toml:"-"`
	IdentFile  string   `toml:"-"`
	Count      int      `toml:"-"`
	Skip       int      `toml:"-"`

	// Lifecycle
	Likes          bool `toml:"likes"`
	Incremental    bool `toml:"-"`
	Continue       bool `toml:"-"`
	AutoHour       int  `toml:"-"`
	ReuseJSON      bool `toml:"-"`
	PrevArchives   []string `toml:"-"`
	NoGet          bool     `toml:"-"`
	NoPostClobber  bool     `toml:"-"`
	IgnoreDiffopt  bool     `toml:"-"`

	// Content
	SaveImages     bool `toml:"-"`
	SaveVideo      bool `toml:"-"`
	SaveVideoTumblr bool `toml:"-"`
	SaveAudio      bool `toml:"-"`
	SaveNotes      bool `toml:"-"`
	CopyNotes      bool `toml:"-"`
	NotesLimit     int  `toml:"-"`
	Exif           []string `toml:"-"`

	// Transport
	CookieFile    string        `toml:"-"`
	UserAgent     string        `toml:"-"`
	NoSSLVerify   bool          `toml:"-"`
	SkipDNSCheck  bool          `toml:"-"`
	Threads       int           `toml:"-"`
	InternetArchive bool        `toml:"-"`
	UseServerTimestamps bool    `toml:"use_server_timestamps"`

	// Observability
	Quiet     bool `toml:"-"`
	JSON      bool `toml:"json"`
	MediaList bool `toml:"-"`
	JSONInfo  bool `toml:"-"`

	// Before is the resume/scope upper bound in wall-clock time, mirroring
	// the Python tool's -p/--period handling when expressed as a cutoff.
	Before time.Time `toml:"-"`
}

// MustMatchOptions lists the option names (as persisted TOML keys) that must
// be identical between the first run that created an output directory and
// every subsequent run against it. A mismatch aborts per spec.md §3/§6.
var MustMatchOptions = []string{"likes", "blosxom", "dirs", "hostdirs", "image_names"}

// ChangingOptions lists option names that may differ between runs on a
// complete archive, or with --ignore-diffopt, because they only affect
// template/rendering output rather than on-disk media layout. On an
// *incomplete* archive without --ignore-diffopt a change aborts the run.
var ChangingOptions = []string{"json", "use_server_timestamps"}

// MediaPathOptions are the subset of MustMatchOptions that determine where a
// previous archive's media lives on disk; the Media Downloader consults
// each PreviousArchive's own Options for these. The backup command fills
// those Options from the current run's flags; it does not read a previous
// archive's .first_run_options.
type MediaPathOptions struct {
	Dirs       bool
	HostDirs   bool
	ImageNames ImageNamePolicy
}

func (o *Options) MediaPathOptions() MediaPathOptions {
	return MediaPathOptions{Dirs: o.Dirs, HostDirs: o.HostDirs, ImageNames: o.ImageNames}
}

func DefaultOptions() *Options {
	return &Options{
		ImageNames:          ImageNameOriginal,
		Threads:             20,
		UseServerTimestamps: true,
		SaveImages:          true,
	}
}
