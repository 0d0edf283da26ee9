package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lhecker/tumblr-backup/account"
	"github.com/lhecker/tumblr-backup/config"
	"github.com/lhecker/tumblr-backup/coordinator"
	"github.com/lhecker/tumblr-backup/database"
	"github.com/lhecker/tumblr-backup/media"
	"github.com/lhecker/tumblr-backup/poolrt"
	"github.com/lhecker/tumblr-backup/retriever"
)

// backupOpts is populated directly by cobra flags below; RunE only fills in
// the handful of fields that need post-processing (--request, --out).
var backupOpts = config.DefaultOptions()

var (
	imageNames       string
	requestFlags     []string
	prevArchivePaths []string
	username         string
	password         string
	noteScraperPath  string
	ytDlpPath        string
	dbPath           string
	interactive      bool
)

var backupCmd = &cobra.Command{
	Use:   "backup <blog> [blog...]",
	Short: "Back up one or more Tumblr blogs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	flags := backupCmd.Flags()

	// Output layout
	flags.BoolVar(&backupOpts.Dirs, "dirs", false, "one directory per post instead of posts/<id>.html")
	flags.BoolVar(&backupOpts.HostDirs, "hostdirs", false, "group media by source host")
	flags.StringVar(&imageNames, "image-names", string(config.ImageNameOriginal), "image filename policy: o|i|bi")
	flags.BoolVar(&backupOpts.Blosxom, "blosxom", false, "blosxom flag, recorded in .first_run_options; the output layout is unchanged")
	flags.StringVar(&backupOpts.OutDir, "out", "", "output directory (default: ./<blog>)")

	// Selectors
	flags.StringSliceVar(&backupOpts.Tags, "tags", nil, "only back up posts carrying one of these tags")
	flags.StringSliceVar(&backupOpts.Type, "type", nil, "only back up these post types")
	flags.StringSliceVar(&requestFlags, "request", nil, "type:tag selector, repeatable")
	flags.StringVar(&backupOpts.Filter, "filter", "", "jq expression a post's JSON must satisfy")
	flags.BoolVar(&backupOpts.NoReblog, "no-reblog", false, "skip reblogged posts")
	flags.BoolVar(&backupOpts.OnlyReblog, "only-reblog", false, "only back up reblogged posts")
	flags.StringVar(&backupOpts.Period, "period", "", "only posts at/after YYYY[MM[DD]]")
	flags.StringVar(&backupOpts.IdentFile, "id-file", "", "file of post ids to back up (accepted but ignored)")
	flags.IntVar(&backupOpts.Count, "count", 0, "stop after this many posts")
	flags.IntVar(&backupOpts.Skip, "skip", 0, "skip this many posts before starting")

	// Lifecycle
	flags.BoolVar(&backupOpts.Likes, "likes", false, "back up liked posts instead of the blog's own posts")
	flags.BoolVar(&backupOpts.Incremental, "incremental", false, "stop once the last run's cursor is reached")
	flags.BoolVar(&backupOpts.Continue, "continue", false, "resume an interrupted run")
	flags.IntVar(&backupOpts.AutoHour, "auto", 0, "repeat automatically at this local hour (0-23) (accepted but ignored)")
	flags.BoolVar(&backupOpts.ReuseJSON, "reuse-json", false, "reuse previously saved json/<id>.json instead of refetching (accepted but ignored)")
	flags.StringSliceVar(&prevArchivePaths, "prev-archives", nil, "previous archive roots to reuse media from")
	flags.BoolVar(&backupOpts.NoGet, "no-get", false, "never fetch media, only link to it")
	flags.BoolVar(&backupOpts.NoPostClobber, "no-post-clobber", false, "skip posts whose output file already exists")
	flags.BoolVar(&backupOpts.IgnoreDiffopt, "ignore-diffopt", false, "allow changing options on an incomplete archive")

	// Content
	flags.BoolVar(&backupOpts.SaveImages, "save-images", backupOpts.SaveImages, "download photo media")
	flags.BoolVar(&backupOpts.SaveVideo, "save-video", false, "download video media")
	flags.BoolVar(&backupOpts.SaveVideoTumblr, "save-video-tumblr", false, "download Tumblr-hosted video specifically")
	flags.BoolVar(&backupOpts.SaveAudio, "save-audio", false, "download audio media")
	flags.BoolVar(&backupOpts.SaveNotes, "save-notes", false, "scrape and embed each post's notes")
	flags.BoolVar(&backupOpts.CopyNotes, "copy-notes", false, "copy previously scraped notes instead of rescraping (accepted but ignored)")
	flags.IntVar(&backupOpts.NotesLimit, "notes-limit", 0, "stop scraping notes after this many (0 = unlimited)")
	flags.StringSliceVar(&backupOpts.Exif, "exif", nil, "exif tags for saved images (accepted but ignored)")

	// Transport
	flags.StringVar(&backupOpts.CookieFile, "cookiefile", "", "Netscape cookie-jar file passed to the note-scraper and yt-dlp; the HTTP client does not load it")
	flags.StringVar(&backupOpts.UserAgent, "user-agent", "tumblr-backup/1.0", "HTTP User-Agent header")
	flags.BoolVar(&backupOpts.NoSSLVerify, "no-ssl-verify", false, "disable TLS certificate verification")
	flags.BoolVar(&backupOpts.SkipDNSCheck, "skip-dns-check", false, "skip the note-scraper's DNS reachability probe")
	flags.IntVar(&backupOpts.Threads, "threads", backupOpts.Threads, "concurrent media/render workers")
	flags.BoolVar(&backupOpts.InternetArchive, "internet-archive", false, "fall back to the Wayback Machine for dead media")

	// Observability
	flags.BoolVar(&backupOpts.Quiet, "quiet", false, "suppress progress output (accepted but ignored)")
	flags.BoolVar(&backupOpts.JSON, "json", false, "also save each post's raw JSON under json/<id>.json")
	flags.BoolVar(&backupOpts.MediaList, "media-list", false, "also append to media.json")
	flags.BoolVar(&backupOpts.JSONInfo, "json-info", false, "print the blog's info JSON and exit (accepted but ignored)")

	// Login, subprocess, persistence
	flags.StringVar(&username, "username", "", "Tumblr login, required for dashboard-only blogs")
	flags.StringVar(&password, "password", "", "Tumblr password, required for dashboard-only blogs")
	flags.StringVar(&noteScraperPath, "note-scraper", "", "path to the note-scraper subprocess binary")
	flags.StringVar(&ytDlpPath, "yt-dlp-path", "", "path to a youtube-dl/yt-dlp binary, for --save-video on non-Tumblr video and Soundcloud audio")
	flags.StringVar(&dbPath, "database", "", "cursor database path (default: <user config dir>/tumblr-backup/cursors.db)")
	flags.BoolVar(&interactive, "interactive", false, "prompt and wait on disk-full instead of aborting")

	viper.SetEnvPrefix("TUMBLR_BACKUP")
	_ = viper.BindPFlag("threads", flags.Lookup("threads"))
	_ = viper.BindPFlag("cookiefile", flags.Lookup("cookiefile"))
	_ = viper.BindEnv("apikey", "TUMBLR_BACKUP_APIKEY")
	viper.AutomaticEnv()
}

func runBackup(cmd *cobra.Command, args []string) error {
	backupOpts.Threads = viper.GetInt("threads")
	if cf := viper.GetString("cookiefile"); cf != "" {
		backupOpts.CookieFile = cf
	}
	backupOpts.ImageNames = config.ImageNamePolicy(imageNames)
	backupOpts.Request = parseRequestFlags(requestFlags)
	backupOpts.PrevArchives = prevArchivePaths

	if backupOpts.SaveVideo && ytDlpPath == "" {
		log.Printf("--save-video requested without --yt-dlp-path: non-Tumblr video will fall back to its embed code")
	}

	apiKey := viper.GetString("apikey")
	if apiKey == "" {
		var err error
		apiKey, err = config.LoadAPIKey()
		if err != nil {
			return fmt.Errorf("loading api key: %w", err)
		}
	}
	if apiKey == "" {
		return fmt.Errorf("no api key configured; run `tumblr-backup config-key <oauth_consumer_key>` first")
	}

	httpClient := retriever.NewClient(retriever.ClientOptions{
		UserAgent:   backupOpts.UserAgent,
		NoSSLVerify: backupOpts.NoSSLVerify,
	})

	db, err := openDatabase()
	if err != nil {
		return fmt.Errorf("opening cursor database: %w", err)
	}
	defer db.Close()

	var prevArchives []media.PreviousArchive
	for _, root := range prevArchivePaths {
		prevArchives = append(prevArchives, media.PreviousArchive{
			Root:    root,
			Options: backupOpts.MediaPathOptions(),
		})
	}

	var loginFunc func(ctx context.Context) error
	if username != "" {
		session := account.NewSession(httpClient, username, password)
		loginFunc = session.LoginFunc
		defer func() {
			if err := session.Logout(context.Background()); err != nil {
				log.Printf("failed to logout: %v", err)
			}
		}()
	}

	var notePath string
	if backupOpts.SaveNotes {
		notePath = noteScraperPath
	}

	enospcGate := poolrt.NewEnospcGate(enospcPrompt())
	internetGate := poolrt.NewInternetGate("api.tumblr.com")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		defer cancel()
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
		defer signal.Stop(ch)
		<-ch
	}()

	worst := coordinator.ExitSuccess
	for _, blog := range args {
		opts := *backupOpts
		opts.OutDir = blogOutDir(opts.OutDir, blog)

		co, err := coordinator.New(coordinator.Config{
			OutDir:          opts.OutDir,
			BlogName:        normalizeBlogName(blog),
			APIKey:          apiKey,
			Options:         &opts,
			HTTPClient:      httpClient,
			Blacklist:       retriever.NewHostBlacklist(),
			PrevArchives:    prevArchives,
			DB:              db,
			NoteScraperPath: notePath,
			YtDlpPath:       ytDlpPath,
			LoginFunc:       loginFunc,
			EnospcGate:      enospcGate,
			InternetGate:    internetGate,
		})
		if err != nil {
			log.Printf("%s: %v", blog, err)
			worst = worstExitCode(worst, coordinator.ExitBlogFailed)
			continue
		}

		code, err := co.Run(ctx)
		if err != nil && !isContextCanceledError(err) {
			log.Printf("%s: %v", blog, err)
		}
		worst = worstExitCode(worst, code)
		if code == coordinator.ExitInterrupted {
			break
		}
	}

	exitCode = int(worst)
	return nil
}

// worstExitCode keeps the most severe outcome across multiple blogs: an
// interruption always wins (the whole run is aborting), otherwise the
// highest numbered (and therefore most specific) failure does.
func worstExitCode(a, b coordinator.ExitCode) coordinator.ExitCode {
	if a == coordinator.ExitInterrupted || b == coordinator.ExitInterrupted {
		return coordinator.ExitInterrupted
	}
	if b > a {
		return b
	}
	return a
}

func enospcPrompt() func(ctx context.Context) error {
	if !interactive {
		return nil
	}
	return func(ctx context.Context) error {
		fmt.Fprintln(os.Stderr, "disk full: free some space and press Enter to retry")
		_, err := fmt.Scanln()
		return err
	}
}

func openDatabase() (*database.Database, error) {
	path := dbPath
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "tumblr-backup", "cursors.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return database.Open(path), nil // Open panics on its own I/O errors
}

// blogOutDir mirrors the teacher's default-per-blog directory convention
// when --out is left unset: one subdirectory per blog name under ".".
func blogOutDir(configured, blog string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(".", blog)
}

func normalizeBlogName(name string) string {
	if !strings.ContainsRune(name, '.') {
		return name + ".tumblr.com"
	}
	return name
}

// parseRequestFlags turns repeated --request type:tag[,tag...] flags into
// the type->tags map passesFilters expects (spec.md §6 "--request").
func parseRequestFlags(flags []string) map[string][]string {
	if len(flags) == 0 {
		return nil
	}
	out := make(map[string][]string, len(flags))
	for _, f := range flags {
		typ, tags, ok := strings.Cut(f, ":")
		if !ok {
			out[f] = nil
			continue
		}
		var list []string
		if tags != "" {
			list = strings.Split(tags, ",")
		}
		out[typ] = append(out[typ], list...)
	}
	return out
}
