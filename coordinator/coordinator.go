// Package coordinator implements the Backup Coordinator (spec.md §4.6): it
// opens an output directory, reconciles saved options, drives the API
// Client and worker pool, applies the post filter pipeline, and writes the
// on-disk archive. The original's global mutable state (save_folder,
// options, unreachable_hosts, ...) becomes this package's explicit
// Config value (spec.md §9), threaded through every collaborator
// instead of hung off package-level variables.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lhecker/tumblr-backup/apiclient"
	"github.com/lhecker/tumblr-backup/config"
	"github.com/lhecker/tumblr-backup/database"
	"github.com/lhecker/tumblr-backup/media"
	"github.com/lhecker/tumblr-backup/notescraper"
	"github.com/lhecker/tumblr-backup/poolrt"
	"github.com/lhecker/tumblr-backup/reblog"
	"github.com/lhecker/tumblr-backup/render"
	"github.com/lhecker/tumblr-backup/retriever"
	"github.com/lhecker/tumblr-backup/ytdl"
)

// ExitCode mirrors spec.md §6's CLI exit codes for one blog's run.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitGeneric      ExitCode = 1
	ExitInterrupted  ExitCode = 3
	ExitBlogFailed   ExitCode = 4
	ExitNoPosts      ExitCode = 5
)

// Config is everything one blog's backup run needs. It plays the role the
// original's global `options`/`save_folder` played, but as an explicit,
// non-shared value (spec.md §9).
type Config struct {
	OutDir          string
	BlogName        string
	APIKey          string
	Options         *config.Options
	HTTPClient      *http.Client
	Blacklist       *retriever.HostBlacklist
	PrevArchives    []media.PreviousArchive
	DB              *database.Database
	NoteScraperPath string
	YtDlpPath       string
	LoginFunc       func(ctx context.Context) error
	EnospcGate      *poolrt.Gate
	InternetGate    *poolrt.Gate
}

// Coordinator drives one blog's backup from start to the .complete
// sentinel (spec.md §4.6).
type Coordinator struct {
	cfg       Config
	api       *apiclient.Client
	retriever *retriever.Retriever
	media     *media.Downloader
	renderer  *render.Renderer
	notes     *notescraper.Scraper
	classify  func(*apiclient.Post) bool

	notesHTMLByPost    map[int64]string
	notesMu            sync.Mutex
	disableNoteScraper bool

	mediaListMu   sync.Mutex
	postFailCount int
}

func New(cfg Config) (*Coordinator, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, err
	}

	complete := config.IsComplete(cfg.OutDir)
	if err := config.ReconcileFirstRunOptions(cfg.Options, complete, cfg.Options.IgnoreDiffopt); err != nil {
		return nil, fmt.Errorf("coordinator: %s: %w", cfg.BlogName, err)
	}

	r := retriever.New(cfg.HTTPClient, cfg.Blacklist, cfg.Options.UserAgent, cfg.Options.UseServerTimestamps, cfg.Options.InternetArchive, cfg.EnospcGate)

	downloader := media.New(cfg.OutDir, cfg.Options.MediaPathOptions(), cfg.PrevArchives, r, cfg.Options.NoGet)

	var ytDownloader *ytdl.Downloader
	if (cfg.Options.SaveVideo || cfg.Options.SaveAudio) && cfg.YtDlpPath != "" {
		ytDownloader = ytdl.New(cfg.YtDlpPath)
	}

	notesHTMLByPost := make(map[int64]string)
	renderer := render.New(render.Options{
		BlogName:        cfg.BlogName,
		Likes:           cfg.Options.Likes,
		SaveImages:      cfg.Options.SaveImages,
		SaveVideo:       cfg.Options.SaveVideo,
		SaveVideoTumblr: cfg.Options.SaveVideoTumblr,
		SaveAudio:       cfg.Options.SaveAudio,
		SaveNotes:       cfg.Options.SaveNotes,
		CookieFile:      cfg.Options.CookieFile,
		NotesHTMLByPost: notesHTMLByPost,
	}, downloader, ytDownloader)

	api := apiclient.New(cfg.HTTPClient, cfg.APIKey, cfg.BlogName, cfg.Options.Likes, cfg.LoginFunc)

	var notes *notescraper.Scraper
	if cfg.Options.SaveNotes && cfg.NoteScraperPath != "" {
		notes = notescraper.New(cfg.NoteScraperPath)
	}

	return &Coordinator{
		cfg:             cfg,
		api:             api,
		retriever:       r,
		media:           downloader,
		renderer:        renderer,
		notes:           notes,
		notesHTMLByPost: notesHTMLByPost,
		classify:        reblog.Is,
	}, nil
}

// Run implements the startup + main pump + shutdown sequence of
// spec.md §4.6.
func (c *Coordinator) Run(ctx context.Context) (ExitCode, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	c.watchGates(ctx, cancel)

	if _, err := c.api.GetInitial(ctx); err != nil {
		return ExitBlogFailed, err
	}

	cursor := database.Cursor{}
	if c.cfg.Options.Continue || c.cfg.Options.Incremental {
		cursor = c.resumeCursor()
		if stored := c.cfg.DB.GetCursor(c.cfg.BlogName, c.cfg.Options.Likes); stored.IdentMax > cursor.IdentMax {
			cursor.IdentMax = stored.IdentMax
		}
		if stored := c.cfg.DB.GetCursor(c.cfg.BlogName, c.cfg.Options.Likes); stored.OldestTstamp > 0 && (cursor.OldestTstamp == 0 || stored.OldestTstamp < cursor.OldestTstamp) {
			cursor.OldestTstamp = stored.OldestTstamp
		}
	}

	pool := poolrt.New(ctx, c.cfg.Options.Threads, 1000)

	count := 0
	postCount := 0
	offset := c.cfg.Options.Skip
	before := c.cfg.Options.Before

	var runErr error
pump:
	for {
		page, err := c.api.Apiparse(pool.Context(), 50, offset, before, 0)
		if err != nil {
			runErr = err
			break
		}
		if page == nil {
			break
		}

		posts := page.AllPosts()
		if len(posts) == 0 {
			break
		}

		for _, post := range posts {
			ts := post.EffectiveTimestamp(c.cfg.Options.Likes)

			if !c.cfg.Options.Before.IsZero() && ts >= c.cfg.Options.Before.Unix() {
				continue
			}
			if c.cfg.Options.Incremental {
				if c.cfg.Options.Likes {
					if cursor.OldestTstamp != 0 && ts <= cursor.OldestTstamp {
						break pump
					}
				} else if cursor.IdentMax != 0 && post.ID <= cursor.IdentMax {
					break pump
				}
			}

			if !c.passesFilters(post) {
				continue
			}

			postCount++
			job := c.renderJob(post)
			if err := pool.Submit(job); err != nil {
				runErr = err
				break pump
			}

			if post.ID > cursor.IdentMax {
				cursor.IdentMax = post.ID
			}
			if cursor.OldestTstamp == 0 || ts < cursor.OldestTstamp {
				cursor.OldestTstamp = ts
			}

			count++
			if c.cfg.Options.Count > 0 && count >= c.cfg.Options.Count {
				break pump
			}
		}

		if c.cfg.Options.Likes && !page.HasNextLikesPage() {
			break
		}
		offset += len(posts)
	}

	closeErr := pool.Close()
	if runErr == nil {
		runErr = closeErr
	}

	if runErr != nil {
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			return ExitBlogFailed, cause
		}
		if ctx.Err() != nil {
			return ExitInterrupted, ctx.Err()
		}
		return ExitBlogFailed, runErr
	}

	c.cfg.DB.SetCursor(c.cfg.BlogName, c.cfg.Options.Likes, cursor)

	if postCount == 0 && !c.cfg.Options.Incremental && !c.cfg.Options.Continue {
		return ExitNoPosts, nil
	}
	if c.postFailCount > 0 {
		return ExitBlogFailed, nil
	}

	if err := c.buildIndex(); err != nil {
		return ExitGeneric, err
	}
	if err := config.WriteCompleteSentinel(c.cfg.OutDir); err != nil {
		return ExitGeneric, err
	}

	return ExitSuccess, nil
}

// watchGates runs the main-thread side of WaitOnMainThread for every gate
// this run owns (spec.md §4.7): whenever a worker blocks in Signal, Check
// runs the matching recovery action and wakes every waiter on success. A
// recovery that fails permanently (e.g. ENOSPC with no interactive prompt)
// aborts the whole run instead of leaving its waiters parked forever.
func (c *Coordinator) watchGates(ctx context.Context, cancel context.CancelCauseFunc) {
	for _, g := range []*poolrt.Gate{c.cfg.EnospcGate, c.cfg.InternetGate} {
		if g == nil {
			continue
		}
		g := g
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-g.Requested():
					if err := g.Check(ctx); err != nil {
						cancel(err)
						return
					}
				}
			}
		}()
	}
}

// passesFilters applies the post filters in this order: period bound,
// --tags list, post type, request (type:tag) predicate, reblog classifier,
// jq filter, no_post_clobber. The `before`/`ident_max` bounds are handled
// by the caller since they can end the whole pagination scan, not just
// skip one post.
func (c *Coordinator) passesFilters(post *apiclient.Post) bool {
	o := c.cfg.Options

	if o.Period != "" && !withinPeriod(post, o) {
		return false
	}
	if len(o.Tags) > 0 && !matchesRequest(post, map[string][]string{post.Type: o.Tags}) {
		return false
	}
	if len(o.Type) > 0 && !containsString(o.Type, post.Type) {
		return false
	}
	if len(o.Request) > 0 && !matchesRequest(post, o.Request) {
		return false
	}
	if o.NoReblog && c.classify(post) {
		return false
	}
	if o.OnlyReblog && !c.classify(post) {
		return false
	}
	if o.Filter != "" {
		ok, err := evalJQFilter(o.Filter, post)
		if err != nil || !ok {
			return false
		}
	}
	if o.NoPostClobber && postFileExists(c.cfg.OutDir, o, post.ID) {
		return false
	}
	return true
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func postFileExists(outDir string, o *config.Options, id int64) bool {
	path := filepath.Join(outDir, "posts", fmt.Sprintf("%d.html", id))
	if o.Dirs {
		path = filepath.Join(outDir, "posts", fmt.Sprintf("%d", id), "index.html")
	}
	_, err := os.Stat(path)
	return err == nil
}

// resumeCursor implements spec.md §4.6 step 2: scan existing posts for
// their recorded <time datetime> and take the min (--continue) or compute
// max(id) (non-likes incremental).
func (c *Coordinator) resumeCursor() database.Cursor {
	var cur database.Cursor

	postsDir := filepath.Join(c.cfg.OutDir, "posts")
	entries, err := os.ReadDir(postsDir)
	if err != nil {
		return cur
	}

	for _, e := range entries {
		name := e.Name()
		var idStr string
		switch {
		case strings.HasSuffix(name, ".html"):
			idStr = strings.TrimSuffix(name, ".html")
		case e.IsDir():
			idStr = name
		default:
			continue
		}

		var id int64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			continue
		}
		if id > cur.IdentMax {
			cur.IdentMax = id
		}

		ts := postDatetime(postsDir, e)
		if ts != 0 && (cur.OldestTstamp == 0 || ts < cur.OldestTstamp) {
			cur.OldestTstamp = ts
		}
	}

	return cur
}

func postDatetime(postsDir string, e os.DirEntry) int64 {
	path := filepath.Join(postsDir, e.Name())
	if e.IsDir() {
		path = filepath.Join(path, "index.html")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	m := datetimeRegexp.FindSubmatch(data)
	if len(m) == 0 {
		return 0
	}
	t, err := time.Parse(time.RFC3339, string(m[1]))
	if err != nil {
		return 0
	}
	return t.Unix()
}

func withinPeriod(post *apiclient.Post, o *config.Options) bool {
	cutoff, ok := parsePeriod(o.Period)
	if !ok {
		return true
	}
	return post.EffectiveTimestamp(o.Likes) >= cutoff
}

func matchesRequest(post *apiclient.Post, req map[string][]string) bool {
	tags, ok := req[post.Type]
	if !ok {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		for _, have := range post.Tags {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// renderJob builds the pool.Job that renders and saves one post
// (spec.md §4.6 "dispatches render+save jobs to workers").
func (c *Coordinator) renderJob(post *apiclient.Post) poolrt.Job {
	return func(ctx context.Context) error {
		c.scrapeNotes(ctx, post)

		result, err := c.renderer.Render(ctx, post)
		if err != nil {
			c.postFailCount++
			return nil // per-post failure, not fatal to the run (spec.md §4.6 "postfail_blogs")
		}

		if err := c.writePost(post, result); err != nil {
			c.postFailCount++
			return nil
		}

		if c.cfg.Options.MediaList && len(result.MediaURLs) > 0 {
			c.appendMediaList(post.ID, result.MediaURLs)
		}

		if c.cfg.Options.JSON {
			c.writeJSON(post)
		}

		return nil
	}
}

// scrapeNotes runs the note-scraper subprocess for one post, if enabled,
// and stores its HTML for renderFooter to pick up (spec.md §4.6 "Subprocess
// for notes"). A SafeMode result disables the scraper for the rest of this
// blog's run (spec.md §5 disable_note_scraper); a NoInternet result blocks
// on the coordinator's InternetGate until connectivity returns, then retries
// once before giving up on that post's notes.
func (c *Coordinator) scrapeNotes(ctx context.Context, post *apiclient.Post) {
	if c.notes == nil {
		return
	}

	c.notesMu.Lock()
	disabled := c.disableNoteScraper
	c.notesMu.Unlock()
	if disabled {
		return
	}

	req := notescraper.Request{
		PostURL:     post.PostURL,
		Ident:       post.ID,
		NoVerify:    c.cfg.Options.NoSSLVerify,
		UserAgent:   c.cfg.Options.UserAgent,
		CookieFile:  c.cfg.Options.CookieFile,
		NotesLimit:  c.cfg.Options.NotesLimit,
		UseDNSCheck: !c.cfg.Options.SkipDNSCheck,
	}

	for attempt := 0; attempt < 2; attempt++ {
		result, err := c.notes.Scrape(ctx, req)
		if err != nil {
			return
		}

		switch result.Outcome {
		case notescraper.Ok:
			if result.NotesHTML != "" {
				c.notesMu.Lock()
				c.notesHTMLByPost[post.ID] = result.NotesHTML
				c.notesMu.Unlock()
			}
			return
		case notescraper.SafeMode:
			c.notesMu.Lock()
			c.disableNoteScraper = true
			c.notesMu.Unlock()
			return
		case notescraper.NoInternet:
			if c.cfg.InternetGate == nil {
				return
			}
			if err := c.cfg.InternetGate.Signal(ctx); err != nil {
				return
			}
			// connectivity recovered; retry once
			continue
		}
	}
}

func (c *Coordinator) writePost(post *apiclient.Post, result render.Result) error {
	var path string
	if c.cfg.Options.Dirs {
		dir := filepath.Join(c.cfg.OutDir, "posts", fmt.Sprintf("%d", post.ID))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path = filepath.Join(dir, "index.html")
	} else {
		if err := os.MkdirAll(filepath.Join(c.cfg.OutDir, "posts"), 0o755); err != nil {
			return err
		}
		path = filepath.Join(c.cfg.OutDir, "posts", fmt.Sprintf("%d.html", post.ID))
	}

	if err := os.WriteFile(path, []byte(result.HTML), 0o644); err != nil {
		return err
	}

	ts := post.EffectiveTimestamp(c.cfg.Options.Likes)
	if ts != 0 {
		t := time.Unix(ts, 0)
		_ = os.Chtimes(path, t, t)
	}
	return nil
}

func (c *Coordinator) writeJSON(post *apiclient.Post) {
	dir := filepath.Join(c.cfg.OutDir, "json")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	raw := post.RawJSON()
	if len(raw) == 0 {
		raw, _ = json.Marshal(post)
	}
	_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.json", post.ID)), raw, 0o644)
}

// appendMediaList appends one line to media.json (spec.md §6): an
// append-only, per-line JSON object so completion order is visible.
func (c *Coordinator) appendMediaList(postID int64, urls []string) {
	c.mediaListMu.Lock()
	defer c.mediaListMu.Unlock()

	f, err := os.OpenFile(filepath.Join(c.cfg.OutDir, "media.json"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	sort.Strings(urls)
	line, err := json.Marshal(struct {
		Post  int64    `json:"post"`
		Media []string `json:"media"`
	}{Post: postID, Media: urls})
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = f.Write(line)
}
