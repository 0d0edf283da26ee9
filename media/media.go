// Package media implements the Media Downloader (spec.md §4.5): resolving a
// raw media URL to a local path, guarding against duplicate concurrent
// downloads of the same target, reusing a previous archive's copy when
// possible, and falling back to the HTTP Retriever.
package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/net/idna"

	"github.com/lhecker/tumblr-backup/config"
	"github.com/lhecker/tumblr-backup/retriever"
)

// illegalChars mirrors Windows' reserved filename characters; stripping
// them keeps an archive portable even though the backup itself usually
// runs on POSIX (spec.md §4.5 step 2).
var illegalChars = regexp.MustCompile(`[<>:"\\|?*\x00-\x1f]`)

// PreviousArchive describes one prior output directory available for
// media reuse (spec.md §4.5 step 4, §4.2 "Previous-archive layout interop").
type PreviousArchive struct {
	Root    string
	Options config.MediaPathOptions
}

// Target is the resolved on-disk location for one media URL.
type Target struct {
	Dir      string // directory the file lives in, relative to the archive root
	Filename string
	AbsPath  string
}

// Request describes one media resolution (spec.md §4.5 "Inputs").
type Request struct {
	URL            string
	BlogName       string
	PostID         int64
	PostTimestamp  time.Time
	Offset         string // disambiguating suffix for multiple media referenced by one post
	ForcedExt      string
	AdjustBasename func(basename string) string
}

// Downloader is the shared, stateful entry point every Renderer call for an
// inline or attachment URL goes through.
type Downloader struct {
	root      string
	opts      config.MediaPathOptions
	prev      []PreviousArchive
	retriever *retriever.Retriever
	noGet     bool
	inFlight  *InFlight
}

func New(root string, opts config.MediaPathOptions, prev []PreviousArchive, r *retriever.Retriever, noGet bool) *Downloader {
	return &Downloader{
		root:      root,
		opts:      opts,
		prev:      prev,
		retriever: r,
		noGet:     noGet,
		inFlight:  NewInFlight(),
	}
}

// Resolve performs the full spec.md §4.5 resolution and, on success, returns
// the Target that was written (or already present). The caller is
// responsible for recording the original URL into the post's media set.
func (d *Downloader) Resolve(ctx context.Context, req Request) (Target, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Target{}, fmt.Errorf("media: not an HTTP(S) URL: %q", req.URL)
	}

	target, err := d.resolveTarget(u, req)
	if err != nil {
		return Target{}, err
	}

	release := d.inFlight.Acquire(ctx, target.AbsPath)
	defer release()

	if err := os.MkdirAll(filepath.Dir(target.AbsPath), 0o755); err != nil {
		return Target{}, err
	}

	if copied, err := d.tryReuse(target, req); err != nil {
		return Target{}, err
	} else if copied {
		d.clampMtime(target.AbsPath, req.PostTimestamp)
		return target, nil
	}

	if info, err := os.Stat(target.AbsPath); err == nil {
		d.clampMtimeInfo(target.AbsPath, info, req.PostTimestamp)
		return target, nil
	}

	if d.noGet {
		return Target{}, fmt.Errorf("media: %s not present locally and --no-get set", target.AbsPath)
	}

	finalName := target.Filename
	if req.AdjustBasename != nil {
		finalName = req.AdjustBasename(finalName)
	}

	rreq := retriever.Request{
		URL:           req.URL,
		DestDir:       filepath.Dir(target.AbsPath),
		DestName:      finalName,
		PostID:        req.PostID,
		PostTimestamp: req.PostTimestamp,
	}
	if err := d.retriever.Retrieve(ctx, rreq); err != nil {
		return Target{}, err
	}

	target.Filename = finalName
	target.AbsPath = filepath.Join(filepath.Dir(target.AbsPath), finalName)
	return target, nil
}

// MediaDir returns the absolute directory one post's media lives in,
// without resolving any particular URL. External downloaders that don't
// go through Resolve (spec.md §4.4's youtube-dl/yt-dlp subprocess path)
// use this to land their output inside the same archive layout as
// everything else.
func (d *Downloader) MediaDir(postID int64) string {
	mediaDir := "media"
	if d.opts.Dirs {
		mediaDir = filepath.Join("posts", fmt.Sprintf("%d", postID))
	}
	return filepath.Join(d.root, mediaDir)
}

// resolveTarget implements spec.md §4.5 steps 1-2: IDNA-encode the host,
// apply the `.`/`..` escape, append a non-default port to the directory
// name, and compute (media_dir [, host], filename).
func (d *Downloader) resolveTarget(u *url.URL, req Request) (Target, error) {
	filename := d.filenameFromURL(u, req)

	mediaDir := "media"
	if d.opts.Dirs {
		mediaDir = filepath.Join("posts", fmt.Sprintf("%d", req.PostID))
	}

	dir := mediaDir
	if d.opts.HostDirs {
		host, err := encodeHost(u.Hostname())
		if err != nil {
			host = u.Hostname()
		}
		if host == "." || host == ".." {
			host = "%2E" + host
		}
		if p := u.Port(); p != "" && p != defaultPort(u.Scheme) {
			host = host + "+" + p
		}
		dir = filepath.Join(mediaDir, host)
	}

	return Target{
		Dir:      dir,
		Filename: filename,
		AbsPath:  filepath.Join(d.root, dir, filename),
	}, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

func encodeHost(host string) (string, error) {
	return idna.Lookup.ToASCII(host)
}

// filenameFromURL applies the image_names policy (spec.md §3 MediaFile):
// `o` keeps the URL's basename, `i` is `<id>[offset]<ext>`, `bi` is
// `<blog>_<id>[offset]<ext>`. Windows-illegal characters are stripped and a
// `?query` is folded into the name when present.
func (d *Downloader) filenameFromURL(u *url.URL, req Request) string {
	base := basenameOrDefault(u.Path)
	ext := filepath.Ext(base)
	if req.ForcedExt != "" {
		ext = req.ForcedExt
	}

	var name string
	switch d.opts.ImageNames {
	case config.ImageNameID:
		name = fmt.Sprintf("%d%s%s", req.PostID, req.Offset, ext)
	case config.ImageNameBlogID:
		name = fmt.Sprintf("%s_%d%s%s", req.BlogName, req.PostID, req.Offset, ext)
	default: // config.ImageNameOriginal
		name = base
	}

	if u.RawQuery != "" {
		name = name + "_" + illegalChars.ReplaceAllString(u.RawQuery, "_")
	}

	return illegalChars.ReplaceAllString(name, "_")
}

func basenameOrDefault(p string) string {
	if p == "" || p == "/" {
		return "file"
	}
	b := filepath.Base(p)
	if b == "." || b == "/" {
		return "file"
	}
	return b
}

// tryReuse implements spec.md §4.5 step 4: compute the equivalent path in
// each configured previous archive (using *its* layout options, not ours)
// and copy the first hit into place.
func (d *Downloader) tryReuse(target Target, req Request) (bool, error) {
	if _, err := os.Stat(target.AbsPath); err == nil {
		return false, nil // already present locally, nothing to reuse
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return false, nil
	}

	for _, prev := range d.prev {
		prevLayout := &Downloader{root: prev.Root, opts: prev.Options}
		src, err := prevLayout.resolveTarget(u, req)
		if err != nil {
			continue
		}
		srcPath := src.AbsPath

		info, err := os.Stat(srcPath)
		if err != nil {
			continue
		}

		if err := copyPreservingStat(srcPath, target.AbsPath, info); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

func (d *Downloader) clampMtime(path string, postTime time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	d.clampMtimeInfo(path, info, postTime)
}

// clampMtimeInfo implements spec.md §4.5 step 5: if an existing file's
// mtime is newer than the post's timestamp, reset it back.
func (d *Downloader) clampMtimeInfo(path string, info os.FileInfo, postTime time.Time) {
	if postTime.IsZero() || !info.ModTime().After(postTime) {
		return
	}
	_ = os.Chtimes(path, postTime, postTime)
}

func copyPreservingStat(src, dst string, info os.FileInfo) error {
	if err := copyFileRange(src, dst); err != nil {
		if cerr := bufferedCopy(src, dst); cerr != nil {
			return cerr
		}
	}
	if err := os.Chmod(dst, info.Mode()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func bufferedCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
