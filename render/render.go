// Package render implements the Post Renderer (spec.md §4.4): per-post-type
// HTML generation, inline asset rewriting, and the media URL bookkeeping
// the Coordinator appends to media.json. The inbound HTML tree-walk is
// grounded on the teacher's scraper.go scrapePostBody; the outbound wrapper
// (fixed-shape article/header/footer) uses html/template (see DESIGN.md
// for why no pack library fits the outbound half of this job better).
package render

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lhecker/tumblr-backup/apiclient"
	"github.com/lhecker/tumblr-backup/media"
	"github.com/lhecker/tumblr-backup/ytdl"
)

// Options configures one Renderer instance for a single blog/run.
type Options struct {
	BlogName        string
	Likes           bool
	SaveImages      bool
	SaveVideo       bool
	SaveVideoTumblr bool
	SaveAudio       bool
	SaveNotes       bool
	CookieFile      string           // forwarded to the yt-dlp subprocess, if used
	NotesHTMLByPost map[int64]string // populated by the note-scraper, if enabled
}

// Renderer produces the HTML fragment for one post and records every media
// URL it references.
type Renderer struct {
	opts  Options
	media *media.Downloader
	ytdl  *ytdl.Downloader // nil when no --yt-dlp-path is configured
}

func New(opts Options, downloader *media.Downloader, ytDownloader *ytdl.Downloader) *Renderer {
	return &Renderer{opts: opts, media: downloader, ytdl: ytDownloader}
}

// Result is the renderer's output for one post.
type Result struct {
	HTML      string
	MediaURLs []string // sorted, de-duplicated, per spec.md §6 media.json shape
}

// Render implements spec.md §4.4: it produces the self-contained
// `<article>` fragment and the post's recorded media set.
func (r *Renderer) Render(ctx context.Context, post *apiclient.Post) (Result, error) {
	rec := &mediaRecorder{}

	body, err := r.renderBody(ctx, post, rec)
	if err != nil {
		return Result{}, err
	}

	body = unwrapErroneousParagraphs(body)

	class := post.Type
	if r.opts.Likes {
		class = "liked-" + class
	}

	ts := post.EffectiveTimestamp(r.opts.Likes)
	header := r.renderHeader(post, ts)
	footer := r.renderFooter(post)

	fragment := fmt.Sprintf(
		`<article class="%s" id="p-%d">%s%s%s</article>`,
		html.EscapeString(class), post.ID, header, body, footer,
	)

	urls := rec.sorted()
	return Result{HTML: fragment, MediaURLs: urls}, nil
}

func (r *Renderer) renderHeader(post *apiclient.Post, ts int64) string {
	t := time.Unix(ts, 0).UTC()
	return fmt.Sprintf(`<header><time datetime="%s">%s</time></header>`,
		t.Format(time.RFC3339), t.Format("2006-01-02 15:04"))
}

// renderBody dispatches to the per-type renderer named in spec.md §4.4,
// then runs the inline asset rewrite over the resulting fragment.
func (r *Renderer) renderBody(ctx context.Context, post *apiclient.Post, rec *mediaRecorder) (string, error) {
	var inner string

	switch post.Type {
	case "text":
		inner = fmt.Sprintf("<h1>%s</h1>%s", html.EscapeString(post.Title), post.Body)
	case "photo":
		inner = r.renderPhoto(post)
	case "link":
		inner = fmt.Sprintf(`<h1><a href="%s">%s</a></h1>%s`,
			html.EscapeString(post.URL), html.EscapeString(post.Title), post.Description)
	case "quote":
		inner = fmt.Sprintf("<blockquote><p>%s</p></blockquote><p>%s</p>", post.Text, post.Source)
	case "video":
		inner = r.renderVideo(ctx, post, rec)
	case "audio":
		inner = r.renderAudio(ctx, post, rec)
	case "answer":
		inner = fmt.Sprintf("<h1>%s</h1><p>%s</p>", html.EscapeString(post.Question), post.Answer)
	case "chat":
		inner = renderChat(post)
	default:
		inner = fmt.Sprintf("<pre>%s</pre>", html.EscapeString(string(post.RawJSON())))
	}

	return r.rewriteInline(ctx, post, inner, rec)
}

// renderPhoto implements spec.md §4.4 "photo": the first alt_sizes entry
// (falling back to original_size) per photo, each wrapped in <p>, optionally
// linked, with per-photo and post-level captions. Offsets are 1-based.
func (r *Renderer) renderPhoto(post *apiclient.Post) string {
	var b strings.Builder
	for i, photo := range post.Photos {
		v := photo.BestVariant()
		img := fmt.Sprintf(`<img src="%s" width="%d" height="%d" data-offset="%s">`,
			html.EscapeString(v.URL), v.Width, v.Height, photoOffset(i))
		if photo.LinkURL != "" {
			img = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(photo.LinkURL), img)
		}
		fmt.Fprintf(&b, "<p>%s</p>", img)
		if photo.Caption != "" {
			fmt.Fprintf(&b, "<p>%s</p>", photo.Caption)
		}
	}
	if post.Caption != "" {
		fmt.Fprintf(&b, "<p>%s</p>", post.Caption)
	}
	return b.String()
}

// photoOffset returns the 1-based offset used to disambiguate filenames
// within a photoset (spec.md §4.5 "offset suffix").
func photoOffset(i int) string {
	return strconv.Itoa(i + 1)
}

// renderVideo implements spec.md §4.4 "video": a Tumblr-hosted source
// downloads straight through the Media Downloader as .mp4; any other
// source falls back to the configured yt-dlp subprocess when generic
// video saving is enabled. Either path failing (or being disabled) falls
// back to the embedded player, then the raw video_url, matching the
// teacher corpus's own get_youtube_url fallback-to-nothing behavior.
func (r *Renderer) renderVideo(ctx context.Context, post *apiclient.Post, rec *mediaRecorder) string {
	var src string
	switch {
	case (r.opts.SaveVideo || r.opts.SaveVideoTumblr) && post.VideoType == "tumblr" && post.VideoURL != "":
		src = r.downloadMedia(ctx, post, rec, post.VideoURL, ".mp4")
	case r.opts.SaveVideo && post.VideoURL != "":
		src = r.downloadExternal(ctx, post, rec, post.VideoURL)
	}

	if src != "" {
		return fmt.Sprintf(
			`<video src="%s" controls></video>`,
			html.EscapeString(src),
		)
	}
	if len(post.Player) > 0 {
		return post.Player[len(post.Player)-1].EmbedCode
	}
	if post.VideoURL != "" {
		return fmt.Sprintf(`<video src="%s" controls></video>`, html.EscapeString(post.VideoURL))
	}
	return ""
}

// renderAudio implements spec.md §4.4 "audio": audio_url/audio_source_url
// take priority; a legacy www.tumblr.com/audio_file/... URL is rewritten
// to its a.tumblr.com equivalent first, then downloaded as .mp3.
// Soundcloud sources go through the generic yt-dlp path instead.
func (r *Renderer) renderAudio(ctx context.Context, post *apiclient.Post, rec *mediaRecorder) string {
	u := post.AudioURL
	if u == "" {
		u = post.AudioSourceURL
	}

	var src string
	if r.opts.SaveAudio {
		switch {
		case post.AudioType == "tumblr" && strings.HasPrefix(u, "https://a.tumblr.com/"):
			src = r.downloadMedia(ctx, post, rec, u, ".mp3")
		case post.AudioType == "tumblr" && strings.HasPrefix(u, "https://www.tumblr.com/audio_file/"):
			rewritten := rewriteAudioFileURL(u)
			src = r.downloadMedia(ctx, post, rec, rewritten, ".mp3")
		case post.AudioType == "soundcloud" && u != "":
			src = r.downloadExternal(ctx, post, rec, u)
		}
	}

	if src != "" {
		return fmt.Sprintf(`<audio src="%s" controls></audio>`, html.EscapeString(src))
	}
	if u == "" {
		return ""
	}
	return fmt.Sprintf(`<audio src="%s" controls></audio>`, html.EscapeString(u))
}

// rewriteAudioFileURL turns a legacy www.tumblr.com/audio_file/<blog>/<id>
// URL into the a.tumblr.com form the CDN actually serves from, matching
// the teacher corpus's audio_url rewrite for this same legacy shape.
func rewriteAudioFileURL(u string) string {
	base := u
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return fmt.Sprintf("https://a.tumblr.com/%so1.mp3", base)
}

// downloadMedia resolves a Tumblr-hosted video/audio URL through the
// Media Downloader, recording it into the post's media set regardless of
// whether the fetch succeeds (matching rewriteNode's "record intent even
// if the fetch below fails").
func (r *Renderer) downloadMedia(ctx context.Context, post *apiclient.Post, rec *mediaRecorder, rawURL, forcedExt string) string {
	rec.add(rawURL)
	target, err := r.media.Resolve(ctx, media.Request{
		URL:           rawURL,
		BlogName:      r.opts.BlogName,
		PostID:        post.ID,
		PostTimestamp: timeFromPost(post, r.opts.Likes),
		ForcedExt:     forcedExt,
	})
	if err != nil {
		return ""
	}
	return target.AbsPath
}

// downloadExternal runs the configured yt-dlp subprocess for a
// non-Tumblr-hosted video or Soundcloud audio URL. A missing --yt-dlp-path
// (r.ytdl == nil) or a failed extraction both fall back to the caller's
// embed/raw-URL path, the same graceful degradation the teacher corpus's
// get_youtube_url applies on any exception.
func (r *Renderer) downloadExternal(ctx context.Context, post *apiclient.Post, rec *mediaRecorder, rawURL string) string {
	rec.add(rawURL)
	if r.ytdl == nil {
		return ""
	}
	dir := r.media.MediaDir(post.ID)
	res, err := r.ytdl.Download(ctx, ytdl.Request{
		URL:        rawURL,
		DestDir:    dir,
		CookieFile: r.opts.CookieFile,
	})
	if err != nil {
		log.Printf("ytdl: %s: %v", rawURL, err)
		return ""
	}
	return res.AbsPath
}

func renderChat(post *apiclient.Post) string {
	var b strings.Builder
	for _, line := range post.Dialogue {
		fmt.Fprintf(&b, "%s %s<br>", html.EscapeString(line.Label), html.EscapeString(line.Phrase))
	}
	return b.String()
}

// unwrapErroneousParagraphs implements spec.md §4.4 "Post HTML
// post-processing": `<p>` wrappers that erroneously contain `<p>`, `<ol>`,
// or `<iframe>` are unwrapped. Tumblr's own HTML is malformed often enough
// that a pragmatic string-level fixup (matching the teacher's regex-first
// approach to this content, spec.md §9) is preferable to a strict parse.
func unwrapErroneousParagraphs(body string) string {
	for _, inner := range []string{"<p>", "<ol>", "<iframe"} {
		body = strings.ReplaceAll(body, "<p>"+inner, inner)
	}
	return body
}

// mediaRecorder accumulates the media URLs seen while rendering one post,
// matching spec.md §3's "record_media(id, urls)".
type mediaRecorder struct {
	urls map[string]struct{}
}

func (m *mediaRecorder) add(u string) {
	if m.urls == nil {
		m.urls = make(map[string]struct{})
	}
	m.urls[u] = struct{}{}
}

func (m *mediaRecorder) sorted() []string {
	out := make([]string, 0, len(m.urls))
	for u := range m.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
