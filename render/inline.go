package render

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lhecker/tumblr-backup/apiclient"
	"github.com/lhecker/tumblr-backup/media"
)

// imageSizeFixupRegexp/videoURLFixupRegexp mirror the teacher's scraper.go
// fixupURL regexes, repurposed here to maximize inline image resolution
// (spec.md §4.4 "maximise resolution by rewriting the trailing _NN(ext)
// size suffix to _1280\1").
var (
	videoURLFixupRegexp  = regexp.MustCompile(`_(?:480|720)\.mp4$`)
	imageSizeFixupRegexp = regexp.MustCompile(`_(?:\d+)\.([a-z]+)$`)
)

// rewriteInline implements spec.md §4.4 "Inline asset rewriting": it walks
// the per-type HTML fragment (the same tree-walk shape as the teacher's
// scraper.go scrapePostBody, generalized from "find and download" to
// "find, download, and rewrite src in place"), substitutes img/video
// poster/source URLs with their downloaded local path, and records every
// URL it resolves into rec.
func (r *Renderer) rewriteInline(ctx context.Context, post *apiclient.Post, fragment string, rec *mediaRecorder) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
	})
	if err != nil {
		return fragment, nil // malformed fragment: leave as-is rather than fail the whole post
	}

	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode {
			if err := r.rewriteNode(ctx, post, n, rec); err != nil {
				return err
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	for _, n := range nodes {
		if err := walk(n); err != nil {
			return fragment, err
		}
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return fragment, err
		}
	}
	return buf.String(), nil
}

func (r *Renderer) rewriteNode(ctx context.Context, post *apiclient.Post, n *html.Node, rec *mediaRecorder) error {
	var attrKey string
	switch n.DataAtom {
	case atom.Img:
		if !r.opts.SaveImages {
			removeAttr(n, "data-offset")
			return nil
		}
		attrKey = "src"
	case atom.Video:
		attrKey = "poster"
		stripAutoplayMuted(n)
	case atom.Source:
		attrKey = "src"
	default:
		return nil
	}

	for i, attr := range n.Attr {
		if attr.Key != attrKey || attr.Val == "" {
			continue
		}

		rawURL := fixupImageURL(attr.Val)
		offset := nodeAttr(n, "data-offset")
		rec.add(rawURL) // record intent even if the fetch below fails

		target, err := r.media.Resolve(ctx, media.Request{
			URL:           rawURL,
			BlogName:      r.opts.BlogName,
			PostID:        post.ID,
			PostTimestamp: timeFromPost(post, r.opts.Likes),
			Offset:        offset,
		})
		if err != nil {
			continue
		}

		n.Attr[i].Val = target.AbsPath
	}

	removeAttr(n, "data-offset")
	return nil
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// fixupImageURL maximises resolution for Tumblr CDN images and normalizes
// a legacy .mp4 size suffix, matching the teacher's scrapeContext.fixupURL.
func fixupImageURL(u string) string {
	if !strings.Contains(u, ".tumblr.com/") {
		return u
	}
	if strings.HasSuffix(u, ".gif") {
		return u
	}
	if strings.HasSuffix(u, ".mp4") {
		return videoURLFixupRegexp.ReplaceAllString(u, ".mp4")
	}
	return imageSizeFixupRegexp.ReplaceAllString(u, "_1280.$1")
}

func stripAutoplayMuted(n *html.Node) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key == "autoplay" || a.Key == "muted" {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func timeFromPost(post *apiclient.Post, likes bool) time.Time {
	ts := post.EffectiveTimestamp(likes)
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
