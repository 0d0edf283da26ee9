// Package reblog implements the cheap-then-expensive cascade that decides
// whether a post is a reblog (spec.md §4.3), ported directly from
// bbolli/tumblr-utils's tumblr_backup/is_reblog.py.
package reblog

import (
	"regexp"
	"strings"

	"github.com/lhecker/tumblr-backup/apiclient"
)

// viaRegexp matches the "(via <a ...>" attribution Tumblr inserts into a
// quote/link source or a reblog comment.
var viaRegexp = regexp.MustCompile(`\(via <a (class="tumblr_blog" |href="https?://[^/]+/?"[ >])`)

// bqRegexp2 is the cheap "<p>name:</p>\n*<blockquote>" shape.
var bqRegexp2 = regexp.MustCompile(`(?:<p>)+[a-z0-9-]+:</p>\n*<blockquote>`)

// bqRegexp recognizes a Tumblr-style blog-attribution anchor followed by a
// colon and a blockquote, accepting several historical URL shapes for the
// anchor's href.
var bqRegexp = regexp.MustCompile(`(?s)^(?:(?:<(?:a[ >])[^<>]*>|[^<>])*?)<a(?:` +
	` class="(?P<classes>[^"]*)"` +
	`| href="https?://(?:` +
	`(?P<blogco>tmblr\.co/[a-zA-Z0-9_]+/?)` +
	`|www\.tumblr\.com/dashboard/blog/(?P<bname0>[a-zA-Z0-9-]+)/[0-9]+/?` +
	`|(?P<priv>www\.tumblr\.com/blog/private_[0-9]+\?[0-9]+)` +
	`|(?:(?:www|(?P<bname1>[a-zA-Z0-9-]+))\.tumblr\.com|[^/"]+)(?:(?P<blogpost>/post/[0-9]+(?:/[^/"]*)?)|/[^"]*)?` +
	`)"` +
	`| [^\s</>"'=]+(?:="[^"]*"|\b)` +
	`)*>[^<>]*</a>:(?:[^\S\n]*[^<\s])?`)

// Is decides whether post is a reblog, running spec.md §4.3's eight-step
// cascade in order and short-circuiting on the first decisive signal.
func Is(p *apiclient.Post) bool {
	if string(p.RebloggedFromID) != "" {
		return true
	}

	if string(p.RootID) != "" {
		// is_reblog.py:102-104 treats root_id as fully decisive: once present,
		// the comparison alone settles the verdict, with no fallthrough to
		// the trail/via/note/tree_html/blockquote signals below.
		return num(p.RootID) != p.ID
	}

	if len(p.Trail) != 0 {
		if num(p.Trail[0].Post.ID) != p.ID {
			return true
		}

		hasRoot := false
		for _, t := range p.Trail {
			if t.IsRootItem == nil || *t.IsRootItem {
				hasRoot = true
				break
			}
		}
		if !hasRoot {
			return true
		}
	}

	if checkContent(p, viaPredicate, "via") {
		return true
	}

	if checkPostedNote(p) {
		return true
	}

	if p.Reblog.TreeHTML != "" && !strings.Contains(p.Reblog.TreeHTML, "replied to your") {
		return true
	}

	if checkContent(p, blockquotePredicate, "blockquote") {
		return true
	}

	return false
}

func num(n interface{ String() string }) int64 {
	var v int64
	s := n.String()
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
	}
	for _, c := range s {
		v = v*10 + int64(c-'0')
	}
	if s == "" {
		return -1
	}
	return v
}

func checkPostedNote(p *apiclient.Post) bool {
	if len(p.Notes) == 0 {
		return false
	}
	n := p.Notes[len(p.Notes)-1]
	return n.Type == "posted" && n.Timestamp < p.Timestamp && n.BlogUUID != p.Blog.UUID
}

// checkContent mirrors is_reblog.py's _check_content: submissions without
// reblog.tree_html and posts carrying post_html are excluded to reduce
// false positives, and quote "source" takes priority over reblog comment.
func checkContent(p *apiclient.Post, pred func(string) bool, name string) bool {
	if p.IsSubmission && p.Reblog.TreeHTML == "" {
		return false
	}
	if len(p.PostHTML) != 0 {
		return false
	}

	if p.Source != "" {
		return name == "via" && pred(p.Source)
	}

	hasReblog := p.Reblog.Comment != "" || p.Reblog.TreeHTML != ""
	if !hasReblog {
		return false
	}
	if name != "via" && p.Reblog.TreeHTML != "" {
		return false
	}
	return pred(p.Reblog.Comment)
}

func viaPredicate(c string) bool {
	return viaRegexp.MatchString(c)
}

func blockquotePredicate(c string) bool {
	if strings.Contains(c, "replied to your") {
		return false
	}
	if bqRegexp2.MatchString(c) {
		return true
	}

	m := bqRegexp.FindStringSubmatch(c)
	if m == nil {
		return false
	}

	names := bqRegexp.SubexpNames()
	group := func(name string) string {
		for i, n := range names {
			if n == name && i < len(m) {
				return m[i]
			}
		}
		return ""
	}

	classes := strings.Split(group("classes"), " ")
	for _, cls := range classes {
		if cls == "tumblr_blog" {
			return true
		}
	}
	if group("blogpost") != "" || group("priv") != "" || group("bname0") != "" {
		return true
	}
	if group("blogco") != "" || group("bname1") != "" {
		return regexp.MustCompile(`<blockquote[ >]`).MatchString(c)
	}
	return false
}
