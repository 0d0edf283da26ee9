package coordinator

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// buildIndex implements spec.md §4.6's "build indices" step: a
// chronological index.html grouping posts by year and month, matching the
// acceptance test's "index lists the post under year 2023 month 11".
func (c *Coordinator) buildIndex() error {
	postsDir := filepath.Join(c.cfg.OutDir, "posts")
	entries, err := os.ReadDir(postsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type entry struct {
		id   int64
		href string
		ts   int64
	}
	var posts []entry

	for _, e := range entries {
		name := e.Name()
		var idStr, href string
		switch {
		case strings.HasSuffix(name, ".html"):
			idStr = strings.TrimSuffix(name, ".html")
			href = "posts/" + name
		case e.IsDir():
			idStr = name
			href = "posts/" + name + "/index.html"
		default:
			continue
		}

		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		posts = append(posts, entry{id: id, href: href, ts: postDatetime(postsDir, e)})
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].ts > posts[j].ts })

	byMonth := map[string][]entry{}
	var months []string
	for _, p := range posts {
		month := time.Unix(p.ts, 0).UTC().Format("2006-01")
		if _, ok := byMonth[month]; !ok {
			months = append(months, month)
		}
		byMonth[month] = append(byMonth[month], p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Archive</title></head><body>\n")
	for _, month := range months {
		t, _ := time.Parse("2006-01", month)
		fmt.Fprintf(&b, "<h2>%d %s</h2>\n<ul>\n", t.Year(), t.Month())
		for _, p := range byMonth[month] {
			fmt.Fprintf(&b, `<li><a href="%s">%d</a></li>`+"\n", html.EscapeString(p.href), p.id)
		}
		b.WriteString("</ul>\n")
	}
	b.WriteString("</body></html>\n")

	return os.WriteFile(filepath.Join(c.cfg.OutDir, "index.html"), []byte(b.String()), 0o644)
}
