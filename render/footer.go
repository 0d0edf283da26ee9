package render

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/lhecker/tumblr-backup/apiclient"
)

// footerTemplate implements spec.md §4.4 "Footer": tag chips linked to
// https://<blog>/tagged/<urlencoded-tag>, a source-title link, the note
// count, and an optional expandable notes list. A fixed-shape trusted
// wrapper like this is exactly what html/template's contextual
// autoescaping is built for (see DESIGN.md).
var footerTemplate = template.Must(template.New("footer").Parse(`<footer>
{{- if .Tags}}<p class="tags">{{range .Tags}}<a class="tag" href="{{.URL}}">#{{.Name}}</a> {{end}}</p>{{end -}}
{{- if .SourceTitle}}<p class="source"><a href="{{.SourceURL}}">{{.SourceTitle}}</a></p>{{end -}}
<p class="notes">{{.NoteCount}} notes</p>
{{- if .NotesHTML}}<details><summary>notes</summary>{{.NotesHTML}}</details>{{end -}}
</footer>`))

type tagChip struct {
	Name string
	URL  string
}

type footerData struct {
	Tags        []tagChip
	SourceTitle string
	SourceURL   string
	NoteCount   int64
	NotesHTML   template.HTML
}

func (r *Renderer) renderFooter(post *apiclient.Post) string {
	data := footerData{
		SourceTitle: post.SourceTitle,
		SourceURL:   post.SourceURL,
		NoteCount:   post.NoteCount,
	}

	for _, tag := range post.Tags {
		data.Tags = append(data.Tags, tagChip{
			Name: tag,
			URL:  "https://" + r.opts.BlogName + "/tagged/" + url.PathEscape(tag),
		})
	}

	if html, ok := r.opts.NotesHTMLByPost[post.ID]; ok && html != "" {
		data.NotesHTML = template.HTML(html) //nolint:gosec // note-scraper output, already HTML by construction
	}

	var b strings.Builder
	if err := footerTemplate.Execute(&b, data); err != nil {
		// template.Must already validated parsing; Execute only fails on a
		// data/type mismatch, which would be a programmer error here.
		return "<footer>" + strconv.FormatInt(post.NoteCount, 10) + " notes</footer>"
	}
	return b.String()
}
