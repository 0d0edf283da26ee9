package render

import (
	"strings"
	"testing"

	"github.com/lhecker/tumblr-backup/apiclient"
)

func TestRenderFooterTagsAndNotes(t *testing.T) {
	r := &Renderer{opts: Options{
		BlogName:        "example.tumblr.com",
		NotesHTMLByPost: map[int64]string{1: "<p>note html</p>"},
	}}
	post := &apiclient.Post{
		ID:          1,
		Tags:        []string{"art", "long tag"},
		SourceTitle: "Original Source",
		SourceURL:   "https://source.example.com",
		NoteCount:   7,
	}

	got := r.renderFooter(post)

	if !strings.Contains(got, `href="https://example.tumblr.com/tagged/art"`) {
		t.Errorf("footer missing tag link for 'art': %s", got)
	}
	if !strings.Contains(got, `href="https://example.tumblr.com/tagged/long%20tag"`) {
		t.Errorf("footer missing escaped tag link for 'long tag': %s", got)
	}
	if !strings.Contains(got, `<a href="https://source.example.com">Original Source</a>`) {
		t.Errorf("footer missing source link: %s", got)
	}
	if !strings.Contains(got, "7 notes") {
		t.Errorf("footer missing note count: %s", got)
	}
	if !strings.Contains(got, "<p>note html</p>") {
		t.Errorf("footer missing notes html: %s", got)
	}
}

func TestRenderFooterOmitsEmptySections(t *testing.T) {
	r := &Renderer{opts: Options{BlogName: "example.tumblr.com"}}
	post := &apiclient.Post{ID: 2, NoteCount: 0}

	got := r.renderFooter(post)

	if strings.Contains(got, "tags") {
		t.Errorf("footer should omit tags section: %s", got)
	}
	if strings.Contains(got, "source") {
		t.Errorf("footer should omit source section: %s", got)
	}
	if strings.Contains(got, "<details>") {
		t.Errorf("footer should omit notes details with no notes html: %s", got)
	}
	if !strings.Contains(got, "0 notes") {
		t.Errorf("footer missing zero note count: %s", got)
	}
}
