package reblog

import (
	"encoding/json"
	"testing"

	"github.com/lhecker/tumblr-backup/apiclient"
)

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		post apiclient.Post
		want bool
	}{
		{
			name: "reblogged_from_id present",
			post: apiclient.Post{ID: 1, RebloggedFromID: json.Number("42")},
			want: true,
		},
		{
			name: "root_id differs from own id",
			post: apiclient.Post{ID: 1, RootID: json.Number("2")},
			want: true,
		},
		{
			name: "root_id equals own id is decisive on its own",
			post: apiclient.Post{ID: 1, RootID: json.Number("1")},
			want: false,
		},
		{
			name: "root_id equal to own id short-circuits even with a later via signal present",
			post: apiclient.Post{
				ID:     1,
				RootID: json.Number("1"),
				Type:   "quote",
				Source: `(via <a class="tumblr_blog" href="https://example.tumblr.com">example</a>)`,
			},
			want: false,
		},
		{
			name: "trail first post differs from own id",
			post: apiclient.Post{
				ID: 1,
				Trail: []apiclient.TrailEntry{
					{Post: struct {
						ID json.Number `json:"id"`
					}{ID: json.Number("99")}},
				},
			},
			want: true,
		},
		{
			name: "trail with no root item",
			post: apiclient.Post{
				ID: 1,
				Trail: []apiclient.TrailEntry{
					{
						Post: struct {
							ID json.Number `json:"id"`
						}{ID: json.Number("1")},
						IsRootItem: boolPtr(false),
					},
				},
			},
			want: true,
		},
		{
			name: "quote source carries via attribution",
			post: apiclient.Post{
				ID:     1,
				Type:   "quote",
				Source: `(via <a class="tumblr_blog" href="https://example.tumblr.com">example</a>)`,
			},
			want: true,
		},
		{
			name: "posted note from a different blog before this post's timestamp",
			post: apiclient.Post{
				ID:        1,
				Timestamp: 1000,
				Blog:      apiclient.Blog{UUID: "self"},
				Notes: []apiclient.Note{
					{Type: "posted", Timestamp: 500, BlogUUID: "other"},
				},
			},
			want: true,
		},
		{
			name: "posted note from self blog is not decisive",
			post: apiclient.Post{
				ID:        1,
				Timestamp: 1000,
				Blog:      apiclient.Blog{UUID: "self"},
				Notes: []apiclient.Note{
					{Type: "posted", Timestamp: 500, BlogUUID: "self"},
				},
			},
			want: false,
		},
		{
			name: "reblog tree_html without reply text",
			post: apiclient.Post{
				ID:     1,
				Reblog: apiclient.Reblog{TreeHTML: "<p>some reblog trail</p>"},
			},
			want: true,
		},
		{
			name: "reblog tree_html that is a reply is excluded",
			post: apiclient.Post{
				ID:     1,
				Reblog: apiclient.Reblog{TreeHTML: "replied to your post"},
			},
			want: false,
		},
		{
			name: "reblog comment with blockquote attribution",
			post: apiclient.Post{
				ID: 1,
				Reblog: apiclient.Reblog{
					Comment: `<a class="tumblr_blog" href="https://example.tumblr.com/">example</a>: <blockquote><p>hi</p></blockquote>`,
				},
			},
			want: true,
		},
		{
			name: "plain original post",
			post: apiclient.Post{
				ID:   1,
				Type: "text",
				Body: "just a normal post",
			},
			want: false,
		},
		{
			name: "submission without reblog tree_html is excluded from content checks",
			post: apiclient.Post{
				ID:           1,
				IsSubmission: true,
				Source:       `(via <a class="tumblr_blog" href="https://example.tumblr.com">example</a>)`,
			},
			want: false,
		},
		{
			name: "post_html present excludes content checks",
			post: apiclient.Post{
				ID:       1,
				PostHTML: json.RawMessage(`"<p>raw</p>"`),
				Source:   `(via <a class="tumblr_blog" href="https://example.tumblr.com">example</a>)`,
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Is(&tc.post); got != tc.want {
				t.Errorf("Is() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBlockquotePredicateCheapShape(t *testing.T) {
	c := "<p>somename:</p>\n<blockquote><p>quoted text</p></blockquote>"
	if !blockquotePredicate(c) {
		t.Errorf("blockquotePredicate(%q) = false, want true", c)
	}
}

func TestBlockquotePredicateReplyExcluded(t *testing.T) {
	c := "name: replied to your post"
	if blockquotePredicate(c) {
		t.Errorf("blockquotePredicate(%q) = true, want false", c)
	}
}

func TestNum(t *testing.T) {
	tests := []struct {
		in   json.Number
		want int64
	}{
		{json.Number("123"), 123},
		{json.Number(""), -1},
		{json.Number("12a"), -1},
	}
	for _, tc := range tests {
		if got := num(tc.in); got != tc.want {
			t.Errorf("num(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
