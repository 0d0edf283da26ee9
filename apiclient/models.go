package apiclient

import "encoding/json"

// Post is the superset of fields the backup engine reads off a Tumblr v2
// post JSON object, spanning both the public API and the svc/indash_blog
// dashboard payload shape (spec.md §3). Field layout follows the teacher's
// scraper/models.go: a single flat struct carrying both NPF and legacy
// compatibility fields, with json.RawMessage used for anything that needs
// type-dependent decoding.
type Post struct {
	ID                int64           `json:"id,string"`
	Type              string          `json:"type"`
	Timestamp         int64           `json:"timestamp"`
	LikedTimestamp    int64           `json:"liked_timestamp"`
	Tags              []string        `json:"tags"`
	Slug              string          `json:"slug"`
	PostURL           string          `json:"post_url"`
	ShortURL          string          `json:"short_url"`
	SourceURL         string          `json:"source_url"`
	SourceTitle       string          `json:"source_title"`
	NoteCount         int64           `json:"note_count"`
	Notes             []Note          `json:"notes"`
	RebloggedFromID   json.Number     `json:"reblogged_from_id"`
	RebloggedFromURL  string          `json:"reblogged_from_url"`
	RebloggedRootURL  string          `json:"reblogged_root_url"`
	RootID            json.Number     `json:"root_id"`
	Trail             []TrailEntry    `json:"trail"`
	Reblog            Reblog          `json:"reblog"`
	IsSubmission      bool            `json:"is_submission"`
	PostHTML          json.RawMessage `json:"post_html"`
	Blog              Blog            `json:"blog"`

	// text
	Title string `json:"title"`
	Body  string `json:"body"`

	// photo
	Photos  []Photo `json:"photos"`
	Caption string  `json:"caption"`

	// link
	URL         string `json:"url"`
	Description string `json:"description"`

	// quote
	Text   string `json:"text"`
	Source string `json:"source"`

	// video
	VideoType string          `json:"video_type"`
	VideoURL  string          `json:"video_url"`
	Player    []VideoEmbed    `json:"player"`

	// audio
	AudioType      string `json:"audio_type"`
	AudioURL       string `json:"audio_url"`
	AudioSourceURL string `json:"audio_source_url"`
	AudioFile      string `json:"audio_file"`

	// answer
	Question string `json:"question"`
	Answer   string `json:"answer"`

	// chat
	Dialogue []DialogueEntry `json:"dialogue"`

	// raw JSON preserved verbatim for --json
	raw json.RawMessage
}

// RawJSON returns the exact bytes the post was decoded from, for --json.
func (p *Post) RawJSON() json.RawMessage { return p.raw }

// SetRawJSON attaches the source bytes; called by the decoder immediately
// after unmarshaling so callers never see a Post without it populated.
func (p *Post) SetRawJSON(raw json.RawMessage) { p.raw = raw }

// EffectiveTimestamp returns LikedTimestamp for likes feeds, Timestamp
// otherwise, matching spec.md §3's "timestamp (or liked_timestamp)".
func (p *Post) EffectiveTimestamp(likes bool) int64 {
	if likes && p.LikedTimestamp != 0 {
		return p.LikedTimestamp
	}
	return p.Timestamp
}

type Blog struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type Note struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	BlogUUID  string `json:"blog_uuid"`
	BlogName  string `json:"blog_name"`
}

type TrailEntry struct {
	Post struct {
		ID json.Number `json:"id"`
	} `json:"post"`
	Blog struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
	} `json:"blog"`
	BrokenBlogName string `json:"broken_blog_name"`
	ContentRaw     string `json:"content_raw"`
	IsRootItem     *bool  `json:"is_root_item"`
}

type Reblog struct {
	Comment  string `json:"comment"`
	TreeHTML string `json:"tree_html"`
}

type Photo struct {
	Offset       int            `json:"-"`
	Caption      string         `json:"caption"`
	AltSizes     []PhotoVariant `json:"alt_sizes"`
	OriginalSize PhotoVariant   `json:"original_size"`
	LinkURL      string         `json:"link_url"`
}

// BestVariant returns alt_sizes[0] when present, otherwise original_size,
// per spec.md §4.4 photo rendering rules.
func (p *Photo) BestVariant() PhotoVariant {
	if len(p.AltSizes) > 0 {
		return p.AltSizes[0]
	}
	return p.OriginalSize
}

type PhotoVariant struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type VideoEmbed struct {
	EmbedCode string `json:"embed_code"`
}

type DialogueEntry struct {
	Label  string `json:"label"`
	Phrase string `json:"phrase"`
}
