package apiclient

import (
	"os"
	"path/filepath"
	"testing"
)

func writeJSONPost(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReplayOrdersPostsDescendingByID(t *testing.T) {
	dir := t.TempDir()
	jsonDir := filepath.Join(dir, "json")
	writeJSONPost(t, jsonDir, "1.json", `{"id":"1"}`)
	writeJSONPost(t, jsonDir, "3.json", `{"id":"3"}`)
	writeJSONPost(t, jsonDir, "2.json", `{"id":"2"}`)

	r, err := NewReplay(dir, false)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}

	resp, err := r.Next(10)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	posts := resp.AllPosts()
	if len(posts) != 3 {
		t.Fatalf("got %d posts, want 3", len(posts))
	}
	want := []int64{3, 2, 1}
	for i, p := range posts {
		if p.ID != want[i] {
			t.Errorf("posts[%d].ID = %d, want %d", i, p.ID, want[i])
		}
	}

	if resp, err := r.Next(10); err != nil || resp != nil {
		t.Errorf("Next() after exhaustion = %#v, %v, want nil, nil", resp, err)
	}
}

func TestReplayPaginatesByCount(t *testing.T) {
	dir := t.TempDir()
	jsonDir := filepath.Join(dir, "json")
	writeJSONPost(t, jsonDir, "1.json", `{"id":"1"}`)
	writeJSONPost(t, jsonDir, "2.json", `{"id":"2"}`)
	writeJSONPost(t, jsonDir, "3.json", `{"id":"3"}`)

	r, err := NewReplay(dir, false)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}

	first, err := r.Next(2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(first.AllPosts()) != 2 {
		t.Fatalf("first page len = %d, want 2", len(first.AllPosts()))
	}

	second, err := r.Next(2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(second.AllPosts()) != 1 {
		t.Fatalf("second page len = %d, want 1", len(second.AllPosts()))
	}
}

func TestReplayLikesOrdersByLikedTimestamp(t *testing.T) {
	dir := t.TempDir()
	jsonDir := filepath.Join(dir, "json")
	writeJSONPost(t, jsonDir, "a.json", `{"id":"1","liked_timestamp":100}`)
	writeJSONPost(t, jsonDir, "b.json", `{"id":"2","liked_timestamp":200}`)

	r, err := NewReplay(dir, true)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	resp, err := r.Next(10)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	posts := resp.AllPosts()
	if len(posts) != 2 || posts[0].ID != 2 || posts[1].ID != 1 {
		t.Errorf("likes not ordered by liked_timestamp descending: %+v", posts)
	}
}

func TestNewReplayMissingDirReturnsError(t *testing.T) {
	if _, err := NewReplay(t.TempDir(), false); err == nil {
		t.Error("expected an error when json/ is missing")
	}
}
