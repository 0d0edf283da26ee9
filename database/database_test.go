package database

import (
	"path/filepath"
	"testing"
)

func TestGetCursorDefaultsToZeroValue(t *testing.T) {
	db := Open(filepath.Join(t.TempDir(), "cursors.db"))
	defer db.Close()

	got := db.GetCursor("example.tumblr.com", false)
	if got != (Cursor{}) {
		t.Errorf("GetCursor() for unseen blog = %+v, want zero value", got)
	}
}

func TestSetAndGetCursorRoundTrip(t *testing.T) {
	db := Open(filepath.Join(t.TempDir(), "cursors.db"))
	defer db.Close()

	want := Cursor{IdentMax: 42, OldestTstamp: 1700000000}
	db.SetCursor("example.tumblr.com", false, want)

	got := db.GetCursor("example.tumblr.com", false)
	if got != want {
		t.Errorf("GetCursor() = %+v, want %+v", got, want)
	}
}

func TestCursorsKeyedByLikesIndependently(t *testing.T) {
	db := Open(filepath.Join(t.TempDir(), "cursors.db"))
	defer db.Close()

	db.SetCursor("example.tumblr.com", false, Cursor{IdentMax: 1})
	db.SetCursor("example.tumblr.com", true, Cursor{OldestTstamp: 2})

	posts := db.GetCursor("example.tumblr.com", false)
	likes := db.GetCursor("example.tumblr.com", true)

	if posts.IdentMax != 1 || posts.OldestTstamp != 0 {
		t.Errorf("posts cursor = %+v, want {IdentMax:1}", posts)
	}
	if likes.IdentMax != 0 || likes.OldestTstamp != 2 {
		t.Errorf("likes cursor = %+v, want {OldestTstamp:2}", likes)
	}
}

func TestCursorsAreIsolatedPerBlog(t *testing.T) {
	db := Open(filepath.Join(t.TempDir(), "cursors.db"))
	defer db.Close()

	db.SetCursor("a.tumblr.com", false, Cursor{IdentMax: 10})
	db.SetCursor("b.tumblr.com", false, Cursor{IdentMax: 20})

	if got := db.GetCursor("a.tumblr.com", false); got.IdentMax != 10 {
		t.Errorf("a.tumblr.com cursor = %+v, want IdentMax 10", got)
	}
	if got := db.GetCursor("b.tumblr.com", false); got.IdentMax != 20 {
		t.Errorf("b.tumblr.com cursor = %+v, want IdentMax 20", got)
	}
}
