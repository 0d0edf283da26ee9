package coordinator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildIndexGroupsByYearAndMonth(t *testing.T) {
	dir := t.TempDir()
	postsDir := filepath.Join(dir, "posts")
	if err := os.MkdirAll(postsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	write := func(id, datetime string) {
		html := `<article><header><time datetime="` + datetime + `">x</time></header></article>`
		if err := os.WriteFile(filepath.Join(postsDir, id+".html"), []byte(html), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("1", "2023-11-05T00:00:00Z")
	write("2", "2023-12-01T00:00:00Z")

	c := &Coordinator{cfg: Config{OutDir: dir}}
	if err := c.buildIndex(); err != nil {
		t.Fatalf("buildIndex() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil {
		t.Fatalf("reading index.html: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "2023 November") {
		t.Errorf("index.html missing November 2023 section:\n%s", out)
	}
	if !strings.Contains(out, "2023 December") {
		t.Errorf("index.html missing December 2023 section:\n%s", out)
	}
	if !strings.Contains(out, `href="posts/1.html"`) {
		t.Errorf("index.html missing link to post 1:\n%s", out)
	}

	// December should be listed before November (reverse chronological).
	if strings.Index(out, "December") > strings.Index(out, "November") {
		t.Errorf("expected December section before November section:\n%s", out)
	}
}

func TestBuildIndexNoPostsDirIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	c := &Coordinator{cfg: Config{OutDir: dir}}
	if err := c.buildIndex(); err != nil {
		t.Fatalf("buildIndex() with no posts dir = %v, want nil", err)
	}
}
