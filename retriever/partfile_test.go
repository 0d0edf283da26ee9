package retriever

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPartFileCommitRenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()

	pf, err := openPartFile(dir, "final.jpg", false, "")
	if err != nil {
		t.Fatalf("openPartFile: %v", err)
	}
	if _, err := pf.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mtime := time.Unix(1700000000, 0)
	if err := pf.Commit("final.jpg", mtime); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	finalPath := filepath.Join(dir, "final.jpg")
	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("reading committed file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("committed content = %q, want %q", data, "payload")
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}

	if _, err := os.Stat(pf.tmpPath); !os.IsNotExist(err) {
		t.Errorf("temp file %q should no longer exist after commit", pf.tmpPath)
	}
}

func TestPartFileCloseWithoutCommitRemovesTempFile(t *testing.T) {
	dir := t.TempDir()

	pf, err := openPartFile(dir, "final.jpg", false, "")
	if err != nil {
		t.Fatalf("openPartFile: %v", err)
	}
	tmpPath := pf.TempPath()

	if _, err := os.Stat(tmpPath); err != nil {
		t.Fatalf("expected temp file to exist before Close: %v", err)
	}

	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("temp file should be removed when Close is called without Commit")
	}
	if _, err := os.Stat(filepath.Join(dir, "final.jpg")); !os.IsNotExist(err) {
		t.Error("final file should never have been created")
	}
}

func TestOpenPartFileResumeAppends(t *testing.T) {
	dir := t.TempDir()

	pf, err := openPartFile(dir, "final.jpg", false, "")
	if err != nil {
		t.Fatalf("openPartFile: %v", err)
	}
	if _, err := pf.Write([]byte("first-")); err != nil {
		t.Fatal(err)
	}
	tmpPath := pf.TempPath()
	if err := pf.file.Close(); err != nil {
		t.Fatal(err)
	}
	pf.dir.Close()

	pf2, err := openPartFile(dir, "final.jpg", true, tmpPath)
	if err != nil {
		t.Fatalf("openPartFile (resume): %v", err)
	}
	if _, err := pf2.Write([]byte("second")); err != nil {
		t.Fatal(err)
	}
	if err := pf2.Commit("final.jpg", time.Time{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	defer pf2.Close()

	data, err := os.ReadFile(filepath.Join(dir, "final.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first-second" {
		t.Errorf("resumed content = %q, want %q", data, "first-second")
	}
}
