package apiclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Replay iterates a previous archive's saved json/*.json files in
// descending order (by id for posts, by liked_timestamp for likes),
// standing in for the network transport per spec.md §4.2 "read_archive".
type Replay struct {
	paths []string
	likes bool
	pos   int
}

// NewReplay scans prevArchiveDir/json for *.json files and orders them.
func NewReplay(prevArchiveDir string, likes bool) (*Replay, error) {
	jsonDir := filepath.Join(prevArchiveDir, "json")

	entries, err := os.ReadDir(jsonDir)
	if err != nil {
		return nil, fmt.Errorf("reading archive json dir: %w", err)
	}

	type item struct {
		path string
		key  int64
	}
	items := make([]item, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(jsonDir, e.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var p Post
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}

		key := p.ID
		if likes {
			key = p.LikedTimestamp
		}
		items = append(items, item{path: path, key: key})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].key > items[j].key })

	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.path
	}

	return &Replay{paths: paths, likes: likes}, nil
}

// Next returns the next page of up to count posts, or nil when exhausted,
// matching the shape of Client.Apiparse so the coordinator can treat both
// transparently.
func (r *Replay) Next(count int) (*Response, error) {
	if r.pos >= len(r.paths) {
		return nil, nil
	}

	end := r.pos + count
	if end > len(r.paths) {
		end = len(r.paths)
	}

	posts := make([]*Post, 0, end-r.pos)
	for _, path := range r.paths[r.pos:end] {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		p := &Post{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		p.SetRawJSON(json.RawMessage(data))
		posts = append(posts, p)
	}
	r.pos = end

	out := &Response{}
	if r.likes {
		out.LikedPosts = posts
	} else {
		out.Posts = posts
	}
	return out, nil
}
