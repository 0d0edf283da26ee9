// Package database persists per-blog resume cursors across runs, grounded
// on the teacher's database package (same bbolt-backed single-bucket
// shape), generalized from a single highest_id-by-blog-name value to the
// (ident_max, oldest_tstamp) pair spec.md §4.6 step 2 needs for
// --continue/--incremental.
package database

import (
	"encoding/json"
	"log"

	"github.com/coreos/bbolt"
)

var cursorBucket = []byte("cursors")

// Cursor is the resume state for one (blog, feed) pair: ident_max is the
// highest post id seen so far (non-likes incremental), oldest_tstamp is the
// minimum effective timestamp seen so far: liked_timestamp for likes, the
// post timestamp otherwise (likes incremental / --continue).
type Cursor struct {
	IdentMax     int64 `json:"ident_max"`
	OldestTstamp int64 `json:"oldest_tstamp"`
}

type Database bolt.DB

func Open(path string) *Database {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		log.Panic(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cursorBucket)
		return err
	})
	if err != nil {
		log.Panic(err)
	}

	return (*Database)(db)
}

func (s *Database) Close() {
	if err := s.get().Close(); err != nil {
		log.Panic(err)
	}
}

// key identifies a feed within a blog: "<blog>.posts" or "<blog>.likes".
func key(blogName string, likes bool) []byte {
	suffix := ".posts"
	if likes {
		suffix = ".likes"
	}
	return []byte(blogName + suffix)
}

func (s *Database) GetCursor(blogName string, likes bool) Cursor {
	var c Cursor

	err := s.get().View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cursorBucket).Get(key(blogName, likes))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &c)
	})
	if err != nil {
		log.Panic(err)
	}

	return c
}

func (s *Database) SetCursor(blogName string, likes bool, c Cursor) {
	err := s.get().Update(func(tx *bolt.Tx) error {
		v, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(cursorBucket).Put(key(blogName, likes), v)
	})
	if err != nil {
		log.Panic(err)
	}
}

func (s *Database) get() *bolt.DB {
	return (*bolt.DB)(s)
}
