// SPDX-License-Identifier: GPL-3.0-or-later

//go:build bbolt_cache

package store

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var indexBucket = []byte("index")

// BoltPluginCache is a [PluginCache] backed by an embedded bbolt
// database, gated behind the bbolt_cache build tag since it is an
// optional convenience rather than a replacement for the storage layer
// spec.md §6 treats as an external collaborator.
type BoltPluginCache struct {
	db *bolt.DB
}

// OpenBoltPluginCache opens (creating if absent) a bbolt database at
// path and returns a [*BoltPluginCache] ready for use.
func OpenBoltPluginCache(path string) (*BoltPluginCache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening bbolt cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initializing bbolt cache: %w", err)
	}
	return &BoltPluginCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *BoltPluginCache) Close() error {
	return c.db.Close()
}

// SaveIndex implements [PluginCache].
func (c *BoltPluginCache) SaveIndex(key string, index int) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(indexBucket)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(index))
		return b.Put([]byte(key), buf[:])
	})
}

// LoadIndex implements [PluginCache].
func (c *BoltPluginCache) LoadIndex(key string) (int, bool, error) {
	var index int
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(indexBucket)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("store: corrupt index entry for %q", key)
		}
		index = int(binary.BigEndian.Uint64(v))
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return index, found, nil
}
