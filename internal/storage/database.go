// Package storage provides the in-memory key-value database and the revertible
// views (forks) that transaction execution writes through.
package storage

import (
	"bytes"
	"errors"
	"sync"

	"github.com/google/btree"
)

// ErrNilPatch is returned when merging a nil patch.
var ErrNilPatch = errors.New("patch cannot be nil")

const btreeDegree = 32

type entry struct {
	key   []byte
	value []byte
}

func lessEntry(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Database is an ordered in-memory key-value store. Changes are only applied
// through Merge, so every fork sees a stable snapshot.
type Database struct {
	mu      sync.Mutex
	tree    *btree.BTreeG[entry]
	options DbOptions
}

// NewDatabase creates an empty database.
func NewDatabase(options DbOptions) *Database {
	return &Database{
		tree:    btree.NewG(btreeDegree, lessEntry),
		options: options,
	}
}

// Options returns the options the database was opened with.
func (db *Database) Options() DbOptions {
	return db.options
}

// Snapshot returns a read-only view of the current state.
func (db *Database) Snapshot() *Snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Clone is copy-on-write, so this is cheap and later merges do not leak in.
	return &Snapshot{tree: db.tree.Clone()}
}

// Fork returns a mutable view over a fresh snapshot.
func (db *Database) Fork() *Fork {
	return newFork(db.Snapshot())
}

// Merge atomically applies a patch produced by Fork.IntoPatch.
func (db *Database) Merge(patch *Patch) error {
	if patch == nil {
		return ErrNilPatch
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for key, c := range patch.changes {
		if c.removed {
			db.tree.Delete(entry{key: []byte(key)})
			continue
		}
		db.tree.ReplaceOrInsert(entry{key: []byte(key), value: c.value})
	}
	return nil
}

// Snapshot is an immutable view of the database.
type Snapshot struct {
	tree *btree.BTreeG[entry]
}

// Get returns the value stored under key. The returned slice must not be modified.
func (s *Snapshot) Get(key []byte) ([]byte, bool) {
	e, ok := s.tree.Get(entry{key: key})
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Contains reports whether key is present.
func (s *Snapshot) Contains(key []byte) bool {
	return s.tree.Has(entry{key: key})
}

// Iterate calls fn for every key with the given prefix in ascending order
// until fn returns false.
func (s *Snapshot) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	s.tree.AscendGreaterOrEqual(entry{key: prefix}, func(e entry) bool {
		if !bytes.HasPrefix(e.key, prefix) {
			return false
		}
		return fn(e.key, e.value)
	})
}

// Len returns the number of stored keys.
func (s *Snapshot) Len() int {
	return s.tree.Len()
}
