package storage

import (
	"bytes"
	"maps"
	"slices"
	"strings"
)

type change struct {
	value   []byte
	removed bool
}

// Patch is the set of changes collected by a fork, ready to be merged.
type Patch struct {
	changes map[string]change
}

// Len returns the number of changed keys.
func (p *Patch) Len() int {
	return len(p.changes)
}

// Fork is a mutable view over a snapshot. Writes stay in the fork until the
// owner merges its patch into the database; dropping the fork discards them.
//
// A fork is owned by a single transaction pipeline and is not safe for
// concurrent use.
type Fork struct {
	snapshot *Snapshot

	// flushed holds changes accepted by Flush, working the ones since.
	flushed map[string]change
	working map[string]change
}

func newFork(snapshot *Snapshot) *Fork {
	return &Fork{
		snapshot: snapshot,
		flushed:  make(map[string]change),
		working:  make(map[string]change),
	}
}

func (f *Fork) lookup(key []byte) (change, bool) {
	if c, ok := f.working[string(key)]; ok {
		return c, true
	}
	c, ok := f.flushed[string(key)]
	return c, ok
}

// Get returns the value visible in this fork. The returned slice must not be modified.
func (f *Fork) Get(key []byte) ([]byte, bool) {
	if c, ok := f.lookup(key); ok {
		if c.removed {
			return nil, false
		}
		return c.value, true
	}
	return f.snapshot.Get(key)
}

// Contains reports whether key is visible in this fork.
func (f *Fork) Contains(key []byte) bool {
	_, ok := f.Get(key)
	return ok
}

// Put stores a copy of value under key.
func (f *Fork) Put(key, value []byte) {
	f.working[string(key)] = change{value: bytes.Clone(value)}
}

// Remove deletes key from this fork's view.
func (f *Fork) Remove(key []byte) {
	f.working[string(key)] = change{removed: true}
}

// Iterate calls fn for every visible key with the given prefix in ascending
// order until fn returns false.
func (f *Fork) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	visible := make(map[string][]byte)
	f.snapshot.Iterate(prefix, func(key, value []byte) bool {
		visible[string(key)] = value
		return true
	})
	for _, layer := range []map[string]change{f.flushed, f.working} {
		for key, c := range layer {
			if !strings.HasPrefix(key, string(prefix)) {
				continue
			}
			if c.removed {
				delete(visible, key)
			} else {
				visible[key] = c.value
			}
		}
	}

	for _, key := range slices.Sorted(maps.Keys(visible)) {
		if !fn([]byte(key), visible[key]) {
			return
		}
	}
}

// Flush accepts the changes made since the last Flush or Rollback.
func (f *Fork) Flush() {
	maps.Copy(f.flushed, f.working)
	clear(f.working)
}

// Rollback discards the changes made since the last Flush.
func (f *Fork) Rollback() {
	clear(f.working)
}

// IntoPatch flushes the fork and returns its accumulated changes. The fork
// must not be used afterwards.
func (f *Fork) IntoPatch() *Patch {
	f.Flush()
	patch := &Patch{changes: f.flushed}
	f.flushed = nil
	f.working = nil
	return patch
}
