// Package indexes provides the in-memory event routing index that maps
// (project, event kind) to the alerts subscribed to it.
package indexes

import (
	"sort"
	"sync"
)

// Key identifies a routing bucket.
type Key struct {
	Project string
	Kind    string
}

// Entry is one subscription, used to build a whole index at once.
type Entry struct {
	Project string
	Kind    string
	AlertID int64
}

// Index maps (project, event kind) to an ordered list of alert IDs.
// Safe for concurrent use: routing takes a read lock, mutations take the
// write lock.
type Index struct {
	mu      sync.RWMutex
	buckets map[Key][]int64
}

// NewIndex creates an index holding the given subscriptions.
func NewIndex(entries []Entry) *Index {
	return &Index{buckets: build(entries)}
}

func build(entries []Entry) map[Key][]int64 {
	buckets := make(map[Key][]int64)
	for _, e := range entries {
		k := Key{Project: e.Project, Kind: e.Kind}
		buckets[k] = append(buckets[k], e.AlertID)
	}
	return buckets
}

// Subscribe appends alertID to the (project, kind) bucket.
// The caller is responsible for not subscribing the same alert twice.
func (idx *Index) Subscribe(project, kind string, alertID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	k := Key{Project: project, Kind: kind}
	idx.buckets[k] = append(idx.buckets[k], alertID)
}

// Unsubscribe removes alertID from the (project, kind) bucket. Other alerts
// in the bucket keep their subscription; the bucket is dropped once empty.
// It reports whether anything was removed.
func (idx *Index) Unsubscribe(project, kind string, alertID int64) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	k := Key{Project: project, Kind: kind}
	ids, ok := idx.buckets[k]
	if !ok {
		return false
	}

	kept := ids[:0:0]
	for _, id := range ids {
		if id != alertID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(idx.buckets, k)
	} else {
		idx.buckets[k] = kept
	}
	return len(kept) != len(ids)
}

// Route returns a copy of the alert IDs subscribed to (project, kind), or nil
// if there are none.
func (idx *Index) Route(project, kind string) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := idx.buckets[Key{Project: project, Kind: kind}]
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

// DropProject removes every bucket that belongs to project and returns how
// many buckets were removed.
func (idx *Index) DropProject(project string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dropped := 0
	for k := range idx.buckets {
		if k.Project == project {
			delete(idx.buckets, k)
			dropped++
		}
	}
	return dropped
}

// Replace atomically swaps the whole index for one built from entries.
func (idx *Index) Replace(entries []Entry) {
	buckets := build(entries)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.buckets = buckets
}

// Len returns the number of buckets in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.buckets)
}

// Kinds returns the event kinds with at least one subscriber in project,
// sorted.
func (idx *Index) Kinds(project string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var kinds []string
	for k := range idx.buckets {
		if k.Project == project {
			kinds = append(kinds, k.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}
