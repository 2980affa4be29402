// Package history owns the clipboard history shared between the protocol
// watcher, the control socket and the injection worker.
//
// The newest item is at the tail. All mutating operations hold the write
// lock for the in-memory change plus the synchronous persist call; Snapshot
// and Entries take the read lock. No protocol or socket I/O ever happens
// under the lock.
package history

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Persister saves and loads the full history. Save is called with the store
// lock held and must not call back into the Store.
type Persister interface {
	Save(items []Item) error
	Load() ([]Item, error)
}

// Options is the configuration snapshot the store works against.
type Options struct {
	// MaxHistory bounds the history length; 0 means unbounded.
	MaxHistory int
	// Dedupe removes an earlier content-equal item on commit.
	Dedupe bool
	// AllowImages keeps image items on restore.
	AllowImages bool
}

// Store is the clipboard history.
type Store struct {
	opts Options
	p    Persister

	mu    sync.RWMutex
	items []Item
}

// New returns an empty store. p may be nil to disable persistence.
func New(opts Options, p Persister) *Store {
	return &Store{opts: opts, p: p}
}

// Options returns the configuration snapshot.
func (s *Store) Options() Options { return s.opts }

// Restore loads the persisted history once at startup, dropping images when
// they are not allowed and collapsing duplicates when dedupe is on. A load
// failure starts with an empty history and is returned for logging.
func (s *Store) Restore() error {
	if s.p == nil {
		return nil
	}
	start := time.Now()
	items, err := s.p.Load()
	if err != nil {
		s.mu.Lock()
		s.items = nil
		s.mu.Unlock()
		return err
	}

	if !s.opts.AllowImages {
		items = slices.DeleteFunc(items, func(it Item) bool { return !it.IsText() })
	}
	if s.opts.Dedupe {
		items = uniqueByKey(items)
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	slog.Debug("history restored", "items", len(items), "took", time.Since(start))
	return nil
}

// uniqueByKey keeps the first occurrence per text value. Images are keyed by
// item id, not content.
func uniqueByKey(items []Item) []Item {
	type key struct {
		kind Kind
		val  string
	}
	seen := make(map[key]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		k := key{kind: it.Payload.Kind, val: it.ID}
		if it.IsText() {
			k.val = it.Payload.Text
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Commit appends item as the newest entry. An item content-equal to the
// current tail is ignored regardless of the dedupe setting. Reports whether
// history changed.
func (s *Store) Commit(item Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.items); n > 0 && s.items[n-1].Payload.Equal(item.Payload) {
		return false
	}

	if s.opts.Dedupe {
		if i := slices.IndexFunc(s.items, func(it Item) bool {
			return it.Payload.Equal(item.Payload)
		}); i >= 0 {
			slog.Debug("duplicate clipboard item removed", "index", i)
			s.items = slices.Delete(s.items, i, i+1)
		}
	}

	s.items = append(s.items, item)
	if limit := s.opts.MaxHistory; limit > 0 && len(s.items) > limit {
		s.items = slices.Delete(s.items, 0, len(s.items)-limit)
	}

	s.persistLocked()
	return true
}

// RecallAndPromote moves the item at displayIndex of the newest-first view
// to the newest position and returns it. Out-of-range indexes are a no-op.
func (s *Store) RecallAndPromote(displayIndex int) (Item, bool) {
	return s.Promote(Handle{Index: displayIndex})
}

// Promote is RecallAndPromote for a picker handle. When h.ID is set the item
// at the display index must carry that id; if history shifted since the
// handle was issued the item is located by id instead, and if it is gone
// nothing changes.
func (s *Store) Promote(h Handle) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.resolveLocked(h)
	if i < 0 {
		return Item{}, false
	}

	it := s.items[i]
	s.items = append(slices.Delete(s.items, i, i+1), it)
	s.persistLocked()
	return it, true
}

func (s *Store) resolveLocked(h Handle) int {
	n := len(s.items)
	if h.Index >= 0 && h.Index < n {
		i := n - h.Index - 1
		if h.ID == "" || s.items[i].ID == h.ID {
			return i
		}
	}
	if h.ID == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == h.ID })
}

// Clear empties the history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.persistLocked()
}

// Snapshot returns a copy of the history, oldest first.
func (s *Store) Snapshot() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Entries returns the text items newest first, each with the handle a picker
// hands back on selection. Display indexes count image items too, so they
// line up with RecallAndPromote.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.items))
	for idx := range s.items {
		it := s.items[len(s.items)-idx-1]
		if !it.IsText() {
			continue
		}
		out = append(out, Entry{
			Handle: Handle{Index: idx, ID: it.ID},
			Text:   it.Payload.Text,
		})
	}
	return out
}

// persistLocked writes the full history. Failures are logged; the in-memory
// state stays authoritative until the next successful save.
// Must be called with s.mu held.
func (s *Store) persistLocked() {
	if s.p == nil {
		return
	}
	start := time.Now()
	if err := s.p.Save(s.items); err != nil {
		slog.Error("history persist failed", "items", len(s.items), "err", err)
		return
	}
	slog.Debug("history persisted", "items", len(s.items), "took", time.Since(start))
}
