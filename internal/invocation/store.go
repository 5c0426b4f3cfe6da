// ABOUTME: Thread-safe in-memory store of invocation records with waiter signalling
// ABOUTME: Enforces single pending->terminal transition and bounded history eviction

package invocation

import (
	"container/list"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist (or was evicted).
var ErrNotFound = errors.New("invocation not found")

// entry is the store-owned state for one record.
type entry struct {
	rec     Record
	seq     uint64
	done    chan struct{} // closed when rec leaves pending
	element *list.Element
}

// Store owns all invocation records. The zero value is not usable; call NewStore.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       *list.List // record IDs in creation order (oldest at front)
	seq         uint64
	lastCreated time.Time
	maxEntries  int
	pending     int
	now         func() time.Time
}

// NewStore creates a store. maxEntries <= 0 keeps every record for the life
// of the process.
func NewStore(maxEntries int) *Store {
	return &Store{
		entries:    make(map[string]*entry),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Create inserts a pending record for args and returns a snapshot of it.
func (s *Store) Create(args Arguments) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Creation times are strictly increasing so ListAll has a total order.
	ts := s.now()
	if !ts.After(s.lastCreated) {
		ts = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = ts

	id := uuid.New().String()
	for s.entries[id] != nil {
		id = uuid.New().String()
	}

	s.seq++
	e := &entry{
		rec: Record{
			ID:        id,
			Tool:      args.Tool(),
			Arguments: args,
			CreatedAt: ts,
			Status:    StatusPending,
		},
		seq:  s.seq,
		done: make(chan struct{}),
	}
	e.element = s.order.PushBack(id)
	s.entries[id] = e
	s.pending++
	s.trimLocked()

	return e.rec.clone()
}

// trimLocked evicts terminal records, oldest first, until the store is back
// within maxEntries or only pending records remain. Must be called with mu held.
func (s *Store) trimLocked() {
	if s.maxEntries <= 0 {
		return
	}
	for el := s.order.Front(); el != nil && len(s.entries) > s.maxEntries; {
		next := el.Next()
		id, _ := el.Value.(string)
		if e, ok := s.entries[id]; ok && !e.rec.Pending() {
			s.order.Remove(el)
			delete(s.entries, id)
		}
		el = next
	}
}

// Get returns a snapshot of the record with the given ID.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Record{}, false
	}
	return e.rec.clone(), true
}

// Resolve completes a pending record with the human's response text. It
// returns the updated snapshot and true, or false when the record is unknown
// or no longer pending. A failed Resolve never modifies the record.
func (s *Store) Resolve(id, responseText string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !e.rec.Pending() {
		return Record{}, false
	}

	now := s.now()
	result := responseText
	e.rec.Status = StatusCompleted
	e.rec.UserFeedback = responseText
	e.rec.Result = &result
	e.rec.ResolvedAt = &now
	s.finishLocked(e)

	return e.rec.clone(), true
}

// Cancel moves a pending record to cancelled and wakes its waiters.
// Returns false when the record is unknown or no longer pending.
func (s *Store) Cancel(id, reason string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !e.rec.Pending() {
		return Record{}, false
	}

	now := s.now()
	e.rec.Status = StatusCancelled
	e.rec.CancelReason = reason
	e.rec.ResolvedAt = &now
	s.finishLocked(e)

	return e.rec.clone(), true
}

// finishLocked releases waiters of a record that just became terminal.
func (s *Store) finishLocked(e *entry) {
	s.pending--
	close(e.done)
}

// Wait blocks until the record leaves pending or ctx is done. On success it
// returns the terminal snapshot. Waiting on an evicted or unknown record
// returns ErrNotFound.
func (s *Store) Wait(ctx context.Context, id string) (Record, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return Record{}, ErrNotFound
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return e.rec.clone(), nil
}

// ListAll returns snapshots of every record, most recent first.
func (s *Store) ListAll() []Record {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq > entries[j].seq
	})
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec.clone()
	}
	s.mu.Unlock()
	return out
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PendingCount returns the number of records still waiting for a human.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
