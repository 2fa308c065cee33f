// Package staging holds parsed import batches between preview and commit.
// Contents live only in process memory and expire after a period without
// access.
package staging

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/jedilnik/internal/model"
)

// DefaultTTL is the sliding retention of a staged batch.
const DefaultTTL = 20 * time.Minute

// ErrBatchMismatch is returned when a commit names a batch that is no
// longer the staged one.
var ErrBatchMismatch = errors.New("staged batch changed")

// Batch is the content of one slot.
type Batch struct {
	ID       string       `json:"batch"`
	Items    []model.Item `json:"items"`
	StagedAt time.Time    `json:"staged_at,omitzero"`
}

// Empty reports whether the batch holds no items.
func (b Batch) Empty() bool { return len(b.Items) == 0 }

type entry struct {
	batch    Batch
	lastSeen time.Time
}

// Store is a set of single-batch slots keyed by session scope.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

// keyLock is held or awaited by refs callers and removed when refs drops
// to zero.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a store with the given retention. A non-positive ttl uses
// DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
		locks:   make(map[string]*keyLock),
	}
}

// TTL returns the sliding retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put replaces the slot's contents and restarts its retention.
func (s *Store) Put(key string, items []model.Item) Batch {
	now := s.now()
	b := Batch{
		ID:       uuid.NewString(),
		Items:    model.CloneItems(items),
		StagedAt: now,
	}
	if b.Items == nil {
		b.Items = []model.Item{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	s.entries[key] = &entry{batch: b, lastSeen: now}

	return copyBatch(b)
}

// Get returns the slot's contents, or an empty batch if it is absent or
// expired. A hit extends the retention.
func (s *Store) Get(key string) Batch {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Batch{Items: []model.Item{}}
	}
	if now.Sub(e.lastSeen) >= s.ttl {
		delete(s.entries, key)
		return Batch{Items: []model.Item{}}
	}
	e.lastSeen = now
	return copyBatch(e.batch)
}

// Clear empties the slot.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Lock serializes multi-step work (read, persist, clear) on one slot and
// returns the unlock function.
func (s *Store) Lock(key string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			s.locksMu.Lock()
			defer s.locksMu.Unlock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, key)
			}
		})
	}
}

// Len returns the number of live slots.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	return len(s.entries)
}

func (s *Store) sweepLocked(now time.Time) {
	for k, e := range s.entries {
		if now.Sub(e.lastSeen) >= s.ttl {
			delete(s.entries, k)
		}
	}
}

func copyBatch(b Batch) Batch {
	b.Items = model.CloneItems(b.Items)
	return b
}
