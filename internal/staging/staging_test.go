package staging

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/jedilnik/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration) (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New(ttl)
	s.now = clock.now
	return s, clock
}

func sampleItems() []model.Item {
	return []model.Item{
		&model.Restaurant{Name: "Cafe X", OwnerEmail: "a@b.com", Address: "1 Main"},
		&model.MenuItem{Title: "Soup", Price: decimal.RequireFromString("4.50"), Currency: "EUR", ExternalRestaurantID: "r1"},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	put := s.Put("a@b.com", sampleItems())
	if put.ID == "" {
		t.Fatal("expected batch id")
	}

	got := s.Get("a@b.com")
	if got.ID != put.ID {
		t.Errorf("expected batch %s, got %s", put.ID, got.ID)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}

	r := got.Items[0].(*model.Restaurant)
	if r.Name != "Cafe X" || r.OwnerEmail != "a@b.com" || r.Address != "1 Main" || r.ID != 0 {
		t.Errorf("restaurant changed in staging: %+v", r)
	}
	m := got.Items[1].(*model.MenuItem)
	if m.Title != "Soup" || !m.Price.Equal(decimal.RequireFromString("4.5")) || m.ExternalRestaurantID != "r1" || m.ID != 0 {
		t.Errorf("menu item changed in staging: %+v", m)
	}
}

func TestPutReplacesContents(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	s.Put("k", sampleItems())
	s.Put("k", []model.Item{&model.Restaurant{Name: "Only"}})

	got := s.Get("k")
	if len(got.Items) != 1 {
		t.Fatalf("expected put to replace contents, got %d items", len(got.Items))
	}
}

func TestStagedItemsAreIsolated(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	items := sampleItems()
	s.Put("k", items)

	items[0].(*model.Restaurant).Name = "mutated input"
	got := s.Get("k")
	got.Items[1].(*model.MenuItem).Title = "mutated output"

	again := s.Get("k")
	if again.Items[0].(*model.Restaurant).Name != "Cafe X" {
		t.Error("staged restaurant shares state with caller input")
	}
	if again.Items[1].(*model.MenuItem).Title != "Soup" {
		t.Error("staged menu item shares state with earlier Get")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	s.Put("k", sampleItems())

	s.Clear("k")
	s.Clear("k")

	if got := s.Get("k"); !got.Empty() {
		t.Errorf("expected empty after clear, got %d items", len(got.Items))
	}
}

func TestGetMissingKey(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	got := s.Get("nobody")
	if !got.Empty() || got.Items == nil {
		t.Errorf("expected empty non-nil items, got %+v", got)
	}
}

func TestSlidingExpiration(t *testing.T) {
	s, clock := newTestStore(20 * time.Minute)
	s.Put("k", sampleItems())

	// Each access inside the window pushes expiry forward.
	for i := 0; i < 3; i++ {
		clock.advance(15 * time.Minute)
		if got := s.Get("k"); got.Empty() {
			t.Fatalf("access %d: expected batch to still be staged", i)
		}
	}

	clock.advance(20 * time.Minute)
	if got := s.Get("k"); !got.Empty() {
		t.Error("expected batch to expire after ttl without access")
	}
}

func TestSlotsAreSeparate(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	s.Put("a@b.com", sampleItems())

	if got := s.Get("c@d.com"); !got.Empty() {
		t.Error("expected other key to be empty")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 slot, got %d", s.Len())
	}
}

func TestExpiredSlotsAreSwept(t *testing.T) {
	s, clock := newTestStore(time.Minute)
	s.Put("a", sampleItems())
	s.Put("b", sampleItems())

	clock.advance(2 * time.Minute)
	if s.Len() != 0 {
		t.Errorf("expected expired slots to be swept, got %d", s.Len())
	}
}

func TestDefaultTTL(t *testing.T) {
	if New(0).TTL() != DefaultTTL {
		t.Errorf("expected default ttl %v", DefaultTTL)
	}
}

func TestLockSerializes(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("k")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most one holder, saw %d", maxInside)
	}
}

func TestLocksAreReleased(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	unlockA := s.Lock("a")
	unlockB := s.Lock("b")
	unlockA()
	unlockA()
	unlockB()

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if len(s.locks) != 0 {
		t.Errorf("expected no retained locks, got %d", len(s.locks))
	}
}
