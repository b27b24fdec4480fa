package feed

import (
	"slices"
	"sync"
	"time"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

// Snapshot is the full inventory at one point in time.
type Snapshot struct {
	Version   uint64             `json:"version"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Records   []inventory.Record `json:"records"`
}

// Cache holds the latest inventory snapshot. There is no history: each
// Publish replaces the previous snapshot.
type Cache struct {
	mu      sync.RWMutex
	current Snapshot
	clock   func() time.Time

	subs   map[int]chan Snapshot
	nextID int
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the time source used for UpdatedAt.
func WithClock(clock func() time.Time) CacheOption {
	return func(c *Cache) {
		c.clock = clock
	}
}

// NewCache returns an empty cache at version 0.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		current: Snapshot{Records: []inventory.Record{}},
		clock: func() time.Time {
			return time.Now().UTC()
		},
		subs: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish replaces the snapshot with records. It reports false and keeps the
// current version when the records did not change.
func (c *Cache) Publish(records []inventory.Record) bool {
	next := inventory.Clone(records)
	inventory.Sort(next)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Version > 0 && slices.Equal(c.current.Records, next) {
		return false
	}

	c.current = Snapshot{
		Version:   c.current.Version + 1,
		UpdatedAt: c.clock(),
		Records:   next,
	}
	for _, ch := range c.subs {
		offer(ch, c.current)
	}
	return true
}

// Snapshot returns a copy of the latest snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return copySnapshot(c.current)
}

// Version returns the latest snapshot version; 0 means nothing was published.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.current.Version
}

// Subscribe returns a channel that always holds the most recent snapshot not
// yet received. The current snapshot is delivered first when one exists. The
// returned func unsubscribes and closes the channel.
func (c *Cache) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	if c.current.Version > 0 {
		offer(ch, c.current)
	}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// offer replaces whatever is buffered in ch with snap. Callers hold c.mu, so
// there is a single sender per channel.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case <-ch:
	default:
	}
	ch <- copySnapshot(snap)
}

func copySnapshot(s Snapshot) Snapshot {
	s.Records = inventory.Clone(s.Records)
	return s
}
