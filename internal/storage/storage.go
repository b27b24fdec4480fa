package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

var (
	// ErrNotFound indicates no record exists for the given ID.
	ErrNotFound = errors.New("inventory record not found")
	// ErrNegativeQuantity indicates a write would store a quantity below zero.
	ErrNegativeQuantity = errors.New("quantity must be >= 0")
)

// Storage is the inventory store. Each method is an independent write or
// read; only SetQuantities groups several writes into one atomic batch.
type Storage interface {
	List(ctx context.Context) ([]inventory.Record, error)
	Get(ctx context.Context, id string) (inventory.Record, error)
	Create(ctx context.Context, rec inventory.Record) (inventory.Record, error)
	Update(ctx context.Context, rec inventory.Record) (inventory.Record, error)
	Delete(ctx context.Context, id string) error
	SetQuantity(ctx context.Context, id string, quantity int) error
	SetQuantities(ctx context.Context, updates []inventory.QuantityUpdate) error
	AdjustQuantity(ctx context.Context, id string, delta int) (inventory.Record, error)
	Close() error
}

// Watcher pushes full snapshots of the store to publish whenever it changes.
// Watch blocks until ctx is cancelled or the underlying source fails.
type Watcher interface {
	Watch(ctx context.Context, publish func([]inventory.Record)) error
}

// MemoryStorage keeps records in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]inventory.Record

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Watcher = (*MemoryStorage)(nil)
)

// NewMemoryStorage initialises storage with a copy of the given records.
// Records without an ID get one.
func NewMemoryStorage(seed ...inventory.Record) *MemoryStorage {
	s := &MemoryStorage{
		records: make(map[string]inventory.Record, len(seed)),
		subs:    make(map[int]chan struct{}),
	}
	for _, rec := range seed {
		if rec.ID == "" {
			rec.ID = newID()
		}
		s.records[rec.ID] = rec
	}
	return s
}

// List returns a sorted copy of all records.
func (s *MemoryStorage) List(_ context.Context) ([]inventory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked(), nil
}

func (s *MemoryStorage) listLocked() []inventory.Record {
	out := make([]inventory.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	inventory.Sort(out)
	return out
}

func (s *MemoryStorage) Get(_ context.Context, id string) (inventory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (s *MemoryStorage) Create(_ context.Context, rec inventory.Record) (inventory.Record, error) {
	if err := rec.Validate(); err != nil {
		return inventory.Record{}, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = newID()
	}

	s.mu.Lock()
	if _, exists := s.records[rec.ID]; exists {
		s.mu.Unlock()
		return inventory.Record{}, fmt.Errorf("%w: duplicate id %s", inventory.ErrInvalidRecord, rec.ID)
	}
	s.records[rec.ID] = rec
	s.mu.Unlock()

	s.notify()
	return rec, nil
}

func (s *MemoryStorage) Update(_ context.Context, rec inventory.Record) (inventory.Record, error) {
	if err := rec.Validate(); err != nil {
		return inventory.Record{}, err
	}

	s.mu.Lock()
	if _, ok := s.records[rec.ID]; !ok {
		s.mu.Unlock()
		return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	s.records[rec.ID] = rec
	s.mu.Unlock()

	s.notify()
	return rec, nil
}

func (s *MemoryStorage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.records, id)
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *MemoryStorage) SetQuantity(_ context.Context, id string, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Quantity = quantity
	s.records[id] = rec
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetQuantities applies all updates or none of them.
func (s *MemoryStorage) SetQuantities(_ context.Context, updates []inventory.QuantityUpdate) error {
	s.mu.Lock()
	for _, u := range updates {
		if u.Quantity < 0 {
			s.mu.Unlock()
			return ErrNegativeQuantity
		}
		if _, ok := s.records[u.ID]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNotFound, u.ID)
		}
	}
	for _, u := range updates {
		rec := s.records[u.ID]
		rec.Quantity = u.Quantity
		s.records[u.ID] = rec
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *MemoryStorage) AdjustQuantity(_ context.Context, id string, delta int) (inventory.Record, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Quantity = inventory.ClampQuantity(rec.Quantity, delta)
	s.records[id] = rec
	s.mu.Unlock()

	s.notify()
	return rec, nil
}

// Replace swaps the whole record set for records.
func (s *MemoryStorage) Replace(records []inventory.Record) {
	next := make(map[string]inventory.Record, len(records))
	for _, rec := range records {
		next[rec.ID] = rec
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()

	s.notify()
}

func (s *MemoryStorage) Close() error {
	return nil
}

// Watch publishes the current records and then a fresh copy after every
// change until ctx is done.
func (s *MemoryStorage) Watch(ctx context.Context, publish func([]inventory.Record)) error {
	changes, cancel := s.subscribe()
	defer cancel()

	records, _ := s.List(ctx)
	publish(records)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			records, _ := s.List(ctx)
			publish(records)
		}
	}
}

func (s *MemoryStorage) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify wakes every watcher without blocking; a pending signal already
// covers the latest change.
func (s *MemoryStorage) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func newID() string {
	return uuid.NewString()
}
