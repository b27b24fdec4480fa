// Package feed keeps an in-process copy of the inventory in sync with the
// store and fans snapshots out to subscribers.
package feed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
	"github.com/eugenenazirov/stock-packs/internal/storage"
)

const defaultRetryDelay = time.Second

// Lister reads the full record set.
type Lister interface {
	List(ctx context.Context) ([]inventory.Record, error)
}

// Feed drives a storage.Watcher into a Cache.
type Feed struct {
	lister     Lister
	watcher    storage.Watcher
	cache      *Cache
	logger     *zap.Logger
	retryDelay time.Duration
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Feed) {
		f.logger = logger
	}
}

// WithRetryDelay sets how long Run waits before restarting a failed watcher.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Feed) {
		f.retryDelay = d
	}
}

// New builds a feed over a store that can both list and watch.
func New(lister Lister, watcher storage.Watcher, cache *Cache, opts ...Option) *Feed {
	f := &Feed{
		lister:     lister,
		watcher:    watcher,
		cache:      cache,
		logger:     zap.NewNop(),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cache returns the cache the feed publishes into.
func (f *Feed) Cache() *Cache {
	return f.cache
}

// Refresh reads the store and publishes the result.
func (f *Feed) Refresh(ctx context.Context) (Snapshot, error) {
	records, err := f.lister.List(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("refresh inventory snapshot: %w", err)
	}
	f.publish(records)
	return f.cache.Snapshot(), nil
}

// Run watches the store until ctx is cancelled. A watcher that fails is
// restarted after the retry delay.
func (f *Feed) Run(ctx context.Context) error {
	for {
		err := f.watcher.Watch(ctx, f.publish)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			f.logger.Warn("inventory watcher stopped, restarting",
				zap.Error(err),
				zap.Duration("retry_in", f.retryDelay),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.retryDelay):
		}
	}
}

func (f *Feed) publish(records []inventory.Record) {
	if f.cache.Publish(records) {
		f.logger.Debug("inventory snapshot published",
			zap.Uint64("version", f.cache.Version()),
			zap.Int("records", len(records)),
		)
	}
}
