package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	"QuantWatch/pkg/cache"
)

const snapshotPrefix = "snapshot"

// SnapshotStore keeps the latest instrument update per (symbol, tier) in a
// cache so other processes can read it without the engine.
type SnapshotStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewSnapshotStore(c cache.Service, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotStore{cache: c, ttl: ttl}
}

func snapshotKey(symbol models.Symbol, tier models.Tier) string {
	return cache.GenerateKeyWithParams(snapshotPrefix, symbol, tier)
}

func (s *SnapshotStore) Name() string { return "snapshot-cache" }

func (s *SnapshotStore) OnInstrumentUpdate(ctx context.Context, u models.InstrumentUpdate) error {
	return s.cache.Set(ctx, snapshotKey(u.Symbol, u.Tier), u, s.ttl)
}

func (s *SnapshotStore) OnAlert(context.Context, models.AlertEvent) error { return nil }

// Latest returns the newest cached update, or ErrSeriesNotFound.
func (s *SnapshotStore) Latest(ctx context.Context, symbol models.Symbol, tier models.Tier) (models.InstrumentUpdate, error) {
	var u models.InstrumentUpdate
	if err := s.cache.Get(ctx, snapshotKey(symbol, tier), &u); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return u, fmt.Errorf("snapshot %s/%s: %w", symbol, tier, models.ErrSeriesNotFound)
		}
		return u, fmt.Errorf("snapshot %s/%s: %w", symbol, tier, err)
	}
	return u, nil
}

// Forget drops every cached tier of symbol.
func (s *SnapshotStore) Forget(ctx context.Context, symbol models.Symbol) error {
	return s.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKeyWithParams(snapshotPrefix, symbol)+":"))
}

// Track is a no-op; snapshots appear with the first update.
func (s *SnapshotStore) Track(models.Symbol) {}

// Untrack drops the snapshots of a removed symbol.
func (s *SnapshotStore) Untrack(symbol models.Symbol) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Forget(ctx, symbol)
}

var _ domrepo.Subscriber = (*SnapshotStore)(nil)
