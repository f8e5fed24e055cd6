package cache

import (
	"context"
	"time"

	"barvault/backend/internal/domain"
)

// InventoryCache holds the full inventory snapshot per organization. It is
// invalidated on every write that touches stock, so a hit is always at most
// one TTL old and never older than the last mutation.
type InventoryCache interface {
	Get(ctx context.Context, organizationID int64) ([]domain.InventoryItem, bool, error)
	Set(ctx context.Context, organizationID int64, items []domain.InventoryItem, ttl time.Duration) error
	Invalidate(ctx context.Context, organizationID int64) error
}

type NoopInventoryCache struct{}

func (NoopInventoryCache) Get(_ context.Context, _ int64) ([]domain.InventoryItem, bool, error) {
	return nil, false, nil
}

func (NoopInventoryCache) Set(_ context.Context, _ int64, _ []domain.InventoryItem, _ time.Duration) error {
	return nil
}

func (NoopInventoryCache) Invalidate(_ context.Context, _ int64) error {
	return nil
}
