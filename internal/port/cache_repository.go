package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type CacheRepository interface {
	// GetPrice returns the cached current price, or nil on a miss.
	GetPrice(ctx context.Context, articleID uuid.UUID) (*domain.PriceRecord, error)

	// SetPrice stores p unless a record with a higher sequence number is already cached.
	SetPrice(ctx context.Context, p domain.PriceRecord) error

	// DropPrice removes the cached price of an article.
	DropPrice(ctx context.Context, articleID uuid.UUID) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency releases a key so that a failed request can be retried
	ClearIdempotency(ctx context.Context, key string) error
}
