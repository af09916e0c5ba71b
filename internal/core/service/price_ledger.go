package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// PriceLedger appends price records and resolves the price of an article.
// When a cache is configured, the current price is read through it.
type PriceLedger struct {
	db    port.DatabaseRepository
	cache port.CacheRepository
	now   func() time.Time

	// OnCacheError receives cache failures. They never fail a ledger
	// operation since the store stays authoritative.
	OnCacheError func(op string, err error)
}

func NewPriceLedger(db port.DatabaseRepository, cache port.CacheRepository) *PriceLedger {
	return &PriceLedger{db: db, cache: cache, now: time.Now}
}

func (l *PriceLedger) RecordPrice(ctx context.Context, articleID uuid.UUID, price decimal.Decimal) (domain.PriceRecord, error) {
	if err := domain.ValidatePrice(price); err != nil {
		return domain.PriceRecord{}, err
	}

	var record domain.PriceRecord
	err := l.db.Update(ctx, func(tx port.Tx) error {
		article, err := tx.GetArticle(ctx, articleID)
		if err != nil {
			return err
		}
		if article == nil {
			return fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
		}
		record, err = tx.InsertPrice(ctx, domain.PriceRecord{
			ArticleID:  articleID,
			Price:      price,
			InsertedAt: l.now(),
		})
		return err
	})
	if err != nil {
		return domain.PriceRecord{}, err
	}

	if l.cache != nil {
		if err := l.cache.SetPrice(ctx, record); err != nil {
			l.cacheError("set price", err)
		}
	}
	return record, nil
}

// CurrentPrice returns the latest price record, or nil if the article was never priced.
func (l *PriceLedger) CurrentPrice(ctx context.Context, articleID uuid.UUID) (*domain.PriceRecord, error) {
	if l.cache != nil {
		cached, err := l.cache.GetPrice(ctx, articleID)
		if err != nil {
			l.cacheError("get price", err)
		} else if cached != nil {
			// a fill racing a deletion can leave a price behind in the cache
			live, err := l.articleExists(ctx, articleID)
			if err != nil {
				return nil, err
			}
			if live {
				return cached, nil
			}
			l.forget(ctx, articleID)
			return nil, nil
		}
	}

	var record *domain.PriceRecord
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		record, err = tx.CurrentPrice(ctx, articleID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if record != nil && l.cache != nil {
		if err := l.cache.SetPrice(ctx, *record); err != nil {
			l.cacheError("set price", err)
		}
	}
	return record, nil
}

// PriceAt returns the price in effect at the given instant.
func (l *PriceLedger) PriceAt(ctx context.Context, articleID uuid.UUID, at time.Time) (*domain.PriceRecord, error) {
	var record *domain.PriceRecord
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		record, err = tx.PriceAt(ctx, articleID, at)
		return err
	})
	return record, err
}

func (l *PriceLedger) History(ctx context.Context, articleID uuid.UUID) ([]domain.PriceRecord, error) {
	var history []domain.PriceRecord
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		history, err = tx.PriceHistory(ctx, articleID)
		return err
	})
	return history, err
}

func (l *PriceLedger) articleExists(ctx context.Context, articleID uuid.UUID) (bool, error) {
	var exists bool
	err := l.db.View(ctx, func(tx port.Tx) error {
		article, err := tx.GetArticle(ctx, articleID)
		exists = article != nil
		return err
	})
	return exists, err
}

// forget drops the cached price of a deleted article.
func (l *PriceLedger) forget(ctx context.Context, articleID uuid.UUID) {
	if l.cache == nil {
		return
	}
	if err := l.cache.DropPrice(ctx, articleID); err != nil {
		l.cacheError("drop price", err)
	}
}

func (l *PriceLedger) cacheError(op string, err error) {
	if l.OnCacheError != nil {
		l.OnCacheError(op, err)
	}
}
