package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// StockLedger owns on-hand quantities. It is the only writer of stock
// records, and every write appends exactly one audit entry.
type StockLedger struct {
	db  port.DatabaseRepository
	now func() time.Time
}

func NewStockLedger(db port.DatabaseRepository) *StockLedger {
	return &StockLedger{db: db, now: time.Now}
}

// InitStock creates the stock record of an article.
func (l *StockLedger) InitStock(ctx context.Context, articleID uuid.UUID, quantity int) (domain.StockRecord, error) {
	if err := domain.ValidateQuantity("quantity", quantity); err != nil {
		return domain.StockRecord{}, err
	}

	record := domain.StockRecord{ArticleID: articleID, Quantity: quantity, UpdatedAt: l.now()}
	err := l.db.Update(ctx, func(tx port.Tx) error {
		article, err := tx.GetArticle(ctx, articleID)
		if err != nil {
			return err
		}
		if article == nil {
			return fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
		}
		if err := tx.CreateStock(ctx, record); err != nil {
			return err
		}
		_, err = tx.InsertAudit(ctx, domain.AuditEntry{
			ArticleID: articleID,
			EventAt:   record.UpdatedAt,
			Quantity:  quantity,
		})
		return err
	})
	if err != nil {
		return domain.StockRecord{}, err
	}
	return record, nil
}

// Adjust adds delta to the on-hand quantity and returns the new quantity.
func (l *StockLedger) Adjust(ctx context.Context, articleID uuid.UUID, delta int) (int, error) {
	if err := domain.ValidateDelta("delta", delta); err != nil {
		return 0, err
	}

	var quantity int
	err := l.db.Update(ctx, func(tx port.Tx) error {
		var err error
		quantity, err = l.adjust(ctx, tx, articleID, delta)
		return err
	})
	return quantity, err
}

// adjust performs the conditional write and its audit entry inside the
// caller's transaction.
func (l *StockLedger) adjust(ctx context.Context, tx port.Tx, articleID uuid.UUID, delta int) (int, error) {
	at := l.now()
	quantity, err := tx.AdjustStock(ctx, articleID, delta, at)
	if err != nil {
		return 0, err
	}
	_, err = tx.InsertAudit(ctx, domain.AuditEntry{
		ArticleID: articleID,
		EventAt:   at,
		Quantity:  quantity,
	})
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// Get returns the stock record, or nil if the article was never stocked.
func (l *StockLedger) Get(ctx context.Context, articleID uuid.UUID) (*domain.StockRecord, error) {
	var record *domain.StockRecord
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		record, err = tx.GetStock(ctx, articleID)
		return err
	})
	return record, err
}

func (l *StockLedger) Quantity(ctx context.Context, articleID uuid.UUID) (int, error) {
	record, err := l.Get(ctx, articleID)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, fmt.Errorf("stock of %s: %w", articleID, domain.ErrNotFound)
	}
	return record.Quantity, nil
}

func (l *StockLedger) AuditTrail(ctx context.Context, articleID uuid.UUID) ([]domain.AuditEntry, error) {
	var trail []domain.AuditEntry
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		trail, err = tx.AuditTrail(ctx, articleID)
		return err
	})
	return trail, err
}

// DeleteArticle removes an article together with its price history. Stocked
// articles are protected so that their audit trail is kept forever.
func (l *StockLedger) DeleteArticle(ctx context.Context, articleID uuid.UUID) error {
	return l.db.Update(ctx, func(tx port.Tx) error {
		if err := tx.DeleteArticle(ctx, articleID); err != nil {
			return fmt.Errorf("delete article %s: %w", articleID, err)
		}
		return nil
	})
}
