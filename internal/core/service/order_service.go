package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// ErrDuplicateRequest is returned by UpdateLineOnce for a request id that
// was already applied.
var ErrDuplicateRequest = fmt.Errorf("%w: request already applied", domain.ErrDuplicate)

// OrderService owns purchase orders and their lines. Every reservation
// moves quantity between a stock record and an order line inside one
// transaction.
//
// Mutations lock the order row first and only then touch stock records,
// and cancellation visits its lines in article order, so concurrent
// callers cannot deadlock on each other.
type OrderService struct {
	db    port.DatabaseRepository
	stock *StockLedger
	cache port.CacheRepository
	now   func() time.Time
}

// NewOrderService creates the order engine. cache may be nil, in which case
// UpdateLineOnce degrades to UpdateLine.
func NewOrderService(db port.DatabaseRepository, stock *StockLedger, cache port.CacheRepository) *OrderService {
	return &OrderService{
		db:    db,
		stock: stock,
		cache: cache,
		now:   time.Now,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, reference, creator string) (domain.PurchaseOrder, error) {
	if !domain.IsSlug(reference) {
		return domain.PurchaseOrder{}, domain.ValidationError{Field: "reference", Message: "must be a slug"}
	}
	if strings.TrimSpace(creator) == "" {
		return domain.PurchaseOrder{}, domain.ValidationError{Field: "creator", Message: "must not be empty"}
	}

	order := domain.PurchaseOrder{
		ID:        uuid.New(),
		Reference: reference,
		CreatedAt: s.now(),
		CreatedBy: creator,
	}
	err := s.db.Update(ctx, func(tx port.Tx) error {
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return order, nil
}

// GetOrder returns nil when the order does not exist.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error) {
	var order *domain.PurchaseOrder
	err := s.db.View(ctx, func(tx port.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, id)
		return err
	})
	return order, err
}

// ListOrders returns all orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context) ([]domain.PurchaseOrder, error) {
	var orders []domain.PurchaseOrder
	err := s.db.View(ctx, func(tx port.Tx) error {
		var err error
		orders, err = tx.ListOrders(ctx)
		return err
	})
	return orders, err
}

func (s *OrderService) Lines(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	var lines []domain.OrderLine
	err := s.db.View(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		lines, err = tx.OrderLines(ctx, orderID)
		return err
	})
	return lines, err
}

// UpdateLine reserves (delta > 0) or releases (delta < 0) quantity of an
// article on an order and returns the resulting line quantity, 0 when the
// line was removed.
func (s *OrderService) UpdateLine(ctx context.Context, orderID, articleID uuid.UUID, delta int) (int, error) {
	if err := domain.ValidateDelta("quantity", delta); err != nil {
		return 0, err
	}

	var quantity int
	err := s.db.Update(ctx, func(tx port.Tx) error {
		if err := tx.LockOrder(ctx, orderID); err != nil {
			return err
		}

		var err error
		if delta > 0 {
			quantity, err = s.reserve(ctx, tx, orderID, articleID, delta)
		} else {
			quantity, err = s.release(ctx, tx, orderID, articleID, -delta)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

func (s *OrderService) reserve(ctx context.Context, tx port.Tx, orderID, articleID uuid.UUID, n int) (int, error) {
	_, err := s.stock.adjust(ctx, tx, articleID, -n)
	if errors.Is(err, domain.ErrInsufficientStock) {
		return 0, fmt.Errorf("article %s: %w", articleID, domain.ErrOutOfStock)
	}
	if err != nil {
		return 0, err
	}
	return tx.AddToLine(ctx, orderID, articleID, n)
}

func (s *OrderService) release(ctx context.Context, tx port.Tx, orderID, articleID uuid.UUID, n int) (int, error) {
	remaining, err := tx.ReleaseFromLine(ctx, orderID, articleID, n)
	if err != nil {
		return 0, err
	}
	if _, err := s.stock.adjust(ctx, tx, articleID, n); err != nil {
		return 0, err
	}
	return remaining, nil
}

// UpdateLineOnce applies UpdateLine at most once per request id. The id is
// released again when the update fails so that the caller may retry it.
func (s *OrderService) UpdateLineOnce(ctx context.Context, requestID string, orderID, articleID uuid.UUID, delta int) (int, error) {
	if s.cache == nil || requestID == "" {
		return s.UpdateLine(ctx, orderID, articleID, delta)
	}

	idempotencyKey := fmt.Sprintf("line:%s:%s", orderID, requestID)
	ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return 0, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return 0, ErrDuplicateRequest
	}

	quantity, err := s.UpdateLine(ctx, orderID, articleID, delta)
	if err != nil {
		if clearErr := s.cache.ClearIdempotency(context.WithoutCancel(ctx), idempotencyKey); clearErr != nil {
			return 0, errors.Join(err, fmt.Errorf("release request id: %w", clearErr))
		}
		return 0, err
	}
	return quantity, nil
}

// CancelOrder returns every reserved quantity to stock and removes the order
// with its lines in one transaction.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	return s.db.Update(ctx, func(tx port.Tx) error {
		if err := tx.LockOrder(ctx, orderID); err != nil {
			return err
		}

		lines, err := tx.OrderLines(ctx, orderID)
		if err != nil {
			return err
		}
		slices.SortFunc(lines, func(a, b domain.OrderLine) int {
			return strings.Compare(a.ArticleID.String(), b.ArticleID.String())
		})

		for _, line := range lines {
			if _, err := s.stock.adjust(ctx, tx, line.ArticleID, line.Quantity); err != nil {
				return fmt.Errorf("restore %s: %w", line.ArticleID, err)
			}
		}
		if err := tx.DeleteOrderLines(ctx, orderID); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, orderID)
	})
}
