package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// PricePolicy selects which price an order line is valued at.
type PricePolicy int

const (
	// PriceAtOrderCreation values lines at the price in effect when the
	// order was created.
	PriceAtOrderCreation PricePolicy = iota
	// PriceCurrent values lines at the latest price at read time.
	PriceCurrent
)

func (p PricePolicy) String() string {
	switch p {
	case PriceAtOrderCreation:
		return "order_creation"
	case PriceCurrent:
		return "current"
	default:
		return fmt.Sprintf("PricePolicy(%d)", int(p))
	}
}

// ParsePricePolicy accepts the names returned by PricePolicy.String.
func ParsePricePolicy(s string) (PricePolicy, error) {
	switch s {
	case "", "order_creation":
		return PriceAtOrderCreation, nil
	case "current":
		return PriceCurrent, nil
	}
	return 0, fmt.Errorf("unknown price policy %q", s)
}

// OrderAggregator computes order totals from one consistent snapshot of the
// ledgers. It never writes.
type OrderAggregator struct {
	db     port.DatabaseRepository
	policy PricePolicy
}

func NewOrderAggregator(db port.DatabaseRepository, policy PricePolicy) *OrderAggregator {
	return &OrderAggregator{db: db, policy: policy}
}

// Aggregate returns nil when the order does not exist or has no lines.
// Taxes are resolved as of the order creation time; lines without a price
// are reported with Priced=false and count as zero.
func (a *OrderAggregator) Aggregate(ctx context.Context, orderID uuid.UUID) (*domain.OrderSummary, error) {
	var summary *domain.OrderSummary
	err := a.db.View(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil || order == nil {
			return err
		}
		lines, err := tx.OrderLines(ctx, orderID)
		if err != nil || len(lines) == 0 {
			return err
		}

		s := &domain.OrderSummary{
			Order:       *order,
			TotalPreTax: decimal.Zero,
			TotalTaxed:  decimal.Zero,
		}
		for _, line := range lines {
			ls, err := a.line(ctx, tx, *order, line)
			if err != nil {
				return err
			}
			s.Lines = append(s.Lines, ls)
			s.TotalPreTax = s.TotalPreTax.Add(ls.PreTax)
			s.TotalTaxed = s.TotalTaxed.Add(ls.Taxed)
		}
		summary = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (a *OrderAggregator) line(ctx context.Context, tx port.Tx, order domain.PurchaseOrder, line domain.OrderLine) (domain.LineSummary, error) {
	article, err := tx.GetArticle(ctx, line.ArticleID)
	if err != nil {
		return domain.LineSummary{}, err
	}
	if article == nil {
		return domain.LineSummary{}, fmt.Errorf("article %s: %w", line.ArticleID, domain.ErrNotFound)
	}

	var price *domain.PriceRecord
	switch a.policy {
	case PriceCurrent:
		price, err = tx.CurrentPrice(ctx, article.ID)
	default:
		price, err = tx.PriceAt(ctx, article.ID, order.CreatedAt)
	}
	if err != nil {
		return domain.LineSummary{}, err
	}

	tax, err := tx.ResolveTax(ctx, article.CategoryID, order.CreatedAt)
	if err != nil {
		return domain.LineSummary{}, err
	}

	ls := domain.LineSummary{
		ArticleID:        article.ID,
		ArticleReference: article.Reference,
		Quantity:         line.Quantity,
		Price:            decimal.Zero,
		TaxRate:          decimal.Zero,
		PreTax:           decimal.Zero,
		Taxed:            decimal.Zero,
	}
	if tax != nil {
		ls.TaxRate = tax.Rate
	}
	if price == nil {
		return ls, nil
	}

	qty := decimal.NewFromInt(int64(line.Quantity))
	ls.Priced = true
	ls.Price = price.Price
	ls.PreTax = price.Price.Mul(qty)
	ls.Taxed = price.Price.Add(price.Price.Mul(ls.TaxRate)).Mul(qty)
	return ls, nil
}
