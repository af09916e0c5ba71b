package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseOrder struct {
	ID        uuid.UUID
	Reference string
	CreatedAt time.Time
	CreatedBy string
}

// OrderLine holds the quantity of an article reserved by an order.
// Quantity is always positive; a line reaching zero is deleted.
type OrderLine struct {
	OrderID   uuid.UUID
	ArticleID uuid.UUID
	Quantity  int
}

type LineSummary struct {
	ArticleID        uuid.UUID
	ArticleReference string
	Quantity         int
	Priced           bool
	Price            decimal.Decimal
	TaxRate          decimal.Decimal
	PreTax           decimal.Decimal
	Taxed            decimal.Decimal
}

type OrderSummary struct {
	Order       PurchaseOrder
	Lines       []LineSummary
	TotalPreTax decimal.Decimal
	TotalTaxed  decimal.Decimal
}
