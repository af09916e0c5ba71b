package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits a price may carry.
const PriceScale = 2

// PriceRecord is one immutable entry of an article's price history.
// Seq orders records inserted within the same clock tick.
type PriceRecord struct {
	Seq        int64
	ArticleID  uuid.UUID
	Price      decimal.Decimal
	InsertedAt time.Time
}

// After reports whether r supersedes other in history order.
func (r PriceRecord) After(other PriceRecord) bool {
	if !r.InsertedAt.Equal(other.InsertedAt) {
		return r.InsertedAt.After(other.InsertedAt)
	}
	return r.Seq > other.Seq
}

func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return ValidationError{Field: "price", Message: "must not be negative"}
	}
	if !price.Equal(price.Truncate(PriceScale)) {
		return ValidationError{Field: "price", Message: "at most 2 fractional digits"}
	}
	return nil
}
