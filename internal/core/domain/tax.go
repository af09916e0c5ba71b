package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateScale is the number of fractional digits a tax rate may carry.
const RateScale = 3

type TaxDefinition struct {
	Reference string
	Rate      decimal.Decimal
}

func (t TaxDefinition) Validate() error {
	if !IsSlug(t.Reference) {
		return ValidationError{Field: "reference", Message: "must be a slug"}
	}
	if t.Rate.IsNegative() || t.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ValidationError{Field: "rate", Message: "must be in [0, 1)"}
	}
	if !t.Rate.Equal(t.Rate.Truncate(RateScale)) {
		return ValidationError{Field: "rate", Message: "at most 3 fractional digits"}
	}
	return nil
}

// TaxAssignment binds a tax to a category from ValidFrom onwards. Assignments
// are append-only; the one with the latest ValidFrom not after the instant
// of interest wins, ties broken by Seq.
type TaxAssignment struct {
	Seq          int64
	CategoryID   uuid.UUID
	TaxReference string
	ValidFrom    time.Time
}

// Supersedes reports whether a takes precedence over other for as-of resolution.
func (a TaxAssignment) Supersedes(other TaxAssignment) bool {
	if !a.ValidFrom.Equal(other.ValidFrom) {
		return a.ValidFrom.After(other.ValidFrom)
	}
	return a.Seq > other.Seq
}

// ResolvedTax is the outcome of an as-of lookup.
type ResolvedTax struct {
	Assignment TaxAssignment
	Rate       decimal.Decimal
}
