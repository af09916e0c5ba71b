package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxQuantity bounds stock and line quantities and the deltas applied to them.
const MaxQuantity = math.MaxInt32

// ValidateQuantity checks an absolute quantity.
func ValidateQuantity(field string, quantity int) error {
	if quantity < 0 {
		return ValidationError{Field: field, Message: "must not be negative"}
	}
	if quantity > MaxQuantity {
		return ValidationError{Field: field, Message: "exceeds maximum quantity"}
	}
	return nil
}

// ValidateDelta checks a quantity change: non-zero, and no larger in
// magnitude than MaxQuantity.
func ValidateDelta(field string, delta int) error {
	if delta == 0 {
		return ValidationError{Field: field, Message: "must not be zero"}
	}
	if delta > MaxQuantity || delta < -MaxQuantity {
		return ValidationError{Field: field, Message: "exceeds maximum quantity"}
	}
	return nil
}

type StockRecord struct {
	ArticleID uuid.UUID
	Quantity  int
	UpdatedAt time.Time
}

// AuditEntry records the quantity resulting from one stock write.
type AuditEntry struct {
	Seq       int64
	ArticleID uuid.UUID
	EventAt   time.Time
	Quantity  int
}
