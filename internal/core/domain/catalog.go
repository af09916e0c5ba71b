package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// IsSlug reports whether s is a valid article or tax reference.
func IsSlug(s string) bool {
	return slugPattern.MatchString(s)
}

type Category struct {
	ID   uuid.UUID
	Name string
}

// NormalizeCategoryName returns the canonical form used for uniqueness checks.
func NormalizeCategoryName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type Article struct {
	ID          uuid.UUID
	Reference   string // immutable after creation
	Name        string
	Description string
	CategoryID  uuid.UUID
	CreatedAt   time.Time
}

// ArticleInput carries the mutable attributes of an article. Category is a
// category name; empty means the default category.
type ArticleInput struct {
	Reference   string
	Name        string
	Description string
	Category    string
}

func (in ArticleInput) Validate() error {
	if !IsSlug(in.Reference) {
		return ValidationError{Field: "reference", Message: "must be a slug"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return ValidationError{Field: "name", Message: "must not be empty"}
	}
	return nil
}

// ArticleView joins an article with its current price, on-hand quantity and
// the tax currently applicable to its category. Absent parts are nil.
type ArticleView struct {
	Article  Article
	Category string
	Price    *PriceRecord
	Quantity *int
	Tax      *ResolvedTax
}
