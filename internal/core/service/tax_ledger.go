package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// TaxLedger keeps tax definitions and their category assignments over time.
type TaxLedger struct {
	db port.DatabaseRepository
}

func NewTaxLedger(db port.DatabaseRepository) *TaxLedger {
	return &TaxLedger{db: db}
}

// DefineTax creates a tax definition. Redefining a reference with the same
// rate is a no-op and reports created=false; a different rate is a duplicate.
func (l *TaxLedger) DefineTax(ctx context.Context, tax domain.TaxDefinition) (bool, error) {
	if err := tax.Validate(); err != nil {
		return false, err
	}

	created := false
	err := l.db.Update(ctx, func(tx port.Tx) error {
		existing, err := tx.GetTax(ctx, tax.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			return sameRate(*existing, tax)
		}
		if err := tx.CreateTax(ctx, tax); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, domain.ErrDuplicate) && !created {
		// lost a race against a concurrent definition; it may be identical
		existing, getErr := l.Tax(ctx, tax.Reference)
		if getErr == nil && existing != nil && sameRate(*existing, tax) == nil {
			return false, nil
		}
	}
	return created, err
}

func sameRate(existing, tax domain.TaxDefinition) error {
	if existing.Rate.Equal(tax.Rate) {
		return nil
	}
	return fmt.Errorf("tax %s defined with rate %s: %w", existing.Reference, existing.Rate, domain.ErrDuplicate)
}

func (l *TaxLedger) Tax(ctx context.Context, reference string) (*domain.TaxDefinition, error) {
	var tax *domain.TaxDefinition
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		tax, err = tx.GetTax(ctx, reference)
		return err
	})
	return tax, err
}

func (l *TaxLedger) ListTaxes(ctx context.Context) ([]domain.TaxDefinition, error) {
	var taxes []domain.TaxDefinition
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		taxes, err = tx.ListTaxes(ctx)
		return err
	})
	return taxes, err
}

// AssignTax applies the tax to the category from validFrom onwards. A
// future validFrom is accepted and has no effect until that instant.
func (l *TaxLedger) AssignTax(ctx context.Context, categoryName, taxReference string, validFrom time.Time) (domain.TaxAssignment, error) {
	var assignment domain.TaxAssignment
	err := l.db.Update(ctx, func(tx port.Tx) error {
		category, err := tx.GetCategoryByName(ctx, categoryName)
		if err != nil {
			return err
		}
		if category == nil {
			return fmt.Errorf("category %q: %w", categoryName, domain.ErrNotFound)
		}
		tax, err := tx.GetTax(ctx, taxReference)
		if err != nil {
			return err
		}
		if tax == nil {
			return fmt.Errorf("tax %q: %w", taxReference, domain.ErrNotFound)
		}
		assignment, err = tx.InsertTaxAssignment(ctx, domain.TaxAssignment{
			CategoryID:   category.ID,
			TaxReference: tax.Reference,
			ValidFrom:    validFrom,
		})
		return err
	})
	return assignment, err
}

func (l *TaxLedger) Assignments(ctx context.Context, categoryID uuid.UUID) ([]domain.TaxAssignment, error) {
	var assignments []domain.TaxAssignment
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		assignments, err = tx.TaxAssignments(ctx, categoryID)
		return err
	})
	return assignments, err
}

// ResolveTax returns the tax in effect for the category at asOf, or nil
// when the category is untaxed at that instant.
func (l *TaxLedger) ResolveTax(ctx context.Context, categoryID uuid.UUID, asOf time.Time) (*domain.ResolvedTax, error) {
	var resolved *domain.ResolvedTax
	err := l.db.View(ctx, func(tx port.Tx) error {
		var err error
		resolved, err = tx.ResolveTax(ctx, categoryID, asOf)
		return err
	})
	return resolved, err
}

func (l *TaxLedger) ResolveTaxForArticle(ctx context.Context, articleID uuid.UUID, asOf time.Time) (*domain.ResolvedTax, error) {
	var resolved *domain.ResolvedTax
	err := l.db.View(ctx, func(tx port.Tx) error {
		article, err := tx.GetArticle(ctx, articleID)
		if err != nil {
			return err
		}
		if article == nil {
			return fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
		}
		resolved, err = tx.ResolveTax(ctx, article.CategoryID, asOf)
		return err
	})
	return resolved, err
}
