package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// DefaultCategoryProvider supplies the category of articles created or
// updated without one. It runs inside the caller's write transaction.
type DefaultCategoryProvider interface {
	DefaultCategory(ctx context.Context, tx port.Tx) (domain.Category, error)
}

// NamedDefaultCategory is a DefaultCategoryProvider that gets or creates
// the category with the given name.
type NamedDefaultCategory string

func (n NamedDefaultCategory) DefaultCategory(ctx context.Context, tx port.Tx) (domain.Category, error) {
	name := domain.NormalizeCategoryName(string(n))
	if name == "" {
		return domain.Category{}, domain.ValidationError{Field: "category", Message: "no default category configured"}
	}

	existing, err := tx.GetCategoryByName(ctx, name)
	if err != nil {
		return domain.Category{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	c := domain.Category{ID: uuid.New(), Name: name}
	if err := tx.CreateCategory(ctx, c); err != nil {
		return domain.Category{}, fmt.Errorf("create default category: %w", err)
	}
	return c, nil
}

// CatalogService manages categories and articles and assembles the full
// article view from the ledgers.
type CatalogService struct {
	db       port.DatabaseRepository
	defaults DefaultCategoryProvider
	prices   *PriceLedger
	stock    *StockLedger
	now      func() time.Time
}

func NewCatalogService(db port.DatabaseRepository, defaults DefaultCategoryProvider, prices *PriceLedger, stock *StockLedger) *CatalogService {
	return &CatalogService{
		db:       db,
		defaults: defaults,
		prices:   prices,
		stock:    stock,
		now:      time.Now,
	}
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	name = domain.NormalizeCategoryName(name)
	if name == "" {
		return domain.Category{}, domain.ValidationError{Field: "name", Message: "must not be empty"}
	}

	c := domain.Category{ID: uuid.New(), Name: name}
	err := s.db.Update(ctx, func(tx port.Tx) error {
		existing, err := tx.GetCategoryByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("category %q: %w", name, domain.ErrDuplicate)
		}
		return tx.CreateCategory(ctx, c)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := s.db.View(ctx, func(tx port.Tx) error {
		var err error
		categories, err = tx.ListCategories(ctx)
		return err
	})
	return categories, err
}

// CategoryByName returns nil when no such category exists.
func (s *CatalogService) CategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var category *domain.Category
	err := s.db.View(ctx, func(tx port.Tx) error {
		var err error
		category, err = tx.GetCategoryByName(ctx, name)
		return err
	})
	return category, err
}

func (s *CatalogService) resolveCategory(ctx context.Context, tx port.Tx, name string) (domain.Category, error) {
	if strings.TrimSpace(name) == "" {
		if s.defaults == nil {
			return domain.Category{}, domain.ValidationError{Field: "category", Message: "must not be empty"}
		}
		return s.defaults.DefaultCategory(ctx, tx)
	}

	c, err := tx.GetCategoryByName(ctx, name)
	if err != nil {
		return domain.Category{}, err
	}
	if c == nil {
		return domain.Category{}, fmt.Errorf("category %q: %w", name, domain.ErrNotFound)
	}
	return *c, nil
}

func (s *CatalogService) CreateArticle(ctx context.Context, in domain.ArticleInput) (domain.Article, error) {
	if err := in.Validate(); err != nil {
		return domain.Article{}, err
	}

	article := domain.Article{
		ID:          uuid.New(),
		Reference:   in.Reference,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		CreatedAt:   s.now(),
	}
	err := s.db.Update(ctx, func(tx port.Tx) error {
		category, err := s.resolveCategory(ctx, tx, in.Category)
		if err != nil {
			return err
		}
		article.CategoryID = category.ID

		if err := tx.CreateArticle(ctx, article); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return fmt.Errorf("article %q: %w", in.Reference, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Article{}, err
	}
	return article, nil
}

// UpdateArticle replaces the name, description and category. The reference
// cannot change; an empty reference or category in the input means unchanged.
func (s *CatalogService) UpdateArticle(ctx context.Context, id uuid.UUID, in domain.ArticleInput) (domain.Article, error) {
	var updated domain.Article
	err := s.db.Update(ctx, func(tx port.Tx) error {
		current, err := tx.GetArticle(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
		}

		if in.Reference == "" {
			in.Reference = current.Reference
		}
		if !strings.EqualFold(in.Reference, current.Reference) {
			return domain.ValidationError{Field: "reference", Message: "is immutable"}
		}
		if err := in.Validate(); err != nil {
			return err
		}

		updated = *current
		updated.Name = strings.TrimSpace(in.Name)
		updated.Description = in.Description
		// an empty category keeps the current one
		if in.Category != "" {
			category, err := s.resolveCategory(ctx, tx, in.Category)
			if err != nil {
				return err
			}
			updated.CategoryID = category.ID
		}
		return tx.UpdateArticle(ctx, updated)
	})
	if err != nil {
		return domain.Article{}, err
	}
	return updated, nil
}

// GetArticle returns nil when the article does not exist.
func (s *CatalogService) GetArticle(ctx context.Context, id uuid.UUID) (*domain.Article, error) {
	var article *domain.Article
	err := s.db.View(ctx, func(tx port.Tx) error {
		var err error
		article, err = tx.GetArticle(ctx, id)
		return err
	})
	return article, err
}

func (s *CatalogService) ListArticles(ctx context.Context) ([]domain.Article, error) {
	var articles []domain.Article
	err := s.db.View(ctx, func(tx port.Tx) error {
		var err error
		articles, err = tx.ListArticles(ctx)
		return err
	})
	return articles, err
}

// ArticleDetails returns the article joined with its current price, on-hand
// quantity and the tax of its category in effect now.
func (s *CatalogService) ArticleDetails(ctx context.Context, id uuid.UUID) (*domain.ArticleView, error) {
	var view *domain.ArticleView
	err := s.db.View(ctx, func(tx port.Tx) error {
		article, err := tx.GetArticle(ctx, id)
		if err != nil {
			return err
		}
		if article == nil {
			return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
		}

		v := &domain.ArticleView{Article: *article}
		category, err := tx.GetCategory(ctx, article.CategoryID)
		if err != nil {
			return err
		}
		if category != nil {
			v.Category = category.Name
		}
		if v.Price, err = tx.CurrentPrice(ctx, id); err != nil {
			return err
		}
		stock, err := tx.GetStock(ctx, id)
		if err != nil {
			return err
		}
		if stock != nil {
			v.Quantity = &stock.Quantity
		}
		if v.Tax, err = tx.ResolveTax(ctx, article.CategoryID, s.now()); err != nil {
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// DeleteArticle removes an unstocked article and evicts its cached price.
func (s *CatalogService) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	if err := s.stock.DeleteArticle(ctx, id); err != nil {
		return err
	}
	if s.prices != nil {
		s.prices.forget(ctx, id)
	}
	return nil
}
