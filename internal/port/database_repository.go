package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// DatabaseRepository is the transactional record store. Every read and write
// goes through View or Update; fn observes a consistent snapshot and, for
// Update, its writes commit only when fn returns nil.
type DatabaseRepository interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the record operations available inside a transaction.
// Lookups of a single entity return nil, nil when it does not exist.
// Price records, tax assignments and audit entries have no update or
// delete operation.
type Tx interface {
	CreateCategory(ctx context.Context, c domain.Category) error
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	CreateArticle(ctx context.Context, a domain.Article) error
	GetArticle(ctx context.Context, id uuid.UUID) (*domain.Article, error)
	ListArticles(ctx context.Context) ([]domain.Article, error)
	UpdateArticle(ctx context.Context, a domain.Article) error
	// DeleteArticle removes the article and its price records. It fails with
	// domain.ErrProtectedReference when a stock record exists.
	DeleteArticle(ctx context.Context, id uuid.UUID) error

	// InsertPrice appends the record and returns it with its sequence number.
	InsertPrice(ctx context.Context, p domain.PriceRecord) (domain.PriceRecord, error)
	CurrentPrice(ctx context.Context, articleID uuid.UUID) (*domain.PriceRecord, error)
	PriceAt(ctx context.Context, articleID uuid.UUID, at time.Time) (*domain.PriceRecord, error)
	PriceHistory(ctx context.Context, articleID uuid.UUID) ([]domain.PriceRecord, error)

	CreateTax(ctx context.Context, t domain.TaxDefinition) error
	GetTax(ctx context.Context, reference string) (*domain.TaxDefinition, error)
	ListTaxes(ctx context.Context) ([]domain.TaxDefinition, error)
	InsertTaxAssignment(ctx context.Context, a domain.TaxAssignment) (domain.TaxAssignment, error)
	TaxAssignments(ctx context.Context, categoryID uuid.UUID) ([]domain.TaxAssignment, error)
	ResolveTax(ctx context.Context, categoryID uuid.UUID, asOf time.Time) (*domain.ResolvedTax, error)

	// CreateStock fails with domain.ErrAlreadyExists if the article is stocked.
	CreateStock(ctx context.Context, s domain.StockRecord) error
	GetStock(ctx context.Context, articleID uuid.UUID) (*domain.StockRecord, error)
	// AdjustStock applies delta as a single conditional write and returns the
	// resulting quantity. It fails with domain.ErrInsufficientStock when the
	// result would be negative and domain.ErrNotFound without a stock record.
	AdjustStock(ctx context.Context, articleID uuid.UUID, delta int, at time.Time) (int, error)
	InsertAudit(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error)
	AuditTrail(ctx context.Context, articleID uuid.UUID) ([]domain.AuditEntry, error)

	CreateOrder(ctx context.Context, o domain.PurchaseOrder) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error)
	ListOrders(ctx context.Context) ([]domain.PurchaseOrder, error)
	// LockOrder takes an exclusive lock on the order for the rest of the
	// transaction. It fails with domain.ErrNotFound for an unknown order.
	LockOrder(ctx context.Context, id uuid.UUID) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	// AddToLine inserts the line or adds quantity to the existing one and
	// returns the resulting quantity.
	AddToLine(ctx context.Context, orderID, articleID uuid.UUID, quantity int) (int, error)
	// ReleaseFromLine removes quantity from the line, deleting it when it
	// reaches zero, and returns the remaining quantity. It fails with
	// domain.ErrInsufficientOrderQuantity when the line holds less.
	ReleaseFromLine(ctx context.Context, orderID, articleID uuid.UUID, quantity int) (int, error)
	OrderLines(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error)
	DeleteOrderLines(ctx context.Context, orderID uuid.UUID) error
}
