package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// compile-time interface check
var _ port.DatabaseRepository = (*MySQLAdapter)(nil)

// MySQL error numbers mapped onto the ledger taxonomy.
const (
	errDupEntry         = 1062
	errRowIsReferenced  = 1451
	errNoReferencedRow  = 1452
	errLockWaitTimeout  = 1205
	errLockDeadlock     = 1213
	errCheckConstraint  = 3819
	errSignalException  = 1644
	errRowIsReferenced2 = 1217
	errNoReferencedRow2 = 1216
	errOutOfRange       = 1264
	errDataOutOfRange   = 1690
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// PoolOptions sizes the connection pool opened by OpenMySQL.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NormalizeDSN forces parseTime and UTC on dsn. The adapter scans DATETIME
// columns into time.Time and writes UTC instants.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// OpenMySQL opens and pings a pool for dsn, normalized by NormalizeDSN.
func OpenMySQL(ctx context.Context, dsn string, opts PoolOptions) (*sql.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func (m *MySQLAdapter) View(ctx context.Context, fn func(tx port.Tx) error) error {
	return m.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (m *MySQLAdapter) Update(ctx context.Context, fn func(tx port.Tx) error) error {
	return m.run(ctx, nil, fn)
}

func (m *MySQLAdapter) run(ctx context.Context, opts *sql.TxOptions, fn func(tx port.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

// mapError translates driver errors into domain errors, keeping the driver
// message for diagnostics.
func mapError(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case errDupEntry:
		return fmt.Errorf("%w: %s", domain.ErrDuplicate, me.Message)
	case errRowIsReferenced, errRowIsReferenced2:
		return fmt.Errorf("%w: %s", domain.ErrProtectedReference, me.Message)
	case errNoReferencedRow, errNoReferencedRow2:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, me.Message)
	case errLockWaitTimeout, errLockDeadlock:
		return fmt.Errorf("%w: %s", domain.ErrContention, me.Message)
	case errCheckConstraint, errOutOfRange, errDataOutOfRange:
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, me.Message)
	case errSignalException:
		// raised by the append-only triggers
		return fmt.Errorf("%w: %s", domain.ErrProtectedReference, me.Message)
	}
	return err
}

type mysqlTx struct {
	tx *sql.Tx
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

// Categories

func (t *mysqlTx) CreateCategory(ctx context.Context, c domain.Category) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO categories (id, name) VALUES (?, ?)`,
		c.ID, domain.NormalizeCategoryName(c.Name),
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", mapError(err))
	}
	return nil
}

func (t *mysqlTx) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	var c domain.Category
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query category: %w", mapError(err))
	}
	return &c, nil
}

func (t *mysqlTx) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var c domain.Category
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name FROM categories WHERE name = ?`, domain.NormalizeCategoryName(name),
	).Scan(&c.ID, &c.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query category: %w", mapError(err))
	}
	return &c, nil
}

func (t *mysqlTx) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Articles

const articleColumns = `id, reference, name, description, category_id, created_at`

func scanArticle(row interface{ Scan(...any) error }) (domain.Article, error) {
	var a domain.Article
	err := row.Scan(&a.ID, &a.Reference, &a.Name, &a.Description, &a.CategoryID, &a.CreatedAt)
	return a, err
}

func (t *mysqlTx) CreateArticle(ctx context.Context, a domain.Article) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Reference, a.Name, a.Description, a.CategoryID, utc(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", mapError(err))
	}
	return nil
}

func (t *mysqlTx) GetArticle(ctx context.Context, id uuid.UUID) (*domain.Article, error) {
	a, err := scanArticle(t.tx.QueryRowContext(ctx, `
		SELECT `+articleColumns+` FROM articles WHERE id = ?`, id))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", mapError(err))
	}
	return &a, nil
}

func (t *mysqlTx) ListArticles(ctx context.Context) ([]domain.Article, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles ORDER BY reference`)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (t *mysqlTx) UpdateArticle(ctx context.Context, a domain.Article) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE articles SET name = ?, description = ?, category_id = ?
		WHERE id = ?`,
		a.Name, a.Description, a.CategoryID, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update article: %w", mapError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// unchanged rows report zero as well
		var exists int
		err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE id = ?`, a.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("query article: %w", mapError(err))
		}
	}
	return nil
}

func (t *mysqlTx) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	var stocked int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_records WHERE article_id = ?`, id,
	).Scan(&stocked)
	if err != nil {
		return fmt.Errorf("query stock: %w", mapError(err))
	}
	if stocked > 0 {
		return domain.ErrProtectedReference
	}

	result, err := t.tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", mapError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Prices

const priceColumns = `seq, article_id, price, inserted_at`

func scanPrice(row interface{ Scan(...any) error }) (domain.PriceRecord, error) {
	var p domain.PriceRecord
	err := row.Scan(&p.Seq, &p.ArticleID, &p.Price, &p.InsertedAt)
	return p, err
}

func (t *mysqlTx) InsertPrice(ctx context.Context, p domain.PriceRecord) (domain.PriceRecord, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO price_records (article_id, price, inserted_at) VALUES (?, ?, ?)`,
		p.ArticleID, p.Price, utc(p.InsertedAt),
	)
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("insert price: %w", mapError(err))
	}

	p.Seq, err = result.LastInsertId()
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("price seq: %w", err)
	}
	return p, nil
}

func (t *mysqlTx) queryPrice(ctx context.Context, query string, args ...any) (*domain.PriceRecord, error) {
	p, err := scanPrice(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query price: %w", mapError(err))
	}
	return &p, nil
}

func (t *mysqlTx) CurrentPrice(ctx context.Context, articleID uuid.UUID) (*domain.PriceRecord, error) {
	return t.queryPrice(ctx, `
		SELECT `+priceColumns+` FROM price_records
		WHERE article_id = ?
		ORDER BY inserted_at DESC, seq DESC
		LIMIT 1`, articleID)
}

func (t *mysqlTx) PriceAt(ctx context.Context, articleID uuid.UUID, at time.Time) (*domain.PriceRecord, error) {
	return t.queryPrice(ctx, `
		SELECT `+priceColumns+` FROM price_records
		WHERE article_id = ? AND inserted_at <= ?
		ORDER BY inserted_at DESC, seq DESC
		LIMIT 1`, articleID, utc(at))
}

func (t *mysqlTx) PriceHistory(ctx context.Context, articleID uuid.UUID) ([]domain.PriceRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+priceColumns+` FROM price_records
		WHERE article_id = ?
		ORDER BY inserted_at, seq`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.PriceRecord
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Taxes

func (t *mysqlTx) CreateTax(ctx context.Context, tax domain.TaxDefinition) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO taxes (reference, rate) VALUES (?, ?)`,
		tax.Reference, tax.Rate,
	)
	if err != nil {
		return fmt.Errorf("insert tax: %w", mapError(err))
	}
	return nil
}

func (t *mysqlTx) GetTax(ctx context.Context, reference string) (*domain.TaxDefinition, error) {
	var tax domain.TaxDefinition
	err := t.tx.QueryRowContext(ctx, `
		SELECT reference, rate FROM taxes WHERE reference = ?`, reference,
	).Scan(&tax.Reference, &tax.Rate)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tax: %w", mapError(err))
	}
	return &tax, nil
}

func (t *mysqlTx) ListTaxes(ctx context.Context) ([]domain.TaxDefinition, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT reference, rate FROM taxes ORDER BY reference`)
	if err != nil {
		return nil, fmt.Errorf("query taxes: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.TaxDefinition
	for rows.Next() {
		var tax domain.TaxDefinition
		if err := rows.Scan(&tax.Reference, &tax.Rate); err != nil {
			return nil, fmt.Errorf("scan tax: %w", err)
		}
		result = append(result, tax)
	}
	return result, rows.Err()
}

func (t *mysqlTx) InsertTaxAssignment(ctx context.Context, a domain.TaxAssignment) (domain.TaxAssignment, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO tax_assignments (category_id, tax_reference, valid_from) VALUES (?, ?, ?)`,
		a.CategoryID, a.TaxReference, utc(a.ValidFrom),
	)
	if err != nil {
		return domain.TaxAssignment{}, fmt.Errorf("insert tax assignment: %w", mapError(err))
	}

	a.Seq, err = result.LastInsertId()
	if err != nil {
		return domain.TaxAssignment{}, fmt.Errorf("tax assignment seq: %w", err)
	}
	return a, nil
}

func (t *mysqlTx) TaxAssignments(ctx context.Context, categoryID uuid.UUID) ([]domain.TaxAssignment, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, category_id, tax_reference, valid_from FROM tax_assignments
		WHERE category_id = ?
		ORDER BY valid_from, seq`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("query tax assignments: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.TaxAssignment
	for rows.Next() {
		var a domain.TaxAssignment
		if err := rows.Scan(&a.Seq, &a.CategoryID, &a.TaxReference, &a.ValidFrom); err != nil {
			return nil, fmt.Errorf("scan tax assignment: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (t *mysqlTx) ResolveTax(ctx context.Context, categoryID uuid.UUID, asOf time.Time) (*domain.ResolvedTax, error) {
	var r domain.ResolvedTax
	err := t.tx.QueryRowContext(ctx, `
		SELECT a.seq, a.category_id, a.tax_reference, a.valid_from, t.rate
		FROM tax_assignments a
		JOIN taxes t ON t.reference = a.tax_reference
		WHERE a.category_id = ? AND a.valid_from <= ?
		ORDER BY a.valid_from DESC, a.seq DESC
		LIMIT 1`, categoryID, utc(asOf),
	).Scan(&r.Assignment.Seq, &r.Assignment.CategoryID, &r.Assignment.TaxReference, &r.Assignment.ValidFrom, &r.Rate)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tax: %w", mapError(err))
	}
	return &r, nil
}

// Stock

func (t *mysqlTx) CreateStock(ctx context.Context, s domain.StockRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_records (article_id, quantity, updated_at) VALUES (?, ?, ?)`,
		s.ArticleID, s.Quantity, utc(s.UpdatedAt),
	)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

func (t *mysqlTx) GetStock(ctx context.Context, articleID uuid.UUID) (*domain.StockRecord, error) {
	var s domain.StockRecord
	err := t.tx.QueryRowContext(ctx, `
		SELECT article_id, quantity, updated_at FROM stock_records WHERE article_id = ?`, articleID,
	).Scan(&s.ArticleID, &s.Quantity, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", mapError(err))
	}
	return &s, nil
}

func (t *mysqlTx) AdjustStock(ctx context.Context, articleID uuid.UUID, delta int, at time.Time) (int, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE stock_records
		SET quantity = quantity + ?, updated_at = ?
		WHERE article_id = ? AND quantity + ? >= 0`,
		delta, utc(at), articleID, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("update stock: %w", mapError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM stock_records WHERE article_id = ?`, articleID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("query stock: %w", mapError(err))
		}
		return 0, domain.ErrInsufficientStock
	}

	// the row stays locked by the update until commit
	var quantity int
	err = t.tx.QueryRowContext(ctx, `
		SELECT quantity FROM stock_records WHERE article_id = ?`, articleID,
	).Scan(&quantity)
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", mapError(err))
	}
	return quantity, nil
}

func (t *mysqlTx) InsertAudit(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_audit (article_id, event_at, quantity) VALUES (?, ?, ?)`,
		e.ArticleID, utc(e.EventAt), e.Quantity,
	)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("insert audit: %w", mapError(err))
	}

	e.Seq, err = result.LastInsertId()
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit seq: %w", err)
	}
	return e, nil
}

func (t *mysqlTx) AuditTrail(ctx context.Context, articleID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, article_id, event_at, quantity FROM stock_audit
		WHERE article_id = ?
		ORDER BY seq`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.Seq, &e.ArticleID, &e.EventAt, &e.Quantity); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Orders

const orderColumns = `id, reference, created_at, created_by`

func scanOrder(row interface{ Scan(...any) error }) (domain.PurchaseOrder, error) {
	var o domain.PurchaseOrder
	err := row.Scan(&o.ID, &o.Reference, &o.CreatedAt, &o.CreatedBy)
	return o, err
}

func (t *mysqlTx) CreateOrder(ctx context.Context, o domain.PurchaseOrder) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (`+orderColumns+`) VALUES (?, ?, ?, ?)`,
		o.ID, o.Reference, utc(o.CreatedAt), o.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapError(err))
	}
	return nil
}

func (t *mysqlTx) GetOrder(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM purchase_orders WHERE id = ?`, id))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", mapError(err))
	}
	return &o, nil
}

func (t *mysqlTx) ListOrders(ctx context.Context) ([]domain.PurchaseOrder, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM purchase_orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.PurchaseOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (t *mysqlTx) LockOrder(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM purchase_orders WHERE id = ? FOR UPDATE`, id,
	).Scan(&locked)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock order: %w", mapError(err))
	}
	return nil
}

func (t *mysqlTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM purchase_orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", mapError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *mysqlTx) lineQuantity(ctx context.Context, orderID, articleID uuid.UUID) (int, error) {
	var quantity int
	err := t.tx.QueryRowContext(ctx, `
		SELECT quantity FROM order_lines WHERE order_id = ? AND article_id = ?`,
		orderID, articleID,
	).Scan(&quantity)
	if err != nil {
		return 0, fmt.Errorf("query order line: %w", mapError(err))
	}
	return quantity, nil
}

func (t *mysqlTx) AddToLine(ctx context.Context, orderID, articleID uuid.UUID, quantity int) (int, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, article_id, quantity) VALUES (?, ?, ?) AS new
		ON DUPLICATE KEY UPDATE quantity = order_lines.quantity + new.quantity`,
		orderID, articleID, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert order line: %w", mapError(err))
	}
	return t.lineQuantity(ctx, orderID, articleID)
}

func (t *mysqlTx) ReleaseFromLine(ctx context.Context, orderID, articleID uuid.UUID, quantity int) (int, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE order_lines SET quantity = quantity - ?
		WHERE order_id = ? AND article_id = ? AND quantity > ?`,
		quantity, orderID, articleID, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("update order line: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 1 {
		return t.lineQuantity(ctx, orderID, articleID)
	}

	result, err = t.tx.ExecContext(ctx, `
		DELETE FROM order_lines
		WHERE order_id = ? AND article_id = ? AND quantity = ?`,
		orderID, articleID, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("delete order line: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return 0, domain.ErrInsufficientOrderQuantity
	}
	return 0, nil
}

func (t *mysqlTx) OrderLines(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT order_id, article_id, quantity FROM order_lines
		WHERE order_id = ?
		ORDER BY article_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", mapError(err))
	}
	defer rows.Close()

	var result []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ArticleID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (t *mysqlTx) DeleteOrderLines(ctx context.Context, orderID uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("delete order lines: %w", mapError(err))
	}
	return nil
}
