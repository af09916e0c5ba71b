package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var errReadOnly = errors.New("storage: write in read-only transaction")

// compile-time interface check
var _ port.DatabaseRepository = (*MemoryAdapter)(nil)

// MemoryAdapter keeps all records in process memory. Update runs on a copy
// of the state under an exclusive lock and swaps it in on success, so a
// failed transaction leaves no trace.
type MemoryAdapter struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: newMemoryState()}
}

func (m *MemoryAdapter) View(ctx context.Context, fn func(tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(&memoryTx{state: m.state, readOnly: true})
}

func (m *MemoryAdapter) Update(ctx context.Context, fn func(tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := fn(&memoryTx{state: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

type lineKey struct {
	orderID   uuid.UUID
	articleID uuid.UUID
}

type memoryState struct {
	categories     map[uuid.UUID]domain.Category
	categoryByName map[string]uuid.UUID
	articles       map[uuid.UUID]domain.Article
	articleByRef   map[string]uuid.UUID
	prices         []domain.PriceRecord
	taxes          map[string]domain.TaxDefinition
	assignments    []domain.TaxAssignment
	stock          map[uuid.UUID]domain.StockRecord
	audit          []domain.AuditEntry
	orders         map[uuid.UUID]domain.PurchaseOrder
	orderByRef     map[string]uuid.UUID
	lines          map[lineKey]int
	seq            int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		categories:     make(map[uuid.UUID]domain.Category),
		categoryByName: make(map[string]uuid.UUID),
		articles:       make(map[uuid.UUID]domain.Article),
		articleByRef:   make(map[string]uuid.UUID),
		taxes:          make(map[string]domain.TaxDefinition),
		stock:          make(map[uuid.UUID]domain.StockRecord),
		orders:         make(map[uuid.UUID]domain.PurchaseOrder),
		orderByRef:     make(map[string]uuid.UUID),
		lines:          make(map[lineKey]int),
	}
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		categories:     maps.Clone(s.categories),
		categoryByName: maps.Clone(s.categoryByName),
		articles:       maps.Clone(s.articles),
		articleByRef:   maps.Clone(s.articleByRef),
		prices:         slices.Clone(s.prices),
		taxes:          maps.Clone(s.taxes),
		assignments:    slices.Clone(s.assignments),
		stock:          maps.Clone(s.stock),
		audit:          slices.Clone(s.audit),
		orders:         maps.Clone(s.orders),
		orderByRef:     maps.Clone(s.orderByRef),
		lines:          maps.Clone(s.lines),
		seq:            s.seq,
	}
}

func (s *memoryState) nextSeq() int64 {
	s.seq++
	return s.seq
}

type memoryTx struct {
	state    *memoryState
	readOnly bool
}

func (t *memoryTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// Categories

func (t *memoryTx) CreateCategory(_ context.Context, c domain.Category) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := domain.NormalizeCategoryName(c.Name)
	if _, exists := t.state.categoryByName[key]; exists {
		return domain.ErrDuplicate
	}
	t.state.categories[c.ID] = c
	t.state.categoryByName[key] = c.ID
	return nil
}

func (t *memoryTx) GetCategory(_ context.Context, id uuid.UUID) (*domain.Category, error) {
	if c, ok := t.state.categories[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (t *memoryTx) GetCategoryByName(_ context.Context, name string) (*domain.Category, error) {
	if id, ok := t.state.categoryByName[domain.NormalizeCategoryName(name)]; ok {
		c := t.state.categories[id]
		return &c, nil
	}
	return nil, nil
}

func (t *memoryTx) ListCategories(_ context.Context) ([]domain.Category, error) {
	result := slices.Collect(maps.Values(t.state.categories))
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Articles

func (t *memoryTx) CreateArticle(_ context.Context, a domain.Article) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := strings.ToLower(a.Reference)
	if _, exists := t.state.articleByRef[key]; exists {
		return domain.ErrDuplicate
	}
	if _, ok := t.state.categories[a.CategoryID]; !ok {
		return domain.ErrNotFound
	}
	t.state.articles[a.ID] = a
	t.state.articleByRef[key] = a.ID
	return nil
}

func (t *memoryTx) GetArticle(_ context.Context, id uuid.UUID) (*domain.Article, error) {
	if a, ok := t.state.articles[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (t *memoryTx) ListArticles(_ context.Context) ([]domain.Article, error) {
	result := slices.Collect(maps.Values(t.state.articles))
	sort.Slice(result, func(i, j int) bool { return result[i].Reference < result[j].Reference })
	return result, nil
}

func (t *memoryTx) UpdateArticle(_ context.Context, a domain.Article) error {
	if err := t.writable(); err != nil {
		return err
	}
	current, ok := t.state.articles[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, ok := t.state.categories[a.CategoryID]; !ok {
		return domain.ErrNotFound
	}
	current.Name = a.Name
	current.Description = a.Description
	current.CategoryID = a.CategoryID
	t.state.articles[a.ID] = current
	return nil
}

func (t *memoryTx) DeleteArticle(_ context.Context, id uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.state.articles[id]
	if !ok {
		return domain.ErrNotFound
	}
	if _, stocked := t.state.stock[id]; stocked {
		return domain.ErrProtectedReference
	}
	t.state.prices = slices.DeleteFunc(t.state.prices, func(p domain.PriceRecord) bool {
		return p.ArticleID == id
	})
	delete(t.state.articles, id)
	delete(t.state.articleByRef, strings.ToLower(a.Reference))
	return nil
}

// Prices

func (t *memoryTx) InsertPrice(_ context.Context, p domain.PriceRecord) (domain.PriceRecord, error) {
	if err := t.writable(); err != nil {
		return domain.PriceRecord{}, err
	}
	if _, ok := t.state.articles[p.ArticleID]; !ok {
		return domain.PriceRecord{}, domain.ErrNotFound
	}
	p.Seq = t.state.nextSeq()
	t.state.prices = append(t.state.prices, p)
	return p, nil
}

func (t *memoryTx) CurrentPrice(_ context.Context, articleID uuid.UUID) (*domain.PriceRecord, error) {
	var best *domain.PriceRecord
	for i := range t.state.prices {
		p := t.state.prices[i]
		if p.ArticleID != articleID {
			continue
		}
		if best == nil || p.After(*best) {
			best = &p
		}
	}
	return best, nil
}

func (t *memoryTx) PriceAt(_ context.Context, articleID uuid.UUID, at time.Time) (*domain.PriceRecord, error) {
	var best *domain.PriceRecord
	for i := range t.state.prices {
		p := t.state.prices[i]
		if p.ArticleID != articleID || p.InsertedAt.After(at) {
			continue
		}
		if best == nil || p.After(*best) {
			best = &p
		}
	}
	return best, nil
}

func (t *memoryTx) PriceHistory(_ context.Context, articleID uuid.UUID) ([]domain.PriceRecord, error) {
	var result []domain.PriceRecord
	for _, p := range t.state.prices {
		if p.ArticleID == articleID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[j].After(result[i]) })
	return result, nil
}

// Taxes

func (t *memoryTx) CreateTax(_ context.Context, tax domain.TaxDefinition) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := strings.ToLower(tax.Reference)
	if _, exists := t.state.taxes[key]; exists {
		return domain.ErrDuplicate
	}
	t.state.taxes[key] = tax
	return nil
}

func (t *memoryTx) GetTax(_ context.Context, reference string) (*domain.TaxDefinition, error) {
	if tax, ok := t.state.taxes[strings.ToLower(reference)]; ok {
		return &tax, nil
	}
	return nil, nil
}

func (t *memoryTx) ListTaxes(_ context.Context) ([]domain.TaxDefinition, error) {
	result := slices.Collect(maps.Values(t.state.taxes))
	sort.Slice(result, func(i, j int) bool { return result[i].Reference < result[j].Reference })
	return result, nil
}

func (t *memoryTx) InsertTaxAssignment(_ context.Context, a domain.TaxAssignment) (domain.TaxAssignment, error) {
	if err := t.writable(); err != nil {
		return domain.TaxAssignment{}, err
	}
	if _, ok := t.state.categories[a.CategoryID]; !ok {
		return domain.TaxAssignment{}, domain.ErrNotFound
	}
	if _, ok := t.state.taxes[strings.ToLower(a.TaxReference)]; !ok {
		return domain.TaxAssignment{}, domain.ErrNotFound
	}
	a.Seq = t.state.nextSeq()
	t.state.assignments = append(t.state.assignments, a)
	return a, nil
}

func (t *memoryTx) TaxAssignments(_ context.Context, categoryID uuid.UUID) ([]domain.TaxAssignment, error) {
	var result []domain.TaxAssignment
	for _, a := range t.state.assignments {
		if a.CategoryID == categoryID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[j].Supersedes(result[i]) })
	return result, nil
}

func (t *memoryTx) ResolveTax(_ context.Context, categoryID uuid.UUID, asOf time.Time) (*domain.ResolvedTax, error) {
	var best *domain.TaxAssignment
	for i := range t.state.assignments {
		a := t.state.assignments[i]
		if a.CategoryID != categoryID || a.ValidFrom.After(asOf) {
			continue
		}
		if best == nil || a.Supersedes(*best) {
			best = &a
		}
	}
	if best == nil {
		return nil, nil
	}
	tax := t.state.taxes[strings.ToLower(best.TaxReference)]
	return &domain.ResolvedTax{Assignment: *best, Rate: tax.Rate}, nil
}

// Stock

func (t *memoryTx) CreateStock(_ context.Context, s domain.StockRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.articles[s.ArticleID]; !ok {
		return domain.ErrNotFound
	}
	if _, exists := t.state.stock[s.ArticleID]; exists {
		return domain.ErrAlreadyExists
	}
	t.state.stock[s.ArticleID] = s
	return nil
}

func (t *memoryTx) GetStock(_ context.Context, articleID uuid.UUID) (*domain.StockRecord, error) {
	if s, ok := t.state.stock[articleID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (t *memoryTx) AdjustStock(_ context.Context, articleID uuid.UUID, delta int, at time.Time) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	s, ok := t.state.stock[articleID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if s.Quantity+delta < 0 {
		return 0, domain.ErrInsufficientStock
	}
	if s.Quantity+delta > domain.MaxQuantity {
		return 0, domain.ValidationError{Field: "quantity", Message: "exceeds maximum quantity"}
	}
	s.Quantity += delta
	s.UpdatedAt = at
	t.state.stock[articleID] = s
	return s.Quantity, nil
}

func (t *memoryTx) InsertAudit(_ context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	if err := t.writable(); err != nil {
		return domain.AuditEntry{}, err
	}
	e.Seq = t.state.nextSeq()
	t.state.audit = append(t.state.audit, e)
	return e, nil
}

func (t *memoryTx) AuditTrail(_ context.Context, articleID uuid.UUID) ([]domain.AuditEntry, error) {
	var result []domain.AuditEntry
	for _, e := range t.state.audit {
		if e.ArticleID == articleID {
			result = append(result, e)
		}
	}
	return result, nil
}

// Orders

func (t *memoryTx) CreateOrder(_ context.Context, o domain.PurchaseOrder) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := strings.ToLower(o.Reference)
	if _, exists := t.state.orderByRef[key]; exists {
		return domain.ErrDuplicate
	}
	t.state.orders[o.ID] = o
	t.state.orderByRef[key] = o.ID
	return nil
}

func (t *memoryTx) GetOrder(_ context.Context, id uuid.UUID) (*domain.PurchaseOrder, error) {
	if o, ok := t.state.orders[id]; ok {
		return &o, nil
	}
	return nil, nil
}

func (t *memoryTx) ListOrders(_ context.Context) ([]domain.PurchaseOrder, error) {
	result := slices.Collect(maps.Values(t.state.orders))
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// LockOrder only checks existence: Update already holds the store lock.
func (t *memoryTx) LockOrder(_ context.Context, id uuid.UUID) error {
	if _, ok := t.state.orders[id]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (t *memoryTx) DeleteOrder(_ context.Context, id uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	o, ok := t.state.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	for k := range t.state.lines {
		if k.orderID == id {
			return domain.ErrProtectedReference
		}
	}
	delete(t.state.orders, id)
	delete(t.state.orderByRef, strings.ToLower(o.Reference))
	return nil
}

func (t *memoryTx) AddToLine(_ context.Context, orderID, articleID uuid.UUID, quantity int) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if _, ok := t.state.orders[orderID]; !ok {
		return 0, domain.ErrNotFound
	}
	if _, ok := t.state.articles[articleID]; !ok {
		return 0, domain.ErrNotFound
	}
	k := lineKey{orderID: orderID, articleID: articleID}
	if t.state.lines[k]+quantity > domain.MaxQuantity {
		return 0, domain.ValidationError{Field: "quantity", Message: "exceeds maximum quantity"}
	}
	t.state.lines[k] += quantity
	return t.state.lines[k], nil
}

func (t *memoryTx) ReleaseFromLine(_ context.Context, orderID, articleID uuid.UUID, quantity int) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	k := lineKey{orderID: orderID, articleID: articleID}
	current, ok := t.state.lines[k]
	if !ok || current < quantity {
		return 0, domain.ErrInsufficientOrderQuantity
	}
	if current == quantity {
		delete(t.state.lines, k)
		return 0, nil
	}
	t.state.lines[k] = current - quantity
	return current - quantity, nil
}

func (t *memoryTx) OrderLines(_ context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	var result []domain.OrderLine
	for k, q := range t.state.lines {
		if k.orderID == orderID {
			result = append(result, domain.OrderLine{OrderID: orderID, ArticleID: k.articleID, Quantity: q})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ArticleID.String() < result[j].ArticleID.String()
	})
	return result, nil
}

func (t *memoryTx) DeleteOrderLines(_ context.Context, orderID uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	for k := range t.state.lines {
		if k.orderID == orderID {
			delete(t.state.lines, k)
		}
	}
	return nil
}
