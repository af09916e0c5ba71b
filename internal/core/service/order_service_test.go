package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	prices         map[uuid.UUID]domain.PriceRecord
	idempotencySet map[string]bool
	priceHits      int
	mu             sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		prices:         make(map[uuid.UUID]domain.PriceRecord),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCacheRepo) GetPrice(ctx context.Context, articleID uuid.UUID) (*domain.PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prices[articleID]
	if !ok {
		return nil, nil
	}
	m.priceHits++
	return &p, nil
}

func (m *mockCacheRepo) SetPrice(ctx context.Context, p domain.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.prices[p.ArticleID]; ok && !p.After(current) {
		return nil
	}
	m.prices[p.ArticleID] = p
	return nil
}

func (m *mockCacheRepo) DropPrice(ctx context.Context, articleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prices, articleID)
	return nil
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db      port.DatabaseRepository
	clock   *testClock
	catalog *CatalogService
	prices  *PriceLedger
	taxes   *TaxLedger
	stock   *StockLedger
	orders  *OrderService
	agg     *OrderAggregator
}

func newFixture(t *testing.T, db port.DatabaseRepository, cache port.CacheRepository) *fixture {
	t.Helper()
	if db == nil {
		db = storage.NewMemoryAdapter()
	}

	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{db: db, clock: clock}
	f.stock = NewStockLedger(db)
	f.stock.now = clock.Now
	f.prices = NewPriceLedger(db, cache)
	f.prices.now = clock.Now
	f.taxes = NewTaxLedger(db)
	f.catalog = NewCatalogService(db, NamedDefaultCategory("uncategorized"), f.prices, f.stock)
	f.catalog.now = clock.Now
	f.orders = NewOrderService(db, f.stock, cache)
	f.orders.now = clock.Now
	f.agg = NewOrderAggregator(db, PriceAtOrderCreation)
	return f
}

func (f *fixture) article(t *testing.T, reference, category string) domain.Article {
	t.Helper()
	a, err := f.catalog.CreateArticle(context.Background(), domain.ArticleInput{
		Reference: reference,
		Name:      "Article " + reference,
		Category:  category,
	})
	if err != nil {
		t.Fatalf("create article %s: %v", reference, err)
	}
	return a
}

func (f *fixture) stockedArticle(t *testing.T, reference string, quantity int) domain.Article {
	t.Helper()
	a := f.article(t, reference, "")
	if _, err := f.stock.InitStock(context.Background(), a.ID, quantity); err != nil {
		t.Fatalf("init stock %s: %v", reference, err)
	}
	return a
}

func (f *fixture) order(t *testing.T, reference string) domain.PurchaseOrder {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), reference, "alice")
	if err != nil {
		t.Fatalf("create order %s: %v", reference, err)
	}
	return o
}

func (f *fixture) quantity(t *testing.T, articleID uuid.UUID) int {
	t.Helper()
	q, err := f.stock.Quantity(context.Background(), articleID)
	if err != nil {
		t.Fatalf("quantity: %v", err)
	}
	return q
}

func (f *fixture) lineQuantity(t *testing.T, orderID, articleID uuid.UUID) int {
	t.Helper()
	lines, err := f.orders.Lines(context.Background(), orderID)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	for _, l := range lines {
		if l.ArticleID == articleID {
			return l.Quantity
		}
	}
	return 0
}

func TestCreateOrder_DuplicateReference(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.order(t, "po-1")

	_, err := f.orders.CreateOrder(context.Background(), "PO-1", "bob")
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got: %v", err)
	}
}

func TestCreateOrder_InvalidInput(t *testing.T) {
	f := newFixture(t, nil, nil)

	if _, err := f.orders.CreateOrder(context.Background(), "not a slug", "alice"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for reference, got: %v", err)
	}
	if _, err := f.orders.CreateOrder(context.Background(), "po-1", " "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for creator, got: %v", err)
	}
}

func TestUpdateLine_ZeroDelta(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")

	_, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, 0)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got: %v", err)
	}
}

func TestUpdateLine_DeltaOutOfRange(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")
	ctx := context.Background()

	if _, err := f.orders.UpdateLine(ctx, o.ID, a.ID, 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	for _, delta := range []int{math.MinInt, -domain.MaxQuantity - 1, domain.MaxQuantity + 1, math.MaxInt} {
		_, err := f.orders.UpdateLine(ctx, o.ID, a.ID, delta)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("delta %d: expected ErrInvalidArgument, got: %v", delta, err)
		}
	}
	if q := f.lineQuantity(t, o.ID, a.ID); q != 3 {
		t.Errorf("expected line 3, got %d", q)
	}
	if q := f.quantity(t, a.ID); q != 7 {
		t.Errorf("expected stock 7, got %d", q)
	}

	// in range but larger than the line
	if _, err := f.orders.UpdateLine(ctx, o.ID, a.ID, -domain.MaxQuantity); !errors.Is(err, domain.ErrInsufficientOrderQuantity) {
		t.Errorf("expected ErrInsufficientOrderQuantity, got: %v", err)
	}
}

func TestUpdateLine_UnknownOrder(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)

	_, err := f.orders.UpdateLine(context.Background(), uuid.New(), a.ID, 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if q := f.quantity(t, a.ID); q != 10 {
		t.Errorf("expected stock 10, got %d", q)
	}
}

func TestUpdateLine_UnstockedArticle(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.article(t, "widget", "")
	o := f.order(t, "po-1")

	_, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestUpdateLine_OutOfStock(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 2)
	o := f.order(t, "po-1")

	_, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, 3)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got: %v", err)
	}
	if errors.Is(err, domain.ErrInsufficientStock) {
		t.Error("stock ledger error leaked through the order engine")
	}

	if q := f.quantity(t, a.ID); q != 2 {
		t.Errorf("expected stock 2, got %d", q)
	}
	if q := f.lineQuantity(t, o.ID, a.ID); q != 0 {
		t.Errorf("expected no line, got quantity %d", q)
	}
	trail, _ := f.stock.AuditTrail(context.Background(), a.ID)
	if len(trail) != 1 {
		t.Errorf("expected only the initial audit entry, got %d", len(trail))
	}
}

func TestUpdateLine_Merge(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")

	for i := 0; i < 2; i++ {
		if _, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, 1); err != nil {
			t.Fatalf("update line: %v", err)
		}
	}

	lines, err := f.orders.Lines(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Quantity != 2 {
		t.Errorf("expected line quantity 2, got %d", lines[0].Quantity)
	}
}

func TestUpdateLine_PartialThenFullRelease(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")
	ctx := context.Background()

	steps := []struct {
		delta     int
		wantStock int
		wantLine  int
	}{
		{delta: 3, wantStock: 7, wantLine: 3},
		{delta: -1, wantStock: 8, wantLine: 2},
		{delta: -2, wantStock: 10, wantLine: 0},
	}
	for _, step := range steps {
		got, err := f.orders.UpdateLine(ctx, o.ID, a.ID, step.delta)
		if err != nil {
			t.Fatalf("update line %+d: %v", step.delta, err)
		}
		if got != step.wantLine {
			t.Errorf("update line %+d: expected line %d, got %d", step.delta, step.wantLine, got)
		}
		if q := f.quantity(t, a.ID); q != step.wantStock {
			t.Errorf("update line %+d: expected stock %d, got %d", step.delta, step.wantStock, q)
		}
	}

	lines, _ := f.orders.Lines(ctx, o.ID)
	if len(lines) != 0 {
		t.Errorf("expected line deleted, got %v", lines)
	}

	_, err := f.orders.UpdateLine(ctx, o.ID, a.ID, -1)
	if !errors.Is(err, domain.ErrInsufficientOrderQuantity) {
		t.Errorf("expected ErrInsufficientOrderQuantity, got: %v", err)
	}
	if q := f.quantity(t, a.ID); q != 10 {
		t.Errorf("expected stock 10, got %d", q)
	}
}

func TestUpdateLine_ReleaseMoreThanReserved(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")

	if _, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	_, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, -3)
	if !errors.Is(err, domain.ErrInsufficientOrderQuantity) {
		t.Fatalf("expected ErrInsufficientOrderQuantity, got: %v", err)
	}
	if q := f.lineQuantity(t, o.ID, a.ID); q != 2 {
		t.Errorf("expected line 2, got %d", q)
	}
	if q := f.quantity(t, a.ID); q != 8 {
		t.Errorf("expected stock 8, got %d", q)
	}
}

func TestCancelOrder_Conservation(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)
	b := f.stockedArticle(t, "gadget", 5)
	o := f.order(t, "po-1")
	ctx := context.Background()

	for _, d := range []int{3, 2, -1, 4} {
		if _, err := f.orders.UpdateLine(ctx, o.ID, a.ID, d); err != nil {
			t.Fatalf("update line %+d: %v", d, err)
		}
	}
	if _, err := f.orders.UpdateLine(ctx, o.ID, b.ID, 5); err != nil {
		t.Fatalf("update line: %v", err)
	}
	if q := f.quantity(t, a.ID) + f.lineQuantity(t, o.ID, a.ID); q != 10 {
		t.Errorf("expected stock plus reserved to stay 10, got %d", q)
	}

	if err := f.orders.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if q := f.quantity(t, a.ID); q != 10 {
		t.Errorf("expected stock 10, got %d", q)
	}
	if q := f.quantity(t, b.ID); q != 5 {
		t.Errorf("expected stock 5, got %d", q)
	}
	got, err := f.orders.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got != nil {
		t.Error("expected order to be deleted")
	}
	if _, err := f.orders.Lines(ctx, o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for lines of cancelled order, got: %v", err)
	}

	// init + four updates + one restore
	trail, _ := f.stock.AuditTrail(ctx, a.ID)
	if len(trail) != 6 {
		t.Errorf("expected 6 audit entries, got %d", len(trail))
	}
	if last := trail[len(trail)-1]; last.Quantity != 10 {
		t.Errorf("expected last audit quantity 10, got %d", last.Quantity)
	}
}

func TestCancelOrder_UnknownOrder(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := f.orders.CancelOrder(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

// failingDB makes DeleteOrder fail inside every write transaction.
type failingDB struct {
	port.DatabaseRepository
}

type failingTx struct {
	port.Tx
}

var errInjected = errors.New("injected failure")

func (d failingDB) Update(ctx context.Context, fn func(tx port.Tx) error) error {
	return d.DatabaseRepository.Update(ctx, func(tx port.Tx) error {
		return fn(failingTx{tx})
	})
}

func (failingTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return errInjected
}

func TestCancelOrder_RollsBackOnFailure(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	f := newFixture(t, mem, nil)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")
	if _, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	broken := NewOrderService(failingDB{mem}, NewStockLedger(failingDB{mem}), nil)
	if err := broken.CancelOrder(context.Background(), o.ID); !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got: %v", err)
	}

	if q := f.quantity(t, a.ID); q != 6 {
		t.Errorf("expected stock 6 after rollback, got %d", q)
	}
	if q := f.lineQuantity(t, o.ID, a.ID); q != 4 {
		t.Errorf("expected line 4 after rollback, got %d", q)
	}
}

func TestUpdateLine_NoOversell(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", initialStock)
	orders := make([]domain.PurchaseOrder, 5)
	for i := range orders {
		orders[i] = f.order(t, fmt.Sprintf("po-%d", i))
	}

	var successCount atomic.Int32
	var outOfStockCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := f.orders.UpdateLine(context.Background(), orders[id%len(orders)].ID, a.ID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrOutOfStock):
				outOfStockCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if outOfStockCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d out of stock, got %d", totalRequests-initialStock, outOfStockCount.Load())
	}
	if q := f.quantity(t, a.ID); q != 0 {
		t.Errorf("expected stock 0, got %d", q)
	}

	reserved := 0
	for _, o := range orders {
		reserved += f.lineQuantity(t, o.ID, a.ID)
	}
	if reserved != initialStock {
		t.Errorf("expected %d reserved, got %d", initialStock, reserved)
	}
}

func TestUpdateLine_ConcurrentMergeLosesNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 100)
	o := f.order(t, "po-1")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orders.UpdateLine(context.Background(), o.ID, a.ID, 1); err != nil {
				t.Errorf("update line: %v", err)
			}
		}()
	}
	wg.Wait()

	if q := f.lineQuantity(t, o.ID, a.ID); q != 40 {
		t.Errorf("expected line 40, got %d", q)
	}
	if q := f.quantity(t, a.ID); q != 60 {
		t.Errorf("expected stock 60, got %d", q)
	}
}

func TestUpdateLineOnce_DuplicateRequest(t *testing.T) {
	cache := newMockCacheRepo()
	f := newFixture(t, nil, cache)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")

	// First request
	if _, err := f.orders.UpdateLineOnce(context.Background(), "req-1", o.ID, a.ID, 1); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// Duplicate request with same requestID
	_, err := f.orders.UpdateLineOnce(context.Background(), "req-1", o.ID, a.ID, 1)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected duplicate request to match ErrDuplicate, got: %v", err)
	}

	// Stock should only be decremented once
	if q := f.quantity(t, a.ID); q != 9 {
		t.Errorf("expected stock 9, got %d", q)
	}
}

func TestUpdateLineOnce_FailureReleasesRequestID(t *testing.T) {
	cache := newMockCacheRepo()
	f := newFixture(t, nil, cache)
	a := f.stockedArticle(t, "widget", 0)
	o := f.order(t, "po-1")
	ctx := context.Background()

	_, err := f.orders.UpdateLineOnce(ctx, "req-1", o.ID, a.ID, 1)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got: %v", err)
	}

	if _, err := f.stock.Adjust(ctx, a.ID, 1); err != nil {
		t.Fatalf("restock: %v", err)
	}

	if _, err := f.orders.UpdateLineOnce(ctx, "req-1", o.ID, a.ID, 1); err != nil {
		t.Errorf("expected retry with same request id to succeed, got: %v", err)
	}
}

func TestUpdateLineOnce_WithoutCache(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.stockedArticle(t, "widget", 10)
	o := f.order(t, "po-1")

	for i := 0; i < 2; i++ {
		if _, err := f.orders.UpdateLineOnce(context.Background(), "req-1", o.ID, a.ID, 1); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if q := f.lineQuantity(t, o.ID, a.ID); q != 2 {
		t.Errorf("expected line 2 without idempotency store, got %d", q)
	}
}

func TestListOrders_NewestFirst(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.order(t, "po-1")
	f.clock.Advance(time.Minute)
	f.order(t, "po-2")

	orders, err := f.orders.ListOrders(context.Background())
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 2 || orders[0].Reference != "po-2" {
		t.Errorf("expected po-2 first, got %+v", orders)
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}
