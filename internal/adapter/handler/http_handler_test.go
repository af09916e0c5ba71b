package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

func newTestServices() Services {
	db := storage.NewMemoryAdapter()
	stock := service.NewStockLedger(db)
	prices := service.NewPriceLedger(db, nil)
	return Services{
		Catalog:    service.NewCatalogService(db, service.NamedDefaultCategory("uncategorized"), prices, stock),
		Prices:     prices,
		Taxes:      service.NewTaxLedger(db),
		Stock:      stock,
		Orders:     service.NewOrderService(db, stock, nil),
		Aggregator: service.NewOrderAggregator(db, service.PriceAtOrderCreation),
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewHTTPHandler(newTestServices(), logger, 3).Router()
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/health", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestOrderFlow(t *testing.T) {
	r := newTestRouter(t)

	expectStatus(t, do(t, r, http.MethodPost, "/api/categories", gin.H{"name": "Electronics"}), http.StatusCreated)
	expectStatus(t, do(t, r, http.MethodPost, "/api/taxes", gin.H{"reference": "vat-21", "rate": "0.21"}), http.StatusCreated)
	expectStatus(t, do(t, r, http.MethodPost, "/api/categories/electronics/taxes",
		gin.H{"tax_reference": "vat-21", "valid_from": "2010-01-01T00:00:00Z"}), http.StatusCreated)

	w := do(t, r, http.MethodPost, "/api/articles", gin.H{"reference": "cable", "name": "Cable", "category": "electronics"})
	expectStatus(t, w, http.StatusCreated)
	article := decode[ArticleResponse](t, w)

	expectStatus(t, do(t, r, http.MethodPost, "/api/articles/"+article.ID+"/prices", gin.H{"price": "14.44"}), http.StatusCreated)
	expectStatus(t, do(t, r, http.MethodPost, "/api/articles/"+article.ID+"/stock", gin.H{"quantity": 10}), http.StatusCreated)

	w = do(t, r, http.MethodPost, "/api/orders", gin.H{"reference": "po-1", "created_by": "alice"})
	expectStatus(t, w, http.StatusCreated)
	order := decode[OrderResponse](t, w)

	w = do(t, r, http.MethodPost, "/api/orders/"+order.ID+"/lines", gin.H{"article_id": article.ID, "delta": 3})
	expectStatus(t, w, http.StatusOK)
	if line := decode[LineResponse](t, w); line.Quantity != 3 {
		t.Errorf("expected line quantity 3, got %d", line.Quantity)
	}

	w = do(t, r, http.MethodGet, "/api/orders/"+order.ID+"/summary", nil)
	expectStatus(t, w, http.StatusOK)
	summary := decode[SummaryResponse](t, w)
	if summary.TotalPreTax.String() != "43.32" {
		t.Errorf("expected pre-tax 43.32, got %s", summary.TotalPreTax)
	}
	if summary.TotalTaxed.String() != "52.4172" {
		t.Errorf("expected taxed 52.4172, got %s", summary.TotalTaxed)
	}

	w = do(t, r, http.MethodGet, "/api/articles/"+article.ID, nil)
	expectStatus(t, w, http.StatusOK)
	details := decode[ArticleDetailsResponse](t, w)
	if details.Quantity == nil || *details.Quantity != 7 {
		t.Errorf("expected quantity 7, got %v", details.Quantity)
	}

	expectStatus(t, do(t, r, http.MethodDelete, "/api/orders/"+order.ID, nil), http.StatusNoContent)
	expectStatus(t, do(t, r, http.MethodGet, "/api/orders/"+order.ID, nil), http.StatusNotFound)

	w = do(t, r, http.MethodGet, "/api/articles/"+article.ID+"/stock/audit", nil)
	expectStatus(t, w, http.StatusOK)
	trail := decode[[]AuditEntryResponse](t, w)
	if len(trail) != 3 || trail[2].Quantity != 10 {
		t.Errorf("unexpected audit trail: %+v", trail)
	}
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/articles", gin.H{"reference": "widget", "name": "Widget"})
	expectStatus(t, w, http.StatusCreated)
	article := decode[ArticleResponse](t, w)
	expectStatus(t, do(t, r, http.MethodPost, "/api/articles/"+article.ID+"/stock", gin.H{"quantity": 1}), http.StatusCreated)

	w = do(t, r, http.MethodPost, "/api/orders", gin.H{"reference": "po-1", "created_by": "alice"})
	order := decode[OrderResponse](t, w)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad slug", http.MethodPost, "/api/orders", gin.H{"reference": "po 2", "created_by": "bob"}, http.StatusBadRequest},
		{"duplicate order", http.MethodPost, "/api/orders", gin.H{"reference": "PO-1", "created_by": "bob"}, http.StatusConflict},
		{"duplicate stock", http.MethodPost, "/api/articles/" + article.ID + "/stock", gin.H{"quantity": 1}, http.StatusConflict},
		{"sold out", http.MethodPost, "/api/orders/" + order.ID + "/lines", gin.H{"article_id": article.ID, "delta": 2}, http.StatusGone},
		{"over release", http.MethodPost, "/api/orders/" + order.ID + "/lines", gin.H{"article_id": article.ID, "delta": -1}, http.StatusConflict},
		{"protected article", http.MethodDelete, "/api/articles/" + article.ID, nil, http.StatusConflict},
		{"negative price", http.MethodPost, "/api/articles/" + article.ID + "/prices", gin.H{"price": "-1"}, http.StatusBadRequest},
		{"unknown article", http.MethodGet, "/api/articles/00000000-0000-0000-0000-000000000001", nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/api/articles/nope", nil, http.StatusBadRequest},
		{"untaxed category", http.MethodGet, "/api/categories/uncategorized/tax", nil, http.StatusNotFound},
		{"empty summary", http.MethodGet, "/api/orders/" + order.ID + "/summary", nil, http.StatusNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := do(t, r, c.method, c.path, c.body)
			if w.Code != c.want {
				t.Errorf("expected status %d, got %d: %s", c.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestDefineTax_Idempotent(t *testing.T) {
	r := newTestRouter(t)

	expectStatus(t, do(t, r, http.MethodPost, "/api/taxes", gin.H{"reference": "vat", "rate": "0.2"}), http.StatusCreated)
	expectStatus(t, do(t, r, http.MethodPost, "/api/taxes", gin.H{"reference": "vat", "rate": "0.2"}), http.StatusOK)
	expectStatus(t, do(t, r, http.MethodPost, "/api/taxes", gin.H{"reference": "vat", "rate": "0.1"}), http.StatusConflict)
}
