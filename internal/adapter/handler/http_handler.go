package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

// Services bundles the engine components exposed by the transports.
type Services struct {
	Catalog    *service.CatalogService
	Prices     *service.PriceLedger
	Taxes      *service.TaxLedger
	Stock      *service.StockLedger
	Orders     *service.OrderService
	Aggregator *service.OrderAggregator
}

type HTTPHandler struct {
	svc         Services
	logger      *logrus.Logger
	maxAttempts int
}

func NewHTTPHandler(svc Services, logger *logrus.Logger, maxAttempts int) *HTTPHandler {
	registerValidations()
	return &HTTPHandler{svc: svc, logger: logger, maxAttempts: maxAttempts}
}

var registerOnce sync.Once

func registerValidations() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
				return domain.IsSlug(fl.Field().String())
			})
		}
	})
}

// Router builds the gin engine serving the API.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/categories", h.CreateCategory)
	api.GET("/categories", h.ListCategories)
	api.POST("/categories/:name/taxes", h.AssignTax)
	api.GET("/categories/:name/tax", h.ResolveTax)

	api.POST("/taxes", h.DefineTax)
	api.GET("/taxes", h.ListTaxes)

	api.POST("/articles", h.CreateArticle)
	api.GET("/articles", h.ListArticles)
	api.GET("/articles/:id", h.ArticleDetails)
	api.PUT("/articles/:id", h.UpdateArticle)
	api.DELETE("/articles/:id", h.DeleteArticle)
	api.POST("/articles/:id/prices", h.RecordPrice)
	api.GET("/articles/:id/prices", h.PriceHistory)
	api.GET("/articles/:id/price", h.CurrentPrice)
	api.POST("/articles/:id/stock", h.InitStock)
	api.PATCH("/articles/:id/stock", h.AdjustStock)
	api.GET("/articles/:id/stock/audit", h.AuditTrail)

	api.POST("/orders", h.CreateOrder)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:id", h.GetOrder)
	api.DELETE("/orders/:id", h.CancelOrder)
	api.POST("/orders/:id/lines", h.UpdateLine)
	api.GET("/orders/:id/summary", h.OrderSummary)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) fail(c *gin.Context, funcName string, err error) {
	status, message := httpStatus(err)
	if status >= http.StatusInternalServerError {
		config.LogError(h.logger, "handler", funcName, c.Request.URL.Path, nil, err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(status, gin.H{"error": message, "detail": err.Error()})
}

func (h *HTTPHandler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
}

func (h *HTTPHandler) idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// asOf reads the optional "at" query parameter, defaulting to now.
func (h *HTTPHandler) asOf(c *gin.Context) (time.Time, bool) {
	raw := c.Query("at")
	if raw == "" {
		return time.Now(), true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid at, expected RFC 3339"})
		return time.Time{}, false
	}
	return at, true
}

// Categories and taxes

type createCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *HTTPHandler) CreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	category, err := h.svc.Catalog.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, "CreateCategory", err)
		return
	}
	c.JSON(http.StatusCreated, newCategoryResponse(category))
}

func (h *HTTPHandler) ListCategories(c *gin.Context) {
	categories, err := h.svc.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.fail(c, "ListCategories", err)
		return
	}
	resp := make([]CategoryResponse, 0, len(categories))
	for _, cat := range categories {
		resp = append(resp, newCategoryResponse(cat))
	}
	c.JSON(http.StatusOK, resp)
}

type defineTaxRequest struct {
	Reference string           `json:"reference" binding:"required,slug"`
	Rate      *decimal.Decimal `json:"rate" binding:"required"`
}

func (h *HTTPHandler) DefineTax(c *gin.Context) {
	var req defineTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	tax := domain.TaxDefinition{Reference: req.Reference, Rate: *req.Rate}
	created, err := h.svc.Taxes.DefineTax(c.Request.Context(), tax)
	if err != nil {
		h.fail(c, "DefineTax", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, TaxResponse{Reference: tax.Reference, Rate: tax.Rate})
}

func (h *HTTPHandler) ListTaxes(c *gin.Context) {
	taxes, err := h.svc.Taxes.ListTaxes(c.Request.Context())
	if err != nil {
		h.fail(c, "ListTaxes", err)
		return
	}
	resp := make([]TaxResponse, 0, len(taxes))
	for _, t := range taxes {
		resp = append(resp, TaxResponse{Reference: t.Reference, Rate: t.Rate})
	}
	c.JSON(http.StatusOK, resp)
}

type assignTaxRequest struct {
	TaxReference string    `json:"tax_reference" binding:"required,slug"`
	ValidFrom    time.Time `json:"valid_from" binding:"required"`
}

func (h *HTTPHandler) AssignTax(c *gin.Context) {
	var req assignTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	assignment, err := h.svc.Taxes.AssignTax(c.Request.Context(), c.Param("name"), req.TaxReference, req.ValidFrom)
	if err != nil {
		h.fail(c, "AssignTax", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"seq":           assignment.Seq,
		"tax_reference": assignment.TaxReference,
		"valid_from":    assignment.ValidFrom,
	})
}

func (h *HTTPHandler) ResolveTax(c *gin.Context) {
	at, ok := h.asOf(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	category, err := h.svc.Catalog.CategoryByName(ctx, c.Param("name"))
	if err != nil {
		h.fail(c, "ResolveTax", err)
		return
	}
	if category == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "detail": "unknown category"})
		return
	}

	resolved, err := h.svc.Taxes.ResolveTax(ctx, category.ID, at)
	if err != nil {
		h.fail(c, "ResolveTax", err)
		return
	}
	if resolved == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "detail": "no tax in effect"})
		return
	}
	c.JSON(http.StatusOK, newResolvedTaxResponse(*resolved))
}

// Articles

type articleRequest struct {
	Reference   string `json:"reference" binding:"omitempty,slug"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (r articleRequest) input() domain.ArticleInput {
	return domain.ArticleInput{
		Reference:   r.Reference,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
	}
}

func (h *HTTPHandler) CreateArticle(c *gin.Context) {
	var req articleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	article, err := h.svc.Catalog.CreateArticle(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, "CreateArticle", err)
		return
	}
	c.JSON(http.StatusCreated, newArticleResponse(article))
}

func (h *HTTPHandler) UpdateArticle(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req articleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	article, err := h.svc.Catalog.UpdateArticle(c.Request.Context(), id, req.input())
	if err != nil {
		h.fail(c, "UpdateArticle", err)
		return
	}
	c.JSON(http.StatusOK, newArticleResponse(article))
}

func (h *HTTPHandler) ListArticles(c *gin.Context) {
	articles, err := h.svc.Catalog.ListArticles(c.Request.Context())
	if err != nil {
		h.fail(c, "ListArticles", err)
		return
	}
	resp := make([]ArticleResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, newArticleResponse(a))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) ArticleDetails(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	view, err := h.svc.Catalog.ArticleDetails(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "ArticleDetails", err)
		return
	}
	c.JSON(http.StatusOK, newArticleDetailsResponse(*view))
}

func (h *HTTPHandler) DeleteArticle(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	if err := h.svc.Catalog.DeleteArticle(c.Request.Context(), id); err != nil {
		h.fail(c, "DeleteArticle", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Prices

type recordPriceRequest struct {
	Price *decimal.Decimal `json:"price" binding:"required"`
}

func (h *HTTPHandler) RecordPrice(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req recordPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	record, err := h.svc.Prices.RecordPrice(c.Request.Context(), id, *req.Price)
	if err != nil {
		h.fail(c, "RecordPrice", err)
		return
	}
	c.JSON(http.StatusCreated, newPriceResponse(record))
}

func (h *HTTPHandler) CurrentPrice(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	record, err := h.svc.Prices.CurrentPrice(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "CurrentPrice", err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "detail": "article has no price"})
		return
	}
	c.JSON(http.StatusOK, newPriceResponse(*record))
}

func (h *HTTPHandler) PriceHistory(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	history, err := h.svc.Prices.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "PriceHistory", err)
		return
	}
	resp := make([]PriceResponse, 0, len(history))
	for _, p := range history {
		resp = append(resp, newPriceResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

// Stock

type initStockRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

func (h *HTTPHandler) InitStock(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req initStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	record, err := withRetry(ctx, h.maxAttempts, func() (domain.StockRecord, error) {
		return h.svc.Stock.InitStock(ctx, id, *req.Quantity)
	})
	if err != nil {
		h.fail(c, "InitStock", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"article_id": record.ArticleID, "quantity": record.Quantity})
}

type adjustStockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (h *HTTPHandler) AdjustStock(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	quantity, err := withRetry(ctx, h.maxAttempts, func() (int, error) {
		return h.svc.Stock.Adjust(ctx, id, req.Delta)
	})
	if err != nil {
		h.fail(c, "AdjustStock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"article_id": id, "quantity": quantity})
}

func (h *HTTPHandler) AuditTrail(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	trail, err := h.svc.Stock.AuditTrail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "AuditTrail", err)
		return
	}
	resp := make([]AuditEntryResponse, 0, len(trail))
	for _, e := range trail {
		resp = append(resp, AuditEntryResponse{Seq: e.Seq, EventAt: e.EventAt, Quantity: e.Quantity})
	}
	c.JSON(http.StatusOK, resp)
}

// Orders

type createOrderRequest struct {
	Reference string `json:"reference" binding:"required,slug"`
	CreatedBy string `json:"created_by" binding:"required"`
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	order, err := h.svc.Orders.CreateOrder(c.Request.Context(), req.Reference, req.CreatedBy)
	if err != nil {
		h.fail(c, "CreateOrder", err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListOrders(c.Request.Context())
	if err != nil {
		h.fail(c, "ListOrders", err)
		return
	}
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	order, err := h.svc.Orders.GetOrder(ctx, id)
	if err != nil {
		h.fail(c, "GetOrder", err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	lines, err := h.svc.Orders.Lines(ctx, id)
	if err != nil {
		h.fail(c, "GetOrder", err)
		return
	}

	resp := newOrderResponse(*order)
	for _, l := range lines {
		resp.Lines = append(resp.Lines, LineResponse{ArticleID: l.ArticleID.String(), Quantity: l.Quantity})
	}
	c.JSON(http.StatusOK, resp)
}

type updateLineRequest struct {
	ArticleID string `json:"article_id" binding:"required,uuid"`
	Delta     int    `json:"delta" binding:"required"`
}

func (h *HTTPHandler) UpdateLine(c *gin.Context) {
	orderID, ok := h.idParam(c)
	if !ok {
		return
	}
	var req updateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	articleID := uuid.MustParse(req.ArticleID)
	requestID := c.GetHeader(idempotencyHeader)

	ctx := c.Request.Context()
	quantity, err := withRetry(ctx, h.maxAttempts, func() (int, error) {
		return h.svc.Orders.UpdateLineOnce(ctx, requestID, orderID, articleID, req.Delta)
	})
	if err != nil {
		h.fail(c, "UpdateLine", err)
		return
	}
	c.JSON(http.StatusOK, LineResponse{ArticleID: articleID.String(), Quantity: quantity})
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	err := retryErr(ctx, h.maxAttempts, func() error {
		return h.svc.Orders.CancelOrder(ctx, id)
	})
	if err != nil {
		h.fail(c, "CancelOrder", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) OrderSummary(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	summary, err := h.svc.Aggregator.Aggregate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "OrderSummary", err)
		return
	}
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "detail": "order missing or empty"})
		return
	}
	c.JSON(http.StatusOK, newSummaryResponse(*summary))
}
