package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type CategoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newCategoryResponse(c domain.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID.String(), Name: c.Name}
}

type ArticleResponse struct {
	ID          string    `json:"id"`
	Reference   string    `json:"reference"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CategoryID  string    `json:"category_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func newArticleResponse(a domain.Article) ArticleResponse {
	return ArticleResponse{
		ID:          a.ID.String(),
		Reference:   a.Reference,
		Name:        a.Name,
		Description: a.Description,
		CategoryID:  a.CategoryID.String(),
		CreatedAt:   a.CreatedAt,
	}
}

type PriceResponse struct {
	Seq        int64           `json:"seq"`
	Price      decimal.Decimal `json:"price"`
	InsertedAt time.Time       `json:"inserted_at"`
}

func newPriceResponse(p domain.PriceRecord) PriceResponse {
	return PriceResponse{Seq: p.Seq, Price: p.Price, InsertedAt: p.InsertedAt}
}

type TaxResponse struct {
	Reference string          `json:"reference"`
	Rate      decimal.Decimal `json:"rate"`
	ValidFrom *time.Time      `json:"valid_from,omitempty"`
}

func newResolvedTaxResponse(r domain.ResolvedTax) TaxResponse {
	return TaxResponse{
		Reference: r.Assignment.TaxReference,
		Rate:      r.Rate,
		ValidFrom: &r.Assignment.ValidFrom,
	}
}

type ArticleDetailsResponse struct {
	ArticleResponse
	Category string         `json:"category"`
	Price    *PriceResponse `json:"price,omitempty"`
	Quantity *int           `json:"quantity,omitempty"`
	Tax      *TaxResponse   `json:"tax,omitempty"`
}

func newArticleDetailsResponse(v domain.ArticleView) ArticleDetailsResponse {
	resp := ArticleDetailsResponse{
		ArticleResponse: newArticleResponse(v.Article),
		Category:        v.Category,
		Quantity:        v.Quantity,
	}
	if v.Price != nil {
		p := newPriceResponse(*v.Price)
		resp.Price = &p
	}
	if v.Tax != nil {
		t := newResolvedTaxResponse(*v.Tax)
		resp.Tax = &t
	}
	return resp
}

type AuditEntryResponse struct {
	Seq      int64     `json:"seq"`
	EventAt  time.Time `json:"event_at"`
	Quantity int       `json:"quantity"`
}

type OrderResponse struct {
	ID        string         `json:"id"`
	Reference string         `json:"reference"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by"`
	Lines     []LineResponse `json:"lines,omitempty"`
}

func newOrderResponse(o domain.PurchaseOrder) OrderResponse {
	return OrderResponse{
		ID:        o.ID.String(),
		Reference: o.Reference,
		CreatedAt: o.CreatedAt,
		CreatedBy: o.CreatedBy,
	}
}

type LineResponse struct {
	ArticleID string `json:"article_id"`
	Quantity  int    `json:"quantity"`
}

type LineSummaryResponse struct {
	ArticleID        string          `json:"article_id"`
	ArticleReference string          `json:"article_reference"`
	Quantity         int             `json:"quantity"`
	Priced           bool            `json:"priced"`
	Price            decimal.Decimal `json:"price"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	PreTax           decimal.Decimal `json:"pre_tax"`
	Taxed            decimal.Decimal `json:"taxed"`
}

type SummaryResponse struct {
	Order       OrderResponse         `json:"order"`
	Lines       []LineSummaryResponse `json:"lines"`
	TotalPreTax decimal.Decimal       `json:"total_pre_tax"`
	TotalTaxed  decimal.Decimal       `json:"total_taxed"`
}

func newSummaryResponse(s domain.OrderSummary) SummaryResponse {
	resp := SummaryResponse{
		Order:       newOrderResponse(s.Order),
		TotalPreTax: s.TotalPreTax,
		TotalTaxed:  s.TotalTaxed,
	}
	for _, l := range s.Lines {
		resp.Lines = append(resp.Lines, LineSummaryResponse{
			ArticleID:        l.ArticleID.String(),
			ArticleReference: l.ArticleReference,
			Quantity:         l.Quantity,
			Priced:           l.Priced,
			Price:            l.Price,
			TaxRate:          l.TaxRate,
			PreTax:           l.PreTax,
			Taxed:            l.Taxed,
		})
	}
	return resp
}
