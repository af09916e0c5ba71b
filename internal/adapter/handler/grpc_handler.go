package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/config"
)

// compile-time interface check
var _ OrderServiceServer = (*GRPCHandler)(nil)

type GRPCHandler struct {
	svc         Services
	logger      *logrus.Logger
	maxAttempts int
}

func NewGRPCHandler(svc Services, logger *logrus.Logger, maxAttempts int) *GRPCHandler {
	return &GRPCHandler{svc: svc, logger: logger, maxAttempts: maxAttempts}
}

func (h *GRPCHandler) toStatus(funcName string, err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		config.LogError(h.logger, "grpc", funcName, "", nil, err)
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s", field)
	}
	return id, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderReply, error) {
	order, err := h.svc.Orders.CreateOrder(ctx, req.Reference, req.CreatedBy)
	if err != nil {
		return nil, h.toStatus("CreateOrder", err)
	}
	return &OrderReply{
		ID:        order.ID.String(),
		Reference: order.Reference,
		CreatedAt: order.CreatedAt,
		CreatedBy: order.CreatedBy,
	}, nil
}

func (h *GRPCHandler) UpdateLine(ctx context.Context, req *UpdateLineRequest) (*UpdateLineReply, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}
	articleID, err := parseID("article_id", req.ArticleID)
	if err != nil {
		return nil, err
	}

	quantity, err := withRetry(ctx, h.maxAttempts, func() (int, error) {
		return h.svc.Orders.UpdateLineOnce(ctx, req.RequestID, orderID, articleID, req.Delta)
	})
	if err != nil {
		return nil, h.toStatus("UpdateLine", err)
	}
	return &UpdateLineReply{Quantity: quantity}, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderReply, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}

	err = retryErr(ctx, h.maxAttempts, func() error {
		return h.svc.Orders.CancelOrder(ctx, orderID)
	})
	if err != nil {
		return nil, h.toStatus("CancelOrder", err)
	}
	return &CancelOrderReply{}, nil
}

func (h *GRPCHandler) GetSummary(ctx context.Context, req *GetSummaryRequest) (*SummaryReply, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}

	summary, err := h.svc.Aggregator.Aggregate(ctx, orderID)
	if err != nil {
		return nil, h.toStatus("GetSummary", err)
	}
	if summary == nil {
		return &SummaryReply{Found: false}, nil
	}
	resp := newSummaryResponse(*summary)
	return &SummaryReply{Found: true, Summary: &resp}, nil
}
