package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const orderServiceName = "stockledger.v1.OrderService"

type CreateOrderRequest struct {
	Reference string `json:"reference"`
	CreatedBy string `json:"created_by"`
}

type OrderReply struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

type UpdateLineRequest struct {
	RequestID string `json:"request_id,omitempty"`
	OrderID   string `json:"order_id"`
	ArticleID string `json:"article_id"`
	Delta     int    `json:"delta"`
}

type UpdateLineReply struct {
	Quantity int `json:"quantity"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderReply struct{}

type GetSummaryRequest struct {
	OrderID string `json:"order_id"`
}

type SummaryReply struct {
	Found   bool             `json:"found"`
	Summary *SummaryResponse `json:"summary,omitempty"`
}

// OrderServiceServer is the server API of the order service.
type OrderServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderReply, error)
	UpdateLine(context.Context, *UpdateLineRequest) (*UpdateLineReply, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderReply, error)
	GetSummary(context.Context, *GetSummaryRequest) (*SummaryReply, error)
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + orderServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler("CreateOrder", OrderServiceServer.CreateOrder)},
		{MethodName: "UpdateLine", Handler: unaryHandler("UpdateLine", OrderServiceServer.UpdateLine)},
		{MethodName: "CancelOrder", Handler: unaryHandler("CancelOrder", OrderServiceServer.CancelOrder)},
		{MethodName: "GetSummary", Handler: unaryHandler("GetSummary", OrderServiceServer.GetSummary)},
	},
	Streams: []grpc.StreamDesc{},
}

// OrderServiceClient calls the order service over a JSON-coded connection.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+orderServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderReply, error) {
	return invoke[OrderReply](ctx, c.cc, "CreateOrder", in, opts)
}

func (c *OrderServiceClient) UpdateLine(ctx context.Context, in *UpdateLineRequest, opts ...grpc.CallOption) (*UpdateLineReply, error) {
	return invoke[UpdateLineReply](ctx, c.cc, "UpdateLine", in, opts)
}

func (c *OrderServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderReply, error) {
	return invoke[CancelOrderReply](ctx, c.cc, "CancelOrder", in, opts)
}

func (c *OrderServiceClient) GetSummary(ctx context.Context, in *GetSummaryRequest, opts ...grpc.CallOption) (*SummaryReply, error) {
	return invoke[SummaryReply](ctx, c.cc, "GetSummary", in, opts)
}
