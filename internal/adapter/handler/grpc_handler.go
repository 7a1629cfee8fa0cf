package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/split-market/internal/adapter/auth"
	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/core/service"
)

const grpcServiceName = "splitmarket.v1.Marketplace"

// jsonCodec carries the gRPC API as JSON. Clients select it with the
// "json" content subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type MarketplaceServer interface {
	CreateProperty(context.Context, *CreatePropertyRequest) (*CreatePropertyResponse, error)
	SetValuation(context.Context, *SetValuationRequest) (*Empty, error)
	MakeOffer(context.Context, *DepositRequest) (*OfferDTO, error)
	AcceptOffer(context.Context, *AcceptOfferRequest) (*SagaDTO, error)
	PlaceOnSale(context.Context, *SplitRequest) (*SplitDTO, error)
	BuyFromSale(context.Context, *DepositRequest) (*SagaDTO, error)
	GetProperties(context.Context, *Empty) (*PropertiesResponse, error)
	GetSplitOffers(context.Context, *SplitRequest) (*OffersResponse, error)
	GetSplitsOnSale(context.Context, *Empty) (*SplitsResponse, error)
}

// unary adapts a typed method to grpc's untyped handler signature.
func unary[Req, Resp any](name string, call func(MarketplaceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(MarketplaceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + grpcServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var MarketplaceServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*MarketplaceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateProperty", MarketplaceServer.CreateProperty),
		unary("SetValuation", MarketplaceServer.SetValuation),
		unary("MakeOffer", MarketplaceServer.MakeOffer),
		unary("AcceptOffer", MarketplaceServer.AcceptOffer),
		unary("PlaceOnSale", MarketplaceServer.PlaceOnSale),
		unary("BuyFromSale", MarketplaceServer.BuyFromSale),
		unary("GetProperties", MarketplaceServer.GetProperties),
		unary("GetSplitOffers", MarketplaceServer.GetSplitOffers),
		unary("GetSplitsOnSale", MarketplaceServer.GetSplitsOnSale),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "splitmarket/v1/marketplace",
}

type GRPCHandler struct {
	market *service.Marketplace
}

var _ MarketplaceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(market *service.Marketplace) *GRPCHandler {
	return &GRPCHandler{market: market}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	s.RegisterService(&MarketplaceServiceDesc, h)
}

func (h *GRPCHandler) CreateProperty(ctx context.Context, req *CreatePropertyRequest) (*CreatePropertyResponse, error) {
	in, err := req.toInput()
	if err != nil {
		return nil, grpcError(err)
	}
	res, err := h.market.CreateProperty(ctx, auth.CallerFromContext(ctx), in)
	if err != nil {
		return nil, grpcError(err)
	}
	out := toCreatePropertyResponse(res)
	return &out, nil
}

func (h *GRPCHandler) SetValuation(ctx context.Context, req *SetValuationRequest) (*Empty, error) {
	value, err := domain.ParseAmount(req.Valuation)
	if err != nil {
		return nil, grpcError(err)
	}
	if err := h.market.SetValuation(ctx, auth.CallerFromContext(ctx), req.PropertyID, value); err != nil {
		return nil, grpcError(err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) MakeOffer(ctx context.Context, req *DepositRequest) (*OfferDTO, error) {
	deposit, err := domain.ParseAmount(req.Deposit)
	if err != nil {
		return nil, grpcError(err)
	}
	offer, err := h.market.MakeOffer(ctx, auth.CallerFromContext(ctx), req.SplitID, deposit)
	if err != nil {
		return nil, grpcError(err)
	}
	out := toOfferDTO(*offer)
	return &out, nil
}

func (h *GRPCHandler) AcceptOffer(ctx context.Context, req *AcceptOfferRequest) (*SagaDTO, error) {
	saga, err := h.market.AcceptOffer(ctx, auth.CallerFromContext(ctx), req.SplitID, req.OfferID)
	if err != nil {
		return nil, grpcError(err)
	}
	out := toSagaDTO(*saga)
	return &out, nil
}

func (h *GRPCHandler) PlaceOnSale(ctx context.Context, req *SplitRequest) (*SplitDTO, error) {
	split, err := h.market.PlaceOnSale(ctx, auth.CallerFromContext(ctx), req.SplitID)
	if err != nil {
		return nil, grpcError(err)
	}
	out := toSplitDTO(*split)
	return &out, nil
}

func (h *GRPCHandler) BuyFromSale(ctx context.Context, req *DepositRequest) (*SagaDTO, error) {
	deposit, err := domain.ParseAmount(req.Deposit)
	if err != nil {
		return nil, grpcError(err)
	}
	saga, err := h.market.BuyFromSale(ctx, auth.CallerFromContext(ctx), req.SplitID, deposit)
	if err != nil {
		return nil, grpcError(err)
	}
	out := toSagaDTO(*saga)
	return &out, nil
}

func (h *GRPCHandler) GetProperties(ctx context.Context, _ *Empty) (*PropertiesResponse, error) {
	props, err := h.market.GetProperties(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &PropertiesResponse{Properties: toPropertyDTOs(props)}, nil
}

func (h *GRPCHandler) GetSplitOffers(ctx context.Context, req *SplitRequest) (*OffersResponse, error) {
	offers, err := h.market.GetSplitOffers(ctx, req.SplitID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &OffersResponse{Offers: toOfferDTOs(offers)}, nil
}

func (h *GRPCHandler) GetSplitsOnSale(ctx context.Context, _ *Empty) (*SplitsResponse, error) {
	splits, err := h.market.GetSplitsOnSale(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &SplitsResponse{Splits: toSplitDTOs(splits)}, nil
}
