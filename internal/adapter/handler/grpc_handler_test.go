package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/split-market/internal/core/domain"
)

type grpcClient struct {
	t    *testing.T
	conn *grpc.ClientConn
}

func newGRPCClient(t *testing.T, f *fixture) *grpcClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(f.authn.UnaryInterceptor))
	NewGRPCHandler(f.market).Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &grpcClient{t: t, conn: conn}
}

func (c *grpcClient) call(token, method string, in, out any) error {
	ctx := context.Background()
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	return c.conn.Invoke(ctx, "/"+grpcServiceName+"/"+method, in, out)
}

func TestGRPCMarketplace(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)
	owner := f.userToken(testOwner)

	var created CreatePropertyResponse
	err := client.call("", "CreateProperty", createPropertyBody(2), &created)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	err = client.call("not-a-jwt", "CreateProperty", createPropertyBody(2), &created)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := createPropertyBody(2)
	bad.Valuation = "-5"
	err = client.call(owner, "CreateProperty", bad, &created)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	require.NoError(t, client.call(owner, "CreateProperty", createPropertyBody(2), &created))
	require.Len(t, created.Sagas, 2)

	ctx := context.Background()
	for i, s := range created.Sagas {
		id := mustUUID(t, s.ID)
		_, err := f.market.OnMintCompleted(ctx, domain.RuntimeCaller(), id, domain.TokenHandle{TokenID: []string{"t-a", "t-b"}[i]})
		require.NoError(t, err)
	}

	var props PropertiesResponse
	require.NoError(t, client.call("", "GetProperties", &Empty{}, &props))
	require.Len(t, props.Properties, 1)
	assert.Len(t, props.Properties[0].Splits, 2)

	var split SplitDTO
	require.NoError(t, client.call(owner, "PlaceOnSale", &SplitRequest{SplitID: 1}, &split))
	assert.True(t, split.OnSale)

	var onSale SplitsResponse
	require.NoError(t, client.call("", "GetSplitsOnSale", &Empty{}, &onSale))
	assert.Len(t, onSale.Splits, 1)

	var offer OfferDTO
	err = client.call(f.userToken("bob"), "MakeOffer", &DepositRequest{SplitID: 1, Deposit: "1"}, &offer)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	err = client.call(f.userToken("bob"), "MakeOffer", &DepositRequest{SplitID: 42, Deposit: "600000"}, &offer)
	assert.Equal(t, codes.NotFound, status.Code(err))
	require.NoError(t, client.call(f.userToken("bob"), "MakeOffer", &DepositRequest{SplitID: 1, Deposit: "600000"}, &offer))
	assert.Equal(t, "600000", offer.Value)

	var offers OffersResponse
	require.NoError(t, client.call("", "GetSplitOffers", &SplitRequest{SplitID: 1}, &offers))
	assert.Len(t, offers.Offers, 1)

	var saga SagaDTO
	require.NoError(t, client.call(owner, "AcceptOffer", &AcceptOfferRequest{SplitID: 1, OfferID: 1}, &saga))
	assert.Equal(t, "transfer", saga.Kind)

	err = client.call(f.userToken("carol"), "BuyFromSale", &DepositRequest{SplitID: 1, Deposit: "600000"}, &saga)
	assert.Equal(t, codes.Aborted, status.Code(err), "transfer pending")

	var empty Empty
	err = client.call(f.userToken("bob"), "SetValuation", &SetValuationRequest{PropertyID: 1, Valuation: "10"}, &empty)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	require.NoError(t, client.call(owner, "SetValuation", &SetValuationRequest{PropertyID: 1, Valuation: "10"}, &empty))
}
