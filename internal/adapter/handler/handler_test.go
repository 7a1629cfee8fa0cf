package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/split-market/internal/adapter/auth"
	"github.com/rl1809/split-market/internal/adapter/storage"
	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/core/service"
	"github.com/rl1809/split-market/internal/port"
)

const (
	testOwner  = "market"
	testSecret = "handler-test-secret-0123456789"
)

type recordingTokens struct {
	mu        sync.Mutex
	mints     []port.MintRequest
	transfers []port.TransferRequest
}

func (r *recordingTokens) Mint(ctx context.Context, req port.MintRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mints = append(r.mints, req)
	return nil
}

func (r *recordingTokens) Transfer(ctx context.Context, req port.TransferRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, req)
	return nil
}

type fixture struct {
	t      *testing.T
	market *service.Marketplace
	tokens *recordingTokens
	authn  *auth.Authenticator
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	tokens := &recordingTokens{}
	market := service.NewMarketplace(storage.NewMemoryStore(), tokens, storage.NewMemoryGuard(), service.Options{
		SagaTimeout: time.Minute,
		Logger:      logger,
	})
	_, err := market.EnsureMarketplaceOwner(context.Background(), testOwner)
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator(testSecret, "", time.Hour)
	require.NoError(t, err)

	return &fixture{
		t:      t,
		market: market,
		tokens: tokens,
		authn:  authn,
		router: NewHTTPHandler(market, logger).Routes(authn),
	}
}

func (f *fixture) token(account string, role domain.Role) string {
	f.t.Helper()
	tok, err := f.authn.Issue(account, role)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) userToken(account string) string {
	return f.token(account, domain.RoleUser)
}

func (f *fixture) runtimeToken() string {
	return f.token("token-service", domain.RoleRuntime)
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createPropertyBody(docs int) CreatePropertyRequest {
	req := CreatePropertyRequest{
		Name:       "Harbor Tower",
		Image:      "ipfs://harbor.png",
		Identifier: "HBR",
		Valuation:  "1000000",
	}
	for i := 0; i < docs; i++ {
		req.Docs = append(req.Docs, "ipfs://deed")
	}
	return req
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
