package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/split-market/internal/adapter/storage"
	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

const (
	marketOwner = "market"
	sagaTimeout = time.Minute
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTokens records dispatched requests. Results are delivered by the test
// through the callback entry points, in whatever order it chooses.
type fakeTokens struct {
	mu          sync.Mutex
	mints       []port.MintRequest
	transfers   []port.TransferRequest
	mintErr     error
	transferErr error
}

func (f *fakeTokens) Mint(ctx context.Context, req port.MintRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return f.mintErr
	}
	f.mints = append(f.mints, req)
	return nil
}

func (f *fakeTokens) Transfer(ctx context.Context, req port.TransferRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return f.transferErr
	}
	f.transfers = append(f.transfers, req)
	return nil
}

func (f *fakeTokens) failMints(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintErr = err
}

func (f *fakeTokens) failTransfers(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferErr = err
}

func (f *fakeTokens) mintCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mints)
}

func (f *fakeTokens) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

func (f *fakeTokens) lastTransfer() port.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers[len(f.transfers)-1]
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	m      *Marketplace
	tokens *fakeTokens
	guard  port.CallbackGuard
	clock  *fakeClock
	logs   *logtest.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, storage.NewMemoryStore(), storage.NewMemoryGuard())
}

func newHarnessWith(t *testing.T, store port.Store, guard port.CallbackGuard) *harness {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		tokens: &fakeTokens{},
		guard:  guard,
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		logs:   hook,
	}
	h.m = NewMarketplace(store, h.tokens, guard, Options{
		SagaTimeout: sagaTimeout,
		MaxAttempts: 3,
		Clock:       h.clock.Now,
		Logger:      logger,
	})
	_, err := h.m.EnsureMarketplaceOwner(h.ctx, marketOwner)
	require.NoError(t, err)
	return h
}

func docs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("ipfs://doc-%d", i+1)
	}
	return out
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func (h *harness) createProperty(ident string, valuation int64, n int) *CreatePropertyResult {
	h.t.Helper()
	res, err := h.m.CreateProperty(h.ctx, domain.UserCaller(marketOwner), CreatePropertyInput{
		Name:       "Property " + ident,
		Image:      "ipfs://image-" + ident,
		Identifier: ident,
		Valuation:  amount(valuation),
		Docs:       docs(n),
	})
	require.NoError(h.t, err)
	return res
}

func (h *harness) completeMint(saga domain.Saga) *domain.Split {
	h.t.Helper()
	split, err := h.m.OnMintCompleted(h.ctx, domain.RuntimeCaller(), saga.ID, tokenFor(saga))
	require.NoError(h.t, err)
	return split
}

func tokenFor(saga domain.Saga) domain.TokenHandle {
	return domain.TokenHandle{
		TokenID: "tok-" + saga.Mint.SplitIdentifier,
		Metadata: domain.TokenMetadata{
			Title:  saga.Mint.SplitIdentifier,
			Media:  saga.Mint.ImageRef,
			Copies: 1,
		},
	}
}

// mintedProperty creates a property and completes every mint in order.
func (h *harness) mintedProperty(ident string, valuation int64, n int) []domain.Split {
	h.t.Helper()
	res := h.createProperty(ident, valuation, n)
	splits := make([]domain.Split, 0, n)
	for _, saga := range res.Sagas {
		splits = append(splits, *h.completeMint(saga))
	}
	return splits
}

func (h *harness) split(id uint64) domain.Split {
	h.t.Helper()
	for _, s := range h.allSplits() {
		if s.ID == id {
			return s
		}
	}
	h.t.Fatalf("split %d not found", id)
	return domain.Split{}
}

func (h *harness) allSplits() []domain.Split {
	h.t.Helper()
	props, err := h.m.GetProperties(h.ctx)
	require.NoError(h.t, err)
	var out []domain.Split
	for _, p := range props {
		out = append(out, p.Splits...)
	}
	return out
}

func (h *harness) saga(id uuid.UUID) domain.Saga {
	h.t.Helper()
	saga, err := h.m.GetSaga(h.ctx, id)
	require.NoError(h.t, err)
	return *saga
}

func (h *harness) sagas(status domain.SagaStatus) []domain.Saga {
	h.t.Helper()
	var out []domain.Saga
	err := h.m.shared.store.Atomically(h.ctx, func(tx port.Tx) error {
		var err error
		out, err = tx.ListSagas(status)
		return err
	})
	require.NoError(h.t, err)
	return out
}

func (h *harness) ledger(account string) []domain.LedgerEntry {
	h.t.Helper()
	entries, err := h.m.AccountLedger(h.ctx, account)
	require.NoError(h.t, err)
	return entries
}

func (h *harness) hold(id uuid.UUID) domain.EscrowHold {
	h.t.Helper()
	var hold *domain.EscrowHold
	err := h.m.shared.store.Atomically(h.ctx, func(tx port.Tx) error {
		var err error
		hold, err = tx.GetHold(id)
		return err
	})
	require.NoError(h.t, err)
	return *hold
}

func (h *harness) offers(splitID uint64) []domain.PurchaseOffer {
	h.t.Helper()
	offers, err := h.m.GetSplitOffers(h.ctx, splitID)
	require.NoError(h.t, err)
	return offers
}
