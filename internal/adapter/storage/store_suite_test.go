package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

var errAbort = errors.New("abort")

// runStoreSuite exercises the port.Store contract. Every backend must pass it.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) port.Store) {
	t.Run("Owner", func(t *testing.T) { testOwner(t, newStore(t)) })
	t.Run("PropertiesAndSplits", func(t *testing.T) { testPropertiesAndSplits(t, newStore(t)) })
	t.Run("Offers", func(t *testing.T) { testOffers(t, newStore(t)) })
	t.Run("Sagas", func(t *testing.T) { testSagas(t, newStore(t)) })
	t.Run("ResolvedSagaIsFinal", func(t *testing.T) { testResolvedSagaIsFinal(t, newStore(t)) })
	t.Run("EscrowAndLedger", func(t *testing.T) { testEscrowAndLedger(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

var baseTime = time.UnixMilli(1700000000000).UTC()

func seedProperty(t *testing.T, store port.Store, ident string) uint64 {
	t.Helper()
	var id uint64
	err := store.Atomically(context.Background(), func(tx port.Tx) error {
		var err error
		if id, err = tx.NextPropertyID(); err != nil {
			return err
		}
		return tx.InsertProperty(domain.Property{
			ID:         id,
			Name:       "Tower " + ident,
			Image:      "ipfs://image",
			Identifier: ident,
			Valuation:  decimal.NewFromInt(1_000_000),
			CreatedBy:  "market",
			CreatedAt:  baseTime,
		})
	})
	require.NoError(t, err)
	return id
}

func seedSplit(t *testing.T, store port.Store, propertyID uint64, ident, token string) uint64 {
	t.Helper()
	var id uint64
	err := store.Atomically(context.Background(), func(tx port.Tx) error {
		var err error
		if id, err = tx.NextSplitID(); err != nil {
			return err
		}
		return tx.InsertSplit(domain.Split{
			ID:              id,
			SplitIdentifier: ident,
			PropertyID:      propertyID,
			TokenID:         token,
			TokenMetadata:   domain.TokenMetadata{Title: ident, Copies: 1},
			Owner:           "market",
		})
	})
	require.NoError(t, err)
	return id
}

func testOwner(t *testing.T, store port.Store) {
	ctx := context.Background()

	err := store.Atomically(ctx, func(tx port.Tx) error {
		_, err := tx.MarketplaceOwner()
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, owner := range []string{"alice", "bob"} {
		require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
			return tx.SetMarketplaceOwner(owner)
		}))
	}

	var got string
	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		var err error
		got, err = tx.MarketplaceOwner()
		return err
	}))
	assert.Equal(t, "bob", got)
}

func testPropertiesAndSplits(t *testing.T, store port.Store) {
	ctx := context.Background()
	p1 := seedProperty(t, store, "AAA")
	p2 := seedProperty(t, store, "BBB")
	assert.Equal(t, p1+1, p2)

	s1 := seedSplit(t, store, p1, "AAA0001", "tok-1")
	s2 := seedSplit(t, store, p2, "BBB0001", "tok-2")
	s3 := seedSplit(t, store, p1, "AAA0002", "tok-3")

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		p, err := tx.GetProperty(p1)
		require.NoError(t, err)
		assert.Equal(t, []uint64{s1, s3}, p.SplitIDs)
		assert.Equal(t, "1000000", p.Valuation.String())
		assert.True(t, p.CreatedAt.Equal(baseTime))

		require.NoError(t, tx.UpdatePropertyValuation(p1, decimal.NewFromInt(42)))
		assert.ErrorIs(t, tx.UpdatePropertyValuation(999, decimal.NewFromInt(1)), domain.ErrNotFound)

		all, err := tx.ListProperties()
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "42", all[0].Valuation.String())
		assert.Equal(t, []uint64{s2}, all[1].SplitIDs)

		byToken, err := tx.GetSplitByToken("tok-2")
		require.NoError(t, err)
		assert.Equal(t, s2, byToken.ID)
		assert.Equal(t, "BBB0001", byToken.TokenMetadata.Title)

		_, err = tx.GetSplitByToken("missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetProperty(999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))

	err := store.Atomically(ctx, func(tx port.Tx) error {
		return tx.InsertSplit(domain.Split{ID: 100, PropertyID: 999, TokenID: "tok-x"})
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	pending := uuid.New()
	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		s, err := tx.GetSplit(s1)
		require.NoError(t, err)
		assert.False(t, s.OnSale)
		assert.False(t, s.TransferPending())

		s.Owner = "carol"
		s.OnSale = true
		s.LastSaleDate = baseTime.UnixMilli()
		s.PendingSaga = pending
		return tx.UpdateSplit(*s)
	}))

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		splits, err := tx.ListSplits()
		require.NoError(t, err)
		require.Len(t, splits, 3)
		got := splits[0]
		assert.Equal(t, "carol", got.Owner)
		assert.True(t, got.OnSale)
		assert.Equal(t, baseTime.UnixMilli(), got.LastSaleDate)
		assert.Equal(t, pending, got.PendingSaga)
		assert.Equal(t, uuid.Nil, splits[1].PendingSaga)
		return nil
	}))
}

func testOffers(t *testing.T, store port.Store) {
	ctx := context.Background()
	pid := seedProperty(t, store, "OFF")
	sid := seedSplit(t, store, pid, "OFF0001", "tok-off")

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		for i, buyer := range []string{"bob", "carol"} {
			err := tx.InsertOffer(domain.PurchaseOffer{
				ID:        uint64(i + 1),
				SplitID:   sid,
				Value:     decimal.NewFromInt(int64(100 * (i + 1))),
				Buyer:     buyer,
				TokenID:   "tok-off",
				HoldID:    uuid.New(),
				CreatedAt: baseTime,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		offers, err := tx.ListOffers(sid)
		require.NoError(t, err)
		require.Len(t, offers, 2)
		assert.Equal(t, uint64(1), offers[0].ID)
		assert.Equal(t, "carol", offers[1].Buyer)
		assert.Equal(t, "200", offers[1].Value.String())

		require.NoError(t, tx.ClearOffers(sid))
		offers, err = tx.ListOffers(sid)
		require.NoError(t, err)
		assert.Empty(t, offers)
		return nil
	}))
}

func testSagas(t *testing.T, store port.Store) {
	ctx := context.Background()
	mint := domain.Saga{
		ID:             uuid.New(),
		Kind:           domain.SagaKindMint,
		CorrelationKey: domain.MintCorrelationKey(1, "AAA0001"),
		Status:         domain.SagaStatusRequested,
		Attempts:       1,
		Mint:           &domain.MintContext{PropertyID: 1, SplitIdentifier: "AAA0001", Owner: "market"},
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
		DeadlineAt:     baseTime.Add(time.Minute),
	}
	hold := uuid.New()
	transfer := domain.Saga{
		ID:     uuid.New(),
		Kind:   domain.SagaKindTransfer,
		Status: domain.SagaStatusRequested,
		Transfer: &domain.TransferContext{
			SplitID: 1, TokenID: "tok-1", Seller: "market", NewOwner: "bob",
			HoldID: hold, OfferID: 3, Price: decimal.NewFromInt(333333),
		},
		CreatedAt:  baseTime.Add(time.Second),
		UpdatedAt:  baseTime.Add(time.Second),
		DeadlineAt: baseTime.Add(time.Minute),
	}
	transfer.CorrelationKey = domain.TransferCorrelationKey(1, "tok-1", transfer.ID)

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		if err := tx.InsertSaga(transfer); err != nil {
			return err
		}
		return tx.InsertSaga(mint)
	}))

	err := store.Atomically(ctx, func(tx port.Tx) error {
		dup := mint
		dup.ID = uuid.New()
		return tx.InsertSaga(dup)
	})
	assert.Error(t, err, "correlation keys are unique")

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		got, err := tx.FindSagaByCorrelation(mint.CorrelationKey)
		require.NoError(t, err)
		assert.Equal(t, mint.ID, got.ID)
		require.NotNil(t, got.Mint)
		assert.Equal(t, "AAA0001", got.Mint.SplitIdentifier)
		assert.Nil(t, got.Transfer)

		got, err = tx.GetSaga(transfer.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Transfer)
		assert.Equal(t, hold, got.Transfer.HoldID)
		assert.Equal(t, "333333", got.Transfer.Price.String())
		assert.True(t, got.DeadlineAt.Equal(transfer.DeadlineAt))

		requested, err := tx.ListSagas(domain.SagaStatusRequested)
		require.NoError(t, err)
		require.Len(t, requested, 2)
		assert.Equal(t, mint.ID, requested[0].ID, "ordered by creation")

		got.Status = domain.SagaStatusFailed
		got.Reason = "rejected"
		got.Attempts = 2
		require.NoError(t, tx.UpdateSaga(*got))

		_, err = tx.GetSaga(uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		failed, err := tx.ListSagas(domain.SagaStatusFailed)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "rejected", failed[0].Reason)
		assert.Equal(t, 2, failed[0].Attempts)
		return nil
	}))
}

func testResolvedSagaIsFinal(t *testing.T, store port.Store) {
	ctx := context.Background()
	saga := domain.Saga{
		ID:             uuid.New(),
		Kind:           domain.SagaKindMint,
		CorrelationKey: domain.MintCorrelationKey(2, "BBB0001"),
		Status:         domain.SagaStatusRequested,
		Attempts:       1,
		Mint:           &domain.MintContext{PropertyID: 2, SplitIdentifier: "BBB0001", Owner: "market"},
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
		DeadlineAt:     baseTime.Add(time.Minute),
	}
	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error { return tx.InsertSaga(saga) }))

	// A requested saga accepts an update that leaves every column as it was.
	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error { return tx.UpdateSaga(saga) }))

	stale := saga
	completed := saga
	completed.Status = domain.SagaStatusCompleted
	completed.UpdatedAt = baseTime.Add(time.Second)
	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error { return tx.UpdateSaga(completed) }))

	stale.Status = domain.SagaStatusFailed
	stale.Reason = "timed out"
	err := store.Atomically(ctx, func(tx port.Tx) error { return tx.UpdateSaga(stale) })
	assert.ErrorIs(t, err, domain.ErrSagaConflict)

	stale.Status = domain.SagaStatusRequested
	stale.Attempts = 2
	err = store.Atomically(ctx, func(tx port.Tx) error { return tx.UpdateSaga(stale) })
	assert.ErrorIs(t, err, domain.ErrSagaConflict)

	err = store.Atomically(ctx, func(tx port.Tx) error {
		missing := saga
		missing.ID = uuid.New()
		return tx.UpdateSaga(missing)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		got, err := tx.GetSaga(saga.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SagaStatusCompleted, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Empty(t, got.Reason)
		return nil
	}))
}

func testEscrowAndLedger(t *testing.T, store port.Store) {
	ctx := context.Background()
	hold := domain.EscrowHold{
		ID:        uuid.New(),
		SplitID:   7,
		OfferID:   1,
		Account:   "bob",
		Amount:    decimal.NewFromInt(500),
		Status:    domain.HoldStatusHeld,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		return tx.InsertHold(hold)
	}))

	saga := uuid.New()
	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		h, err := tx.GetHold(hold.ID)
		require.NoError(t, err)
		assert.Equal(t, "500", h.Amount.String())
		assert.True(t, h.Open())

		h.Status = domain.HoldStatusLocked
		h.SagaID = saga
		if err := tx.UpdateHold(*h); err != nil {
			return err
		}
		for _, e := range []domain.LedgerEntry{
			{ID: uuid.New(), Account: "alice", Amount: decimal.NewFromInt(400), Kind: domain.EntryKindPayout, HoldID: hold.ID, Memo: "sale", CreatedAt: baseTime},
			{ID: uuid.New(), Account: "bob", Amount: decimal.NewFromInt(100), Kind: domain.EntryKindRefund, HoldID: hold.ID, Memo: "excess", CreatedAt: baseTime},
			{ID: uuid.New(), Account: "alice", Amount: decimal.NewFromInt(5), Kind: domain.EntryKindPayout, Memo: "second", CreatedAt: baseTime},
		} {
			if err := tx.AppendEntry(e); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		h, err := tx.GetHold(hold.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.HoldStatusLocked, h.Status)
		assert.Equal(t, saga, h.SagaID)

		entries, err := tx.ListEntries("alice")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "sale", entries[0].Memo)
		assert.Equal(t, "second", entries[1].Memo)
		assert.Equal(t, domain.EntryKindPayout, entries[0].Kind)

		none, err := tx.ListEntries("nobody")
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = tx.GetHold(uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))
}

func testRollback(t *testing.T, store port.Store) {
	ctx := context.Background()
	err := store.Atomically(ctx, func(tx port.Tx) error {
		if err := tx.SetMarketplaceOwner("ghost"); err != nil {
			return err
		}
		if err := tx.InsertProperty(domain.Property{ID: 1, Identifier: "GHOST", Valuation: decimal.Zero, CreatedAt: baseTime}); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	require.NoError(t, store.Atomically(ctx, func(tx port.Tx) error {
		_, err := tx.MarketplaceOwner()
		assert.ErrorIs(t, err, domain.ErrNotFound)
		all, err := tx.ListProperties()
		require.NoError(t, err)
		assert.Empty(t, all)
		return nil
	}))
}
