package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

// Marketplace is the inbound surface: every marketplace operation and both
// callback entry points, promoted from the component that owns them.
type Marketplace struct {
	*PropertyRegistry
	*SplitLedger
	*OfferBook
	*MintOrchestrator
	*TransferOrchestrator
	*Escrow
	*Reconciler

	shared *core
}

func NewMarketplace(store port.Store, tokens port.TokenService, guard port.CallbackGuard, opts Options) *Marketplace {
	c := newCore(store, tokens, guard, opts)

	escrow := &Escrow{c: c}
	ledger := &SplitLedger{c: c}
	mints := &MintOrchestrator{c: c, ledger: ledger}
	transfers := &TransferOrchestrator{c: c, ledger: ledger, escrow: escrow}
	registry := &PropertyRegistry{c: c, mints: mints}
	offers := &OfferBook{c: c, registry: registry, escrow: escrow, transfers: transfers}
	ledger.offers = offers

	return &Marketplace{
		PropertyRegistry:     registry,
		SplitLedger:          ledger,
		OfferBook:            offers,
		MintOrchestrator:     mints,
		TransferOrchestrator: transfers,
		Escrow:               escrow,
		Reconciler:           &Reconciler{c: c, mints: mints, transfers: transfers},
		shared:               c,
	}
}

// EnsureMarketplaceOwner seeds the owner on first start. An owner already in
// the store wins, since it may have been transferred since.
func (m *Marketplace) EnsureMarketplaceOwner(ctx context.Context, account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", fmt.Errorf("%w: marketplace owner is required", domain.ErrInvalidInput)
	}
	var owner string
	err := m.shared.atomically(ctx, func(tx port.Tx) error {
		current, err := tx.MarketplaceOwner()
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if current != "" {
			owner = current
			return nil
		}
		owner = account
		return tx.SetMarketplaceOwner(account)
	})
	return owner, err
}

func (m *Marketplace) MarketplaceOwner(ctx context.Context) (string, error) {
	var owner string
	err := m.shared.atomically(ctx, func(tx port.Tx) error {
		var err error
		owner, err = tx.MarketplaceOwner()
		return err
	})
	return owner, err
}

func (m *Marketplace) GetSaga(ctx context.Context, id uuid.UUID) (*domain.Saga, error) {
	var saga *domain.Saga
	err := m.shared.atomically(ctx, func(tx port.Tx) error {
		var err error
		saga, err = tx.GetSaga(id)
		if err != nil {
			return fmt.Errorf("saga %s: %w", id, err)
		}
		return nil
	})
	return saga, err
}
