package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/split-market/internal/core/domain"
)

type Store interface {
	// Atomically runs fn in one transaction; any error rolls back every write fn made
	Atomically(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the repository view inside one transaction. Lookups by id return
// domain.ErrNotFound when the record does not exist.
type Tx interface {
	MarketplaceOwner() (string, error)
	SetMarketplaceOwner(account string) error

	NextPropertyID() (uint64, error)
	InsertProperty(p domain.Property) error
	// GetProperty returns the property with SplitIDs ordered by split id
	GetProperty(id uint64) (*domain.Property, error)
	UpdatePropertyValuation(id uint64, valuation decimal.Decimal) error
	ListProperties() ([]domain.Property, error)

	NextSplitID() (uint64, error)
	// InsertSplit persists the split and links it to its property
	InsertSplit(s domain.Split) error
	GetSplit(id uint64) (*domain.Split, error)
	GetSplitByToken(tokenID string) (*domain.Split, error)
	UpdateSplit(s domain.Split) error
	ListSplits() ([]domain.Split, error)

	ListOffers(splitID uint64) ([]domain.PurchaseOffer, error)
	InsertOffer(o domain.PurchaseOffer) error
	ClearOffers(splitID uint64) error

	InsertSaga(s domain.Saga) error
	GetSaga(id uuid.UUID) (*domain.Saga, error)
	FindSagaByCorrelation(key string) (*domain.Saga, error)
	// UpdateSaga writes s only while the stored saga is still requested and
	// returns domain.ErrSagaConflict once another writer has resolved it.
	UpdateSaga(s domain.Saga) error
	ListSagas(status domain.SagaStatus) ([]domain.Saga, error)

	InsertHold(h domain.EscrowHold) error
	GetHold(id uuid.UUID) (*domain.EscrowHold, error)
	UpdateHold(h domain.EscrowHold) error

	AppendEntry(e domain.LedgerEntry) error
	ListEntries(account string) ([]domain.LedgerEntry, error)
}
