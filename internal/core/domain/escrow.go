package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "held"
	HoldStatusLocked   HoldStatus = "locked"
	HoldStatusSettled  HoldStatus = "settled"
	HoldStatusRefunded HoldStatus = "refunded"
)

type EscrowHold struct {
	ID        uuid.UUID
	SplitID   uint64
	OfferID   uint64 // 0 for direct purchases
	Account   string
	Amount    decimal.Decimal
	Status    HoldStatus
	SagaID    uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (h EscrowHold) Open() bool {
	return h.Status == HoldStatusHeld || h.Status == HoldStatusLocked
}

type EntryKind string

const (
	EntryKindPayout EntryKind = "payout"
	EntryKindRefund EntryKind = "refund"
)

type LedgerEntry struct {
	ID        uuid.UUID
	Account   string
	Amount    decimal.Decimal
	Kind      EntryKind
	HoldID    uuid.UUID
	Memo      string
	CreatedAt time.Time
}
