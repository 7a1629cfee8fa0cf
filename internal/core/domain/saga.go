package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SagaKind string

const (
	SagaKindMint     SagaKind = "mint"
	SagaKindTransfer SagaKind = "transfer"
)

type SagaStatus string

const (
	SagaStatusRequested SagaStatus = "requested"
	SagaStatusCompleted SagaStatus = "completed"
	SagaStatusFailed    SagaStatus = "failed"
)

type MintContext struct {
	PropertyID         uint64 `json:"property_id"`
	PropertyIdentifier string `json:"property_identifier"`
	SplitIdentifier    string `json:"split_identifier"`
	Owner              string `json:"owner"`
	DocRef             string `json:"doc_ref"`
	ImageRef           string `json:"image_ref"`
	SplitID            uint64 `json:"split_id,omitempty"`
}

type TransferContext struct {
	SplitID  uint64          `json:"split_id"`
	TokenID  string          `json:"token_id"`
	Seller   string          `json:"seller"`
	NewOwner string          `json:"new_owner"`
	HoldID   uuid.UUID       `json:"hold_id"`
	OfferID  uint64          `json:"offer_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
}

// Saga is the persisted record of one dispatched TokenService call. It is
// written before dispatch and consumed by exactly one callback.
type Saga struct {
	ID             uuid.UUID
	Kind           SagaKind
	CorrelationKey string
	Status         SagaStatus
	Attempts       int
	Reason         string
	Mint           *MintContext
	Transfer       *TransferContext
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeadlineAt     time.Time
}

func (s Saga) Pending() bool {
	return s.Status == SagaStatusRequested
}

func MintCorrelationKey(propertyID uint64, splitIdentifier string) string {
	return fmt.Sprintf("mint:%d:%s", propertyID, splitIdentifier)
}

func TransferCorrelationKey(splitID uint64, tokenID string, sagaID uuid.UUID) string {
	return fmt.Sprintf("transfer:%d:%s:%s", splitID, tokenID, sagaID)
}
