package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseOffer struct {
	ID        uint64
	SplitID   uint64
	Value     decimal.Decimal
	Buyer     string
	TokenID   string
	HoldID    uuid.UUID
	CreatedAt time.Time
}
