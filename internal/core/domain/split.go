package domain

import "github.com/google/uuid"

type TokenMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Media       string `json:"media,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Copies      uint64 `json:"copies,omitempty"`
}

type TokenHandle struct {
	TokenID  string        `json:"token_id"`
	Metadata TokenMetadata `json:"metadata"`
}

type Split struct {
	ID              uint64
	SplitIdentifier string
	PropertyID      uint64
	TokenID         string
	TokenMetadata   TokenMetadata
	Owner           string
	LastSaleDate    int64 // unix millis, 0 until the primary sale completes
	OnSale          bool
	PendingSaga     uuid.UUID
}

func (s Split) PrimarySalePending() bool {
	return s.LastSaleDate == 0
}

func (s Split) TransferPending() bool {
	return s.PendingSaga != uuid.Nil
}

// Seller is the account allowed to list or sell the split: the marketplace
// owner until the primary sale completes, the split owner afterwards.
func (s Split) Seller(marketplaceOwner string) string {
	if s.PrimarySalePending() {
		return marketplaceOwner
	}
	return s.Owner
}
