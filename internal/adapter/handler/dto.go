package handler

import (
	"time"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/core/service"
)

// Amounts travel as base-10 strings; they exceed 64 bits.

type CreatePropertyRequest struct {
	Name       string   `json:"name" validate:"required,max=255"`
	Image      string   `json:"image" validate:"required,max=2048"`
	Identifier string   `json:"identifier" validate:"required,max=64"`
	Valuation  string   `json:"valuation" validate:"required,numeric"`
	Docs       []string `json:"docs" validate:"required,min=1,max=9999,dive,required"`
}

type CreatePropertyResponse struct {
	PropertyID uint64    `json:"property_id"`
	Sagas      []SagaDTO `json:"sagas"`
}

type SetValuationRequest struct {
	PropertyID uint64 `json:"property_id"`
	Valuation  string `json:"valuation" validate:"required,numeric"`
}

type DepositRequest struct {
	SplitID uint64 `json:"split_id"`
	Deposit string `json:"deposit" validate:"required,numeric"`
}

type SplitRequest struct {
	SplitID uint64 `json:"split_id"`
}

type AcceptOfferRequest struct {
	SplitID uint64 `json:"split_id"`
	OfferID uint64 `json:"offer_id"`
}

type OwnerRequest struct {
	NewOwner string `json:"new_owner" validate:"required,max=255"`
}

type MintCallbackRequest struct {
	Success bool                `json:"success"`
	Token   *domain.TokenHandle `json:"token" validate:"required_if=Success true"`
	Reason  string              `json:"reason"`
}

type TransferCallbackRequest struct {
	Success  bool   `json:"success"`
	NewOwner string `json:"new_owner" validate:"required_if=Success true"`
	Reason   string `json:"reason"`
}

type Empty struct{}

type PropertyDTO struct {
	ID         uint64     `json:"id"`
	Name       string     `json:"name"`
	Image      string     `json:"image"`
	Identifier string     `json:"identifier"`
	Valuation  string     `json:"valuation"`
	SplitIDs   []uint64   `json:"split_ids"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	Splits     []SplitDTO `json:"splits"`
}

type SplitDTO struct {
	ID              uint64               `json:"id"`
	SplitIdentifier string               `json:"split_identifier"`
	PropertyID      uint64               `json:"property_id"`
	TokenID         string               `json:"token_id"`
	TokenMetadata   domain.TokenMetadata `json:"token_metadata"`
	Owner           string               `json:"owner"`
	LastSaleDate    int64                `json:"last_sale_date"`
	OnSale          bool                 `json:"on_sale"`
	TransferPending bool                 `json:"transfer_pending"`
}

type OfferDTO struct {
	ID        uint64    `json:"id"`
	SplitID   uint64    `json:"split_id"`
	Value     string    `json:"value"`
	Buyer     string    `json:"buyer"`
	TokenID   string    `json:"token_id"`
	CreatedAt time.Time `json:"created_at"`
}

type SagaDTO struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	CorrelationKey string    `json:"correlation_key"`
	Attempts       int       `json:"attempts"`
	Reason         string    `json:"reason,omitempty"`
	SplitID        uint64    `json:"split_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	DeadlineAt     time.Time `json:"deadline_at"`
}

type LedgerEntryDTO struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Amount    string    `json:"amount"`
	Kind      string    `json:"kind"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"created_at"`
}

type PropertiesResponse struct {
	Properties []PropertyDTO `json:"properties"`
}

type SplitsResponse struct {
	Splits []SplitDTO `json:"splits"`
}

type OffersResponse struct {
	Offers []OfferDTO `json:"offers"`
}

type LedgerResponse struct {
	Entries []LedgerEntryDTO `json:"entries"`
}

type SplitValueResponse struct {
	SplitID uint64 `json:"split_id"`
	Value   string `json:"value"`
}

func toSplitDTO(s domain.Split) SplitDTO {
	return SplitDTO{
		ID:              s.ID,
		SplitIdentifier: s.SplitIdentifier,
		PropertyID:      s.PropertyID,
		TokenID:         s.TokenID,
		TokenMetadata:   s.TokenMetadata,
		Owner:           s.Owner,
		LastSaleDate:    s.LastSaleDate,
		OnSale:          s.OnSale,
		TransferPending: s.TransferPending(),
	}
}

func toSplitDTOs(splits []domain.Split) []SplitDTO {
	out := make([]SplitDTO, 0, len(splits))
	for _, s := range splits {
		out = append(out, toSplitDTO(s))
	}
	return out
}

func toPropertyDTOs(props []domain.PropertyWithSplits) []PropertyDTO {
	out := make([]PropertyDTO, 0, len(props))
	for _, p := range props {
		out = append(out, PropertyDTO{
			ID:         p.ID,
			Name:       p.Name,
			Image:      p.Image,
			Identifier: p.Identifier,
			Valuation:  p.Valuation.String(),
			SplitIDs:   p.SplitIDs,
			CreatedBy:  p.CreatedBy,
			CreatedAt:  p.CreatedAt,
			Splits:     toSplitDTOs(p.Splits),
		})
	}
	return out
}

func toOfferDTO(o domain.PurchaseOffer) OfferDTO {
	return OfferDTO{
		ID:        o.ID,
		SplitID:   o.SplitID,
		Value:     o.Value.String(),
		Buyer:     o.Buyer,
		TokenID:   o.TokenID,
		CreatedAt: o.CreatedAt,
	}
}

func toOfferDTOs(offers []domain.PurchaseOffer) []OfferDTO {
	out := make([]OfferDTO, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferDTO(o))
	}
	return out
}

func toSagaDTO(s domain.Saga) SagaDTO {
	dto := SagaDTO{
		ID:             s.ID.String(),
		Kind:           string(s.Kind),
		Status:         string(s.Status),
		CorrelationKey: s.CorrelationKey,
		Attempts:       s.Attempts,
		Reason:         s.Reason,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		DeadlineAt:     s.DeadlineAt,
	}
	switch {
	case s.Mint != nil:
		dto.SplitID = s.Mint.SplitID
	case s.Transfer != nil:
		dto.SplitID = s.Transfer.SplitID
	}
	return dto
}

func toCreatePropertyResponse(res *service.CreatePropertyResult) CreatePropertyResponse {
	out := CreatePropertyResponse{PropertyID: res.PropertyID, Sagas: make([]SagaDTO, 0, len(res.Sagas))}
	for _, s := range res.Sagas {
		out.Sagas = append(out.Sagas, toSagaDTO(s))
	}
	return out
}

func toLedgerDTOs(entries []domain.LedgerEntry) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryDTO{
			ID:        e.ID.String(),
			Account:   e.Account,
			Amount:    e.Amount.String(),
			Kind:      string(e.Kind),
			Memo:      e.Memo,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func (r CreatePropertyRequest) toInput() (service.CreatePropertyInput, error) {
	valuation, err := domain.ParseAmount(r.Valuation)
	if err != nil {
		return service.CreatePropertyInput{}, err
	}
	return service.CreatePropertyInput{
		Name:       r.Name,
		Image:      r.Image,
		Identifier: r.Identifier,
		Valuation:  valuation,
		Docs:       r.Docs,
	}, nil
}
