package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

// OfferBook keeps pending purchase offers per split. Each offer's value sits
// in escrow until the offer is accepted or voided.
type OfferBook struct {
	c         *core
	registry  *PropertyRegistry
	escrow    *Escrow
	transfers *TransferOrchestrator
}

func (b *OfferBook) MakeOffer(ctx context.Context, caller domain.Caller, splitID uint64, attached decimal.Decimal) (*domain.PurchaseOffer, error) {
	if err := domain.ValidateAmount(attached); err != nil {
		return nil, err
	}

	var offer domain.PurchaseOffer
	err := b.c.atomically(ctx, func(tx port.Tx) error {
		split, err := tx.GetSplit(splitID)
		if err != nil {
			return fmt.Errorf("split %d: %w", splitID, err)
		}
		if err := requireBuyer(tx, caller, *split); err != nil {
			return err
		}
		value, err := b.registry.splitValue(tx, *split)
		if err != nil {
			return err
		}
		if attached.LessThan(value) {
			return fmt.Errorf("%w: offer %s below split value %s", domain.ErrInsufficientDeposit, attached, value)
		}

		offers, err := tx.ListOffers(splitID)
		if err != nil {
			return err
		}
		var nextID uint64 = 1
		if n := len(offers); n > 0 {
			nextID = offers[n-1].ID + 1
		}

		hold, err := b.escrow.hold(tx, splitID, nextID, caller.Account, attached)
		if err != nil {
			return err
		}
		offer = domain.PurchaseOffer{
			ID:        nextID,
			SplitID:   splitID,
			Value:     attached,
			Buyer:     caller.Account,
			TokenID:   split.TokenID,
			HoldID:    hold.ID,
			CreatedAt: b.c.now(),
		}
		return tx.InsertOffer(offer)
	})
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// AcceptOffer starts a transfer saga that moves the split to the offer's
// buyer. The offer stays listed until the transfer completes.
func (b *OfferBook) AcceptOffer(ctx context.Context, caller domain.Caller, splitID, offerID uint64) (*domain.Saga, error) {
	var saga domain.Saga
	err := b.c.atomically(ctx, func(tx port.Tx) error {
		split, err := tx.GetSplit(splitID)
		if err != nil {
			return fmt.Errorf("split %d: %w", splitID, err)
		}
		if err := requireSeller(tx, caller, *split); err != nil {
			return err
		}
		if split.TransferPending() {
			return fmt.Errorf("%w: split %d", domain.ErrTransferPending, splitID)
		}

		offers, err := tx.ListOffers(splitID)
		if err != nil {
			return err
		}
		var offer *domain.PurchaseOffer
		for i := range offers {
			if offers[i].ID == offerID {
				offer = &offers[i]
				break
			}
		}
		if offer == nil {
			return fmt.Errorf("offer %d on split %d: %w", offerID, splitID, domain.ErrNotFound)
		}

		owner, err := marketplaceOwner(tx)
		if err != nil {
			return err
		}
		saga, err = b.transfers.record(tx, *split, domain.TransferContext{
			SplitID:  splitID,
			TokenID:  split.TokenID,
			Seller:   split.Seller(owner),
			NewOwner: offer.Buyer,
			HoldID:   offer.HoldID,
			OfferID:  offer.ID,
			Price:    offer.Value,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := b.transfers.dispatch(ctx, saga); err != nil {
		return nil, err
	}
	return &saga, nil
}

// BuyFromSale starts a transfer saga straight to the caller, bypassing the
// offer list. The seller receives the split value; any excess is refunded
// when the transfer completes.
func (b *OfferBook) BuyFromSale(ctx context.Context, caller domain.Caller, splitID uint64, attached decimal.Decimal) (*domain.Saga, error) {
	if err := domain.ValidateAmount(attached); err != nil {
		return nil, err
	}

	var saga domain.Saga
	err := b.c.atomically(ctx, func(tx port.Tx) error {
		split, err := tx.GetSplit(splitID)
		if err != nil {
			return fmt.Errorf("split %d: %w", splitID, err)
		}
		if err := requireBuyer(tx, caller, *split); err != nil {
			return err
		}
		if !split.OnSale {
			return fmt.Errorf("%w: split %d", domain.ErrNotListed, splitID)
		}
		if split.TransferPending() {
			return fmt.Errorf("%w: split %d", domain.ErrTransferPending, splitID)
		}
		price, err := b.registry.splitValue(tx, *split)
		if err != nil {
			return err
		}
		if attached.LessThan(price) {
			return fmt.Errorf("%w: attached %s below split value %s", domain.ErrInsufficientDeposit, attached, price)
		}

		owner, err := marketplaceOwner(tx)
		if err != nil {
			return err
		}
		hold, err := b.escrow.hold(tx, splitID, 0, caller.Account, attached)
		if err != nil {
			return err
		}
		saga, err = b.transfers.record(tx, *split, domain.TransferContext{
			SplitID:  splitID,
			TokenID:  split.TokenID,
			Seller:   split.Seller(owner),
			NewOwner: caller.Account,
			HoldID:   hold.ID,
			Price:    price,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := b.transfers.dispatch(ctx, saga); err != nil {
		return nil, err
	}
	return &saga, nil
}

// clearOffers voids every offer on the split and refunds the holds that are
// still open. The accepted offer's hold is settled before this runs.
func (b *OfferBook) clearOffers(tx port.Tx, splitID uint64) error {
	offers, err := tx.ListOffers(splitID)
	if err != nil {
		return err
	}
	for _, o := range offers {
		memo := fmt.Sprintf("offer %d on split %d voided", o.ID, splitID)
		if err := b.escrow.refund(tx, o.HoldID, memo); err != nil {
			return err
		}
	}
	return tx.ClearOffers(splitID)
}

func (b *OfferBook) listOffers(ctx context.Context, splitID uint64) ([]domain.PurchaseOffer, error) {
	var offers []domain.PurchaseOffer
	err := b.c.atomically(ctx, func(tx port.Tx) error {
		if _, err := tx.GetSplit(splitID); err != nil {
			return fmt.Errorf("split %d: %w", splitID, err)
		}
		var err error
		offers, err = tx.ListOffers(splitID)
		return err
	})
	return offers, err
}
