package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

// SplitLedger owns split records. Mint and transfer completions are the only
// paths that create splits or change their owner.
type SplitLedger struct {
	c      *core
	offers *OfferBook
}

// ApplyMintCompletion creates the split a mint saga was started for and
// links it to its property.
func (l *SplitLedger) ApplyMintCompletion(tx port.Tx, mc domain.MintContext, token domain.TokenHandle) (domain.Split, error) {
	property, err := tx.GetProperty(mc.PropertyID)
	if err != nil {
		return domain.Split{}, fmt.Errorf("property %d: %w", mc.PropertyID, err)
	}
	for _, id := range property.SplitIDs {
		existing, err := tx.GetSplit(id)
		if err != nil {
			return domain.Split{}, fmt.Errorf("split %d: %w", id, err)
		}
		if existing.SplitIdentifier == mc.SplitIdentifier {
			return domain.Split{}, fmt.Errorf("%w: split %s already minted", domain.ErrDuplicateCallback, mc.SplitIdentifier)
		}
	}

	if _, err := tx.GetSplitByToken(token.TokenID); err == nil {
		return domain.Split{}, fmt.Errorf("%w: token %s already backs a split", domain.ErrInvalidInput, token.TokenID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Split{}, err
	}

	id, err := tx.NextSplitID()
	if err != nil {
		return domain.Split{}, fmt.Errorf("next split id: %w", err)
	}
	split := domain.Split{
		ID:              id,
		SplitIdentifier: mc.SplitIdentifier,
		PropertyID:      mc.PropertyID,
		TokenID:         token.TokenID,
		TokenMetadata:   token.Metadata,
		Owner:           mc.Owner,
	}
	if err := tx.InsertSplit(split); err != nil {
		return domain.Split{}, fmt.Errorf("insert split: %w", err)
	}
	return split, nil
}

// ApplyTransferCompletion moves the split to newOwner and voids its offers.
// A token id that no longer matches the split marks a stale callback.
func (l *SplitLedger) ApplyTransferCompletion(tx port.Tx, splitID uint64, tokenID, newOwner string) (domain.Split, error) {
	split, err := tx.GetSplit(splitID)
	if err != nil {
		return domain.Split{}, fmt.Errorf("split %d: %w", splitID, err)
	}
	if split.TokenID != tokenID {
		return domain.Split{}, fmt.Errorf("%w: split %d is backed by token %s, not %s", domain.ErrDuplicateCallback, splitID, split.TokenID, tokenID)
	}

	split.Owner = newOwner
	split.LastSaleDate = l.c.now().UnixMilli()
	split.OnSale = false
	split.PendingSaga = uuid.Nil
	if err := tx.UpdateSplit(*split); err != nil {
		return domain.Split{}, fmt.Errorf("update split: %w", err)
	}
	if err := l.offers.clearOffers(tx, splitID); err != nil {
		return domain.Split{}, err
	}
	return *split, nil
}

func (l *SplitLedger) PlaceOnSale(ctx context.Context, caller domain.Caller, splitID uint64) (*domain.Split, error) {
	var split *domain.Split
	err := l.c.atomically(ctx, func(tx port.Tx) error {
		var err error
		split, err = tx.GetSplit(splitID)
		if err != nil {
			return fmt.Errorf("split %d: %w", splitID, err)
		}
		if err := requireSeller(tx, caller, *split); err != nil {
			return err
		}
		if split.TransferPending() {
			return fmt.Errorf("%w: split %d", domain.ErrTransferPending, splitID)
		}
		split.OnSale = true
		return tx.UpdateSplit(*split)
	})
	if err != nil {
		return nil, err
	}
	return split, nil
}

func (l *SplitLedger) GetProperties(ctx context.Context) ([]domain.PropertyWithSplits, error) {
	return l.properties(ctx, func(domain.Split) bool { return true }, false)
}

// GetUserProperties lists properties in which account owns at least one
// split, each carrying only that account's splits.
func (l *SplitLedger) GetUserProperties(ctx context.Context, account string) ([]domain.PropertyWithSplits, error) {
	return l.properties(ctx, func(s domain.Split) bool { return s.Owner == account }, true)
}

func (l *SplitLedger) properties(ctx context.Context, keep func(domain.Split) bool, omitEmpty bool) ([]domain.PropertyWithSplits, error) {
	var out []domain.PropertyWithSplits
	err := l.c.atomically(ctx, func(tx port.Tx) error {
		properties, err := tx.ListProperties()
		if err != nil {
			return err
		}
		splits, err := tx.ListSplits()
		if err != nil {
			return err
		}
		byID := make(map[uint64]domain.Split, len(splits))
		for _, s := range splits {
			byID[s.ID] = s
		}

		out = make([]domain.PropertyWithSplits, 0, len(properties))
		for _, p := range properties {
			pw := domain.PropertyWithSplits{Property: p, Splits: []domain.Split{}}
			for _, id := range p.SplitIDs {
				s, ok := byID[id]
				if !ok {
					return fmt.Errorf("property %d references missing split %d", p.ID, id)
				}
				if keep(s) {
					pw.Splits = append(pw.Splits, s)
				}
			}
			if omitEmpty && len(pw.Splits) == 0 {
				continue
			}
			out = append(out, pw)
		}
		return nil
	})
	return out, err
}

func (l *SplitLedger) GetSplitsOnSale(ctx context.Context) ([]domain.Split, error) {
	var out []domain.Split
	err := l.c.atomically(ctx, func(tx port.Tx) error {
		splits, err := tx.ListSplits()
		if err != nil {
			return err
		}
		out = []domain.Split{}
		for _, s := range splits {
			if s.OnSale {
				out = append(out, s)
			}
		}
		return nil
	})
	return out, err
}

func (l *SplitLedger) GetSplitOffers(ctx context.Context, splitID uint64) ([]domain.PurchaseOffer, error) {
	return l.offers.listOffers(ctx, splitID)
}
