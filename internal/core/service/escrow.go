package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

// Escrow keeps value attached to offers and purchases until the transfer it
// pays for completes or fails. Money only leaves escrow as a ledger entry.
type Escrow struct {
	c *core
}

func (e *Escrow) hold(tx port.Tx, splitID, offerID uint64, account string, amount decimal.Decimal) (domain.EscrowHold, error) {
	now := e.c.now()
	h := domain.EscrowHold{
		ID:        uuid.New(),
		SplitID:   splitID,
		OfferID:   offerID,
		Account:   account,
		Amount:    amount,
		Status:    domain.HoldStatusHeld,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertHold(h); err != nil {
		return domain.EscrowHold{}, fmt.Errorf("insert hold: %w", err)
	}
	return h, nil
}

func (e *Escrow) lock(tx port.Tx, holdID, sagaID uuid.UUID) error {
	h, err := tx.GetHold(holdID)
	if err != nil {
		return fmt.Errorf("get hold %s: %w", holdID, err)
	}
	if h.Status != domain.HoldStatusHeld {
		return fmt.Errorf("%w: hold %s is %s", domain.ErrInvalidInput, holdID, h.Status)
	}
	h.Status = domain.HoldStatusLocked
	h.SagaID = sagaID
	h.UpdatedAt = e.c.now()
	return tx.UpdateHold(*h)
}

// unlock returns a hold reserved by a failed transfer to its offer.
func (e *Escrow) unlock(tx port.Tx, holdID uuid.UUID) error {
	h, err := tx.GetHold(holdID)
	if err != nil {
		return fmt.Errorf("get hold %s: %w", holdID, err)
	}
	if h.Status != domain.HoldStatusLocked {
		return nil
	}
	h.Status = domain.HoldStatusHeld
	h.SagaID = uuid.Nil
	h.UpdatedAt = e.c.now()
	return tx.UpdateHold(*h)
}

// settle pays price to seller and refunds whatever the holder attached above it.
func (e *Escrow) settle(tx port.Tx, holdID uuid.UUID, seller string, price decimal.Decimal) error {
	h, err := tx.GetHold(holdID)
	if err != nil {
		return fmt.Errorf("get hold %s: %w", holdID, err)
	}
	if h.Status != domain.HoldStatusLocked {
		return fmt.Errorf("%w: hold %s is %s", domain.ErrInvalidInput, holdID, h.Status)
	}
	if h.Amount.LessThan(price) {
		return fmt.Errorf("%w: hold %s below price", domain.ErrInsufficientDeposit, holdID)
	}

	if err := e.credit(tx, h, seller, price, domain.EntryKindPayout, fmt.Sprintf("sale of split %d", h.SplitID)); err != nil {
		return err
	}
	if excess := h.Amount.Sub(price); excess.IsPositive() {
		if err := e.credit(tx, h, h.Account, excess, domain.EntryKindRefund, fmt.Sprintf("excess over price of split %d", h.SplitID)); err != nil {
			return err
		}
	}

	h.Status = domain.HoldStatusSettled
	h.UpdatedAt = e.c.now()
	return tx.UpdateHold(*h)
}

func (e *Escrow) refund(tx port.Tx, holdID uuid.UUID, memo string) error {
	h, err := tx.GetHold(holdID)
	if err != nil {
		return fmt.Errorf("get hold %s: %w", holdID, err)
	}
	if !h.Open() {
		return nil
	}
	if err := e.credit(tx, h, h.Account, h.Amount, domain.EntryKindRefund, memo); err != nil {
		return err
	}
	h.Status = domain.HoldStatusRefunded
	h.UpdatedAt = e.c.now()
	return tx.UpdateHold(*h)
}

func (e *Escrow) credit(tx port.Tx, h *domain.EscrowHold, account string, amount decimal.Decimal, kind domain.EntryKind, memo string) error {
	if amount.IsZero() {
		return nil
	}
	entry := domain.LedgerEntry{
		ID:        uuid.New(),
		Account:   account,
		Amount:    amount,
		Kind:      kind,
		HoldID:    h.ID,
		Memo:      memo,
		CreatedAt: e.c.now(),
	}
	if err := tx.AppendEntry(entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// AccountLedger lists the payouts and refunds credited to account.
func (e *Escrow) AccountLedger(ctx context.Context, account string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := e.c.atomically(ctx, func(tx port.Tx) error {
		var err error
		entries, err = tx.ListEntries(account)
		return err
	})
	return entries, err
}
