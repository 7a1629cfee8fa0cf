package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

// TransferOrchestrator moves split tokens to buyers. Recording a transfer
// locks the buyer's escrow and marks the split pending; the completion
// callback settles both, a failure releases both.
type TransferOrchestrator struct {
	c      *core
	ledger *SplitLedger
	escrow *Escrow
}

func (t *TransferOrchestrator) record(tx port.Tx, split domain.Split, tc domain.TransferContext) (domain.Saga, error) {
	id := uuid.New()
	if err := t.escrow.lock(tx, tc.HoldID, id); err != nil {
		return domain.Saga{}, err
	}

	split.PendingSaga = id
	if err := tx.UpdateSplit(split); err != nil {
		return domain.Saga{}, fmt.Errorf("update split: %w", err)
	}

	now := t.c.now()
	saga := domain.Saga{
		ID:             id,
		Kind:           domain.SagaKindTransfer,
		CorrelationKey: domain.TransferCorrelationKey(split.ID, split.TokenID, id),
		Status:         domain.SagaStatusRequested,
		Attempts:       1,
		Transfer:       &tc,
		CreatedAt:      now,
		UpdatedAt:      now,
		DeadlineAt:     now.Add(t.c.sagaTimeout),
	}
	if err := tx.InsertSaga(saga); err != nil {
		return domain.Saga{}, fmt.Errorf("insert saga: %w", err)
	}
	return saga, nil
}

func (t *TransferOrchestrator) send(ctx context.Context, saga domain.Saga) error {
	return t.c.tokens.Transfer(ctx, port.TransferRequest{
		SagaID:   saga.ID,
		TokenID:  saga.Transfer.TokenID,
		NewOwner: saga.Transfer.NewOwner,
	})
}

// dispatch sends the request; if the token service refuses it outright the
// saga fails at once and its reservations are released.
func (t *TransferOrchestrator) dispatch(ctx context.Context, saga domain.Saga) error {
	sendErr := t.send(ctx, saga)
	if sendErr == nil {
		return nil
	}

	log := t.c.log.WithFields(logrus.Fields{"saga_id": saga.ID, "split_id": saga.Transfer.SplitID})
	log.WithError(sendErr).Warn("transfer dispatch failed, compensating")

	err := t.c.atomically(ctx, func(tx port.Tx) error {
		current, err := tx.GetSaga(saga.ID)
		if err != nil {
			return err
		}
		if !current.Pending() {
			return nil
		}
		if err := t.compensate(tx, current, "dispatch: "+sendErr.Error()); err != nil {
			return err
		}
		return tx.UpdateSaga(*current)
	})
	switch {
	case errors.Is(err, domain.ErrSagaConflict):
		log.Info("transfer saga resolved before it could be compensated")
	case err != nil:
		log.WithError(err).Error("CRITICAL: transfer compensation failed")
	}
	return fmt.Errorf("%w: %v", domain.ErrExternalCallFailed, sendErr)
}

func (t *TransferOrchestrator) OnTransferCompleted(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, newOwner string) (*domain.Split, error) {
	if err := requireRuntime(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(newOwner) == "" {
		return nil, fmt.Errorf("%w: new owner is required", domain.ErrInvalidInput)
	}

	var split domain.Split
	err := t.c.callback(ctx, sagaID, true, func(tx port.Tx, saga *domain.Saga) error {
		if saga.Kind != domain.SagaKindTransfer {
			return fmt.Errorf("%w: saga %s is a %s saga", domain.ErrInvalidInput, sagaID, saga.Kind)
		}
		tc := saga.Transfer
		if newOwner != tc.NewOwner {
			return fmt.Errorf("%w: token moved to %s, expected %s", domain.ErrInvalidInput, newOwner, tc.NewOwner)
		}

		current, err := tx.GetSplit(tc.SplitID)
		if err != nil {
			return fmt.Errorf("split %d: %w", tc.SplitID, err)
		}
		if current.PendingSaga != saga.ID {
			return fmt.Errorf("%w: split %d is not waiting on saga %s", domain.ErrDuplicateCallback, tc.SplitID, sagaID)
		}

		if err := t.escrow.settle(tx, tc.HoldID, tc.Seller, tc.Price); err != nil {
			return err
		}
		split, err = t.ledger.ApplyTransferCompletion(tx, tc.SplitID, tc.TokenID, newOwner)
		if err != nil {
			return err
		}
		saga.Status = domain.SagaStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.c.log.WithFields(logrus.Fields{
		"saga_id":   sagaID,
		"split_id":  split.ID,
		"new_owner": split.Owner,
	}).Info("transfer completed")
	return &split, nil
}

func (t *TransferOrchestrator) OnTransferFailed(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, reason string) error {
	if err := requireRuntime(caller); err != nil {
		return err
	}
	err := t.c.callback(ctx, sagaID, false, func(tx port.Tx, saga *domain.Saga) error {
		if saga.Kind != domain.SagaKindTransfer {
			return fmt.Errorf("%w: saga %s is a %s saga", domain.ErrInvalidInput, sagaID, saga.Kind)
		}
		return t.compensate(tx, saga, reason)
	})
	if err != nil {
		return err
	}
	t.c.log.WithFields(logrus.Fields{"saga_id": sagaID, "reason": reason}).Warn("transfer failed, reservations released")
	return nil
}

// compensate marks the saga failed and undoes what record reserved: the
// split's pending marker and the buyer's escrow. An accepted offer goes back
// to the book; a direct purchase is refunded.
func (t *TransferOrchestrator) compensate(tx port.Tx, saga *domain.Saga, reason string) error {
	tc := saga.Transfer
	saga.Status = domain.SagaStatusFailed
	saga.Reason = reason
	saga.UpdatedAt = t.c.now()

	split, err := tx.GetSplit(tc.SplitID)
	if err != nil {
		return fmt.Errorf("split %d: %w", tc.SplitID, err)
	}
	if split.PendingSaga == saga.ID {
		split.PendingSaga = uuid.Nil
		if err := tx.UpdateSplit(*split); err != nil {
			return fmt.Errorf("update split: %w", err)
		}
	}

	if tc.OfferID != 0 {
		return t.escrow.unlock(tx, tc.HoldID)
	}
	return t.escrow.refund(tx, tc.HoldID, fmt.Sprintf("purchase of split %d failed", tc.SplitID))
}
