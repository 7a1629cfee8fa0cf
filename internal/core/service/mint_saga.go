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

// MintOrchestrator runs one saga per split: the request is recorded, then
// dispatched to the token service, and the split is created by the callback
// that carries the minted token.
type MintOrchestrator struct {
	c      *core
	ledger *SplitLedger
}

func (m *MintOrchestrator) record(tx port.Tx, mc domain.MintContext) (domain.Saga, error) {
	key := domain.MintCorrelationKey(mc.PropertyID, mc.SplitIdentifier)
	if _, err := tx.FindSagaByCorrelation(key); err == nil {
		return domain.Saga{}, fmt.Errorf("%w: saga %s already recorded", domain.ErrInvalidInput, key)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Saga{}, err
	}

	now := m.c.now()
	saga := domain.Saga{
		ID:             uuid.New(),
		Kind:           domain.SagaKindMint,
		CorrelationKey: key,
		Status:         domain.SagaStatusRequested,
		Attempts:       1,
		Mint:           &mc,
		CreatedAt:      now,
		UpdatedAt:      now,
		DeadlineAt:     now.Add(m.c.sagaTimeout),
	}
	if err := tx.InsertSaga(saga); err != nil {
		return domain.Saga{}, fmt.Errorf("insert saga: %w", err)
	}
	return saga, nil
}

func (m *MintOrchestrator) send(ctx context.Context, saga domain.Saga) error {
	mc := saga.Mint
	return m.c.tokens.Mint(ctx, port.MintRequest{
		SagaID:             saga.ID,
		Owner:              mc.Owner,
		PropertyIdentifier: mc.PropertyIdentifier,
		SplitIdentifier:    mc.SplitIdentifier,
		DocRef:             mc.DocRef,
		ImageRef:           mc.ImageRef,
	})
}

// dispatch sends the request. A send error leaves the saga requested with an
// expired deadline so the next reconciliation pass retries it.
func (m *MintOrchestrator) dispatch(ctx context.Context, saga domain.Saga) domain.Saga {
	sendErr := m.send(ctx, saga)
	if sendErr == nil {
		return saga
	}

	log := m.c.log.WithFields(logrus.Fields{"saga_id": saga.ID, "kind": saga.Kind})
	log.WithError(sendErr).Warn("mint dispatch failed, scheduled for retry")

	err := m.c.atomically(ctx, func(tx port.Tx) error {
		current, err := tx.GetSaga(saga.ID)
		if err != nil {
			return err
		}
		if !current.Pending() {
			saga = *current
			return nil
		}
		current.Reason = "dispatch: " + sendErr.Error()
		current.DeadlineAt = m.c.now()
		current.UpdatedAt = m.c.now()
		saga = *current
		return tx.UpdateSaga(*current)
	})
	switch {
	case errors.Is(err, domain.ErrSagaConflict):
		log.Info("mint saga resolved before its dispatch failure was recorded")
	case err != nil:
		log.WithError(err).Error("failed to record mint dispatch failure")
	}
	return saga
}

// OnMintCompleted applies a successful mint. Only the orchestration runtime
// may call it; a redelivered callback is rejected without touching state.
func (m *MintOrchestrator) OnMintCompleted(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, token domain.TokenHandle) (*domain.Split, error) {
	if err := requireRuntime(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(token.TokenID) == "" {
		return nil, fmt.Errorf("%w: token id is required", domain.ErrInvalidInput)
	}

	var split domain.Split
	err := m.c.callback(ctx, sagaID, true, func(tx port.Tx, saga *domain.Saga) error {
		if saga.Kind != domain.SagaKindMint {
			return fmt.Errorf("%w: saga %s is a %s saga", domain.ErrInvalidInput, sagaID, saga.Kind)
		}
		var err error
		split, err = m.ledger.ApplyMintCompletion(tx, *saga.Mint, token)
		if err != nil {
			return err
		}
		saga.Mint.SplitID = split.ID
		saga.Status = domain.SagaStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.c.log.WithFields(logrus.Fields{
		"saga_id":     sagaID,
		"property_id": split.PropertyID,
		"split_id":    split.ID,
		"token_id":    split.TokenID,
	}).Info("mint completed")
	return &split, nil
}

// OnMintFailed records a rejected mint. Split ids are allocated only on
// completion, so there is nothing to release.
func (m *MintOrchestrator) OnMintFailed(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, reason string) error {
	if err := requireRuntime(caller); err != nil {
		return err
	}
	err := m.c.callback(ctx, sagaID, false, func(tx port.Tx, saga *domain.Saga) error {
		if saga.Kind != domain.SagaKindMint {
			return fmt.Errorf("%w: saga %s is a %s saga", domain.ErrInvalidInput, sagaID, saga.Kind)
		}
		m.markFailed(saga, reason)
		return nil
	})
	if err != nil {
		return err
	}
	m.c.log.WithFields(logrus.Fields{"saga_id": sagaID, "reason": reason}).Warn("mint failed")
	return nil
}

func (m *MintOrchestrator) markFailed(saga *domain.Saga, reason string) {
	saga.Status = domain.SagaStatusFailed
	saga.Reason = reason
}
