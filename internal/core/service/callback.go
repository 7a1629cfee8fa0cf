package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

func callbackKey(sagaID uuid.UUID) string {
	return "callback:" + sagaID.String()
}

// callback consumes a saga exactly once. The guard claim marks a delivery as
// in flight; the saga status, checked and written in one transaction, decides
// whether the callback applies. A refused claim is not proof the first
// delivery committed, so it never short-circuits. apply mutates the saga in
// place and the result is persisted with the same transaction. success marks
// callbacks that report a completed token call.
func (c *core) callback(ctx context.Context, sagaID uuid.UUID, success bool, apply func(tx port.Tx, saga *domain.Saga) error) error {
	key := callbackKey(sagaID)
	log := c.log.WithField("saga_id", sagaID)
	claimed, err := c.guard.Claim(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !claimed {
		log.Debug("callback claim already held, deferring to saga status")
	}

	err = c.atomically(ctx, func(tx port.Tx) error {
		saga, err := tx.GetSaga(sagaID)
		if err != nil {
			return fmt.Errorf("saga %s: %w", sagaID, err)
		}
		if !saga.Pending() {
			if success && saga.Status == domain.SagaStatusFailed {
				c.reportLateSuccess(*saga)
			}
			return fmt.Errorf("%w: saga %s is %s", domain.ErrDuplicateCallback, sagaID, saga.Status)
		}
		if err := apply(tx, saga); err != nil {
			return err
		}
		saga.UpdatedAt = c.now()
		return tx.UpdateSaga(*saga)
	})
	if errors.Is(err, domain.ErrSagaConflict) {
		err = fmt.Errorf("%w: %v", domain.ErrDuplicateCallback, err)
	}
	if claimed && err != nil && !errors.Is(err, domain.ErrDuplicateCallback) {
		// ctx may be the reason the transaction failed
		if releaseErr := c.guard.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			log.WithError(releaseErr).Error("CRITICAL: failed to release callback claim")
		}
	}
	return err
}

// reportLateSuccess flags a token call that succeeded after its saga was
// failed and compensated. The ledger is not changed; an operator reconciles.
func (c *core) reportLateSuccess(saga domain.Saga) {
	c.log.WithFields(logrus.Fields{
		"saga_id": saga.ID,
		"kind":    saga.Kind,
		"reason":  saga.Reason,
	}).Error("success callback for failed saga, token service and ledger disagree")
}
