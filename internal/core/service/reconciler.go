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

type ReconcileReport struct {
	Redispatched int
	Failed       int
}

// Reconciler resolves sagas whose callback has not arrived by their deadline.
// Each is re-dispatched under the same saga id until the attempt budget runs
// out, then failed with compensation, so no saga stays pending forever.
type Reconciler struct {
	c         *core
	mints     *MintOrchestrator
	transfers *TransferOrchestrator
}

func (r *Reconciler) Sweep(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	var due []domain.Saga
	err := r.c.atomically(ctx, func(tx port.Tx) error {
		sagas, err := tx.ListSagas(domain.SagaStatusRequested)
		if err != nil {
			return err
		}
		now := r.c.now()
		for _, s := range sagas {
			if !s.DeadlineAt.After(now) {
				due = append(due, s)
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	for _, saga := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		redispatch, failed, err := r.expire(ctx, saga.ID)
		if errors.Is(err, domain.ErrSagaConflict) {
			r.c.log.WithField("saga_id", saga.ID).Debug("saga resolved during reconciliation")
			continue
		}
		if err != nil {
			r.c.log.WithError(err).WithField("saga_id", saga.ID).Error("reconcile saga failed")
			continue
		}
		if failed {
			report.Failed++
			continue
		}
		if redispatch == nil {
			continue
		}
		report.Redispatched++
		r.resend(ctx, *redispatch)
	}
	return report, nil
}

// expire either consumes one more attempt or, when none are left, fails the
// saga. It returns the saga to re-send in the first case.
func (r *Reconciler) expire(ctx context.Context, sagaID uuid.UUID) (*domain.Saga, bool, error) {
	var redispatch *domain.Saga
	var failed bool
	err := r.c.atomically(ctx, func(tx port.Tx) error {
		saga, err := tx.GetSaga(sagaID)
		if err != nil {
			return err
		}
		now := r.c.now()
		if !saga.Pending() || saga.DeadlineAt.After(now) {
			return nil
		}

		log := r.c.log.WithFields(logrus.Fields{"saga_id": saga.ID, "kind": saga.Kind, "attempts": saga.Attempts})
		if saga.Attempts >= r.c.maxAttempts {
			reason := fmt.Sprintf("no callback after %d attempts", saga.Attempts)
			switch saga.Kind {
			case domain.SagaKindMint:
				r.mints.markFailed(saga, reason)
				saga.UpdatedAt = now
			case domain.SagaKindTransfer:
				if err := r.transfers.compensate(tx, saga, reason); err != nil {
					return err
				}
			}
			log.Warn("saga expired")
			failed = true
			return tx.UpdateSaga(*saga)
		}

		saga.Attempts++
		saga.DeadlineAt = now.Add(r.c.sagaTimeout)
		saga.UpdatedAt = now
		log.Info("saga overdue, re-dispatching")
		redispatch = saga
		return tx.UpdateSaga(*saga)
	})
	return redispatch, failed, err
}

func (r *Reconciler) resend(ctx context.Context, saga domain.Saga) {
	var err error
	switch saga.Kind {
	case domain.SagaKindMint:
		err = r.mints.send(ctx, saga)
	case domain.SagaKindTransfer:
		err = r.transfers.send(ctx, saga)
	}
	if err != nil {
		// the attempt is spent; the saga is picked up again after its deadline
		r.c.log.WithError(err).WithField("saga_id", saga.ID).Warn("re-dispatch failed")
	}
}
