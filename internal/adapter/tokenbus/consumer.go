package tokenbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/split-market/internal/core/domain"
)

// Callbacks are the marketplace entry points a result is delivered to.
type Callbacks interface {
	OnMintCompleted(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, token domain.TokenHandle) (*domain.Split, error)
	OnMintFailed(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, reason string) error
	OnTransferCompleted(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, newOwner string) (*domain.Split, error)
	OnTransferFailed(ctx context.Context, caller domain.Caller, sagaID uuid.UUID, reason string) error
}

var errMalformed = errors.New("malformed result")

// ResultConsumer turns result messages into callbacks. Messages on the
// results queue come from the token service only, so they are delivered
// with the runtime role.
type ResultConsumer struct {
	cb  Callbacks
	log logrus.FieldLogger
}

func NewResultConsumer(cb Callbacks, log logrus.FieldLogger) *ResultConsumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResultConsumer{cb: cb, log: log}
}

// Handle decodes and applies one result.
func (c *ResultConsumer) Handle(ctx context.Context, body []byte) error {
	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if res.SagaID == uuid.Nil {
		return fmt.Errorf("%w: missing saga id", errMalformed)
	}

	runtime := domain.RuntimeCaller()
	switch {
	case res.Kind == domain.SagaKindMint && res.Success:
		if res.Token == nil {
			return fmt.Errorf("%w: mint result without token", errMalformed)
		}
		_, err := c.cb.OnMintCompleted(ctx, runtime, res.SagaID, *res.Token)
		return err
	case res.Kind == domain.SagaKindMint:
		return c.cb.OnMintFailed(ctx, runtime, res.SagaID, res.Reason)
	case res.Kind == domain.SagaKindTransfer && res.Success:
		_, err := c.cb.OnTransferCompleted(ctx, runtime, res.SagaID, res.NewOwner)
		return err
	case res.Kind == domain.SagaKindTransfer:
		return c.cb.OnTransferFailed(ctx, runtime, res.SagaID, res.Reason)
	default:
		return fmt.Errorf("%w: unknown kind %q", errMalformed, res.Kind)
	}
}

// HandleDelivery applies a delivery and settles it with the broker. Results
// that can never apply are acked (or rejected when unreadable); anything
// else is requeued for another try.
func (c *ResultConsumer) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.log.WithFields(logrus.Fields{"message_id": d.MessageId, "delivery_tag": d.DeliveryTag})

	err := c.Handle(ctx, d.Body)
	switch {
	case err == nil:
		c.ack(log, d)
	case errors.Is(err, errMalformed):
		log.WithError(err).Error("rejecting unreadable token result")
		if rejErr := d.Reject(false); rejErr != nil {
			log.WithError(rejErr).Error("failed to reject delivery")
		}
	case errors.Is(err, domain.ErrDuplicateCallback):
		log.WithError(err).Info("duplicate token result dropped")
		c.ack(log, d)
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnauthorized):
		log.WithError(err).Error("token result cannot be applied, dropping")
		c.ack(log, d)
	default:
		log.WithError(err).Warn("token result not applied, requeueing")
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.WithError(nackErr).Error("failed to nack delivery")
		}
	}
}

func (c *ResultConsumer) ack(log logrus.FieldLogger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.WithError(err).Error("failed to ack delivery")
	}
}

// Run handles deliveries until ctx is done or the channel closes.
func (c *ResultConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("result deliveries channel closed")
			}
			c.HandleDelivery(ctx, d)
		}
	}
}
