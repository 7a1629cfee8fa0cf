package tokenbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/split-market/internal/port"
)

const publishTimeout = 10 * time.Second

// Publisher is the subset of *amqp.Channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Gateway implements port.TokenService by publishing commands. A nil error
// means the broker accepted the command, not that the token call succeeded.
type Gateway struct {
	mu       sync.Mutex
	pub      Publisher
	exchange string
	log      logrus.FieldLogger
}

var _ port.TokenService = (*Gateway)(nil)

func NewGateway(pub Publisher, exchange string, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{pub: pub, exchange: exchange, log: log}
}

func (g *Gateway) Mint(ctx context.Context, req port.MintRequest) error {
	return g.publish(ctx, RoutingKeyMint, req.SagaID, MintCommand{
		SagaID:             req.SagaID,
		Owner:              req.Owner,
		PropertyIdentifier: req.PropertyIdentifier,
		SplitIdentifier:    req.SplitIdentifier,
		DocRef:             req.DocRef,
		ImageRef:           req.ImageRef,
	})
}

func (g *Gateway) Transfer(ctx context.Context, req port.TransferRequest) error {
	return g.publish(ctx, RoutingKeyTransfer, req.SagaID, TransferCommand{
		SagaID:   req.SagaID,
		TokenID:  req.TokenID,
		NewOwner: req.NewOwner,
	})
}

func (g *Gateway) publish(ctx context.Context, key string, sagaID uuid.UUID, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s command: %w", key, err)
	}

	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    sagaID.String(),
		Timestamp:    time.Now(),
		Type:         key,
		Body:         payload,
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	g.mu.Lock()
	err = g.pub.PublishWithContext(publishCtx, g.exchange, key, false, false, msg)
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s command: %w", key, err)
	}

	g.log.WithFields(logrus.Fields{"saga_id": sagaID, "routing_key": key}).Debug("token command published")
	return nil
}

// PublishResult reports a command outcome on the results exchange.
func PublishResult(ctx context.Context, pub Publisher, exchange string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return pub.PublishWithContext(publishCtx, exchange, RoutingKeyResult, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    result.SagaID.String(),
		Timestamp:    time.Now(),
		Body:         payload,
	})
}
