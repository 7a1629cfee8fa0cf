package tokenbus

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Declarer is the subset of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

type Topology struct {
	CommandsExchange string
	ResultsExchange  string
	ResultsQueue     string
}

func DefaultTopology() Topology {
	return Topology{
		CommandsExchange: DefaultCommandsExchange,
		ResultsExchange:  DefaultResultsExchange,
		ResultsQueue:     DefaultResultsQueue,
	}
}

// Declare creates both durable direct exchanges and the marketplace's result
// queue. Declarations are idempotent, so every process may run it at start.
func (t Topology) Declare(ch Declarer) error {
	for _, exchange := range []string{t.CommandsExchange, t.ResultsExchange} {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange '%s': %w", exchange, err)
		}
	}
	if _, err := ch.QueueDeclare(t.ResultsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue '%s': %w", t.ResultsQueue, err)
	}
	if err := ch.QueueBind(t.ResultsQueue, RoutingKeyResult, t.ResultsExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue '%s' to exchange '%s': %w", t.ResultsQueue, t.ResultsExchange, err)
	}
	return nil
}

// DeclareCommandQueue binds queue to both command routing keys. The token
// service side uses it.
func (t Topology) DeclareCommandQueue(ch Declarer, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue '%s': %w", queue, err)
	}
	for _, key := range []string{RoutingKeyMint, RoutingKeyTransfer} {
		if err := ch.QueueBind(queue, key, t.CommandsExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue '%s' with key '%s': %w", queue, key, err)
		}
	}
	return nil
}
