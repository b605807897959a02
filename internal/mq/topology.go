package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeSteps Exchange = "procflow.steps"
	ExchangeDLQ   Exchange = "procflow.dlq"
)

// Queues.
const (
	QueueStepsRun Queue = "steps.run"
	QueueDLQSteps Queue = "dlq.steps"
)

// Routing keys.
const (
	RoutingKeyRun      RoutingKey = "run"
	RoutingKeyDLQSteps RoutingKey = "steps"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Идемпотентна: повторный вызов на существующей топологии — no-op.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		exchanges := []Exchange{ExchangeSteps, ExchangeDLQ}
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		// steps.run заворачивает неразобранные сообщения в DLQ
		dlqArgs := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQSteps),
		}

		queues := []struct {
			name Queue
			args amqp.Table
		}{
			{QueueStepsRun, dlqArgs},
			{QueueDLQSteps, nil},
		}
		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		bindings := []struct {
			queue      Queue
			routingKey RoutingKey
			exchange   Exchange
		}{
			{QueueStepsRun, RoutingKeyRun, ExchangeSteps},
			{QueueDLQSteps, RoutingKeyDLQSteps, ExchangeDLQ},
		}
		for _, b := range bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}
