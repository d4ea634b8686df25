// Package notify emits best-effort live-update events when the pipeline
// creates leads. Absence of a listener is never an error.
package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RoutingKeyLeadsCreated is the routing key for lead-creation events.
const RoutingKeyLeadsCreated = "leads.created"

// Notifier publishes pipeline events for external consumers.
type Notifier interface {
	// LeadsCreated announces newly created leads for a customer.
	LeadsCreated(ctx context.Context, customerID string, leadIDs []string) error
	Close() error
}

// LeadsCreatedEvent is the wire payload for RoutingKeyLeadsCreated.
type LeadsCreatedEvent struct {
	CustomerID string    `json:"customer_id"`
	LeadIDs    []string  `json:"lead_ids"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Noop discards all events. Used when no broker is configured.
type Noop struct{}

func (Noop) LeadsCreated(context.Context, string, []string) error { return nil }
func (Noop) Close() error                                         { return nil }

// AMQPNotifier publishes events to a RabbitMQ topic exchange.
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQP connects to the broker and declares the topic exchange.
func NewAMQP(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, eris.Wrap(err, "notify: dial broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "notify: open channel")
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, eris.Wrap(err, "notify: declare exchange")
	}

	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange}, nil
}

func (n *AMQPNotifier) LeadsCreated(ctx context.Context, customerID string, leadIDs []string) error {
	body, err := json.Marshal(LeadsCreatedEvent{
		CustomerID: customerID,
		LeadIDs:    leadIDs,
		Count:      len(leadIDs),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	err = n.ch.PublishWithContext(ctx,
		n.exchange,
		RoutingKeyLeadsCreated,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		return eris.Wrap(err, "notify: publish leads created")
	}

	zap.L().Debug("published leads created event",
		zap.String("customer_id", customerID),
		zap.Int("lead_count", len(leadIDs)),
	)
	return nil
}

func (n *AMQPNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		n.conn.Close()
		return eris.Wrap(err, "notify: close channel")
	}
	return n.conn.Close()
}
