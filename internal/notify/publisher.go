// Package notify publishes an event to RabbitMQ each time an order's
// tracking status is written to the order store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"cttsync/internal/logging"
	"cttsync/internal/status"
)

// DefaultExchange is the topic exchange events go to.
const DefaultExchange = "orders_topic"

const publishTimeout = 5 * time.Second

// StatusEvent announces that an order's status was patched.
type StatusEvent struct {
	OrderID      string        `json:"order_id"`
	TrackingCode string        `json:"tracking_code"`
	Stage        status.Key    `json:"stage,omitempty"`
	Status       status.Record `json:"status"`
	PatchedAt    time.Time     `json:"patched_at"`
}

// RoutingKey is "tracking.<stage>", or "tracking.none" when no milestone
// was reached.
func (e StatusEvent) RoutingKey() string {
	if e.Stage == "" {
		return "tracking.none"
	}
	return "tracking." + string(e.Stage)
}

// NewStatusEvent builds the event for a freshly patched record.
func NewStatusEvent(orderID, code string, rec status.Record) StatusEvent {
	stage, _ := rec.Latest()
	return StatusEvent{
		OrderID:      orderID,
		TrackingCode: code,
		Stage:        stage,
		Status:       rec,
		PatchedAt:    time.Now().UTC(),
	}
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends StatusEvents to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch channel
}

// Dial connects to the broker at url and declares exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p, err := newPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	logging.Get(logging.CategoryNotify).Info("amqp publisher ready", zap.String("exchange", p.exchange))
	return p, nil
}

func newPublisher(ch channel, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{exchange: exchange, ch: ch}, nil
}

// Publish sends ev as persistent JSON.
func (p *Publisher) Publish(ctx context.Context, ev StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return fmt.Errorf("publisher closed")
	}
	err = p.ch.PublishWithContext(
		ctx,
		p.exchange,
		ev.RoutingKey(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.PatchedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.RoutingKey(), err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
		p.conn = nil
	}
	return err
}
