// Package notify publishes committed order status changes.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/storefront/internal/domain/order"
)

// EventStatusChanged is the event type header value of status change messages.
const EventStatusChanged = "order.status_changed"

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer for topic. Messages are partitioned by key
// so the events of one order stay in order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// Publisher implements order.Notifier on top of a Kafka writer.
type Publisher struct {
	w MessageWriter
}

var _ order.Notifier = (*Publisher)(nil)

// NewPublisher creates a Publisher writing to w.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// StatusChanged publishes t keyed by the order ID.
func (p *Publisher) StatusChanged(ctx context.Context, t order.Transition) error {
	msg := kafka.Message{
		Key:   []byte(t.OrderID),
		Value: EncodeStatusChanged(t),
		Time:  t.ChangedAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventStatusChanged)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish status change of order %s", t.OrderID)
	}
	return nil
}

// EncodeStatusChanged renders the event payload
// {orderId, orderNumber, from, to, paymentStatus, changedAt}.
func EncodeStatusChanged(t order.Transition) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(t.OrderID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(t.OrderNumber) })
		e.Field("from", func(e *jx.Encoder) { e.Str(string(t.From)) })
		e.Field("to", func(e *jx.Encoder) { e.Str(string(t.To)) })
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(t.PaymentStatus)) })
		e.Field("changedAt", func(e *jx.Encoder) { e.Str(t.ChangedAt.UTC().Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}

// Nop discards status changes. It is used when no brokers are configured.
type Nop struct{}

var _ order.Notifier = Nop{}

// StatusChanged does nothing.
func (Nop) StatusChanged(context.Context, order.Transition) error { return nil }

// BrokerCheck reports whether at least one of brokers accepts connections.
func BrokerCheck(brokers []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			return conn.Close()
		}
		return errors.Wrap(errors.Join(errs...), "no kafka broker reachable")
	}
}
