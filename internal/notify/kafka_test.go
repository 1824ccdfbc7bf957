package notify

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func shipped() order.Transition {
	return order.Transition{
		OrderID:       "o1",
		OrderNumber:   "ORD-20250615-ABCDEF12",
		From:          order.StatusPending,
		To:            order.StatusShipped,
		PaymentStatus: order.PaymentPaid,
		ChangedAt:     time.Date(2025, 6, 16, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublisher_StatusChanged(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisher(w)

	require.NoError(t, p.StatusChanged(context.Background(), shipped()))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "o1", string(msg.Key))
	assert.JSONEq(t, `{
		"orderId":"o1",
		"orderNumber":"ORD-20250615-ABCDEF12",
		"from":"PENDING",
		"to":"SHIPPED",
		"paymentStatus":"PAID",
		"changedAt":"2025-06-16T09:30:00Z"
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventStatusChanged, string(msg.Headers[0].Value))
}

func TestPublisher_WriteError(t *testing.T) {
	p := NewPublisher(&recordingWriter{err: errors.New("broker unreachable")})

	err := p.StatusChanged(context.Background(), shipped())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order o1")
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"kafka-1:9092", "kafka-2:9092"}, "order-status")

	assert.Equal(t, "order-status", w.Topic)
	assert.Contains(t, w.Addr.String(), "kafka-1:9092")
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.StatusChanged(context.Background(), shipped()))
}
