package handler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/order"
)

type metrics struct {
	couponValidations metric.Int64Counter
	ordersPlaced      metric.Int64Counter
	orderTransitions  metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	var (
		m   metrics
		err error
	)
	if m.couponValidations, err = meter.Int64Counter("storefront.coupon.validations",
		metric.WithDescription("Coupon validations by outcome"),
	); err != nil {
		return nil, err
	}
	if m.ordersPlaced, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, err
	}
	if m.orderTransitions, err = meter.Int64Counter("storefront.order.transitions",
		metric.WithDescription("Applied order status transitions"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) couponValidated(ctx context.Context, outcome string) {
	m.couponValidations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) orderPlaced(ctx context.Context, withCoupon bool) {
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", withCoupon)))
}

func (m *metrics) transitioned(ctx context.Context, t *order.Transition) {
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(t.From)),
		attribute.String("to", string(t.To)),
	))
}
