package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/fault"
)

// Queries answers order reads for customers and administrators.
type Queries struct {
	orders Repository
}

// NewQueries creates Queries backed by orders.
func NewQueries(orders Repository) *Queries {
	return &Queries{orders: orders}
}

// Get returns the order with its items.
func (q *Queries) Get(ctx context.Context, id string) (*Order, error) {
	o, err := q.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, orderNotFound()
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// GetForCustomer returns the order only when customerID placed it. Orders of
// other customers are reported as missing.
func (q *Queries) GetForCustomer(ctx context.Context, customerID, id string) (*Order, error) {
	o, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, orderNotFound()
	}
	return o, nil
}

// History returns the status history of the order, oldest first.
func (q *Queries) History(ctx context.Context, id string) ([]StatusHistory, error) {
	if _, err := q.Get(ctx, id); err != nil {
		return nil, err
	}
	history, err := q.orders.History(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "order history")
	}
	return history, nil
}

func orderNotFound() error {
	return fault.New(fault.NotFound, ErrOrderNotFound, "Order not found.")
}
