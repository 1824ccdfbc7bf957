package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/address"
)

var (
	// ErrOrderNotFound is returned when an order does not exist or belongs to
	// another customer.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidStatusValue is returned for unknown status or payment status
	// values.
	ErrInvalidStatusValue = errors.New("invalid status value")
	// ErrTransitionNotAllowed is returned when the transition policy rejects
	// a status change.
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// Customer is the contact and shipping data captured when the order was
// placed. It is a copy, not a reference: later profile or address edits do
// not change it.
type Customer struct {
	Name        string
	Email       string
	Phone       string
	Address     string
	City        string
	Landmark    string
	Coordinates *address.Coordinates
}

// Order represents a placed customer order with pricing and fulfillment
// state.
type Order struct {
	ID             string
	OrderNumber    string
	CustomerID     string
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	DeliveryFee    decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	Status         Status
	PaymentStatus  PaymentStatus
	PaymentMethod  string
	CouponID       string
	CouponCode     string
	Notes          string
	Customer       Customer
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is a line item snapshot: product name, image and price as they were
// at checkout.
type Item struct {
	ProductID    string
	ProductName  string
	ProductImage string
	Quantity     int
	UnitPrice    decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

// StatusHistory is an immutable audit entry recording the status an order
// moved to.
type StatusHistory struct {
	ID        string
	OrderID   string
	Status    Status
	Notes     string
	CreatedAt time.Time
}

// Change is the set of fields a workflow update writes onto an order. A nil
// Notes leaves the stored notes untouched.
type Change struct {
	Status        Status
	PaymentStatus PaymentStatus
	Notes         *string
	UpdatedAt     time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// FindByID returns the order with its items, or ErrOrderNotFound.
	FindByID(ctx context.Context, id string) (*Order, error)
	// History returns the status history of an order, oldest first.
	History(ctx context.Context, orderID string) ([]StatusHistory, error)
	// Create stores the order, its items and the initial history entry in
	// one transaction. When the order carries a coupon it is redeemed in the
	// same transaction; an exhausted coupon fails with
	// coupon.ErrCouponUsageLimitReached and a taken order number with
	// ErrDuplicateOrderNumber, and nothing is stored.
	Create(ctx context.Context, o *Order, initial StatusHistory) error
	// Transact runs fn in a single transaction.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view of the order store.
type Tx interface {
	// LockByID loads the order row and holds it locked until the
	// transaction ends. Items are not loaded.
	LockByID(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, id string, c Change) error
	AppendHistory(ctx context.Context, h StatusHistory) error
}
