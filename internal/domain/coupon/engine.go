package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/money"
)

// Validation is a successful coupon check: the coupon snapshot, the computed
// merchandise discount and whether the delivery fee should be waived.
type Validation struct {
	Coupon       Snapshot
	Discount     decimal.Decimal
	FreeShipping bool
}

// Validator validates a coupon code against an order amount.
type Validator interface {
	Validate(ctx context.Context, code string, orderAmount decimal.Decimal, now time.Time) (*Validation, error)
}

// Engine implements Validator by looking up coupons from a Finder and
// applying them via Evaluate. It never mutates the store: redemption happens
// when an order is finalized.
type Engine struct {
	coupons Finder
	unit    currency.Unit
}

var _ Validator = (*Engine)(nil)

// NewEngine creates an Engine backed by the given Finder. Minimum-amount
// messages are formatted in unit.
func NewEngine(coupons Finder, unit currency.Unit) *Engine {
	return &Engine{coupons: coupons, unit: unit}
}

// Validate normalizes the code, looks the coupon up and evaluates it against
// orderAmount at instant now. Domain failures are *fault.Error values; any
// other error comes from the store.
func (e *Engine) Validate(ctx context.Context, code string, orderAmount decimal.Decimal, now time.Time) (*Validation, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fault.New(fault.InvalidInput, ErrInvalidRequest, "Please enter a coupon code.")
	}
	if !money.Fits(orderAmount) {
		return nil, fault.New(fault.InvalidInput, ErrInvalidRequest,
			"Order amount must have at most %d decimal places and %d integer digits.",
			money.Scale, money.IntegerDigits)
	}
	if orderAmount.IsNegative() {
		return nil, fault.New(fault.InvalidInput, ErrInvalidRequest,
			"Order amount %s must not be negative.", orderAmount.StringFixed(2))
	}

	c, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, fault.New(fault.NotFound, ErrCouponNotFound,
				"Coupon %s does not exist.", code)
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	return Evaluate(c, orderAmount, now, e.unit)
}

// Result is the caller-facing outcome of a coupon check.
type Result struct {
	Valid          bool
	DiscountAmount decimal.Decimal
	FreeShipping   bool
	Coupon         *Snapshot
	ErrorKind      fault.Kind
	Message        string
}

// NewResult folds the outcome of Validate into a Result. Store failures are
// not part of the result and are returned as the error.
func NewResult(v *Validation, err error) (Result, error) {
	if err != nil {
		fe, ok := fault.As(err)
		if !ok {
			return Result{}, err
		}
		return Result{ErrorKind: fe.Kind, Message: fe.Message}, nil
	}

	snap := v.Coupon
	msg := "Coupon " + snap.Code + " applied."
	if v.FreeShipping {
		msg = "Coupon " + snap.Code + " applied: delivery is free."
	}
	return Result{
		Valid:          true,
		DiscountAmount: v.Discount,
		FreeShipping:   v.FreeShipping,
		Coupon:         &snap,
		Message:        msg,
	}, nil
}
