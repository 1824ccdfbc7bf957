package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/xenking/storefront/internal/domain/fault"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Evaluate checks c against the order amount at instant now and computes the
// discount. It is a pure function of its inputs: eligibility failures are
// returned as *fault.Error values wrapping the package sentinels.
func Evaluate(c *Coupon, orderAmount decimal.Decimal, now time.Time, unit currency.Unit) (*Validation, error) {
	if !c.IsActive {
		return nil, fault.New(fault.PolicyViolation, ErrCouponInactive,
			"Coupon %s is no longer active.", c.Code)
	}

	if c.StartDate != nil && now.Before(*c.StartDate) {
		return nil, fault.New(fault.PolicyViolation, ErrCouponNotYetValidOrExpired,
			"Coupon %s is not valid yet.", c.Code)
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return nil, fault.New(fault.PolicyViolation, ErrCouponNotYetValidOrExpired,
			"Coupon %s has expired.", c.Code)
	}

	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, fault.New(fault.PolicyViolation, ErrCouponUsageLimitReached,
			"Coupon %s has reached its usage limit.", c.Code)
	}

	if c.MinOrderAmount != nil && orderAmount.LessThan(*c.MinOrderAmount) {
		return nil, fault.New(fault.PolicyViolation, ErrOrderAmountBelowMinimum,
			"A minimum order amount of %s is required to use coupon %s.",
			FormatAmount(unit, *c.MinOrderAmount), c.Code)
	}

	amount, err := Discount(c, orderAmount)
	if err != nil {
		return nil, err
	}

	return &Validation{
		Coupon:       c.Snapshot(),
		Discount:     amount,
		FreeShipping: c.Type == TypeFreeShipping,
	}, nil
}

// Discount computes the merchandise discount of c for the given order amount,
// rounded to 2 decimal places half-up.
func Discount(c *Coupon, orderAmount decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		amount = applyPercentage(c, orderAmount)
	case TypeFlat:
		amount = applyFlat(c, orderAmount)
	case TypeFreeShipping:
		amount = zero
	default:
		return zero, errors.Errorf("unsupported coupon type: %q", c.Type)
	}
	return roundMoney(floorAtZero(amount)), nil
}

func applyPercentage(c *Coupon, orderAmount decimal.Decimal) decimal.Decimal {
	amount := orderAmount.Mul(c.Value).Div(hundred)
	if c.MaxDiscountAmount != nil {
		amount = decimal.Min(amount, *c.MaxDiscountAmount)
	}
	return amount
}

func applyFlat(c *Coupon, orderAmount decimal.Decimal) decimal.Decimal {
	return decimal.Min(c.Value, orderAmount)
}

// roundMoney rounds to the currency's minor unit. Amounts are non-negative
// here, so decimal's half-away-from-zero rounding is half-up.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

// FormatAmount renders an amount for end-user messages, e.g. "INR 500.00".
func FormatAmount(unit currency.Unit, d decimal.Decimal) string {
	return unit.String() + " " + d.StringFixed(2)
}
