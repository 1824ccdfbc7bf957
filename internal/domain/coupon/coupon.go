package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage deducts a 0–100 rate of the order amount, optionally capped.
	TypePercentage Type = "PERCENTAGE"
	// TypeFlat deducts a fixed amount, never more than the order amount.
	TypeFlat Type = "FLAT"
	// TypeFreeShipping leaves the merchandise total untouched; the caller
	// waives the delivery fee.
	TypeFreeShipping Type = "FREE_SHIPPING"
)

// Valid reports whether t is a known coupon type.
func (t Type) Valid() bool {
	switch t {
	case TypePercentage, TypeFlat, TypeFreeShipping:
		return true
	default:
		return false
	}
}

var (
	// ErrCouponNotFound is returned when no coupon matches the code or ID.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponInactive is returned when the coupon has been switched off.
	ErrCouponInactive = errors.New("coupon inactive")
	// ErrCouponNotYetValidOrExpired is returned outside the validity window.
	ErrCouponNotYetValidOrExpired = errors.New("coupon not yet valid or expired")
	// ErrCouponUsageLimitReached is returned when the coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrOrderAmountBelowMinimum is returned when the order is too small for the coupon.
	ErrOrderAmountBelowMinimum = errors.New("order amount below minimum")
	// ErrInvalidRequest is returned for a malformed code or order amount.
	ErrInvalidRequest = errors.New("invalid coupon request")
	// ErrInvalidCoupon is returned when a coupon definition breaks an invariant.
	ErrInvalidCoupon = errors.New("invalid coupon definition")
	// ErrDuplicateCode is returned when another coupon already uses the code.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Coupon is a promotional rule as stored by the coupon store.
type Coupon struct {
	ID                string
	Code              string
	Name              string
	Description       string
	Type              Type
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	StartDate         *time.Time
	EndDate           *time.Time
	IsActive          bool
	UsageLimit        *int
	UsedCount         int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Snapshot is the read-only view of a coupon handed to checkout callers.
type Snapshot struct {
	ID                string
	Code              string
	Name              string
	Description       string
	Type              Type
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
}

// Snapshot returns the checkout-facing view of c.
func (c *Coupon) Snapshot() Snapshot {
	return Snapshot{
		ID:                c.ID,
		Code:              c.Code,
		Name:              c.Name,
		Description:       c.Description,
		Type:              c.Type,
		Value:             c.Value,
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
	}
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Finder looks coupons up by code. Implementations return ErrCouponNotFound
// when no coupon matches.
type Finder interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Repository provides lookup and mutation of coupon records.
type Repository interface {
	Finder
	FindByID(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	// Save inserts or updates the coupon identified by c.ID. It returns
	// ErrDuplicateCode when the code is taken by another coupon.
	Save(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	// IncrementUsage bumps the usage counter, refusing with
	// ErrCouponUsageLimitReached once the limit is met.
	IncrementUsage(ctx context.Context, id string) error
	// Redeem consumes one use of the coupon on behalf of orderID. Repeated
	// calls for the same order are no-ops and report false.
	Redeem(ctx context.Context, couponID, orderID string) (bool, error)
}
