package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/money"
)

// Input is an administrator-supplied coupon definition.
type Input struct {
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
}

// Validate checks the coupon invariants that do not need the store.
func (in Input) Validate() error {
	invalid := func(format string, args ...any) error {
		return fault.New(fault.InvalidInput, ErrInvalidCoupon, format, args...)
	}

	if NormalizeCode(in.Code) == "" {
		return invalid("Coupon code is required.")
	}
	if in.Name == "" {
		return invalid("Coupon name is required.")
	}
	if !in.Type.Valid() {
		return invalid("Coupon type %q is not supported.", in.Type)
	}
	if in.Value.IsNegative() {
		return invalid("Coupon value must not be negative.")
	}
	if !money.Fits(in.Value) {
		return invalid("Coupon value must have at most %d decimal places and %d integer digits.",
			money.Scale, money.IntegerDigits)
	}
	if in.Type == TypePercentage && in.Value.GreaterThan(hundred) {
		return invalid("Percentage coupons cannot exceed 100%%.")
	}
	if in.MinOrderAmount != nil {
		if in.MinOrderAmount.IsNegative() {
			return invalid("Minimum order amount must not be negative.")
		}
		if !money.Fits(*in.MinOrderAmount) {
			return invalid("Minimum order amount must have at most %d decimal places and %d integer digits.",
				money.Scale, money.IntegerDigits)
		}
	}
	if in.MaxDiscountAmount != nil {
		if in.MaxDiscountAmount.IsNegative() {
			return invalid("Maximum discount amount must not be negative.")
		}
		if !money.Fits(*in.MaxDiscountAmount) {
			return invalid("Maximum discount amount must have at most %d decimal places and %d integer digits.",
				money.Scale, money.IntegerDigits)
		}
	}
	if in.StartDate != nil && in.EndDate != nil && in.StartDate.After(*in.EndDate) {
		return invalid("Coupon start date must not be after its end date.")
	}
	if in.UsageLimit != nil && *in.UsageLimit < 0 {
		return invalid("Usage limit must not be negative.")
	}
	return nil
}

// Manager implements coupon administration on top of a Repository.
type Manager struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewManager creates a Manager backed by repo.
func NewManager(repo Repository) *Manager {
	return &Manager{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create validates and stores a new coupon.
func (m *Manager) Create(ctx context.Context, in Input) (*Coupon, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	c := &Coupon{ID: m.newID(), CreatedAt: now}
	apply(c, in, now)

	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the definition of an existing coupon. Usage counters are
// preserved.
func (m *Manager) Update(ctx context.Context, id string, in Input) (*Coupon, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(c, in, m.now())

	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Upsert creates the coupon or, when its code is already taken, replaces that
// coupon's definition. It reports whether a new coupon was created.
func (m *Manager) Upsert(ctx context.Context, in Input) (*Coupon, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := m.repo.FindByCode(ctx, NormalizeCode(in.Code))
	switch {
	case errors.Is(err, ErrCouponNotFound):
		c, err := m.Create(ctx, in)
		return c, err == nil, err
	case err != nil:
		return nil, false, errors.Wrap(err, "find coupon by code")
	}

	apply(existing, in, m.now())
	if err := m.save(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get returns the coupon with the given ID.
func (m *Manager) Get(ctx context.Context, id string) (*Coupon, error) {
	c, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "get coupon")
	}
	return c, nil
}

// List returns all coupons.
func (m *Manager) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := m.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Delete removes a coupon permanently.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "delete coupon")
	}
	return nil
}

func (m *Manager) save(ctx context.Context, c *Coupon) error {
	if err := m.repo.Save(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return fault.New(fault.InvalidInput, ErrDuplicateCode,
				"Coupon code %s already exists.", c.Code)
		}
		return errors.Wrap(err, "save coupon")
	}
	return nil
}

func apply(c *Coupon, in Input, now time.Time) {
	c.Code = NormalizeCode(in.Code)
	c.Name = in.Name
	c.Description = in.Description
	c.Type = in.Type
	c.Value = in.Value
	c.MinOrderAmount = in.MinOrderAmount
	c.MaxDiscountAmount = in.MaxDiscountAmount
	c.StartDate = in.StartDate
	c.EndDate = in.EndDate
	c.IsActive = in.IsActive
	c.UsageLimit = in.UsageLimit
	c.UpdatedAt = now
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, ErrCouponNotFound) {
		return fault.New(fault.NotFound, ErrCouponNotFound, "Coupon not found.")
	}
	return errors.Wrap(err, op)
}
