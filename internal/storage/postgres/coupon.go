package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, name, description, type, value, min_order_amount,
		max_discount_amount, start_date, end_date, is_active, usage_limit, used_count,
		created_at, updated_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`
	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	listCouponsSQL     = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, code`

	saveCouponSQL = `INSERT INTO coupons (id, code, name, description, type, value,
		min_order_amount, max_discount_amount, start_date, end_date, is_active,
		usage_limit, used_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			is_active = EXCLUDED.is_active,
			usage_limit = EXCLUDED.usage_limit,
			updated_at = EXCLUDED.updated_at`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	incrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`

	insertRedemptionSQL = `INSERT INTO coupon_redemptions (coupon_id, order_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`

	couponCodeConstraint = "coupons_code_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively. Inactive and
// expired coupons are returned too: the engine reports why they do not
// apply. Returns coupon.ErrCouponNotFound when nothing matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeSQL, code)
}

// FindByID returns the coupon with the given ID.
func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) findOne(ctx context.Context, sql, arg string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}
	return &c, nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

// Save inserts or updates the coupon. The usage counter of an existing row
// is never overwritten so concurrent redemptions are not lost.
func (r *CouponRepository) Save(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, saveCouponSQL,
		c.ID, c.Code, c.Name, c.Description, string(c.Type), c.Value,
		c.MinOrderAmount, c.MaxDiscountAmount, c.StartDate, c.EndDate, c.IsActive,
		c.UsageLimit, c.UsedCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, couponCodeConstraint) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("saving coupon %q: %w", c.Code, err)
	}
	return nil
}

// Delete removes the coupon. Orders keep their coupon code snapshot.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

// IncrementUsage atomically bumps the usage counter while it is below the
// limit.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) error {
	return incrementUsage(ctx, r.pool, id)
}

// Redeem records the redemption of the coupon by orderID and consumes one
// use, both in one transaction. A repeated redemption for the same order
// reports false and consumes nothing.
func (r *CouponRepository) Redeem(ctx context.Context, couponID, orderID string) (bool, error) {
	return withTx(ctx, r.pool, "coupon.Redeem", func(ctx context.Context, tx pgx.Tx) (bool, error) {
		return redeem(ctx, tx, couponID, orderID)
	})
}

func redeem(ctx context.Context, q querier, couponID, orderID string) (bool, error) {
	tag, err := q.Exec(ctx, insertRedemptionSQL, couponID, orderID)
	if err != nil {
		return false, fmt.Errorf("recording redemption of coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := incrementUsage(ctx, q, couponID); err != nil {
		return false, err
	}
	return true, nil
}

func incrementUsage(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx, incrementCouponUsageSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing usage of coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, couponExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", id, err)
	}
	if !exists {
		return coupon.ErrCouponNotFound
	}
	return coupon.ErrCouponUsageLimitReached
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		couponType string
		usageLimit *int32
		usedCount  int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &couponType, &c.Value,
		&c.MinOrderAmount, &c.MaxDiscountAmount, &c.StartDate, &c.EndDate, &c.IsActive,
		&usageLimit, &usedCount, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.Type(couponType)
	c.UsedCount = int(usedCount)
	if usageLimit != nil {
		c.UsageLimit = lo.ToPtr(int(*usageLimit))
	}
	return c, err
}
