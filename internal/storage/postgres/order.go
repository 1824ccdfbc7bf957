package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, order_number, customer_id, subtotal, discount_amount, delivery_fee,
		tax_amount, total_amount, status, payment_status, payment_method,
		COALESCE(coupon_id, ''), coupon_code, notes, customer_name, customer_email,
		customer_phone, customer_address, customer_city, customer_landmark,
		customer_lat, customer_lng, created_at, updated_at`

	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	getOrderItemsSQL = `SELECT product_id, product_name, product_image, quantity,
		unit_price, discount, total
		FROM order_items WHERE order_id = $1 ORDER BY position`

	insertOrderSQL = `INSERT INTO orders (id, order_number, customer_id, subtotal,
		discount_amount, delivery_fee, tax_amount, total_amount, status, payment_status,
		payment_method, coupon_id, coupon_code, notes, customer_name, customer_email,
		customer_phone, customer_address, customer_city, customer_landmark,
		customer_lat, customer_lng, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id,
		product_name, product_image, quantity, unit_price, discount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3,
		notes = COALESCE($4, notes), updated_at = $5
		WHERE id = $1`

	insertHistorySQL = `INSERT INTO order_status_history (id, order_id, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	listHistorySQL = `SELECT id, order_id, status, notes, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, seq`
)

const orderNumberConstraint = "orders_order_number_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// FindByID returns the order with its items.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	o, err := findOrder(ctx, r.pool, getOrderSQL, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	return o, nil
}

// History returns the status history of an order, oldest first.
func (r *OrderRepository) History(ctx context.Context, orderID string) ([]order.StatusHistory, error) {
	rows, err := r.pool.Query(ctx, listHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing history of order %q: %w", orderID, err)
	}
	history, err := pgx.CollectRows(rows, scanHistory)
	if err != nil {
		return nil, fmt.Errorf("listing history of order %q: %w", orderID, err)
	}
	return history, nil
}

// Create persists the order, its items, the initial history entry and the
// coupon redemption in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, initial order.StatusHistory) error {
	_, err := withTx(ctx, r.pool, "order.Create", func(ctx context.Context, tx pgx.Tx) (struct{}, error) {
		var lat, lng *float64
		if c := o.Customer.Coordinates; c != nil {
			lat, lng = lo.ToPtr(c.Lat), lo.ToPtr(c.Lng)
		}

		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.OrderNumber, o.CustomerID, o.Subtotal, o.DiscountAmount, o.DeliveryFee,
			o.TaxAmount, o.TotalAmount, string(o.Status), string(o.PaymentStatus), o.PaymentMethod,
			o.CouponID, o.CouponCode, o.Notes, o.Customer.Name, o.Customer.Email,
			o.Customer.Phone, o.Customer.Address, o.Customer.City, o.Customer.Landmark,
			lat, lng, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, orderNumberConstraint) {
				return struct{}{}, order.ErrDuplicateOrderNumber
			}
			return struct{}{}, fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		batch := &pgx.Batch{}
		for i, item := range o.Items {
			batch.Queue(insertOrderItemSQL,
				o.ID, i, item.ProductID, item.ProductName, item.ProductImage,
				item.Quantity, item.UnitPrice, item.Discount, item.Total,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return struct{}{}, fmt.Errorf("creating items of order %q: %w", o.ID, err)
		}

		if err := appendHistory(ctx, tx, initial); err != nil {
			return struct{}{}, err
		}

		if o.CouponID != "" {
			if _, err := redeem(ctx, tx, o.CouponID, o.ID); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Transact runs fn in a single transaction.
func (r *OrderRepository) Transact(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	_, err := withTx(ctx, r.pool, "order.Transact", func(ctx context.Context, tx pgx.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, orderTx{tx: tx})
	})
	return err
}

type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = orderTx{}

func (t orderTx) LockByID(ctx context.Context, id string) (*order.Order, error) {
	return findOrder(ctx, t.tx, lockOrderSQL, id)
}

func (t orderTx) Update(ctx context.Context, id string, c order.Change) error {
	tag, err := t.tx.Exec(ctx, updateOrderSQL,
		id, string(c.Status), string(c.PaymentStatus), c.Notes, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (t orderTx) AppendHistory(ctx context.Context, h order.StatusHistory) error {
	return appendHistory(ctx, t.tx, h)
}

func appendHistory(ctx context.Context, q querier, h order.StatusHistory) error {
	_, err := q.Exec(ctx, insertHistorySQL, h.ID, h.OrderID, string(h.Status), h.Notes, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending history to order %q: %w", h.OrderID, err)
	}
	return nil
}

func findOrder(ctx context.Context, q querier, sql, id string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentStatus string
		lat, lng      *float64
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.Subtotal, &o.DiscountAmount, &o.DeliveryFee,
		&o.TaxAmount, &o.TotalAmount, &status, &paymentStatus, &o.PaymentMethod,
		&o.CouponID, &o.CouponCode, &o.Notes, &o.Customer.Name, &o.Customer.Email,
		&o.Customer.Phone, &o.Customer.Address, &o.Customer.City, &o.Customer.Landmark,
		&lat, &lng, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	if lat != nil && lng != nil {
		o.Customer.Coordinates = &address.Coordinates{Lat: *lat, Lng: *lng}
	}
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item     order.Item
		quantity int32
	)
	err := row.Scan(
		&item.ProductID, &item.ProductName, &item.ProductImage, &quantity,
		&item.UnitPrice, &item.Discount, &item.Total,
	)
	item.Quantity = int(quantity)
	return item, err
}

func scanHistory(row pgx.CollectableRow) (order.StatusHistory, error) {
	var (
		h      order.StatusHistory
		status string
	)
	err := row.Scan(&h.ID, &h.OrderID, &status, &h.Notes, &h.CreatedAt)
	h.Status = order.Status(status)
	return h, err
}
