package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/address"
)

const (
	addressColumns = `id, customer_id, type, name, address, city, landmark, lat, lng,
		is_default, created_at, updated_at`

	getAddressSQL = `SELECT ` + addressColumns + ` FROM customer_addresses WHERE id = $1`

	listAddressesSQL = `SELECT ` + addressColumns + ` FROM customer_addresses
		WHERE customer_id = $1 ORDER BY is_default DESC, created_at`

	lockCustomerAddressesSQL = `SELECT pg_advisory_xact_lock(hashtext('customer_addresses:' || $1))`

	clearDefaultAddressesSQL = `UPDATE customer_addresses SET is_default = FALSE, updated_at = now()
		WHERE customer_id = $1 AND is_default AND id <> $2`

	saveAddressSQL = `INSERT INTO customer_addresses (id, customer_id, type, name, address,
		city, landmark, lat, lng, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			landmark = EXCLUDED.landmark,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			is_default = EXCLUDED.is_default,
			updated_at = EXCLUDED.updated_at`

	deleteAddressSQL = `DELETE FROM customer_addresses WHERE id = $1`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// FindByID returns the address with the given ID.
func (r *AddressRepository) FindByID(ctx context.Context, id string) (*address.Address, error) {
	return findAddress(ctx, r.pool, id)
}

// ListByCustomer returns the customer's addresses, default first.
func (r *AddressRepository) ListByCustomer(ctx context.Context, customerID string) ([]address.Address, error) {
	rows, err := r.pool.Query(ctx, listAddressesSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %q: %w", customerID, err)
	}
	addrs, err := pgx.CollectRows(rows, scanAddress)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %q: %w", customerID, err)
	}
	return addrs, nil
}

// Transact runs fn in a single transaction.
func (r *AddressRepository) Transact(ctx context.Context, fn func(ctx context.Context, tx address.Tx) error) error {
	_, err := withTx(ctx, r.pool, "address.Transact", func(ctx context.Context, tx pgx.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, addressTx{tx: tx})
	})
	return err
}

type addressTx struct {
	tx pgx.Tx
}

var _ address.Tx = addressTx{}

// LockCustomer takes a transaction-scoped advisory lock on the customer so
// that concurrent default changes are serialized even when the customer has
// no address rows yet.
func (t addressTx) LockCustomer(ctx context.Context, customerID string) error {
	if _, err := t.tx.Exec(ctx, lockCustomerAddressesSQL, customerID); err != nil {
		return fmt.Errorf("locking addresses of %q: %w", customerID, err)
	}
	return nil
}

func (t addressTx) FindByID(ctx context.Context, id string) (*address.Address, error) {
	return findAddress(ctx, t.tx, id)
}

func (t addressTx) ClearDefaultsForCustomer(ctx context.Context, customerID, exceptID string) error {
	if _, err := t.tx.Exec(ctx, clearDefaultAddressesSQL, customerID, exceptID); err != nil {
		return fmt.Errorf("clearing default addresses of %q: %w", customerID, err)
	}
	return nil
}

func (t addressTx) Save(ctx context.Context, a *address.Address) error {
	var lat, lng *float64
	if c := a.Coordinates; c != nil {
		lat, lng = lo.ToPtr(c.Lat), lo.ToPtr(c.Lng)
	}
	_, err := t.tx.Exec(ctx, saveAddressSQL,
		a.ID, a.CustomerID, string(a.Type), a.Name, a.Address, a.City, a.Landmark,
		lat, lng, a.IsDefault, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving address %q: %w", a.ID, err)
	}
	return nil
}

func (t addressTx) Delete(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, deleteAddressSQL, id)
	if err != nil {
		return fmt.Errorf("deleting address %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrAddressNotFound
	}
	return nil
}

func findAddress(ctx context.Context, q querier, id string) (*address.Address, error) {
	rows, err := q.Query(ctx, getAddressSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	return &a, nil
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var (
		a        address.Address
		typ      string
		lat, lng *float64
	)
	err := row.Scan(
		&a.ID, &a.CustomerID, &typ, &a.Name, &a.Address, &a.City, &a.Landmark,
		&lat, &lng, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt,
	)
	a.Type = address.Type(typ)
	if lat != nil && lng != nil {
		a.Coordinates = &address.Coordinates{Lat: *lat, Lng: *lng}
	}
	return a, err
}
