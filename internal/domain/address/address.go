// Package address manages customers' saved shipping addresses and keeps at
// most one of them marked as the default.
package address

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/fault"
)

// Type labels an address.
type Type string

const (
	TypeHome  Type = "home"
	TypeWork  Type = "work"
	TypeOther Type = "other"
)

// Valid reports whether t is a known address type.
func (t Type) Valid() bool {
	switch t {
	case TypeHome, TypeWork, TypeOther:
		return true
	default:
		return false
	}
}

var (
	// ErrAddressNotFound is returned for absent addresses and for addresses
	// owned by another customer alike.
	ErrAddressNotFound = errors.New("address not found")
	// ErrInvalidAddress is returned when an address input is malformed.
	ErrInvalidAddress = errors.New("invalid address")
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Address is a saved shipping location belonging to one customer.
type Address struct {
	ID          string
	CustomerID  string
	Type        Type
	Name        string
	Address     string
	City        string
	Landmark    string
	Coordinates *Coordinates
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Input is the customer-editable part of an address.
type Input struct {
	Type        Type
	Name        string
	Address     string
	City        string
	Landmark    string
	Coordinates *Coordinates
	IsDefault   bool
}

// Validate checks required fields and coordinate ranges.
func (in Input) Validate() error {
	invalid := func(msg string) error {
		return fault.New(fault.InvalidInput, ErrInvalidAddress, "%s", msg)
	}

	if !in.Type.Valid() {
		return invalid("Address type must be home, work or other.")
	}
	if strings.TrimSpace(in.Name) == "" {
		return invalid("Address name is required.")
	}
	if strings.TrimSpace(in.Address) == "" {
		return invalid("Street address is required.")
	}
	if strings.TrimSpace(in.City) == "" {
		return invalid("City is required.")
	}
	if c := in.Coordinates; c != nil {
		if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
			return invalid("Coordinates are out of range.")
		}
	}
	return nil
}

// Repository is the address store.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Address, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Address, error)
	// Transact runs fn in a single transaction; all Tx calls made by fn
	// commit together or not at all.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view of the address store.
type Tx interface {
	// LockCustomer serializes address writes of one customer until the
	// transaction ends.
	LockCustomer(ctx context.Context, customerID string) error
	FindByID(ctx context.Context, id string) (*Address, error)
	// ClearDefaultsForCustomer unsets IsDefault on every address of the
	// customer except exceptID (which may be empty).
	ClearDefaultsForCustomer(ctx context.Context, customerID, exceptID string) error
	// Save inserts or updates a.
	Save(ctx context.Context, a *Address) error
	Delete(ctx context.Context, id string) error
}
