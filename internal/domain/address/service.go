package address

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/fault"
)

// Service enforces address ownership and the single-default invariant.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewService creates a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func notFound() error {
	return fault.New(fault.NotFound, ErrAddressNotFound, "Address not found.")
}

// Get returns the address if it belongs to customerID.
func (s *Service) Get(ctx context.Context, customerID, id string) (*Address, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAddressNotFound) {
			return nil, notFound()
		}
		return nil, errors.Wrap(err, "find address")
	}
	if a.CustomerID != customerID {
		return nil, notFound()
	}
	return a, nil
}

// List returns all addresses of customerID.
func (s *Service) List(ctx context.Context, customerID string) ([]Address, error) {
	addrs, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return addrs, nil
}

// Create stores a new address. When in.IsDefault is set, every other address
// of the customer loses its default flag in the same transaction.
func (s *Service) Create(ctx context.Context, customerID string, in Input) (*Address, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	a := &Address{
		ID:         s.newID(),
		CustomerID: customerID,
		CreatedAt:  now,
	}
	apply(a, in, now)

	err := s.repo.Transact(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockCustomer(ctx, customerID); err != nil {
			return errors.Wrap(err, "lock customer")
		}
		if a.IsDefault {
			if err := tx.ClearDefaultsForCustomer(ctx, customerID, ""); err != nil {
				return errors.Wrap(err, "clear defaults")
			}
		}
		if err := tx.Save(ctx, a); err != nil {
			return errors.Wrap(err, "save address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Update replaces the editable fields of an address. Setting IsDefault clears
// the flag on the customer's other addresses; unsetting it touches nothing
// else, so the customer may be left without a default.
func (s *Service) Update(ctx context.Context, customerID, id string, in Input) (*Address, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.modify(ctx, customerID, id, func(a *Address, now time.Time) {
		apply(a, in, now)
	})
}

// SetDefault makes the address the customer's only default.
func (s *Service) SetDefault(ctx context.Context, customerID, id string) (*Address, error) {
	return s.modify(ctx, customerID, id, func(a *Address, now time.Time) {
		a.IsDefault = true
		a.UpdatedAt = now
	})
}

// Delete removes an address owned by customerID.
func (s *Service) Delete(ctx context.Context, customerID, id string) error {
	return s.repo.Transact(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := s.owned(ctx, tx, customerID, id); err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return errors.Wrap(err, "delete address")
		}
		return nil
	})
}

func (s *Service) modify(ctx context.Context, customerID, id string, change func(a *Address, now time.Time)) (*Address, error) {
	var out *Address
	err := s.repo.Transact(ctx, func(ctx context.Context, tx Tx) error {
		a, err := s.owned(ctx, tx, customerID, id)
		if err != nil {
			return err
		}

		change(a, s.now())
		if a.IsDefault {
			if err := tx.ClearDefaultsForCustomer(ctx, customerID, a.ID); err != nil {
				return errors.Wrap(err, "clear defaults")
			}
		}
		if err := tx.Save(ctx, a); err != nil {
			return errors.Wrap(err, "save address")
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// owned locks the customer's addresses and loads id, hiding addresses of
// other customers behind the same not-found failure.
func (s *Service) owned(ctx context.Context, tx Tx, customerID, id string) (*Address, error) {
	if err := tx.LockCustomer(ctx, customerID); err != nil {
		return nil, errors.Wrap(err, "lock customer")
	}
	a, err := tx.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAddressNotFound) {
			return nil, notFound()
		}
		return nil, errors.Wrap(err, "find address")
	}
	if a.CustomerID != customerID {
		return nil, notFound()
	}
	return a, nil
}

func apply(a *Address, in Input, now time.Time) {
	a.Type = in.Type
	a.Name = in.Name
	a.Address = in.Address
	a.City = in.City
	a.Landmark = in.Landmark
	a.Coordinates = in.Coordinates
	a.IsDefault = in.IsDefault
	a.UpdatedAt = now
}
