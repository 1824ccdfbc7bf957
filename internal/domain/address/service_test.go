package address

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/fault"
)

// memRepo is a transactional in-memory Repository: Transact works on a copy
// and publishes it only when fn succeeds.
type memRepo struct {
	rows    map[string]Address
	saveErr error
	locked  []string
}

func newMemRepo(addrs ...Address) *memRepo {
	m := &memRepo{rows: make(map[string]Address)}
	for _, a := range addrs {
		m.rows[a.ID] = a
	}
	return m
}

func (m *memRepo) FindByID(_ context.Context, id string) (*Address, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

func (m *memRepo) ListByCustomer(_ context.Context, customerID string) ([]Address, error) {
	var out []Address
	for _, a := range m.rows {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{repo: m, rows: make(map[string]Address, len(m.rows))}
	for id, a := range m.rows {
		tx.rows[id] = a
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.rows = tx.rows
	return nil
}

type memTx struct {
	repo *memRepo
	rows map[string]Address
}

func (t *memTx) LockCustomer(_ context.Context, customerID string) error {
	t.repo.locked = append(t.repo.locked, customerID)
	return nil
}

func (t *memTx) FindByID(_ context.Context, id string) (*Address, error) {
	a, ok := t.rows[id]
	if !ok {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

func (t *memTx) ClearDefaultsForCustomer(_ context.Context, customerID, exceptID string) error {
	for id, a := range t.rows {
		if a.CustomerID == customerID && id != exceptID && a.IsDefault {
			a.IsDefault = false
			t.rows[id] = a
		}
	}
	return nil
}

func (t *memTx) Save(_ context.Context, a *Address) error {
	if t.repo.saveErr != nil {
		return t.repo.saveErr
	}
	t.rows[a.ID] = *a
	return nil
}

func (t *memTx) Delete(_ context.Context, id string) error {
	delete(t.rows, id)
	return nil
}

func (m *memRepo) defaults(customerID string) []string {
	var ids []string
	for id, a := range m.rows {
		if a.CustomerID == customerID && a.IsDefault {
			ids = append(ids, id)
		}
	}
	return ids
}

func newTestService(repo *memRepo) *Service {
	s := NewService(repo)
	seq := 0
	s.newID = func() string {
		seq++
		return "new-" + strconv.Itoa(seq)
	}
	s.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func homeInput(isDefault bool) Input {
	return Input{
		Type:      TypeHome,
		Name:      "Home",
		Address:   "12 MG Road",
		City:      "Bengaluru",
		IsDefault: isDefault,
	}
}

func TestService_CreateDefaultReplacesPrevious(t *testing.T) {
	repo := newMemRepo(
		Address{ID: "A", CustomerID: "cust-1", Type: TypeHome, Name: "A", Address: "a", City: "c", IsDefault: true},
		Address{ID: "X", CustomerID: "cust-2", Type: TypeHome, Name: "X", Address: "x", City: "c", IsDefault: true},
	)
	s := newTestService(repo)

	b, err := s.Create(context.Background(), "cust-1", homeInput(true))
	require.NoError(t, err)
	assert.True(t, b.IsDefault)

	assert.False(t, repo.rows["A"].IsDefault)
	assert.True(t, repo.rows[b.ID].IsDefault)
	assert.Equal(t, []string{b.ID}, repo.defaults("cust-1"))
	// Other customers are untouched.
	assert.True(t, repo.rows["X"].IsDefault)
}

func TestService_SetDefaultLeavesExactlyOne(t *testing.T) {
	for _, priorDefaults := range []int{0, 1} {
		t.Run(strconv.Itoa(priorDefaults)+" prior defaults", func(t *testing.T) {
			repo := newMemRepo(
				Address{ID: "A", CustomerID: "cust-1", IsDefault: priorDefaults == 1},
				Address{ID: "B", CustomerID: "cust-1"},
			)
			s := newTestService(repo)

			_, err := s.SetDefault(context.Background(), "cust-1", "B")
			require.NoError(t, err)

			assert.Equal(t, []string{"B"}, repo.defaults("cust-1"))
			assert.Equal(t, []string{"cust-1"}, repo.locked)
		})
	}
}

func TestService_SetDefaultIsIdempotent(t *testing.T) {
	repo := newMemRepo(Address{ID: "A", CustomerID: "cust-1", IsDefault: true})
	s := newTestService(repo)

	for range 2 {
		_, err := s.SetDefault(context.Background(), "cust-1", "A")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"A"}, repo.defaults("cust-1"))
}

func TestService_UpdateWithoutDefaultTouchesNothingElse(t *testing.T) {
	repo := newMemRepo(
		Address{ID: "A", CustomerID: "cust-1", IsDefault: true},
		Address{ID: "B", CustomerID: "cust-1", IsDefault: false},
	)
	s := newTestService(repo)

	_, err := s.Update(context.Background(), "cust-1", "A", homeInput(false))
	require.NoError(t, err)

	// Unsetting the flag on the former default leaves zero defaults.
	assert.Empty(t, repo.defaults("cust-1"))
	assert.Equal(t, "12 MG Road", repo.rows["A"].Address)
}

func TestService_UpdateDefaultExcludesTarget(t *testing.T) {
	repo := newMemRepo(
		Address{ID: "A", CustomerID: "cust-1", IsDefault: true},
		Address{ID: "B", CustomerID: "cust-1"},
	)
	s := newTestService(repo)

	updated, err := s.Update(context.Background(), "cust-1", "B", homeInput(true))
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)
	assert.Equal(t, []string{"B"}, repo.defaults("cust-1"))
}

func TestService_ForeignAndMissingAreIndistinguishable(t *testing.T) {
	repo := newMemRepo(Address{ID: "A", CustomerID: "cust-1", IsDefault: true})
	s := newTestService(repo)
	ctx := context.Background()

	var messages []string
	for _, id := range []string{"A", "missing"} {
		_, err := s.SetDefault(ctx, "intruder", id)
		require.ErrorIs(t, err, ErrAddressNotFound)
		assert.Equal(t, fault.NotFound, fault.KindOf(err))
		messages = append(messages, err.Error())
	}
	assert.Equal(t, messages[0], messages[1])

	_, err := s.Get(ctx, "intruder", "A")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
	err = s.Delete(ctx, "intruder", "A")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
	assert.True(t, repo.rows["A"].IsDefault)
}

func TestService_FailedSaveRollsBack(t *testing.T) {
	repo := newMemRepo(Address{ID: "A", CustomerID: "cust-1", IsDefault: true})
	repo.saveErr = errors.New("disk full")
	s := newTestService(repo)

	_, err := s.Create(context.Background(), "cust-1", homeInput(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save address")

	// The cleared default was not published.
	assert.True(t, repo.rows["A"].IsDefault)
	assert.Len(t, repo.rows, 1)
}

func TestService_Delete(t *testing.T) {
	repo := newMemRepo(Address{ID: "A", CustomerID: "cust-1", IsDefault: true})
	s := newTestService(repo)

	require.NoError(t, s.Delete(context.Background(), "cust-1", "A"))
	assert.Empty(t, repo.rows)
}

func TestInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		want   string
	}{
		{name: "valid", mutate: func(*Input) {}},
		{name: "bad type", mutate: func(in *Input) { in.Type = "office" }, want: "Address type must be home, work or other."},
		{name: "blank name", mutate: func(in *Input) { in.Name = " " }, want: "Address name is required."},
		{name: "blank address", mutate: func(in *Input) { in.Address = "" }, want: "Street address is required."},
		{name: "blank city", mutate: func(in *Input) { in.City = "" }, want: "City is required."},
		{name: "latitude out of range", mutate: func(in *Input) { in.Coordinates = &Coordinates{Lat: 91} }, want: "Coordinates are out of range."},
		{name: "valid coordinates", mutate: func(in *Input) { in.Coordinates = &Coordinates{Lat: 12.97, Lng: 77.59} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := homeInput(false)
			tt.mutate(&in)

			err := in.Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidAddress)
			assert.EqualError(t, err, tt.want)
		})
	}
}
