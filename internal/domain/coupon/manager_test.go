package coupon

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/fault"
)

// memRepo is an in-memory Repository keyed by ID.
type memRepo struct {
	byID map[string]Coupon
}

func newMemRepo() *memRepo {
	return &memRepo{byID: make(map[string]Coupon)}
}

func (m *memRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	for _, c := range m.byID {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, ErrCouponNotFound
}

func (m *memRepo) FindByID(_ context.Context, id string) (*Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return &c, nil
}

func (m *memRepo) List(_ context.Context) ([]Coupon, error) {
	out := make([]Coupon, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *memRepo) Save(_ context.Context, c *Coupon) error {
	for id, other := range m.byID {
		if id != c.ID && other.Code == c.Code {
			return ErrDuplicateCode
		}
	}
	m.byID[c.ID] = *c
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrCouponNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memRepo) IncrementUsage(_ context.Context, id string) error {
	c, ok := m.byID[id]
	if !ok {
		return ErrCouponNotFound
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrCouponUsageLimitReached
	}
	c.UsedCount++
	m.byID[id] = c
	return nil
}

func (m *memRepo) Redeem(ctx context.Context, couponID, _ string) (bool, error) {
	return true, m.IncrementUsage(ctx, couponID)
}

func newTestManager(repo *memRepo) *Manager {
	m := NewManager(repo)
	seq := 0
	m.newID = func() string {
		seq++
		return "coupon-" + strconv.Itoa(seq)
	}
	m.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestInput_Validate(t *testing.T) {
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	valid := Input{Code: "SAVE10", Name: "Save 10", Type: TypePercentage, Value: d("10"), IsActive: true}

	tests := []struct {
		name   string
		mutate func(in *Input)
		want   string
	}{
		{name: "valid", mutate: func(*Input) {}},
		{name: "blank code", mutate: func(in *Input) { in.Code = " " }, want: "Coupon code is required."},
		{name: "blank name", mutate: func(in *Input) { in.Name = "" }, want: "Coupon name is required."},
		{name: "unknown type", mutate: func(in *Input) { in.Type = "BOGO" }, want: `Coupon type "BOGO" is not supported.`},
		{name: "negative value", mutate: func(in *Input) { in.Value = d("-1") }, want: "Coupon value must not be negative."},
		{name: "percentage over 100", mutate: func(in *Input) { in.Value = d("100.01") }, want: "Percentage coupons cannot exceed 100%."},
		{name: "flat over 100 is fine", mutate: func(in *Input) { in.Type = TypeFlat; in.Value = d("250") }},
		{name: "negative minimum", mutate: func(in *Input) { in.MinOrderAmount = dp("-5") }, want: "Minimum order amount must not be negative."},
		{
			name:   "flat value with three decimals",
			mutate: func(in *Input) { in.Type = TypeFlat; in.Value = d("10.555") },
			want:   "Coupon value must have at most 2 decimal places and 10 integer digits.",
		},
		{
			name:   "flat value too large to store",
			mutate: func(in *Input) { in.Type = TypeFlat; in.Value = d("1e20000000") },
			want:   "Coupon value must have at most 2 decimal places and 10 integer digits.",
		},
		{
			name:   "minimum too large to store",
			mutate: func(in *Input) { in.MinOrderAmount = dp("10000000000") },
			want:   "Minimum order amount must have at most 2 decimal places and 10 integer digits.",
		},
		{
			name:   "maximum discount with three decimals",
			mutate: func(in *Input) { in.MaxDiscountAmount = dp("0.125") },
			want:   "Maximum discount amount must have at most 2 decimal places and 10 integer digits.",
		},
		{name: "trailing zeros are fine", mutate: func(in *Input) { in.MaxDiscountAmount = dp("25.5000") }},
		{name: "start after end", mutate: func(in *Input) { in.StartDate = &start; in.EndDate = &end }, want: "Coupon start date must not be after its end date."},
		{name: "negative usage limit", mutate: func(in *Input) { in.UsageLimit = intp(-1) }, want: "Usage limit must not be negative."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			err := in.Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidCoupon)
			assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestManager_CreateNormalizesCode(t *testing.T) {
	repo := newMemRepo()
	m := newTestManager(repo)

	c, err := m.Create(context.Background(), Input{Code: " save10 ", Name: "Save", Type: TypePercentage, Value: d("10"), IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.Equal(t, "coupon-1", c.ID)

	stored, err := repo.FindByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)
}

func TestManager_CreateDuplicateCode(t *testing.T) {
	repo := newMemRepo()
	m := newTestManager(repo)
	in := Input{Code: "FLAT50", Name: "Flat", Type: TypeFlat, Value: d("50"), IsActive: true}

	_, err := m.Create(context.Background(), in)
	require.NoError(t, err)

	in.Code = "flat50"
	_, err = m.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrDuplicateCode)
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
}

func TestManager_UpdateKeepsUsage(t *testing.T) {
	repo := newMemRepo()
	m := newTestManager(repo)

	c, err := m.Create(context.Background(), Input{Code: "FLAT50", Name: "Flat", Type: TypeFlat, Value: d("50"), IsActive: true})
	require.NoError(t, err)
	require.NoError(t, repo.IncrementUsage(context.Background(), c.ID))

	updated, err := m.Update(context.Background(), c.ID, Input{Code: "FLAT60", Name: "Flat", Type: TypeFlat, Value: d("60"), IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, "FLAT60", updated.Code)
	assert.Equal(t, 1, updated.UsedCount)
	assert.False(t, updated.IsActive)
}

func TestManager_NotFound(t *testing.T) {
	m := newTestManager(newMemRepo())
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))

	_, err = m.Update(ctx, "missing", Input{Code: "X", Name: "X", Type: TypeFlat, Value: d("1")})
	assert.Equal(t, fault.NotFound, fault.KindOf(err))

	err = m.Delete(ctx, "missing")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestManager_Upsert(t *testing.T) {
	repo := newMemRepo()
	m := newTestManager(repo)
	ctx := context.Background()
	in := Input{Code: "save10", Name: "Save", Type: TypePercentage, Value: d("10"), IsActive: true}

	c, created, err := m.Upsert(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, repo.IncrementUsage(ctx, c.ID))

	in.Value = d("15")
	updated, created, err := m.Upsert(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, updated.ID)
	assert.True(t, updated.Value.Equal(d("15")))
	assert.Equal(t, 1, updated.UsedCount)
	assert.Len(t, repo.byID, 1)

	_, _, err = m.Upsert(ctx, Input{Code: "", Name: "X", Type: TypeFlat})
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
}
