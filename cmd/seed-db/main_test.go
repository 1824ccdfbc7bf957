package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/domain/auth"
)

func TestDemoCoupons(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	codes := make(map[string]bool)
	for _, in := range demoCoupons(now) {
		require.NoError(t, in.Validate(), in.Code)
		codes[in.Code] = true
		if in.Code == "OLD20" {
			require.NotNil(t, in.EndDate)
			assert.True(t, in.EndDate.Before(now))
		}
	}
	assert.Equal(t, map[string]bool{"SAVE10": true, "FLAT50": true, "OLD20": true, "FREESHIP": true}, codes)
}

func TestDemoProducts(t *testing.T) {
	ids := make(map[string]bool)
	for _, p := range demoProducts() {
		assert.False(t, ids[p.ID], "duplicate id %s", p.ID)
		ids[p.ID] = true
		assert.True(t, p.Price.IsPositive())
	}
	assert.Len(t, fakeProducts(3), 3)
}

type keyRecorder struct {
	keys []auth.APIKeyInfo
}

func (r *keyRecorder) Create(_ context.Context, k auth.APIKeyInfo) error {
	r.keys = append(r.keys, k)
	return nil
}

func TestSeedAPIKey(t *testing.T) {
	repo := &keyRecorder{}
	require.NoError(t, seedAPIKey(context.Background(), zaptest.NewLogger(t), repo, "secret", "pepper"))

	require.Len(t, repo.keys, 1)
	k := repo.keys[0]
	assert.Equal(t, auth.HashKey([]byte("pepper"), "secret"), k.KeyHash)
	assert.True(t, k.HasScope(auth.ScopeAdmin))
}
