package fault

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSample = errors.New("sample")

func TestError_WrapsReason(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(PolicyViolation, errSample, "Minimum is %s.", "500.00"))

	require.ErrorIs(t, err, errSample)
	assert.Equal(t, PolicyViolation, KindOf(err))

	fe, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "Minimum is 500.00.", fe.Message)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("db down")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestResultOf(t *testing.T) {
	res, err := ResultOf(nil)
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = ResultOf(New(NotFound, errSample, "Order not found."))
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, NotFound, res.ErrorKind)
	assert.Equal(t, "Order not found.", res.Message)

	infra := errors.New("connection reset")
	_, err = ResultOf(infra)
	require.ErrorIs(t, err, infra)
}
