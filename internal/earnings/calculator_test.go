package earnings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatorShare(t *testing.T) {
	t.Run("standard split", func(t *testing.T) {
		got, err := CreatorShare(5000, 1.00, 20)
		require.NoError(t, err)
		assert.InDelta(t, 4.00, got, 1e-9)
	})

	t.Run("zero plays", func(t *testing.T) {
		got, err := CreatorShare(0, 1.00, 20)
		require.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("full commission", func(t *testing.T) {
		got, err := CreatorShare(10000, 2.50, 100)
		require.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("fractional plays below a thousand", func(t *testing.T) {
		got, err := CreatorShare(250, 1.00, 20)
		require.NoError(t, err)
		assert.InDelta(t, 0.2, got, 1e-9)
	})

	t.Run("negative play count", func(t *testing.T) {
		_, err := CreatorShare(-1, 1.00, 20)
		assert.ErrorIs(t, err, ErrInvalidPlayCount)
	})

	t.Run("negative rate", func(t *testing.T) {
		_, err := CreatorShare(1000, -0.5, 20)
		assert.ErrorIs(t, err, ErrInvalidRate)
	})

	t.Run("commission out of range", func(t *testing.T) {
		_, err := CreatorShare(1000, 1.00, 101)
		assert.ErrorIs(t, err, ErrInvalidCommission)

		_, err = CreatorShare(1000, 1.00, -1)
		assert.ErrorIs(t, err, ErrInvalidCommission)
	})
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 4.0, Round2(4.0000001))
	assert.Equal(t, 0.01, Round2(0.005))
	assert.Equal(t, 1.23, Round2(1.2349))
}

func TestAccumulationPrecision(t *testing.T) {
	// Many small accruals must not drift the way per-event rounding would.
	var total float64
	for i := 0; i < 1000; i++ {
		delta, err := CreatorShare(3, 1.00, 20)
		require.NoError(t, err)
		total += delta
	}
	assert.InDelta(t, 2.4, total, 1e-6)
	assert.Equal(t, 2.4, Round2(total))
}
