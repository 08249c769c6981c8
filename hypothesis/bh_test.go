package hypothesis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustBHReference(t *testing.T) {
	qvals, err := AdjustBH([]float64{0.2, 0.42, 0.8, 0.01})
	require.NoError(t, err)

	want := []float64{0.4, 0.56, 0.80, 0.04}
	require.Len(t, qvals, 4)
	for i := range want {
		assert.InDelta(t, want[i], qvals[i], 1e-12, "index %d", i)
	}
}

func TestAdjustBHMonotone(t *testing.T) {
	pvals := []float64{0.9, 0.001, 0.02, 0.5, 0.02, 0.3, 0.11}
	qvals, err := AdjustBH(pvals)
	require.NoError(t, err)

	// Sorting q-values by the p-value order must be non-decreasing.
	order := sortedOrder(pvals)
	for k := 1; k < len(order); k++ {
		assert.GreaterOrEqual(t, qvals[order[k]], qvals[order[k-1]])
	}
	for _, q := range qvals {
		assert.LessOrEqual(t, q, 1.0)
		assert.GreaterOrEqual(t, q, 0.0)
	}
}

func TestAdjustBHIdentityForSingle(t *testing.T) {
	qvals, err := AdjustBH([]float64{0.37})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.37}, qvals)
}

func TestAdjustBHMalformed(t *testing.T) {
	_, err := AdjustBH(nil)
	assert.Error(t, err)

	_, err = AdjustBH([]float64{0.1, math.NaN()})
	assert.Error(t, err)

	_, err = AdjustBH([]float64{0.1, 1.2})
	assert.Error(t, err)
}
