package hypothesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFisherExactSymmetricTable(t *testing.T) {
	// [[3, 1], [1, 3]]: margins 4/4/4/4, C(8,4) = 70 tables.
	res, err := FisherExact(3, 1, 1, 3)
	require.NoError(t, err)

	assert.InDelta(t, 17.0/70.0, res.Greater, 1e-12)
	assert.InDelta(t, 69.0/70.0, res.Less, 1e-12)
	assert.InDelta(t, 34.0/70.0, res.TwoSided, 1e-12)
	assert.InDelta(t, 2*17.0/70.0, res.TwoSidedDoubled, 1e-12)
}

func TestFisherExactExtremeTable(t *testing.T) {
	res, err := FisherExact(10, 0, 0, 10)
	require.NoError(t, err)

	// The observed table is the most extreme one.
	assert.InDelta(t, 1.0/184756.0, res.Greater, 1e-15)
	assert.InDelta(t, 1.0, res.Less, 1e-12)
	assert.Less(t, res.TwoSided, 1e-4)
}

func TestFisherExactIndependence(t *testing.T) {
	// Perfectly proportional table: no association, p near 1.
	res, err := FisherExact(10, 20, 20, 40)
	require.NoError(t, err)
	assert.Greater(t, res.TwoSided, 0.9)
}

func TestFisherExactMalformed(t *testing.T) {
	_, err := FisherExact(-1, 0, 1, 2)
	assert.Error(t, err)

	_, err = FisherExact(0, 0, 0, 0)
	assert.Error(t, err)
}

func TestStoufferLiptak(t *testing.T) {
	// Combining identical halves stays at 0.5.
	p, err := StoufferLiptak([]float64{0.5, 0.5}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	// Two moderately small p-values reinforce each other.
	p, err = StoufferLiptak([]float64{0.1, 0.1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.035, p, 1e-3)
	assert.Less(t, p, 0.1)

	// A dominant weight pulls the combination toward its p-value.
	p, err = StoufferLiptak([]float64{0.01, 0.99}, []float64{100, 0.01})
	require.NoError(t, err)
	assert.InDelta(t, 0.01, p, 1e-3)
}

func TestStoufferLiptakMalformed(t *testing.T) {
	_, err := StoufferLiptak(nil, nil)
	assert.Error(t, err)

	_, err = StoufferLiptak([]float64{0.5}, []float64{1, 2})
	assert.Error(t, err)

	_, err = StoufferLiptak([]float64{0.5}, []float64{0})
	assert.Error(t, err)

	_, err = StoufferLiptak([]float64{1.5}, nil)
	assert.Error(t, err)
}
