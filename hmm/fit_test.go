package hmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/GilbertHan1011/statepeaks/emission"
	"github.com/GilbertHan1011/statepeaks/tabular"
)

// assertStochastic checks the §8-style parameter invariants: priors
// and every transition row sum to 1 after exponentiation.
func assertStochastic(t *testing.T, m *Model) {
	t.Helper()
	sum := 0.0
	for _, lp := range m.logPriors {
		sum += math.Exp(lp)
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "priors")

	for s, row := range m.logTransitions {
		sum = 0.0
		for _, lp := range row {
			sum += math.Exp(lp)
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "transition row %d", s)
	}
}

func TestFitLikelihoodMonotone(t *testing.T) {
	src := rand.NewSource(7)

	for _, rows := range []int{10, 50, 200} {
		truth := twoStatePoisson(t, 1, 20)
		tbl, err := truth.Sample(rows, src)
		require.NoError(t, err)

		m := twoStatePoisson(t, 2, 10)
		res, err := m.Fit(tbl, FitOptions{Threshold: 1e-6, MaxIterations: 30})
		require.NoError(t, err)

		for i := 1; i < len(res.LogLikelihoods); i++ {
			assert.GreaterOrEqual(t, res.LogLikelihoods[i], res.LogLikelihoods[i-1]-1e-8,
				"rows=%d iteration %d", rows, i)
		}
		assert.Zero(t, m.Warnings.LogLikelihoodDecreased)
		assertStochastic(t, m)
	}
}

func TestFitRecoversSeparatedRates(t *testing.T) {
	src := rand.NewSource(11)
	truth := twoStatePoisson(t, 1, 50)
	tbl, err := truth.Sample(2000, src)
	require.NoError(t, err)

	m := twoStatePoisson(t, 3, 30)
	_, err = m.Fit(tbl, FitOptions{Threshold: 1e-6, MaxIterations: 100})
	require.NoError(t, err)

	r0 := m.Binding().SchemeAt(0, 0).(*emission.Poisson).Rate
	r1 := m.Binding().SchemeAt(1, 0).(*emission.Poisson).Rate
	lo, hi := math.Min(r0, r1), math.Max(r0, r1)
	assert.InDelta(t, 1.0, lo, 0.5)
	assert.InDelta(t, 50.0, hi, 5.0)
}

func TestFitMulti(t *testing.T) {
	src := rand.NewSource(3)
	truth := twoStatePoisson(t, 2, 25)

	tables := make([]*tabular.Table, 3)
	for i := range tables {
		tbl, err := truth.Sample(150, src)
		require.NoError(t, err)
		tables[i] = tbl
	}

	m := twoStatePoisson(t, 4, 15)
	res, err := m.FitMulti(tables, FitOptions{Threshold: 1e-6, MaxIterations: 50})
	require.NoError(t, err)

	for i := 1; i < len(res.LogLikelihoods); i++ {
		assert.GreaterOrEqual(t, res.LogLikelihoods[i], res.LogLikelihoods[i-1]-1e-8, "iteration %d", i)
	}
	assertStochastic(t, m)

	// The joint likelihood equals the sum over sequences.
	total := 0.0
	for _, tbl := range tables {
		ll, err := m.LogLikelihood(tbl)
		require.NoError(t, err)
		total += ll
	}
	assert.InDelta(t, total, res.LogLikelihood(), 1e-6)
}

func TestFitIterationCapIsNotError(t *testing.T) {
	src := rand.NewSource(5)
	truth := twoStatePoisson(t, 1, 8)
	tbl, err := truth.Sample(100, src)
	require.NoError(t, err)

	m := twoStatePoisson(t, 2, 6)
	res, err := m.Fit(tbl, FitOptions{Threshold: 1e-15, MaxIterations: 3})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
}

func TestEvaluateDoesNotUpdateParameters(t *testing.T) {
	m := twoStatePoisson(t, 1, 10)
	tbl := countTable(t, []int{0, 12, 1})

	before := m.LogPriors()
	gamma, err := m.Evaluate(tbl)
	require.NoError(t, err)
	assert.Equal(t, before, m.LogPriors())

	require.Len(t, gamma, 2)
	for row := 0; row < tbl.RowCount(); row++ {
		sum := math.Exp(gamma[0][row]) + math.Exp(gamma[1][row])
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestModelConstructionErrors(t *testing.T) {
	binding, err := NewFreeBinding([][]emission.Scheme{
		{emission.NewPoisson(1)},
		{emission.NewPoisson(2)},
	})
	require.NoError(t, err)

	_, err = NewModel(1, binding)
	assert.Error(t, err)

	_, err = NewModel(2, nil)
	assert.Error(t, err)

	_, err = NewModelWithParams([]float64{0.7, 0.7}, [][]float64{{0.5, 0.5}, {0.5, 0.5}}, binding)
	assert.Error(t, err)

	_, err = NewModelWithParams([]float64{0.5, 0.5}, [][]float64{{0.9, 0.2}, {0.5, 0.5}}, binding)
	assert.Error(t, err)
}

func TestDegreesOfFreedom(t *testing.T) {
	m := twoStatePoisson(t, 1, 10)
	// (2-1) priors + 2*(2-1) transitions + 2 Poisson rates
	assert.Equal(t, 5, m.DegreesOfFreedom())
}

func TestFitRejectsEmptyInput(t *testing.T) {
	m := twoStatePoisson(t, 1, 10)
	_, err := m.FitMulti(nil, FitOptions{})
	assert.Error(t, err)
}
