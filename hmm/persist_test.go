package hmm

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/GilbertHan1011/statepeaks/emission"
	"github.com/GilbertHan1011/statepeaks/tabular"
)

func constrainedModel(t *testing.T) *Model {
	t.Helper()
	schemes := []emission.Scheme{
		emission.NewPoisson(0.5),
		emission.NewNegBinomial(20, 2),
		emission.NewPoisson(4),
	}
	// Three states, one dimension, one scheme per state.
	binding, err := NewConstrainedBinding(schemes, [][]int{{0}, {1}, {2}})
	require.NoError(t, err)
	m, err := NewModel(3, binding)
	require.NoError(t, err)
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src := rand.NewSource(21)
	m := constrainedModel(t)

	// Fit a little so the parameters are not the defaults.
	tbl, err := m.Sample(200, src)
	require.NoError(t, err)
	_, err = m.Fit(tbl, FitOptions{Threshold: 1e-4, MaxIterations: 10})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))

	back, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, m.NumStates(), back.NumStates())
	assert.Equal(t, m.LogPriors(), back.LogPriors())
	assert.Equal(t, m.LogTransitions(), back.LogTransitions())

	// Emission log-probabilities must match exactly for every
	// (state, dimension, observation) triple.
	probe, err := tabular.New(30, "cov")
	require.NoError(t, err)
	for row := 0; row < probe.RowCount(); row++ {
		probe.SetValue(row, 0, row)
	}
	for s := 0; s < m.NumStates(); s++ {
		for row := 0; row < probe.RowCount(); row++ {
			assert.Equal(t,
				m.Binding().SchemeAt(s, 0).LogProbability(probe, row, 0),
				back.Binding().SchemeAt(s, 0).LogProbability(probe, row, 0),
				"state %d observation %d", s, row)
		}
	}
}

func TestLoadRebuildsDerivedIndices(t *testing.T) {
	// A shared scheme proves the reverse emission-dimension map was
	// rebuilt: its update must aggregate both sharing states.
	schemes := []emission.Scheme{emission.NewPoisson(1), emission.NewPoisson(9)}
	binding, err := NewConstrainedBinding(schemes, [][]int{{0}, {1}, {0}})
	require.NoError(t, err)
	m, err := NewModel(3, binding)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	back, err := Load(&buf)
	require.NoError(t, err)

	tbl, err := tabular.New(2, "cov")
	require.NoError(t, err)
	tbl.SetValue(0, 0, 8)
	tbl.SetValue(1, 0, 4)

	gamma := [][]float64{{1, 0}, {0, 0}, {0, 1}}
	back.Binding().Update(tbl, gamma)

	shared := back.Binding().SchemeAt(0, 0).(*emission.Poisson)
	assert.InDelta(t, 6.0, shared.Rate, 1e-12)
	assert.Same(t, back.Binding().SchemeAt(0, 0), back.Binding().SchemeAt(2, 0))

	// Sampling behaves identically to the original model under the
	// same random stream.
	s1, err := m.Sample(50, rand.NewSource(5))
	require.NoError(t, err)
	m2 := constrainedFresh(t, m)
	s2, err := m2.Sample(50, rand.NewSource(5))
	require.NoError(t, err)
	for row := 0; row < 50; row++ {
		assert.Equal(t, s1.Value(row, 0), s2.Value(row, 0), "row %d", row)
	}
}

// constrainedFresh round-trips a model through its serialized form.
func constrainedFresh(t *testing.T, m *Model) *Model {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	back, err := Load(&buf)
	require.NoError(t, err)
	return back
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	m := constrainedModel(t)
	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))

	var env envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	env.Version = modelVersion + 1
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = Load(bytes.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoadRejectsWrongTypeTag(t *testing.T) {
	m := constrainedModel(t)
	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))

	var env envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	env.Type = "something.else"
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = Load(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestSaveLoadFreeBinding(t *testing.T) {
	binding, err := NewFreeBinding([][]emission.Scheme{
		{emission.NewPoisson(1), emission.NewCategorical(3)},
		{emission.NewNegBinomial(10, 1.5), emission.NewSingular(0)},
	})
	require.NoError(t, err)
	m, err := NewModel(2, binding)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	back, err := Load(&buf)
	require.NoError(t, err)

	fb, ok := back.Binding().(*FreeBinding)
	require.True(t, ok)
	assert.IsType(t, &emission.Poisson{}, fb.Schemes[0][0])
	assert.IsType(t, &emission.Categorical{}, fb.Schemes[0][1])
	assert.IsType(t, &emission.NegBinomial{}, fb.Schemes[1][0])
	assert.IsType(t, &emission.Singular{}, fb.Schemes[1][1])
}
