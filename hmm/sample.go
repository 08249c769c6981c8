package hmm

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GilbertHan1011/statepeaks/tabular"
)

// StateColumn is the name of the synthetic column appended when
// sampling observations from the model.
const StateColumn = "state"

// SampleStates generates a synthetic Markov chain of the given length
// by drawing the initial state from the prior and each subsequent
// state from the transition row of its predecessor.
func (m *Model) SampleStates(n int, src rand.Source) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("hmm: sample length must be positive, got %d", n)
	}

	prior := distuv.NewCategorical(expVec(m.logPriors), src)
	trans := make([]distuv.Categorical, m.numStates)
	for s, row := range m.logTransitions {
		trans[s] = distuv.NewCategorical(expVec(row), src)
	}

	states := make([]int, n)
	states[0] = int(prior.Rand())
	for i := 1; i < n; i++ {
		states[i] = int(trans[states[i-1]].Rand())
	}
	return states, nil
}

// Sample draws a synthetic observation table of n rows: a sampled
// state chain plus, for every dimension, observations emitted from
// the per-state schemes.  The state chain is stored in the appended
// StateColumn.
func (m *Model) Sample(n int, src rand.Source) (*tabular.Table, error) {
	states, err := m.SampleStates(n, src)
	if err != nil {
		return nil, err
	}

	names := make([]string, m.binding.Dimensions())
	for d := range names {
		names[d] = fmt.Sprintf("dim%d", d)
	}
	t, err := tabular.New(n, names...)
	if err != nil {
		return nil, err
	}

	m.binding.Sample(t, states, src)

	col := t.EnsureColumn(StateColumn)
	for row, s := range states {
		t.SetValue(row, col, s)
	}
	return t, nil
}

func expVec(logp []float64) []float64 {
	out := make([]float64, len(logp))
	for i, v := range logp {
		out[i] = math.Exp(v)
	}
	return out
}
