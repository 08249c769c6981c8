package hmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/GilbertHan1011/statepeaks/logspace"
)

const (
	// Tolerance for validating that supplied prior/transition rows
	// are stochastic.
	stochasticTol = 1e-6

	// A likelihood drop larger than this between EM iterations is
	// reported as a numerical problem.
	likelihoodDropTol = 1e-8
)

// Warnings counts recoverable anomalies observed during fitting.
type Warnings struct {
	LogLikelihoodDecreased int
}

// Model is a hidden Markov model over integer observation tables.
// Prior and transition probabilities are stored in log space; the
// emission side is delegated to an EmissionBinding.
type Model struct {
	numStates      int
	logPriors      []float64
	logTransitions [][]float64
	binding        EmissionBinding

	Warnings Warnings
}

// NewModel returns a model with uniform priors and a diagonally
// dominant transition matrix (0.8 self-transition mass), the usual
// starting point for Baum-Welch.
func NewModel(numStates int, binding EmissionBinding) (*Model, error) {
	if numStates < 2 {
		return nil, fmt.Errorf("hmm: need at least 2 states, got %d", numStates)
	}
	if binding == nil {
		return nil, fmt.Errorf("hmm: nil emission binding")
	}

	priors := make([]float64, numStates)
	for i := range priors {
		priors[i] = 1 / float64(numStates)
	}
	trans := make([][]float64, numStates)
	for i := range trans {
		trans[i] = make([]float64, numStates)
		for j := range trans[i] {
			if i == j {
				trans[i][j] = 0.8
			} else {
				trans[i][j] = 0.2 / float64(numStates-1)
			}
		}
	}
	return NewModelWithParams(priors, trans, binding)
}

// NewModelWithParams returns a model with explicit linear-scale prior
// and transition probabilities.  Rows must sum to 1 within tolerance.
func NewModelWithParams(priors []float64, transitions [][]float64, binding EmissionBinding) (*Model, error) {
	n := len(priors)
	if n < 2 {
		return nil, fmt.Errorf("hmm: need at least 2 states, got %d", n)
	}
	if binding == nil {
		return nil, fmt.Errorf("hmm: nil emission binding")
	}
	if math.Abs(floats.Sum(priors)-1) > stochasticTol {
		return nil, fmt.Errorf("hmm: prior probabilities sum to %v, want 1", floats.Sum(priors))
	}
	if len(transitions) != n {
		return nil, fmt.Errorf("hmm: transition matrix has %d rows, want %d", len(transitions), n)
	}

	m := &Model{
		numStates:      n,
		logPriors:      make([]float64, n),
		logTransitions: make([][]float64, n),
		binding:        binding,
	}
	for i, p := range priors {
		m.logPriors[i] = math.Log(p)
	}
	for i, row := range transitions {
		if len(row) != n {
			return nil, fmt.Errorf("hmm: transition row %d has %d entries, want %d", i, len(row), n)
		}
		if math.Abs(floats.Sum(row)-1) > stochasticTol {
			return nil, fmt.Errorf("hmm: transition row %d sums to %v, want 1", i, floats.Sum(row))
		}
		m.logTransitions[i] = make([]float64, n)
		for j, p := range row {
			m.logTransitions[i][j] = math.Log(p)
		}
	}
	return m, nil
}

// NumStates returns the number of hidden states.
func (m *Model) NumStates() int { return m.numStates }

// Binding returns the emission binding.
func (m *Model) Binding() EmissionBinding { return m.binding }

// LogPriors returns a copy of the log prior vector.
func (m *Model) LogPriors() []float64 {
	out := make([]float64, m.numStates)
	copy(out, m.logPriors)
	return out
}

// LogTransitions returns a copy of the log transition matrix.
func (m *Model) LogTransitions() [][]float64 {
	out := make([][]float64, m.numStates)
	for i, row := range m.logTransitions {
		out[i] = make([]float64, m.numStates)
		copy(out[i], row)
	}
	return out
}

// DegreesOfFreedom returns the number of free parameters: the prior
// simplex, the transition rows, and the emission schemes.
func (m *Model) DegreesOfFreedom() int {
	n := m.numStates
	return (n - 1) + n*(n-1) + m.binding.DegreesOfFreedom()
}

// updateParameters re-estimates priors and transitions from pooled
// per-sequence statistics and delegates the emission update to the
// binding.  logPriorStats[s] is the log-sum over sequences of the
// initial gamma column; logXiSums is the pooled transition
// responsibility accumulator.
func (m *Model) updateParameters(logPriorStats []float64, logXiSums [][]float64) {
	copy(m.logPriors, logPriorStats)
	logspace.Rescale(m.logPriors)

	for s, row := range logXiSums {
		if math.IsInf(logspace.SumExp(row), -1) {
			// No transitions observed out of this state (e.g. all
			// sequences of length 1); keep the previous row.
			continue
		}
		copy(m.logTransitions[s], row)
		logspace.Rescale(m.logTransitions[s])
	}
}
