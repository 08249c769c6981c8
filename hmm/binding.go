// Package hmm implements a hidden Markov model over integer
// observation tables: forward-backward inference, Baum-Welch fitting,
// Viterbi decoding and state sampling, with free or constrained
// emission parameter sharing.
package hmm

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/GilbertHan1011/statepeaks/emission"
	"github.com/GilbertHan1011/statepeaks/tabular"
)

// EmissionBinding attaches emission schemes to (state, dimension)
// pairs.  The model engine is agnostic to whether schemes are owned
// per pair (FreeBinding) or shared across states (ConstrainedBinding).
type EmissionBinding interface {
	// Dimensions returns the number of observed dimensions, i.e. the
	// number of table columns the binding reads.
	Dimensions() int

	// LogProbability returns the joint log emission probability of
	// row under the given state, summed over dimensions.
	LogProbability(t *tabular.Table, row, state int) float64

	// Update re-estimates every scheme from per-state row weights;
	// gamma[state][row] is the posterior responsibility of state for
	// row.
	Update(t *tabular.Table, gamma [][]float64)

	// Sample fills the dimension columns of t for each row from the
	// emission distribution of states[row].
	Sample(t *tabular.Table, states []int, src rand.Source)

	// SchemeAt returns the scheme bound to (state, dimension).
	SchemeAt(state, dim int) emission.Scheme

	// DegreesOfFreedom sums the free parameters of all distinct
	// schemes.
	DegreesOfFreedom() int

	// RebuildDerivedIndices recomputes any transient derived state.
	// The persistence layer calls this after loading raw fields.
	RebuildDerivedIndices() error
}

// FreeBinding gives every (state, dimension) pair its own independent
// scheme instance.
type FreeBinding struct {
	Schemes [][]emission.Scheme // [state][dimension]
}

// NewFreeBinding validates that the scheme grid is rectangular and
// fully populated.
func NewFreeBinding(schemes [][]emission.Scheme) (*FreeBinding, error) {
	if len(schemes) == 0 || len(schemes[0]) == 0 {
		return nil, fmt.Errorf("hmm: empty emission scheme grid")
	}
	dims := len(schemes[0])
	for s, row := range schemes {
		if len(row) != dims {
			return nil, fmt.Errorf("hmm: jagged scheme grid: state %d has %d dimensions, want %d", s, len(row), dims)
		}
		for d, scheme := range row {
			if scheme == nil {
				return nil, fmt.Errorf("hmm: nil scheme at state %d dimension %d", s, d)
			}
		}
	}
	return &FreeBinding{Schemes: schemes}, nil
}

func (b *FreeBinding) Dimensions() int { return len(b.Schemes[0]) }

func (b *FreeBinding) LogProbability(t *tabular.Table, row, state int) float64 {
	var lp float64
	for d, scheme := range b.Schemes[state] {
		lp += scheme.LogProbability(t, row, d)
	}
	return lp
}

func (b *FreeBinding) Update(t *tabular.Table, gamma [][]float64) {
	for s, row := range b.Schemes {
		for d, scheme := range row {
			scheme.Update(t, d, gamma[s])
		}
	}
}

func (b *FreeBinding) Sample(t *tabular.Table, states []int, src rand.Source) {
	for s, row := range b.Schemes {
		s := s
		keep := func(r int) bool { return states[r] == s }
		for d, scheme := range row {
			scheme.Sample(t, d, keep, src)
		}
	}
}

func (b *FreeBinding) SchemeAt(state, dim int) emission.Scheme {
	return b.Schemes[state][dim]
}

func (b *FreeBinding) DegreesOfFreedom() int {
	df := 0
	for _, row := range b.Schemes {
		for _, scheme := range row {
			df += scheme.DegreesOfFreedom()
		}
	}
	return df
}

// RebuildDerivedIndices is a no-op: a free binding has no derived
// state.
func (b *FreeBinding) RebuildDerivedIndices() error { return nil }

// ConstrainedBinding shares scheme instances across states through an
// explicit index map: Map[state][dimension] selects one of Schemes.
// Every state must bind a given scheme to the same dimension; the
// dimension of each scheme is a derived index rebuilt by
// RebuildDerivedIndices.
type ConstrainedBinding struct {
	Schemes []emission.Scheme
	Map     [][]int // [state][dimension] -> scheme index

	// Derived, not serialized: schemeDim[k] is the dimension scheme k
	// is bound to, schemeStates[k] the states binding it.
	schemeDim    []int
	schemeStates [][]int
}

// NewConstrainedBinding validates the map shape and builds the
// derived reverse indices.
func NewConstrainedBinding(schemes []emission.Scheme, stateDimensionMap [][]int) (*ConstrainedBinding, error) {
	b := &ConstrainedBinding{Schemes: schemes, Map: stateDimensionMap}
	if err := b.RebuildDerivedIndices(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *ConstrainedBinding) Dimensions() int {
	if len(b.Map) == 0 {
		return 0
	}
	return len(b.Map[0])
}

func (b *ConstrainedBinding) LogProbability(t *tabular.Table, row, state int) float64 {
	var lp float64
	for d, k := range b.Map[state] {
		lp += b.Schemes[k].LogProbability(t, row, d)
	}
	return lp
}

// Update aggregates the gamma rows of every state sharing a scheme
// before the scheme's single weighted update.
func (b *ConstrainedBinding) Update(t *tabular.Table, gamma [][]float64) {
	weights := make([]float64, t.RowCount())
	for k, scheme := range b.Schemes {
		for i := range weights {
			weights[i] = 0
		}
		for _, s := range b.schemeStates[k] {
			for row, w := range gamma[s] {
				weights[row] += w
			}
		}
		scheme.Update(t, b.schemeDim[k], weights)
	}
}

func (b *ConstrainedBinding) Sample(t *tabular.Table, states []int, src rand.Source) {
	for s, row := range b.Map {
		s := s
		keep := func(r int) bool { return states[r] == s }
		for d, k := range row {
			b.Schemes[k].Sample(t, d, keep, src)
		}
	}
}

func (b *ConstrainedBinding) SchemeAt(state, dim int) emission.Scheme {
	return b.Schemes[b.Map[state][dim]]
}

func (b *ConstrainedBinding) DegreesOfFreedom() int {
	df := 0
	for _, scheme := range b.Schemes {
		df += scheme.DegreesOfFreedom()
	}
	return df
}

// RebuildDerivedIndices recomputes the scheme->dimension and
// scheme->states reverse maps from Map.  It must be called after any
// mutation of Map and after deserialization.
func (b *ConstrainedBinding) RebuildDerivedIndices() error {
	if len(b.Map) == 0 || len(b.Map[0]) == 0 {
		return fmt.Errorf("hmm: empty state-dimension emission map")
	}
	if len(b.Schemes) == 0 {
		return fmt.Errorf("hmm: constrained binding has no schemes")
	}
	dims := len(b.Map[0])
	b.schemeDim = make([]int, len(b.Schemes))
	for k := range b.schemeDim {
		b.schemeDim[k] = -1
	}
	b.schemeStates = make([][]int, len(b.Schemes))

	for s, row := range b.Map {
		if len(row) != dims {
			return fmt.Errorf("hmm: jagged emission map: state %d has %d dimensions, want %d", s, len(row), dims)
		}
		for d, k := range row {
			if k < 0 || k >= len(b.Schemes) {
				return fmt.Errorf("hmm: emission map state %d dimension %d references scheme %d of %d", s, d, k, len(b.Schemes))
			}
			if b.schemeDim[k] >= 0 && b.schemeDim[k] != d {
				return fmt.Errorf("hmm: scheme %d bound to dimensions %d and %d", k, b.schemeDim[k], d)
			}
			b.schemeDim[k] = d
			b.schemeStates[k] = append(b.schemeStates[k], s)
		}
	}
	for k, d := range b.schemeDim {
		if d < 0 {
			return fmt.Errorf("hmm: scheme %d is not referenced by any (state, dimension) pair", k)
		}
	}
	return nil
}
