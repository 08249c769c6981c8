package hmm

import (
	"fmt"
	"math"

	"github.com/GilbertHan1011/statepeaks/logspace"
)

// NullStates designates a subset of states as the null (background)
// hypothesis.  It reduces a multi-state posterior to per-row binary
// log null-membership probabilities for FDR control.  The set is
// immutable once constructed.
type NullStates struct {
	members []bool
	states  []int
}

// NewNullStates returns the null set for a model with numStates
// states.  The set must be a non-empty proper subset.
func NewNullStates(numStates int, states ...int) (*NullStates, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("hmm: empty null state set")
	}
	if len(states) >= numStates {
		return nil, fmt.Errorf("hmm: null set of %d states covers all %d states", len(states), numStates)
	}
	ns := &NullStates{members: make([]bool, numStates)}
	for _, s := range states {
		if s < 0 || s >= numStates {
			return nil, fmt.Errorf("hmm: null state %d out of range [0, %d)", s, numStates)
		}
		if ns.members[s] {
			return nil, fmt.Errorf("hmm: duplicate null state %d", s)
		}
		ns.members[s] = true
		ns.states = append(ns.states, s)
	}
	return ns, nil
}

// Contains reports whether state s is in the null set.
func (ns *NullStates) Contains(s int) bool {
	return s >= 0 && s < len(ns.members) && ns.members[s]
}

// LogMemberships reduces a logGamma table ([state][row], rows
// log-normalized per row) to per-row log probabilities of null
// membership: the log-sum-exp of the null states' responsibilities.
func (ns *NullStates) LogMemberships(logGamma [][]float64) ([]float64, error) {
	if len(logGamma) != len(ns.members) {
		return nil, fmt.Errorf("hmm: gamma has %d states, null set built for %d", len(logGamma), len(ns.members))
	}
	rows := len(logGamma[0])
	out := make([]float64, rows)
	work := make([]float64, 0, len(ns.states))
	for row := 0; row < rows; row++ {
		work = work[:0]
		for _, s := range ns.states {
			work = append(work, logGamma[s][row])
		}
		out[row] = logspace.SumExp(work)
		if out[row] > 0 {
			// Rounding can push the sum of a full row marginally
			// above log(1).
			out[row] = 0
		}
		if math.IsNaN(out[row]) {
			panic(fmt.Sprintf("hmm: NaN null membership at row %d", row))
		}
	}
	return out, nil
}
