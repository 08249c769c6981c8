package emission

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/GilbertHan1011/statepeaks/tabular"
)

// Singular is a degenerate point-mass scheme pinned to one value.  It
// is useful for constraining a state to emit a constant (e.g. a zero
// background dimension).
type Singular struct {
	Value int `json:"value"`
}

// NewSingular returns a point mass at v.
func NewSingular(v int) *Singular { return &Singular{Value: v} }

// LogProbability is 0 at the pinned value and -Inf elsewhere.
func (s *Singular) LogProbability(t *tabular.Table, row, col int) float64 {
	if t.Value(row, col) == s.Value {
		return 0
	}
	return math.Inf(-1)
}

// Sample writes the pinned value into the kept rows.
func (s *Singular) Sample(t *tabular.Table, col int, keep func(row int) bool, src rand.Source) {
	for row := 0; row < t.RowCount(); row++ {
		if keep(row) {
			t.SetValue(row, col, s.Value)
		}
	}
}

// Update is a no-op: the point mass has no free parameters.
func (s *Singular) Update(t *tabular.Table, col int, weights []float64) {}

// DegreesOfFreedom returns 0.
func (s *Singular) DegreesOfFreedom() int { return 0 }
