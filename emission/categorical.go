package emission

import (
	"encoding/json"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GilbertHan1011/statepeaks/logspace"
	"github.com/GilbertHan1011/statepeaks/tabular"
)

// Categorical is an emission scheme over the finite support
// 0..len(LogWeights)-1.  Observations outside the support have
// probability zero.
type Categorical struct {
	LogWeights []float64 `json:"log_weights"`
}

// NewCategorical returns a uniform categorical scheme over a support
// of the given size.
func NewCategorical(support int) *Categorical {
	lw := make([]float64, support)
	for i := range lw {
		lw[i] = -math.Log(float64(support))
	}
	return &Categorical{LogWeights: lw}
}

// LogProbability returns the log weight of the observed category, or
// -Inf outside the support.
func (s *Categorical) LogProbability(t *tabular.Table, row, col int) float64 {
	v := t.Value(row, col)
	if v < 0 || v >= len(s.LogWeights) {
		return math.Inf(-1)
	}
	return s.LogWeights[v]
}

// Sample fills the kept rows with categorical draws.
func (s *Categorical) Sample(t *tabular.Table, col int, keep func(row int) bool, src rand.Source) {
	w := make([]float64, len(s.LogWeights))
	logspace.Exp(w, s.LogWeights)
	d := distuv.NewCategorical(w, src)
	for row := 0; row < t.RowCount(); row++ {
		if keep(row) {
			t.SetValue(row, col, int(d.Rand()))
		}
	}
}

// Update sets the log weights to the normalized weighted category
// counts.  A zero total weight keeps the previous weights.
func (s *Categorical) Update(t *tabular.Table, col int, weights []float64) {
	counts := make([]float64, len(s.LogWeights))
	var den float64
	for row := 0; row < t.RowCount(); row++ {
		v := t.Value(row, col)
		if v < 0 || v >= len(counts) {
			continue
		}
		counts[v] += weights[row]
		den += weights[row]
	}
	if den < 1e-10 {
		return
	}
	for i, c := range counts {
		s.LogWeights[i] = math.Log(c) - math.Log(den)
	}
}

// DegreesOfFreedom returns the support size minus one.
func (s *Categorical) DegreesOfFreedom() int { return len(s.LogWeights) - 1 }

// MarshalJSON encodes -Inf log weights (zero-probability categories)
// as the string "-Inf", since JSON has no infinity literal.
func (s *Categorical) MarshalJSON() ([]byte, error) {
	lw := make([]interface{}, len(s.LogWeights))
	for i, v := range s.LogWeights {
		if math.IsInf(v, -1) {
			lw[i] = "-Inf"
		} else {
			lw[i] = v
		}
	}
	return json.Marshal(map[string]interface{}{"log_weights": lw})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Categorical) UnmarshalJSON(b []byte) error {
	var raw struct {
		LogWeights []interface{} `json:"log_weights"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.LogWeights = make([]float64, len(raw.LogWeights))
	for i, e := range raw.LogWeights {
		switch v := e.(type) {
		case float64:
			s.LogWeights[i] = v
		case string:
			if v != "-Inf" {
				return fmt.Errorf("emission: invalid log weight %q", v)
			}
			s.LogWeights[i] = math.Inf(-1)
		default:
			return fmt.Errorf("emission: invalid log weight entry of type %T", e)
		}
	}
	return nil
}
