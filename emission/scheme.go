// Package emission implements the per-state, per-dimension emission
// schemes of the HMM: parametric integer-valued distributions with
// log-probability evaluation, sampling, and weighted maximum
// likelihood re-estimation.
package emission

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/GilbertHan1011/statepeaks/tabular"
)

// The fitted rate/mean parameters are never allowed to go below this value.
const minMean = 1e-10

// Scheme is a parametric distribution over the non-negative integer
// observations of one table column.  Parameters are mutated in place
// by Update on each EM iteration; LogProbability and Sample read the
// current parameters.
type Scheme interface {
	// LogProbability returns log P(value at (row, col) | parameters).
	// It is finite or -Inf, never NaN, for any integer observation.
	LogProbability(t *tabular.Table, row, col int) float64

	// Sample overwrites column col for every row where keep(row) is
	// true with a draw from the current distribution.
	Sample(t *tabular.Table, col int, keep func(row int) bool, src rand.Source)

	// Update re-estimates the parameters by weighted maximum
	// likelihood, weights[row] being this scheme's responsibility
	// for the row.  An all-zero weight vector keeps the previous
	// parameters.
	Update(t *tabular.Table, col int, weights []float64)

	// DegreesOfFreedom is the number of free parameters.
	DegreesOfFreedom() int
}

// Scheme type tags used in the serialized form.
const (
	tagPoisson     = "poisson"
	tagNegBinomial = "negbinomial"
	tagCategorical = "categorical"
	tagSingular    = "singular"
)

type schemeEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal serializes a scheme together with its concrete type tag.
func Marshal(s Scheme) (json.RawMessage, error) {
	var tag string
	switch s.(type) {
	case *Poisson:
		tag = tagPoisson
	case *NegBinomial:
		tag = tagNegBinomial
	case *Categorical:
		tag = tagCategorical
	case *Singular:
		tag = tagSingular
	default:
		return nil, fmt.Errorf("emission: cannot serialize scheme of type %T", s)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(schemeEnvelope{Type: tag, Payload: payload})
}

// Unmarshal restores a scheme from its tagged serialized form.
func Unmarshal(raw json.RawMessage) (Scheme, error) {
	var env schemeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var s Scheme
	switch env.Type {
	case tagPoisson:
		s = &Poisson{}
	case tagNegBinomial:
		s = &NegBinomial{}
	case tagCategorical:
		s = &Categorical{}
	case tagSingular:
		s = &Singular{}
	default:
		return nil, fmt.Errorf("emission: unknown scheme tag %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, s); err != nil {
		return nil, err
	}
	return s, nil
}
