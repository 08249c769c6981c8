package hypothesis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Degenerate p-values are clamped into the open unit interval before
// the inverse-normal transform.
const pClamp = 1e-16

// StoufferLiptak combines p-values with the weighted inverse-normal
// (Stouffer-Liptak) method: each p-value maps to a z-score, the
// weighted z-scores are pooled, and the pooled score maps back to a
// combined p-value.  A nil weight slice means equal weights.
func StoufferLiptak(pvals, weights []float64) (float64, error) {
	if len(pvals) == 0 {
		return 0, fmt.Errorf("hypothesis: empty p-value array")
	}
	if weights == nil {
		weights = make([]float64, len(pvals))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(pvals) {
		return 0, fmt.Errorf("hypothesis: %d p-values but %d weights", len(pvals), len(weights))
	}

	var num, sumsq float64
	for i, p := range pvals {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return 0, fmt.Errorf("hypothesis: invalid p-value %v at index %d", p, i)
		}
		if weights[i] <= 0 {
			return 0, fmt.Errorf("hypothesis: non-positive weight %v at index %d", weights[i], i)
		}
		p = math.Min(math.Max(p, pClamp), 1-pClamp)
		z := -distuv.UnitNormal.Quantile(p)
		num += weights[i] * z
		sumsq += weights[i] * weights[i]
	}

	combined := num / math.Sqrt(sumsq)
	return distuv.UnitNormal.CDF(-combined), nil
}
