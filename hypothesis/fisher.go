package hypothesis

import (
	"fmt"
	"math"

	"github.com/GilbertHan1011/statepeaks/logspace"
)

// Relative slack when comparing point probabilities in the two-sided
// Fisher test, matching the customary 1+1e-7 tolerance.
const fisherRelTol = 1e-7

// FisherResult holds the p-values of Fisher's exact test on the 2x2
// table [[a, b], [c, d]].
type FisherResult struct {
	// Less is the one-sided p-value P(A <= a).
	Less float64

	// Greater is the one-sided p-value P(A >= a).
	Greater float64

	// TwoSided sums the probabilities of all tables whose point
	// probability does not exceed the observed one (within a small
	// relative tolerance).  This is the primary two-sided policy.
	TwoSided float64

	// TwoSidedDoubled is the alternative two-sided policy: twice the
	// smaller tail, capped at 1.
	TwoSidedDoubled float64
}

// FisherExact runs Fisher's exact test on the 2x2 contingency table
// [[a, b], [c, d]] with fixed margins, computing the hypergeometric
// point probabilities in log space.
func FisherExact(a, b, c, d int) (FisherResult, error) {
	if a < 0 || b < 0 || c < 0 || d < 0 {
		return FisherResult{}, fmt.Errorf("hypothesis: negative cell in contingency table [[%d, %d], [%d, %d]]", a, b, c, d)
	}
	n := a + b + c + d
	if n == 0 {
		return FisherResult{}, fmt.Errorf("hypothesis: empty contingency table")
	}

	r1 := a + b // first row margin
	c1 := a + c // first column margin

	lo := 0
	if c1-(c+d) > 0 {
		lo = c1 - (c + d)
	}
	hi := r1
	if c1 < hi {
		hi = c1
	}

	logp := make([]float64, hi-lo+1)
	for k := lo; k <= hi; k++ {
		logp[k-lo] = logChoose(r1, k) + logChoose(c+d, c1-k) - logChoose(n, c1)
	}

	observed := logp[a-lo]
	cutoff := observed + math.Log1p(fisherRelTol)

	var less, greater, twoSided []float64
	for k := lo; k <= hi; k++ {
		lp := logp[k-lo]
		if k <= a {
			less = append(less, lp)
		}
		if k >= a {
			greater = append(greater, lp)
		}
		if lp <= cutoff {
			twoSided = append(twoSided, lp)
		}
	}

	res := FisherResult{
		Less:     clampP(math.Exp(logspace.SumExp(less))),
		Greater:  clampP(math.Exp(logspace.SumExp(greater))),
		TwoSided: clampP(math.Exp(logspace.SumExp(twoSided))),
	}
	res.TwoSidedDoubled = clampP(2 * math.Min(res.Less, res.Greater))
	return res, nil
}

func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return lgamma(float64(n)+1) - lgamma(float64(k)+1) - lgamma(float64(n-k)+1)
}

func lgamma(x float64) float64 {
	u, _ := math.Lgamma(x)
	return u
}

func clampP(p float64) float64 {
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}
