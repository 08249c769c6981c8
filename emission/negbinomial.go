package emission

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GilbertHan1011/statepeaks/tabular"
)

// When the weighted variance does not exceed the weighted mean the
// dispersion is unidentifiable; the failures parameter is capped here
// so the scheme degrades to a near-Poisson fit.
const maxFailures = 1e6

// NegBinomial is a negative binomial emission scheme parameterized by
// its mean and the (real-valued) number of failures.  Larger Failures
// means less overdispersion; the Poisson limit is Failures -> Inf.
type NegBinomial struct {
	Mean     float64 `json:"mean"`
	Failures float64 `json:"failures"`
}

// NewNegBinomial returns a scheme with the given starting mean and
// failures parameter.
func NewNegBinomial(mean, failures float64) *NegBinomial {
	if mean < minMean {
		mean = minMean
	}
	if failures <= 0 || failures > maxFailures {
		failures = maxFailures
	}
	return &NegBinomial{Mean: mean, Failures: failures}
}

// LogProbability returns the negative binomial log pmf at the
// observed count, using the mean/failures parameterization:
// p = mean / (mean + failures).
func (s *NegBinomial) LogProbability(t *tabular.Table, row, col int) float64 {
	k := t.Value(row, col)
	if k < 0 {
		return math.Inf(-1)
	}
	y := float64(k)
	r := s.Failures
	m := math.Max(s.Mean, minMean)
	return lgamma(y+r) - lgamma(y+1) - lgamma(r) +
		r*math.Log(r/(r+m)) + y*math.Log(m/(r+m))
}

// Sample draws from the scheme as a Gamma-Poisson mixture.
func (s *NegBinomial) Sample(t *tabular.Table, col int, keep func(row int) bool, src rand.Source) {
	m := math.Max(s.Mean, minMean)
	gamma := distuv.Gamma{Alpha: s.Failures, Beta: s.Failures / m, Src: src}
	for row := 0; row < t.RowCount(); row++ {
		if keep(row) {
			d := distuv.Poisson{Lambda: math.Max(gamma.Rand(), minMean), Src: src}
			t.SetValue(row, col, int(d.Rand()))
		}
	}
}

// Update re-estimates mean and failures from the weighted first and
// second moments of the column (method of moments).  A zero total
// weight keeps the previous parameters.
func (s *NegBinomial) Update(t *tabular.Table, col int, weights []float64) {
	var den, sum, sumsq float64
	for row := 0; row < t.RowCount(); row++ {
		w := weights[row]
		y := float64(t.Value(row, col))
		den += w
		sum += w * y
		sumsq += w * y * y
	}
	if den < 1e-10 {
		return
	}

	mean := sum / den
	variance := sumsq/den - mean*mean
	s.Mean = math.Max(mean, minMean)
	if variance > mean {
		s.Failures = math.Min(mean*mean/(variance-mean), maxFailures)
	} else {
		s.Failures = maxFailures
	}
}

// DegreesOfFreedom returns 2 (mean and failures).
func (s *NegBinomial) DegreesOfFreedom() int { return 2 }
