package emission

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GilbertHan1011/statepeaks/tabular"
)

// Poisson is a Poisson emission scheme with a single rate parameter.
type Poisson struct {
	Rate float64 `json:"rate"`
}

// NewPoisson returns a Poisson scheme with the given starting rate.
func NewPoisson(rate float64) *Poisson {
	if rate < minMean {
		rate = minMean
	}
	return &Poisson{Rate: rate}
}

// LogProbability returns the Poisson log pmf at the observed count.
func (s *Poisson) LogProbability(t *tabular.Table, row, col int) float64 {
	k := t.Value(row, col)
	if k < 0 {
		return math.Inf(-1)
	}
	rate := s.Rate
	if rate < minMean {
		rate = minMean
	}
	return -rate + float64(k)*math.Log(rate) - lgamma(float64(k)+1)
}

// Sample fills the column with Poisson draws for the kept rows.
func (s *Poisson) Sample(t *tabular.Table, col int, keep func(row int) bool, src rand.Source) {
	d := distuv.Poisson{Lambda: math.Max(s.Rate, minMean), Src: src}
	for row := 0; row < t.RowCount(); row++ {
		if keep(row) {
			t.SetValue(row, col, int(d.Rand()))
		}
	}
}

// Update sets the rate to the weighted mean of the column.  A zero
// total weight keeps the previous rate.
func (s *Poisson) Update(t *tabular.Table, col int, weights []float64) {
	var num, den float64
	for row := 0; row < t.RowCount(); row++ {
		num += weights[row] * float64(t.Value(row, col))
		den += weights[row]
	}
	if den < 1e-10 {
		return
	}
	s.Rate = math.Max(num/den, minMean)
}

// DegreesOfFreedom returns 1 (the rate).
func (s *Poisson) DegreesOfFreedom() int { return 1 }

func lgamma(x float64) float64 {
	u, _ := math.Lgamma(x)
	return u
}
