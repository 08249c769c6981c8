// Package logspace provides numerically stable arithmetic on
// log-scale probabilities.  All probability tables in the HMM core
// are kept in log space; values are exponentiated only at the
// boundary, when sampling or reporting final answers.
package logspace

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AddExp returns log(exp(a) + exp(b)) without overflow.  When both
// arguments are -Inf the result is -Inf, not NaN.
func AddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// SumExp returns log(sum(exp(x))) over the vector.  An all -Inf
// vector yields -Inf.
func SumExp(x []float64) float64 {
	if len(x) == 0 {
		return math.Inf(-1)
	}
	return floats.LogSumExp(x)
}

// Rescale subtracts SumExp(x) from every element so that the vector
// becomes log-normalized (exp sums to 1).  Returns the subtracted
// total.  A vector of all -Inf is left unchanged.
func Rescale(x []float64) float64 {
	total := SumExp(x)
	if math.IsInf(total, -1) {
		return total
	}
	floats.AddConst(-total, x)
	return total
}

// Exp exponentiates a log-probability vector into dst.  dst and x
// may be the same slice.
func Exp(dst, x []float64) {
	for i, v := range x {
		dst[i] = math.Exp(v)
	}
}
