package hypothesis

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/GilbertHan1011/statepeaks/logspace"
)

// ControlFDR thresholds per-position log null-membership
// probabilities at the given false discovery rate.  Positions are
// taken in ascending order of null probability and accepted while the
// cumulative mean null probability (the expected FDR of the set) stays
// below alpha; the returned mask marks the rejected-null (significant)
// positions.  The cumulative sum is accumulated in log space and only
// converted to linear scale at the ratio step.  Equal log
// probabilities keep their input order (stable sort), so the result
// is deterministic.
func ControlFDR(logNull []float64, alpha float64) ([]bool, error) {
	if len(logNull) == 0 {
		return nil, fmt.Errorf("hypothesis: empty null-membership array")
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("hypothesis: alpha %v outside (0, 1)", alpha)
	}
	for i, lp := range logNull {
		if math.IsNaN(lp) {
			return nil, fmt.Errorf("hypothesis: NaN null membership at index %d", i)
		}
	}

	order := sortedOrder(logNull)
	rejected := make([]bool, len(logNull))
	logSum := math.Inf(-1)
	for k, idx := range order {
		logSum = logspace.AddExp(logSum, logNull[idx])
		mean := math.Exp(logSum - math.Log(float64(k+1)))
		if mean >= alpha {
			break
		}
		rejected[idx] = true
	}
	return rejected, nil
}

// QValues converts log null-membership probabilities to q-values via
// the Benjamini-Hochberg rule computed in log space, returning linear
// q-values in the original order.  It agrees with AdjustBH applied to
// the exponentiated inputs within floating tolerance.
func QValues(logNull []float64) ([]float64, error) {
	m := len(logNull)
	if m == 0 {
		return nil, fmt.Errorf("hypothesis: empty null-membership array")
	}
	for i, lp := range logNull {
		if math.IsNaN(lp) {
			return nil, fmt.Errorf("hypothesis: NaN null membership at index %d", i)
		}
	}

	order := sortedOrder(logNull)
	logM := math.Log(float64(m))

	qvals := make([]float64, m)
	cur := 0.0 // log(1)
	for k := m - 1; k >= 0; k-- {
		logQ := logNull[order[k]] + logM - math.Log(float64(k+1))
		if logQ < cur {
			cur = logQ
		}
		qvals[order[k]] = math.Exp(cur)
	}
	return qvals, nil
}

// Report assembles per-position p-values and q-values into a
// dataframe for downstream inspection and export.
func Report(pvals, qvals []float64) (dataframe.DataFrame, error) {
	if len(pvals) != len(qvals) {
		return dataframe.DataFrame{}, fmt.Errorf("hypothesis: %d p-values but %d q-values", len(pvals), len(qvals))
	}
	positions := make([]int, len(pvals))
	for i := range positions {
		positions[i] = i
	}
	return dataframe.New(
		series.New(positions, series.Int, "position"),
		series.New(pvals, series.Float, "pvalue"),
		series.New(qvals, series.Float, "qvalue"),
	), nil
}
