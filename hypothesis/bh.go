// Package hypothesis implements the multiple-testing layer applied
// to HMM posteriors: Benjamini-Hochberg adjustment, FDR control over
// log null-membership probabilities, Fisher's exact test and the
// Stouffer-Liptak p-value combination.
package hypothesis

import (
	"fmt"
	"math"
	"sort"
)

// AdjustBH returns Benjamini-Hochberg adjusted p-values (q-values) in
// the original input order.
func AdjustBH(pvals []float64) ([]float64, error) {
	m := len(pvals)
	if m == 0 {
		return nil, fmt.Errorf("hypothesis: empty p-value array")
	}
	for i, p := range pvals {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("hypothesis: invalid p-value %v at index %d", p, i)
		}
	}

	order := sortedOrder(pvals)

	// Walk from the largest p-value down, enforcing monotonicity of
	// the adjusted values.
	qvals := make([]float64, m)
	cur := 1.0
	for k := m - 1; k >= 0; k-- {
		q := pvals[order[k]] * float64(m) / float64(k+1)
		if q < cur {
			cur = q
		}
		qvals[order[k]] = cur
	}
	return qvals, nil
}

// sortedOrder returns the index permutation sorting x ascending.
// Equal values keep their original relative order, so results are
// deterministic.
func sortedOrder(x []float64) []int {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return x[order[i]] < x[order[j]]
	})
	return order
}
