package hmm

import (
	"fmt"
	"math"

	"github.com/GilbertHan1011/statepeaks/tabular"
)

// Predict returns the most probable state path for the table using
// the Viterbi algorithm (max-sum in log space).  Ties between states
// with equal score resolve to the lowest state index.
func (m *Model) Predict(t *tabular.Table) ([]int, error) {
	if t.RowCount() == 0 {
		return nil, fmt.Errorf("hmm: observation table has no rows")
	}
	n := m.numStates
	rows := t.RowCount()

	score := make([]float64, n)
	next := make([]float64, n)
	back := make([][]int, rows)

	for s := 0; s < n; s++ {
		score[s] = m.logPriors[s] + m.binding.LogProbability(t, 0, s)
		if math.IsNaN(score[s]) {
			panic(fmt.Sprintf("hmm: NaN Viterbi score at row 0 state %d", s))
		}
	}

	for row := 1; row < rows; row++ {
		back[row] = make([]int, n)
		for s := 0; s < n; s++ {
			best, bestPrev := math.Inf(-1), 0
			for p := 0; p < n; p++ {
				v := score[p] + m.logTransitions[p][s]
				if v > best {
					best, bestPrev = v, p
				}
			}
			next[s] = best + m.binding.LogProbability(t, row, s)
			if math.IsNaN(next[s]) {
				panic(fmt.Sprintf("hmm: NaN Viterbi score at row %d state %d", row, s))
			}
			back[row][s] = bestPrev
		}
		score, next = next, score
	}

	path := make([]int, rows)
	best := math.Inf(-1)
	for s := 0; s < n; s++ {
		if score[s] > best {
			best = score[s]
			path[rows-1] = s
		}
	}
	for row := rows - 1; row > 0; row-- {
		path[row-1] = back[row][path[row]]
	}
	return path, nil
}
