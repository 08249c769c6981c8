package hmm

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/GilbertHan1011/statepeaks/logspace"
	"github.com/GilbertHan1011/statepeaks/tabular"
)

// Context holds the per-iteration scratch state of one (model, table)
// fitting run: the forward, backward and observation log-probability
// tables, the gamma responsibilities and the xi transition
// accumulator.  A context is owned by a single fitting run and must
// not be shared across concurrent fits.
type Context struct {
	model *Model
	table *tabular.Table

	logObs      [][]float64 // [row][state]
	logForward  [][]float64 // [row][state]
	logBackward [][]float64 // [row][state]
	logGamma    [][]float64 // [state][row]
	logXiSums   [][]float64 // [state][state]
}

// NewContext allocates the scratch tables for one fitting run.
func NewContext(m *Model, t *tabular.Table) (*Context, error) {
	if t.RowCount() == 0 {
		return nil, fmt.Errorf("hmm: observation table has no rows")
	}
	if t.ColumnCount() < m.binding.Dimensions() {
		return nil, fmt.Errorf("hmm: table has %d columns, binding needs %d", t.ColumnCount(), m.binding.Dimensions())
	}
	rows, states := t.RowCount(), m.numStates
	return &Context{
		model:       m,
		table:       t,
		logObs:      makeMatrix(rows, states),
		logForward:  makeMatrix(rows, states),
		logBackward: makeMatrix(rows, states),
		logGamma:    makeMatrix(states, rows),
		logXiSums:   makeMatrix(states, states),
	}, nil
}

// Iterate runs one E-step: emission refill, the forward and backward
// recurrences (concurrently), then gamma and the chunked xi
// accumulation.
func (c *Context) Iterate() {
	c.refill()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.forward()
	}()
	go func() {
		defer wg.Done()
		c.backward()
	}()
	wg.Wait()

	c.gamma()
	c.xi()
}

// LogLikelihood returns the total log-likelihood of the sequence,
// available after Iterate.
func (c *Context) LogLikelihood() float64 {
	return logspace.SumExp(c.logForward[len(c.logForward)-1])
}

// LogGamma returns the per-state, per-row posterior log
// responsibilities computed by the last Iterate.  The backing arrays
// are owned by the context.
func (c *Context) LogGamma() [][]float64 { return c.logGamma }

// refill recomputes the emission log-probabilities, parallel over
// states: no two states share mutable data during this phase.
func (c *Context) refill() {
	var wg sync.WaitGroup
	for s := 0; s < c.model.numStates; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for row := range c.logObs {
				lp := c.model.binding.LogProbability(c.table, row, s)
				if math.IsNaN(lp) {
					panic(fmt.Sprintf("hmm: NaN emission log-probability at row %d state %d", row, s))
				}
				c.logObs[row][s] = lp
			}
		}(s)
	}
	wg.Wait()
}

func (c *Context) forward() {
	n := c.model.numStates
	work := make([]float64, n)

	for s := 0; s < n; s++ {
		c.logForward[0][s] = c.model.logPriors[s] + c.logObs[0][s]
	}
	for t := 1; t < len(c.logForward); t++ {
		for s := 0; s < n; s++ {
			for prev := 0; prev < n; prev++ {
				work[prev] = c.logForward[t-1][prev] + c.model.logTransitions[prev][s]
			}
			c.logForward[t][s] = logspace.SumExp(work) + c.logObs[t][s]
			if math.IsNaN(c.logForward[t][s]) {
				panic(fmt.Sprintf("hmm: NaN forward probability at row %d state %d", t, s))
			}
		}
	}
}

func (c *Context) backward() {
	n := c.model.numStates
	last := len(c.logBackward) - 1
	work := make([]float64, n)

	for s := 0; s < n; s++ {
		c.logBackward[last][s] = 0
	}
	for t := last - 1; t >= 0; t-- {
		for s := 0; s < n; s++ {
			for next := 0; next < n; next++ {
				work[next] = c.model.logTransitions[s][next] + c.logObs[t+1][next] + c.logBackward[t+1][next]
			}
			c.logBackward[t][s] = logspace.SumExp(work)
			if math.IsNaN(c.logBackward[t][s]) {
				panic(fmt.Sprintf("hmm: NaN backward probability at row %d state %d", t, s))
			}
		}
	}
}

// gamma normalizes forward*backward per row into posterior state
// responsibilities.
func (c *Context) gamma() {
	n := c.model.numStates
	work := make([]float64, n)
	for t := range c.logForward {
		for s := 0; s < n; s++ {
			work[s] = c.logForward[t][s] + c.logBackward[t][s]
		}
		total := logspace.SumExp(work)
		if math.IsInf(total, -1) {
			panic(fmt.Sprintf("hmm: observation row %d has zero probability under every state", t))
		}
		for s := 0; s < n; s++ {
			c.logGamma[s][t] = work[s] - total
		}
	}
}

// xi accumulates the per-step joint transition responsibilities into
// logXiSums.  The time axis is chunked across workers; each per-step
// matrix is log-normalized before entering the accumulator, and the
// per-chunk partial sums combine with log-add-exp, which is
// associative, so chunk boundaries only move the result within
// floating tolerance.
func (c *Context) xi() {
	n := c.model.numStates
	for i := range c.logXiSums {
		for j := range c.logXiSums[i] {
			c.logXiSums[i][j] = math.Inf(-1)
		}
	}

	steps := len(c.logForward) - 1
	if steps == 0 {
		// A length-1 sequence observes no transitions.
		return
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > steps {
		workers = steps
	}
	chunk := (steps + workers - 1) / workers

	partials := make([][][]float64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := 1 + w*chunk
		hi := lo + chunk
		if hi > steps+1 {
			hi = steps + 1
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			partials[w] = c.xiChunk(lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()

	for _, p := range partials {
		if p == nil {
			continue
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				c.logXiSums[i][j] = logspace.AddExp(c.logXiSums[i][j], p[i][j])
			}
		}
	}
}

// xiChunk accumulates the normalized per-step xi matrices for t in
// [lo, hi).
func (c *Context) xiChunk(lo, hi int) [][]float64 {
	n := c.model.numStates
	acc := makeMatrix(n, n)
	for i := range acc {
		for j := range acc[i] {
			acc[i][j] = math.Inf(-1)
		}
	}
	step := make([]float64, n*n)

	for t := lo; t < hi; t++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				step[i*n+j] = c.logForward[t-1][i] + c.model.logTransitions[i][j] +
					c.logObs[t][j] + c.logBackward[t][j]
			}
		}
		logspace.Rescale(step)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := step[i*n+j]
				if math.IsNaN(v) {
					panic(fmt.Sprintf("hmm: NaN xi probability at row %d transition %d->%d", t, i, j))
				}
				acc[i][j] = logspace.AddExp(acc[i][j], v)
			}
		}
	}
	return acc
}

func makeMatrix(r, c int) [][]float64 {
	backing := make([]float64, r*c)
	m := make([][]float64, r)
	for i := range m {
		m[i] = backing[i*c : (i+1)*c]
	}
	return m
}
