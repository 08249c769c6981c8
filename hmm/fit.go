package hmm

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/GilbertHan1011/statepeaks/logspace"
	"github.com/GilbertHan1011/statepeaks/tabular"
)

// FitOptions controls Baum-Welch iteration.
type FitOptions struct {
	// Title labels log messages for this run.
	Title string

	// Threshold is the absolute log-likelihood change below which
	// fitting is considered converged.  Zero selects 1e-3.
	Threshold float64

	// MaxIterations caps the EM loop.  Zero selects 50.
	MaxIterations int
}

func (o FitOptions) withDefaults() FitOptions {
	if o.Threshold == 0 {
		o.Threshold = 1e-3
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = 50
	}
	return o
}

// FitResult reports the outcome of a fitting run.  Hitting the
// iteration cap without convergence is not an error; the model keeps
// the best-effort parameters and Converged is false.
type FitResult struct {
	LogLikelihoods []float64
	Converged      bool
	Iterations     int
}

// LogLikelihood returns the final fitted log-likelihood.
func (r *FitResult) LogLikelihood() float64 {
	return r.LogLikelihoods[len(r.LogLikelihoods)-1]
}

// Fit runs Baum-Welch on a single observation table.
func (m *Model) Fit(t *tabular.Table, opts FitOptions) (*FitResult, error) {
	return m.FitMulti([]*tabular.Table{t}, opts)
}

// FitMulti jointly fits one model across independent sequences (e.g.
// separate chromosomes).  Per-sequence E-steps run in parallel; the
// M-step pools prior and transition statistics by log-summation and
// updates the emission schemes over the concatenated responsibilities.
func (m *Model) FitMulti(tables []*tabular.Table, opts FitOptions) (*FitResult, error) {
	opts = opts.withDefaults()
	if len(tables) == 0 {
		return nil, fmt.Errorf("hmm: no observation tables")
	}

	contexts := make([]*Context, len(tables))
	for i, t := range tables {
		ctx, err := NewContext(m, t)
		if err != nil {
			return nil, fmt.Errorf("hmm: sequence %d: %w", i, err)
		}
		contexts[i] = ctx
	}

	joint, err := concatTables(tables, m.binding.Dimensions())
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("title", opts.Title)
	res := &FitResult{}
	var prev float64

	for iter := 0; iter < opts.MaxIterations; iter++ {
		var wg sync.WaitGroup
		for _, ctx := range contexts {
			wg.Add(1)
			go func(ctx *Context) {
				defer wg.Done()
				ctx.Iterate()
			}(ctx)
		}
		wg.Wait()

		ll := 0.0
		for _, ctx := range contexts {
			ll += ctx.LogLikelihood()
		}
		if math.IsNaN(ll) {
			panic("hmm: NaN log-likelihood")
		}
		res.LogLikelihoods = append(res.LogLikelihoods, ll)
		res.Iterations = iter + 1
		log.WithFields(logrus.Fields{"iteration": iter, "loglikelihood": ll}).Debug("EM iteration")

		if iter > 0 {
			delta := ll - prev
			if delta < -likelihoodDropTol {
				m.Warnings.LogLikelihoodDecreased++
				log.WithFields(logrus.Fields{
					"iteration": iter,
					"drop":      -delta,
				}).Error("log-likelihood decreased; this indicates a numerical problem")
			} else if math.Abs(delta) < opts.Threshold {
				res.Converged = true
				log.WithField("iteration", iter).Debug("converged")
				break
			}
		}
		prev = ll

		if iter == opts.MaxIterations-1 {
			break
		}
		m.mStep(contexts, joint)
	}

	if !res.Converged {
		log.WithField("iterations", res.Iterations).Warn("did not converge within the iteration cap")
	}
	return res, nil
}

// mStep pools the per-sequence statistics and re-estimates all model
// parameters.
func (m *Model) mStep(contexts []*Context, joint *tabular.Table) {
	n := m.numStates

	logPriorStats := make([]float64, n)
	for s := 0; s < n; s++ {
		logPriorStats[s] = math.Inf(-1)
		for _, ctx := range contexts {
			logPriorStats[s] = logspace.AddExp(logPriorStats[s], ctx.logGamma[s][0])
		}
	}

	logXiPooled := makeMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			logXiPooled[i][j] = math.Inf(-1)
			for _, ctx := range contexts {
				logXiPooled[i][j] = logspace.AddExp(logXiPooled[i][j], ctx.logXiSums[i][j])
			}
		}
	}

	m.updateParameters(logPriorStats, logXiPooled)

	gamma := make([][]float64, n)
	for s := 0; s < n; s++ {
		gamma[s] = make([]float64, joint.RowCount())
		off := 0
		for _, ctx := range contexts {
			logspace.Exp(gamma[s][off:off+len(ctx.logGamma[s])], ctx.logGamma[s])
			off += len(ctx.logGamma[s])
		}
	}
	m.binding.Update(joint, gamma)
}

// Evaluate runs a single E-step on the table and returns the
// posterior log responsibilities, logGamma[state][row].  No parameter
// is updated.
func (m *Model) Evaluate(t *tabular.Table) ([][]float64, error) {
	ctx, err := NewContext(m, t)
	if err != nil {
		return nil, err
	}
	ctx.Iterate()

	out := make([][]float64, m.numStates)
	for s := range out {
		out[s] = make([]float64, t.RowCount())
		copy(out[s], ctx.logGamma[s])
	}
	return out, nil
}

// LogLikelihood evaluates the total sequence log-likelihood with a
// two-row rolling forward pass, without retaining the full tables.
func (m *Model) LogLikelihood(t *tabular.Table) (float64, error) {
	if t.RowCount() == 0 {
		return 0, fmt.Errorf("hmm: observation table has no rows")
	}
	n := m.numStates
	cur := make([]float64, n)
	next := make([]float64, n)
	work := make([]float64, n)

	for s := 0; s < n; s++ {
		cur[s] = m.logPriors[s] + m.binding.LogProbability(t, 0, s)
	}
	for row := 1; row < t.RowCount(); row++ {
		for s := 0; s < n; s++ {
			for p := 0; p < n; p++ {
				work[p] = cur[p] + m.logTransitions[p][s]
			}
			next[s] = logspace.SumExp(work) + m.binding.LogProbability(t, row, s)
		}
		cur, next = next, cur
	}
	ll := logspace.SumExp(cur)
	if math.IsNaN(ll) {
		panic("hmm: NaN log-likelihood")
	}
	return ll, nil
}

// concatTables stitches the first dims columns of the given tables
// into one table, preserving sequence order.  Used for the joint
// emission update.
func concatTables(tables []*tabular.Table, dims int) (*tabular.Table, error) {
	if len(tables) == 1 {
		return tables[0], nil
	}
	total := 0
	for _, t := range tables {
		total += t.RowCount()
	}
	names := tables[0].ColumnNames()[:dims]
	joint, err := tabular.New(total, names...)
	if err != nil {
		return nil, err
	}
	off := 0
	for _, t := range tables {
		for d := 0; d < dims; d++ {
			col := t.Column(d)
			dst := joint.Column(d)
			copy(dst[off:off+len(col)], col)
		}
		off += t.RowCount()
	}
	return joint, nil
}
