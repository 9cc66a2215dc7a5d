package linmod

import (
	"context"
	"fmt"
	"math"
	"time"

	"isoquant/domain/core"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// logRatioBounds clamps log(sigma_k^2 / sigma^2) during the search.
const (
	logRatioMin = -18.0
	logRatioMax = 12.0
)

// MaxMixedDim bounds p+q of the dense mixed model equations.
const MaxMixedDim = 6000

// MixedModel is y = X b + sum_k Z_k u_k + e with u_k ~ N(0, s_k^2 I) and
// e ~ N(0, s^2 I). Each random factor is given as a level index per
// observation.
type MixedModel struct {
	Y      []float64
	X      *mat.Dense
	Groups [][]int
	Levels []int
}

// REMLOptions bounds the variance-component search.
type REMLOptions struct {
	MaxIterations int
	Tolerance     float64
	Runtime       time.Duration
}

// DefaultREMLOptions returns conservative defaults.
func DefaultREMLOptions() REMLOptions {
	return REMLOptions{MaxIterations: 200, Tolerance: 1e-8}
}

// MixedFit is a converged REML fit.
type MixedFit struct {
	Beta    []float64
	BetaCov *mat.Dense
	Random  [][]float64
	Sigma2  float64
	VarComp []float64
	// Residuals are conditional: y - X b - Z u.
	Residuals  []float64
	Deviance   float64
	Iterations int
	Status     optimize.Status
}

type mme struct {
	n, p, q int
	offsets []int
	xtx     *mat.Dense
	xtz     *mat.Dense
	ztz     *mat.Dense
	rhs     *mat.VecDense
	yty     float64
	levels  []int
}

func buildMME(m MixedModel) (*mme, error) {
	n, p := m.X.Dims()
	if len(m.Y) != n {
		return nil, core.NewValidationError("mixed model", fmt.Sprintf("design has %d rows, response has %d", n, len(m.Y)))
	}
	if len(m.Groups) == 0 || len(m.Groups) != len(m.Levels) {
		return nil, core.NewValidationError("mixed model", "at least one random factor with a level count is required")
	}
	offsets := make([]int, len(m.Levels))
	q := 0
	for k, l := range m.Levels {
		if len(m.Groups[k]) != n {
			return nil, core.NewValidationError("mixed model", fmt.Sprintf("factor %d has %d entries, want %d", k, len(m.Groups[k]), n))
		}
		offsets[k] = q
		q += l
	}
	if p+q > MaxMixedDim {
		return nil, core.NewValidationError("mixed model", fmt.Sprintf("%d fixed + %d random effects exceed the dense limit %d", p, q, MaxMixedDim))
	}
	if n <= p {
		return nil, fmt.Errorf("%w: %d observations for %d fixed effects", core.ErrInsufficientReplication, n, p)
	}

	xtx := mat.NewDense(p, p, nil)
	xtx.Mul(m.X.T(), m.X)

	xtz := mat.NewDense(p, q, nil)
	ztz := mat.NewDense(q, q, nil)
	rhs := mat.NewVecDense(p+q, nil)
	yty := 0.0

	cols := make([]int, len(m.Groups))
	for i := 0; i < n; i++ {
		y := m.Y[i]
		yty += y * y
		for j := 0; j < p; j++ {
			rhs.SetVec(j, rhs.AtVec(j)+m.X.At(i, j)*y)
		}
		for k := range m.Groups {
			l := m.Groups[k][i]
			if l < 0 || l >= m.Levels[k] {
				return nil, core.NewValidationError("mixed model", fmt.Sprintf("observation %d has level %d outside factor %d", i, l, k))
			}
			cols[k] = offsets[k] + l
			rhs.SetVec(p+cols[k], rhs.AtVec(p+cols[k])+y)
			for j := 0; j < p; j++ {
				xtz.Set(j, cols[k], xtz.At(j, cols[k])+m.X.At(i, j))
			}
		}
		for a := range cols {
			for b := range cols {
				ztz.Set(cols[a], cols[b], ztz.At(cols[a], cols[b])+1)
			}
		}
	}

	return &mme{n: n, p: p, q: q, offsets: offsets, xtx: xtx, xtz: xtz, ztz: ztz, rhs: rhs, yty: yty, levels: m.Levels}, nil
}

// coefficient assembles C(theta) = [[X'X, X'Z], [Z'X, Z'Z + diag(1/theta)]].
func (e *mme) coefficient(theta []float64) *mat.SymDense {
	dim := e.p + e.q
	c := mat.NewSymDense(dim, nil)
	for i := 0; i < e.p; i++ {
		for j := i; j < e.p; j++ {
			c.SetSym(i, j, e.xtx.At(i, j))
		}
		for j := 0; j < e.q; j++ {
			c.SetSym(i, e.p+j, e.xtz.At(i, j))
		}
	}
	for k, off := range e.offsets {
		for l := 0; l < e.levels[k]; l++ {
			a := off + l
			for b := a; b < e.q; b++ {
				v := e.ztz.At(a, b)
				if a == b {
					v += 1 / theta[k]
				}
				c.SetSym(e.p+a, e.p+b, v)
			}
		}
	}
	return c
}

type mmeSolution struct {
	chol   mat.Cholesky
	sol    mat.VecDense
	sigma2 float64
	dev    float64
}

func (e *mme) solve(theta []float64) (*mmeSolution, bool) {
	var s mmeSolution
	if ok := s.chol.Factorize(e.coefficient(theta)); !ok {
		return nil, false
	}
	if err := s.chol.SolveVecTo(&s.sol, e.rhs); err != nil {
		return nil, false
	}
	quad := e.yty - mat.Dot(&s.sol, e.rhs)
	df := float64(e.n - e.p)
	if quad <= 0 {
		quad = 1e-300
	}
	s.sigma2 = quad / df

	logDetG := 0.0
	for k, th := range theta {
		logDetG += float64(e.levels[k]) * math.Log(th)
	}
	s.dev = df*math.Log(s.sigma2) + logDetG + s.chol.LogDet()
	return &s, true
}

func thetaFrom(x []float64) []float64 {
	theta := make([]float64, len(x))
	for i, v := range x {
		theta[i] = math.Exp(math.Max(logRatioMin, math.Min(logRatioMax, v)))
	}
	return theta
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

// FitREML estimates the variance components by restricted maximum likelihood
// and returns BLUPs and conditional residuals. A search that stops without
// converging fails with core.ErrConvergence; it is never approximated.
func FitREML(ctx context.Context, m MixedModel, opts REMLOptions) (*MixedFit, error) {
	e, err := buildMME(m)
	if err != nil {
		return nil, err
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultREMLOptions().MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultREMLOptions().Tolerance
	}
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, ctx.Err()
		}
		if opts.Runtime == 0 || left < opts.Runtime {
			opts.Runtime = left
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			s, ok := e.solve(thetaFrom(x))
			if !ok {
				return math.Inf(1)
			}
			return s.dev
		},
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Runtime:         opts.Runtime,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Relative:   opts.Tolerance,
			Iterations: 25,
		},
	}

	start := make([]float64, len(m.Groups))
	res, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	iterations := 0
	if res != nil {
		iterations = res.Stats.MajorIterations
	}
	if err != nil || res == nil || !converged(res.Status) {
		return nil, core.NewConvergenceError("REML variance components", iterations)
	}

	theta := thetaFrom(res.X)
	s, ok := e.solve(theta)
	if !ok {
		return nil, fmt.Errorf("%w: mixed model equations are singular at the optimum", core.ErrDegenerate)
	}

	fit := &MixedFit{
		Beta:       make([]float64, e.p),
		Random:     make([][]float64, len(m.Groups)),
		Sigma2:     s.sigma2,
		VarComp:    make([]float64, len(theta)),
		Residuals:  make([]float64, e.n),
		Deviance:   s.dev,
		Iterations: iterations,
		Status:     res.Status,
	}
	for j := 0; j < e.p; j++ {
		fit.Beta[j] = s.sol.AtVec(j)
	}
	for k, off := range e.offsets {
		fit.VarComp[k] = theta[k] * s.sigma2
		u := make([]float64, e.levels[k])
		for l := range u {
			u[l] = s.sol.AtVec(e.p + off + l)
		}
		fit.Random[k] = u
	}

	for i := 0; i < e.n; i++ {
		pred := 0.0
		for j := 0; j < e.p; j++ {
			pred += m.X.At(i, j) * fit.Beta[j]
		}
		for k := range m.Groups {
			pred += fit.Random[k][m.Groups[k][i]]
		}
		fit.Residuals[i] = m.Y[i] - pred
	}

	// Cov(b) = s^2 * (C^-1)_bb, from solving C Y = [I_p; 0].
	dim := e.p + e.q
	id := mat.NewDense(dim, e.p, nil)
	for j := 0; j < e.p; j++ {
		id.Set(j, j, 1)
	}
	var cinv mat.Dense
	if err := s.chol.SolveTo(&cinv, id); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDegenerate, err)
	}
	cov := mat.NewDense(e.p, e.p, nil)
	for i := 0; i < e.p; i++ {
		for j := 0; j < e.p; j++ {
			cov.Set(i, j, s.sigma2*cinv.At(i, j))
		}
	}
	fit.BetaCov = cov

	return fit, nil
}
