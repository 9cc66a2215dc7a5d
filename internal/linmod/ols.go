// Package linmod fits the linear models used by the normalizers and the
// differential test engines: ordinary least squares and REML linear mixed
// models with independent random intercepts.
package linmod

import (
	"fmt"
	"math"

	"isoquant/domain/core"

	"gonum.org/v1/gonum/mat"
)

// maxCondition bounds the condition number of X'X before a design is
// considered rank deficient.
const maxCondition = 1e12

// OLSFit is an ordinary least squares fit.
type OLSFit struct {
	Coef []float64
	// Unscaled is (X'X)^-1; the coefficient covariance is Sigma2 * Unscaled.
	Unscaled *mat.SymDense
	Fitted   []float64
	RSS      float64
	DF       int
	Sigma2   float64 // NaN when DF == 0
}

// StdUnscaled returns sqrt((X'X)^-1)_jj.
func (f *OLSFit) StdUnscaled(j int) float64 {
	return math.Sqrt(f.Unscaled.At(j, j))
}

// OLS fits y ~ X. X must have full column rank.
func OLS(X *mat.Dense, y []float64) (*OLSFit, error) {
	n, p := X.Dims()
	if len(y) != n {
		return nil, core.NewValidationError("ols", fmt.Sprintf("design has %d rows, response has %d", n, len(y)))
	}
	if n < p {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", core.ErrDegenerate, n, p)
	}

	xtx := mat.NewSymDense(p, nil)
	xtx.SymOuterK(1, X.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok || chol.Cond() > maxCondition {
		return nil, fmt.Errorf("%w: design matrix is rank deficient", core.ErrDegenerate)
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var xty mat.VecDense
	xty.MulVec(X.T(), yv)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDegenerate, err)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDegenerate, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)

	rss := 0.0
	fit := make([]float64, n)
	for i := 0; i < n; i++ {
		fit[i] = fitted.AtVec(i)
		r := y[i] - fit[i]
		rss += r * r
	}

	df := n - p
	sigma2 := math.NaN()
	if df > 0 {
		sigma2 = rss / float64(df)
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}

	return &OLSFit{Coef: coef, Unscaled: &inv, Fitted: fit, RSS: rss, DF: df, Sigma2: sigma2}, nil
}

// TreatmentDesign builds an intercept + indicator design. levels[i] is the
// level index of observation i; level 0 is the reference and gets no column.
// Extra columns (e.g. blocking factors) are appended as given.
func TreatmentDesign(levels []int, nLevels int, extra [][]float64) *mat.Dense {
	n := len(levels)
	p := nLevels + len(extra)
	X := mat.NewDense(n, p, nil)
	for i, l := range levels {
		X.Set(i, 0, 1)
		if l > 0 {
			X.Set(i, l, 1)
		}
		for k, col := range extra {
			X.Set(i, nLevels+k, col[i])
		}
	}
	return X
}
