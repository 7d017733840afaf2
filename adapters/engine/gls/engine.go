// Package gls implements the explicit-covariance engine: generalized least
// squares under an AR1-by-row, AR1-by-column or separable AR1xAR1 residual
// correlation, optionally with a nugget. Correlation parameters are profiled
// out by a grid search over the Gaussian log-likelihood.
package gls

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ntduc11/statgenSTA/adapters/engine"
	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/ports"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) ID() ports.EngineID { return ports.EngineCov }

// Fit fits one trial/trait model under the covariance structure named by the
// spec; an empty structure means independent residuals.
func (e *Engine) Fit(ctx context.Context, spec ports.ModelSpec, data *frame.Table) (ports.ModelFit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cov := spec.Covariance
	if cov == "" {
		cov = ports.CovIdentity
	}
	st, ok := structures[cov]
	if !ok {
		return nil, fmt.Errorf("unknown covariance structure %q", cov)
	}
	for _, col := range []string{trial.ColRowCoord, trial.ColColCoord} {
		if !data.HasColumn(col) {
			return nil, core.NewColumnNotFoundError(col)
		}
	}
	obs, err := engine.SelectObservations(data, spec.Trait)
	if err != nil {
		return nil, err
	}
	rowCoord, colCoord, err := engine.Coordinates(data, obs)
	if err != nil {
		return nil, err
	}

	terms := append(append([]string{}, spec.FixedTerms...), spec.RandomTerms...)
	d, err := engine.BuildDesign(data, obs, terms, !spec.GenotypeAsRandom)
	if err != nil {
		return nil, err
	}

	var best *glsFit
	for _, p := range searchGrid(st) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := corrMatrix(st, p, rowCoord, colCoord)
		fit, err := solveGLS(d.X, obs.Y, c)
		if err != nil {
			continue
		}
		if best == nil || fit.LogLik > best.LogLik {
			best = fit
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no covariance parameters yielded a stable fit", core.ErrSingularDesign)
	}

	// residual variance plus mean parameters plus free correlation parameters
	k := best.P + 1 + paramCount(st)
	n := best.N
	spec.Covariance = cov

	res := &engine.Result{
		Engine:  ports.EngineCov,
		Model:   spec,
		ObsRows: obs.Rows,
	}

	if spec.GenotypeAsRandom {
		vc, err := engine.GenoVarComp(best.Resid, obs.Geno)
		if err != nil {
			return nil, err
		}
		base := mean(best.Fitted)
		preds := ports.GenoPredictions{
			Genotypes: append([]string(nil), obs.GenoLevels...),
			Estimates: make(map[string]float64, len(obs.GenoLevels)),
			StdErrors: make(map[string]float64, len(obs.GenoLevels)),
		}
		blup := make(map[string]float64, len(obs.GenoLevels))
		for _, g := range obs.GenoLevels {
			shrink := vc.Shrink(vc.GroupN[g])
			blup[g] = shrink * vc.GroupMeans[g]
			preds.Estimates[g] = base + blup[g]
			preds.StdErrors[g] = math.Sqrt(vc.SigmaG * (1 - shrink))
		}
		fitted := make([]float64, n)
		resid := make([]float64, n)
		for i := range obs.Y {
			fitted[i] = best.Fitted[i] + blup[obs.Geno[i]]
			resid[i] = obs.Y[i] - fitted[i]
		}
		ll := gaussLogLik(n, rss(resid), best.LogDet)
		res.Fitted = fitted
		res.Resid = resid
		res.StdRes = engine.StdResiduals(resid, vc.SigmaE)
		res.Preds = preds
		res.VarComps = map[string]float64{
			"genotype": vc.SigmaG,
			"residual": vc.SigmaE,
		}
		res.H2 = vc.Heritability()
		res.HasH2 = true
		res.AICValue = -2*ll + 2*float64(k+1)
		res.BICValue = -2*ll + float64(k+1)*math.Log(float64(n))
		return res, nil
	}

	ls := &engine.LSFit{
		Beta:   best.Beta,
		XtXInv: best.XtCiXInv,
		Fitted: best.Fitted,
		Resid:  best.Resid,
		Sigma2: best.Sigma2,
		N:      n,
		P:      best.P,
	}
	res.Fitted = best.Fitted
	res.Resid = best.Resid
	res.StdRes = engine.StdResiduals(best.Resid, best.Sigma2)
	res.Preds = engine.GenoMeans(d, ls, obs)
	res.VarComps = map[string]float64{"residual": best.Sigma2}
	res.AICValue = -2*best.LogLik + 2*float64(k)
	res.BICValue = -2*best.LogLik + float64(k)*math.Log(float64(n))
	return res, nil
}

// glsFit is a generalized least squares solution for one correlation matrix
type glsFit struct {
	Beta     []float64
	XtCiXInv *mat.Dense
	Fitted   []float64
	Resid    []float64
	Sigma2   float64
	LogDet   float64
	LogLik   float64
	N, P     int
}

// solveGLS fits y = X beta with Cov(eps) = sigma2 * C, profiling sigma2 out
// of the Gaussian log-likelihood.
func solveGLS(X *mat.Dense, y []float64, c *mat.SymDense) (*glsFit, error) {
	n, p := X.Dims()
	if n <= p {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", core.ErrSingularDesign, n, p)
	}

	var cChol mat.Cholesky
	if ok := cChol.Factorize(c); !ok {
		return nil, fmt.Errorf("correlation matrix is not positive definite")
	}
	logDet := cChol.LogDet()

	var cix mat.Dense
	if err := cChol.SolveTo(&cix, X); err != nil {
		return nil, err
	}
	var xtcix mat.Dense
	xtcix.Mul(X.T(), &cix)
	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			sym.SetSym(i, j, xtcix.At(i, j))
		}
	}

	yVec := mat.NewVecDense(n, y)
	var ciy mat.VecDense
	if err := cChol.SolveVecTo(&ciy, yVec); err != nil {
		return nil, err
	}
	var xtciy mat.VecDense
	xtciy.MulVec(X.T(), &ciy)

	var bChol mat.Cholesky
	if ok := bChol.Factorize(sym); !ok {
		return nil, fmt.Errorf("%w: %d columns", core.ErrSingularDesign, p)
	}
	var beta mat.VecDense
	if err := bChol.SolveVecTo(&beta, &xtciy); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}
	var inv mat.SymDense
	if err := bChol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	fit := &glsFit{
		Beta:     make([]float64, p),
		XtCiXInv: mat.DenseCopyOf(&inv),
		Fitted:   make([]float64, n),
		Resid:    make([]float64, n),
		LogDet:   logDet,
		N:        n,
		P:        p,
	}
	for j := 0; j < p; j++ {
		fit.Beta[j] = beta.AtVec(j)
	}
	var fv mat.VecDense
	fv.MulVec(X, &beta)
	for i := 0; i < n; i++ {
		fit.Fitted[i] = fv.AtVec(i)
		fit.Resid[i] = y[i] - fit.Fitted[i]
	}

	// weighted residual sum of squares r' C^-1 r
	rVec := mat.NewVecDense(n, fit.Resid)
	var cir mat.VecDense
	if err := cChol.SolveVecTo(&cir, rVec); err != nil {
		return nil, err
	}
	quad := 0.0
	for i := 0; i < n; i++ {
		quad += fit.Resid[i] * cir.AtVec(i)
	}
	fit.Sigma2 = quad / float64(n-p)
	fit.LogLik = gaussLogLik(n, quad, logDet)
	return fit, nil
}

// gaussLogLik is the profiled Gaussian log-likelihood given the weighted RSS
// and the log-determinant of the correlation matrix
func gaussLogLik(n int, quad, logDet float64) float64 {
	sigma2 := quad / float64(n)
	if sigma2 <= 0 {
		sigma2 = 1e-12
	}
	return -0.5 * (float64(n)*(math.Log(2*math.Pi*sigma2)+1) + logDet)
}

func rss(resid []float64) float64 {
	out := 0.0
	for _, r := range resid {
		out += r * r
	}
	return out
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
