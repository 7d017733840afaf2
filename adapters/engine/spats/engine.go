// Package spats implements the spatial-smoothing engine: the mean model of
// the general engine plus a tensor-product P-spline surface over the field
// row/column coordinates, removed from the response by backfitting.
package spats

import (
	"context"
	"math"

	"github.com/ntduc11/statgenSTA/adapters/engine"
	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/ports"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) ID() ports.EngineID { return ports.EngineSpatial }

// Fit fits one trial/trait model with a 2-D spatial smooth always added
func (e *Engine) Fit(ctx context.Context, spec ports.ModelSpec, data *frame.Table) (ports.ModelFit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
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

	segRow := spec.NSegRow
	if segRow == 0 {
		segRow = defaultSegments(rowCoord)
	}
	segCol := spec.NSegCol
	if segCol == 0 {
		segCol = defaultSegments(colCoord)
	}

	terms := append(append([]string{}, spec.FixedTerms...), spec.RandomTerms...)
	d, err := engine.BuildDesign(data, obs, terms, !spec.GenotypeAsRandom)
	if err != nil {
		return nil, err
	}

	// Backfit: mean model, smooth on its residuals, mean model on the
	// detrended response.
	ls, err := engine.SolveLS(d.X, obs.Y)
	if err != nil {
		return nil, err
	}
	smooth, err := fitSurface(rowCoord, colCoord, ls.Resid, segRow, segCol)
	if err != nil {
		return nil, err
	}
	detrended := make([]float64, len(obs.Y))
	for i := range obs.Y {
		detrended[i] = obs.Y[i] - smooth.Values[i]
	}
	ls2, err := engine.SolveLS(d.X, detrended)
	if err != nil {
		return nil, err
	}

	n := len(obs.Y)
	fitted := make([]float64, n)
	resid := make([]float64, n)
	varComps := map[string]float64{"spatial": variance(smooth.Values)}
	dims := map[string]float64{"surface": smooth.EffDim}
	res := &engine.Result{
		Engine:   ports.EngineSpatial,
		Model:    spec,
		ObsRows:  obs.Rows,
		VarComps: varComps,
		Dims:     dims,
	}

	if spec.GenotypeAsRandom {
		vc, err := engine.GenoVarComp(ls2.Resid, obs.Geno)
		if err != nil {
			return nil, err
		}
		base := mean(ls2.Fitted)
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
		rss := 0.0
		for i := range obs.Y {
			fitted[i] = ls2.Fitted[i] + blup[obs.Geno[i]] + smooth.Values[i]
			resid[i] = obs.Y[i] - fitted[i]
			rss += resid[i] * resid[i]
		}
		aic, bic := engine.InfoCriteria(n, rss, ls2.P+2+int(math.Round(smooth.EffDim)))
		res.Fitted = fitted
		res.Resid = resid
		res.StdRes = engine.StdResiduals(resid, vc.SigmaE)
		res.Preds = preds
		varComps["genotype"] = vc.SigmaG
		varComps["residual"] = vc.SigmaE
		res.H2 = vc.Heritability()
		res.HasH2 = true
		res.AICValue = aic
		res.BICValue = bic
		return res, nil
	}

	rss := 0.0
	for i := range obs.Y {
		fitted[i] = ls2.Fitted[i] + smooth.Values[i]
		resid[i] = obs.Y[i] - fitted[i]
		rss += resid[i] * resid[i]
	}
	aic, bic := engine.InfoCriteria(n, rss, ls2.P+1+int(math.Round(smooth.EffDim)))
	res.Fitted = fitted
	res.Resid = resid
	res.StdRes = engine.StdResiduals(resid, ls2.Sigma2)
	res.Preds = engine.GenoMeans(d, ls2, obs)
	varComps["residual"] = ls2.Sigma2
	res.AICValue = aic
	res.BICValue = bic
	return res, nil
}

// defaultSegments follows the usual P-spline rule of thumb: one segment
// per coordinate step, capped to keep the basis small on large fields.
func defaultSegments(coord []float64) int {
	distinct := make(map[float64]bool)
	for _, v := range coord {
		distinct[v] = true
	}
	seg := len(distinct) - 1
	if seg > 10 {
		seg = 10
	}
	if seg < 2 {
		seg = 2
	}
	return seg
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func variance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	sum := 0.0
	for _, v := range vals {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(vals)-1)
}
