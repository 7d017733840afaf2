// Package lmm implements the general linear mixed-model engine. The mean
// model (design terms, and genotype when fixed) is solved by least squares;
// genotype-random fits use method-of-moments variance components with
// shrinkage BLUPs.
package lmm

import (
	"context"
	"math"

	"github.com/ntduc11/statgenSTA/adapters/engine"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/ports"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) ID() ports.EngineID { return ports.EngineMixed }

// Fit fits one trial/trait model as described by the model specification
func (e *Engine) Fit(ctx context.Context, spec ports.ModelSpec, data *frame.Table) (ports.ModelFit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obs, err := engine.SelectObservations(data, spec.Trait)
	if err != nil {
		return nil, err
	}
	// Random design terms enter the mean model as factor dummies; only the
	// genotype component is shrunk.
	terms := append(append([]string{}, spec.FixedTerms...), spec.RandomTerms...)

	if spec.GenotypeAsRandom {
		return fitRandom(spec, data, obs, terms)
	}
	return fitFixed(spec, data, obs, terms)
}

func fitFixed(spec ports.ModelSpec, data *frame.Table, obs *engine.ObsSet, terms []string) (ports.ModelFit, error) {
	d, err := engine.BuildDesign(data, obs, terms, true)
	if err != nil {
		return nil, err
	}
	ls, err := engine.SolveLS(d.X, obs.Y)
	if err != nil {
		return nil, err
	}
	aic, bic := engine.InfoCriteria(ls.N, ls.RSS, ls.P+1)

	return &engine.Result{
		Engine:   ports.EngineMixed,
		Model:    spec,
		ObsRows:  obs.Rows,
		Fitted:   ls.Fitted,
		Resid:    ls.Resid,
		StdRes:   engine.StdResiduals(ls.Resid, ls.Sigma2),
		Preds:    engine.GenoMeans(d, ls, obs),
		VarComps: map[string]float64{"residual": ls.Sigma2},
		AICValue: aic,
		BICValue: bic,
	}, nil
}

func fitRandom(spec ports.ModelSpec, data *frame.Table, obs *engine.ObsSet, terms []string) (ports.ModelFit, error) {
	d, err := engine.BuildDesign(data, obs, terms, false)
	if err != nil {
		return nil, err
	}
	ls, err := engine.SolveLS(d.X, obs.Y)
	if err != nil {
		return nil, err
	}
	vc, err := engine.GenoVarComp(ls.Resid, obs.Geno)
	if err != nil {
		return nil, err
	}

	n := len(obs.Y)
	base := 0.0
	for _, f := range ls.Fitted {
		base += f
	}
	base /= float64(n)

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
	rss := 0.0
	for i := range obs.Y {
		fitted[i] = ls.Fitted[i] + blup[obs.Geno[i]]
		resid[i] = obs.Y[i] - fitted[i]
		rss += resid[i] * resid[i]
	}
	aic, bic := engine.InfoCriteria(n, rss, ls.P+2)

	return &engine.Result{
		Engine:  ports.EngineMixed,
		Model:   spec,
		ObsRows: obs.Rows,
		Fitted:  fitted,
		Resid:   resid,
		StdRes:  engine.StdResiduals(resid, vc.SigmaE),
		Preds:   preds,
		VarComps: map[string]float64{
			"genotype": vc.SigmaG,
			"residual": vc.SigmaE,
		},
		H2:       vc.Heritability(),
		HasH2:    true,
		AICValue: aic,
		BICValue: bic,
	}, nil
}
