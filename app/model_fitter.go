// Package app wires the domain model to the fitting engines: it resolves
// trial designs into model specifications, runs the fits, extracts statistics
// and screens residuals for outliers.
package app

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/design"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/internal"
	"github.com/ntduc11/statgenSTA/ports"
)

// EffectMode controls whether genotype enters the model as a fixed effect,
// a random effect, or both in turn.
type EffectMode string

const (
	ModeFixed  EffectMode = "fixed"
	ModeRandom EffectMode = "random"
	ModeBoth   EffectMode = "both"
)

// Criterion names the information criterion used to rank model candidates
type Criterion string

const (
	CriterionAIC Criterion = "AIC"
	CriterionBIC Criterion = "BIC"
)

// Options steer a fitting run. Zero values mean: all trials, all traits,
// design from trial metadata, engine from the design template, both effect
// modes, AIC ranking, serial execution.
type Options struct {
	Trials []string
	Traits []string
	Design design.Code
	Engine ports.EngineID
	Mode   EffectMode

	// Spatial requests a residual covariance comparison across the candidate
	// structures; it requires the explicit-covariance engine
	Spatial bool
	NSegRow int
	NSegCol int

	Criterion   Criterion
	MaxParallel int
}

// FitWarning records a non-fatal problem encountered during a run
type FitWarning struct {
	Trial   string
	Trait   string
	Message string
}

// CandidateFit is one row of a spatial covariance comparison
type CandidateFit struct {
	Structure ports.CovStructure
	AIC       float64
	BIC       float64
}

// SpatialComparison is the outcome of ranking the covariance candidates for
// one trait; Best is the structure the final fits used.
type SpatialComparison struct {
	Criterion  Criterion
	Candidates []CandidateFit
	Best       ports.CovStructure
}

// TraitFit bundles the fits of one trait under the requested effect modes
type TraitFit struct {
	Fixed      ports.ModelFit
	Random     ports.ModelFit
	Comparison *SpatialComparison
}

// FitResult is the outcome of fitting one trial: per-trait fits, the design
// and engine used, and any warnings. A trial whose design could not be
// determined yields a result with no trait fits.
type FitResult struct {
	RunID    uuid.UUID
	TrialID  string
	Engine   ports.EngineID
	Design   design.Code
	Traits   map[string]*TraitFit
	Warnings []FitWarning
	Source   *trial.Trial
}

// Fitter runs models for trials against the registered engines
type Fitter struct {
	registry *ports.Registry
	log      *internal.Logger
}

func NewFitter(registry *ports.Registry, log *internal.Logger) *Fitter {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Fitter{registry: registry, log: log.Named("fitter")}
}

// Fit fits the selected trials and traits. Trials run concurrently up to
// MaxParallel; per-trait failures become warnings on the trial result while
// unknown trials, designs and engines fail the whole run.
func (f *Fitter) Fit(ctx context.Context, td *trial.TrialData, opts Options) ([]*FitResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModeBoth
	}
	if opts.Criterion == "" {
		opts.Criterion = CriterionAIC
	}

	ids := opts.Trials
	if len(ids) == 0 {
		ids = td.IDs()
	}
	trials := make([]*trial.Trial, len(ids))
	for i, id := range ids {
		t, ok := td.Get(id)
		if !ok {
			return nil, core.NewUnknownTrialError(id)
		}
		trials[i] = t
	}

	runID := uuid.New()
	results := make([]*FitResult, len(trials))
	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxParallel > 0 {
		g.SetLimit(opts.MaxParallel)
	}
	for i, t := range trials {
		i, t := i, t
		g.Go(func() error {
			res, err := f.fitTrial(gctx, runID, t, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (f *Fitter) fitTrial(ctx context.Context, runID uuid.UUID, t *trial.Trial, opts Options) (*FitResult, error) {
	res := &FitResult{
		RunID:   runID,
		TrialID: t.ID,
		Traits:  make(map[string]*TraitFit),
		Source:  t,
	}

	code := opts.Design
	if code == "" && t.Meta != nil {
		code = t.Meta.Design
	}
	if code == "" {
		err := core.NewMissingDesignError(t.ID)
		f.log.Warn("%v", err)
		res.Warnings = append(res.Warnings, FitWarning{Trial: t.ID, Message: err.Error()})
		return res, nil
	}
	tpl, err := design.Resolve(code)
	if err != nil {
		return nil, err
	}
	res.Design = code

	engineID := opts.Engine
	if engineID == "" {
		engineID = tpl.DefaultEngine
	}
	eng, err := f.registry.Get(engineID)
	if err != nil {
		return nil, err
	}
	res.Engine = engineID

	spatial := opts.Spatial
	if spatial && engineID != ports.EngineCov {
		f.log.Warn("trial %q: covariance comparison needs the %s engine, ignoring", t.ID, ports.EngineCov)
		res.Warnings = append(res.Warnings, FitWarning{
			Trial:   t.ID,
			Message: fmt.Sprintf("covariance comparison needs the %s engine, ignored", ports.EngineCov),
		})
		spatial = false
	}

	traits := opts.Traits
	if len(traits) == 0 {
		traits = t.Traits
	}
	measured := make(map[string]bool, len(t.Traits))
	for _, tr := range t.Traits {
		measured[tr] = true
	}

	for _, traitName := range traits {
		if !measured[traitName] {
			res.Warnings = append(res.Warnings, FitWarning{
				Trial:   t.ID,
				Trait:   traitName,
				Message: "trait not measured in trial",
			})
			continue
		}
		spec := ports.ModelSpec{
			Trial:       t.ID,
			Trait:       traitName,
			Design:      string(code),
			FixedTerms:  tpl.Fixed,
			RandomTerms: tpl.Random,
			NSegRow:     opts.NSegRow,
			NSegCol:     opts.NSegCol,
		}
		tf := &TraitFit{}
		if spatial {
			cmp, selected, warns := f.compareCovariances(ctx, eng, spec, t, opts)
			res.Warnings = append(res.Warnings, warns...)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if cmp == nil {
				continue
			}
			tf.Comparison = cmp
			spec.Covariance = cmp.Best
			if selected != nil {
				if selected.Spec().GenotypeAsRandom {
					tf.Random = selected
				} else {
					tf.Fixed = selected
				}
			}
		}
		for _, random := range modes(opts.Mode) {
			if random && tf.Random != nil || !random && tf.Fixed != nil {
				continue
			}
			s := spec
			s.GenotypeAsRandom = random
			fit, err := eng.Fit(ctx, s, t.Data)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				f.log.Warn("trial %q trait %q: %v", t.ID, traitName, err)
				res.Warnings = append(res.Warnings, FitWarning{
					Trial:   t.ID,
					Trait:   traitName,
					Message: err.Error(),
				})
				continue
			}
			if random {
				tf.Random = fit
			} else {
				tf.Fixed = fit
			}
		}
		if tf.Fixed != nil || tf.Random != nil {
			res.Traits[traitName] = tf
		}
	}
	return res, nil
}

// compareCovariances fits every candidate structure in the primary effect
// mode and ranks them by the requested criterion; ties keep the earlier
// candidate. The winning fit is returned so it is not refitted.
func (f *Fitter) compareCovariances(ctx context.Context, eng ports.ModelEngine, spec ports.ModelSpec, t *trial.Trial, opts Options) (*SpatialComparison, ports.ModelFit, []FitWarning) {
	random := opts.Mode == ModeRandom

	cmp := &SpatialComparison{Criterion: opts.Criterion}
	var warns []FitWarning
	var bestFit ports.ModelFit
	bestScore := math.Inf(1)
	for _, cand := range ports.SpatialCandidates() {
		s := spec
		s.GenotypeAsRandom = random
		s.Covariance = cand
		fit, err := eng.Fit(ctx, s, t.Data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, warns
			}
			warns = append(warns, FitWarning{
				Trial:   t.ID,
				Trait:   spec.Trait,
				Message: fmt.Sprintf("candidate %s: %v", cand, err),
			})
			continue
		}
		cmp.Candidates = append(cmp.Candidates, CandidateFit{
			Structure: cand,
			AIC:       fit.AIC(),
			BIC:       fit.BIC(),
		})
		score := fit.AIC()
		if opts.Criterion == CriterionBIC {
			score = fit.BIC()
		}
		if score < bestScore {
			bestScore = score
			bestFit = fit
			cmp.Best = cand
		}
	}
	if bestFit == nil {
		warns = append(warns, FitWarning{
			Trial:   t.ID,
			Trait:   spec.Trait,
			Message: "no covariance candidate could be fitted",
		})
		return nil, nil, warns
	}
	return cmp, bestFit, warns
}

func modes(m EffectMode) []bool {
	switch m {
	case ModeFixed:
		return []bool{false}
	case ModeRandom:
		return []bool{true}
	default:
		return []bool{false, true}
	}
}
