package app

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/internal"
	"github.com/ntduc11/statgenSTA/ports"
)

// OutlierOptions steer residual screening. A zero RLimit derives the
// threshold from the observation count of each fit.
type OutlierOptions struct {
	Trials        []string
	Traits        []string
	Mode          EffectMode // fixed (default) or random
	RLimit        float64
	CommonFactors []string
}

// OutlierEntry is one detail row: a flagged observation, or an observation
// sharing all common-factor values with a flagged one.
type OutlierEntry struct {
	Trial    string
	Trait    string
	Row      int
	Genotype string
	Value    float64
	Residual float64
	StdRes   float64
	Outlier  bool
	Similar  bool
}

// OutlierReport pairs the per-trial indicator tables with the detail rows.
// Detail is nil when nothing was flagged.
type OutlierReport struct {
	// Indicator maps trial -> trait -> one flag per source table row
	Indicator map[string]map[string][]bool
	Detail    []OutlierEntry
}

// OutlierDetector flags observations with large standardized residuals
type OutlierDetector struct {
	log *internal.Logger
}

func NewOutlierDetector(log *internal.Logger) *OutlierDetector {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &OutlierDetector{log: log.Named("outliers")}
}

// DefaultRLimit is the residual threshold for a fit with n observations:
// the standard normal quantile at 1 - 0.5/n.
func DefaultRLimit(n int) float64 {
	if n < 2 {
		return math.Inf(1)
	}
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	return norm.Quantile(1 - 0.5/float64(n))
}

// Detect screens the standardized residuals of the selected fits. Rows
// excluded from a fit (missing response) are never flagged.
func (d *OutlierDetector) Detect(results []*FitResult, opts OutlierOptions) (*OutlierReport, error) {
	if opts.Mode == "" || opts.Mode == ModeBoth {
		opts.Mode = ModeFixed
	}
	trialFilter := toSet(opts.Trials)
	traitFilter := toSet(opts.Traits)

	report := &OutlierReport{Indicator: make(map[string]map[string][]bool)}
	for _, res := range results {
		if trialFilter != nil && !trialFilter[res.TrialID] {
			continue
		}
		for traitName, tf := range res.Traits {
			if traitFilter != nil && !traitFilter[traitName] {
				continue
			}
			fit := tf.Fixed
			if opts.Mode == ModeRandom {
				fit = tf.Random
			}
			if fit == nil {
				d.log.Warn("trial %q trait %q: no %s-genotype fit, skipped", res.TrialID, traitName, opts.Mode)
				continue
			}
			if err := d.screen(report, res, traitName, fit, opts); err != nil {
				return nil, err
			}
		}
	}
	return report, nil
}

func (d *OutlierDetector) screen(report *OutlierReport, res *FitResult, traitName string, fit ports.ModelFit, opts OutlierOptions) error {
	data := res.Source.Data
	rows := fit.Rows()
	stdRes := fit.StdResiduals()
	resid := fit.Residuals()

	rLimit := opts.RLimit
	if rLimit == 0 {
		rLimit = DefaultRLimit(len(rows))
	}

	indicator := make([]bool, data.NRows())
	var flaggedRows []int
	for i, r := range rows {
		if math.Abs(stdRes[i]) > rLimit {
			indicator[r] = true
			flaggedRows = append(flaggedRows, i)
		}
	}
	if report.Indicator[res.TrialID] == nil {
		report.Indicator[res.TrialID] = make(map[string][]bool)
	}
	report.Indicator[res.TrialID][traitName] = indicator
	if len(flaggedRows) == 0 {
		return nil
	}

	y, err := data.Floats(traitName)
	if err != nil {
		return err
	}
	geno, err := data.Strings(trial.ColGenotype)
	if err != nil {
		return err
	}

	similar, err := d.similarRows(data, rows, flaggedRows, opts.CommonFactors)
	if err != nil {
		return err
	}
	for i, r := range rows {
		flagged := indicator[r]
		if !flagged && !similar[i] {
			continue
		}
		report.Detail = append(report.Detail, OutlierEntry{
			Trial:    res.TrialID,
			Trait:    traitName,
			Row:      r,
			Genotype: geno[r],
			Value:    y[r],
			Residual: resid[i],
			StdRes:   stdRes[i],
			Outlier:  flagged,
			Similar:  similar[i],
		})
	}
	return nil
}

// similarRows marks the observations that share every common-factor value
// with at least one flagged observation other than themselves.
func (d *OutlierDetector) similarRows(data *frame.Table, rows, flaggedRows []int, factors []string) ([]bool, error) {
	similar := make([]bool, len(rows))
	if len(factors) == 0 || len(flaggedRows) == 0 {
		return similar, nil
	}
	vals := make([][]string, len(factors))
	for i, col := range factors {
		if !data.HasColumn(col) {
			return nil, core.NewColumnNotFoundError(col)
		}
		v, err := data.Strings(col)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	key := func(r int) string {
		out := ""
		for i := range factors {
			out += vals[i][r] + "\x00"
		}
		return out
	}
	flaggedKeys := make(map[string][]int, len(flaggedRows))
	for _, fi := range flaggedRows {
		k := key(rows[fi])
		flaggedKeys[k] = append(flaggedKeys[k], fi)
	}
	for i, r := range rows {
		peers, ok := flaggedKeys[key(r)]
		if !ok {
			continue
		}
		for _, fi := range peers {
			if fi != i {
				similar[i] = true
				break
			}
		}
	}
	return similar, nil
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
