package app

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/internal"
	"github.com/ntduc11/statgenSTA/ports"
)

// Stat names an extractable statistic
type Stat string

const (
	StatBLUEs        Stat = "BLUEs"
	StatSeBLUEs      Stat = "seBLUEs"
	StatBLUPs        Stat = "BLUPs"
	StatSeBLUPs      Stat = "seBLUPs"
	StatHeritability Stat = "heritability"
	StatVarGen       Stat = "varGen"
	StatVarErr       Stat = "varErr"
	StatVarSpat      Stat = "varSpat"
	StatFitted       Stat = "fitted"
	StatResid        Stat = "resid"
	StatStdRes       Stat = "stdRes"
	StatRMeans       Stat = "rMeans"
	StatCV           Stat = "CV"
	StatEffDim       Stat = "effDim"

	// StatAll expands to every statistic the fit can provide
	StatAll Stat = "all"
)

// allStats is the extraction order for "all"
var allStats = []Stat{
	StatBLUEs, StatSeBLUEs, StatBLUPs, StatSeBLUPs,
	StatHeritability, StatVarGen, StatVarErr, StatVarSpat,
	StatFitted, StatResid, StatStdRes, StatRMeans,
	StatCV, StatEffDim,
}

// capability gates a statistic on the effect mode of the fit it is read from
// and, for spatial statistics, on the engine.
type capability struct {
	mode         EffectMode // "" means either mode serves
	engine       ports.EngineID
	precondition string
}

var capabilities = map[Stat]capability{
	StatBLUEs:        {mode: ModeFixed, precondition: "genotype fitted as fixed"},
	StatSeBLUEs:      {mode: ModeFixed, precondition: "genotype fitted as fixed"},
	StatFitted:       {mode: ModeFixed, precondition: "genotype fitted as fixed"},
	StatResid:        {mode: ModeFixed, precondition: "genotype fitted as fixed"},
	StatStdRes:       {mode: ModeFixed, precondition: "genotype fitted as fixed"},
	StatCV:           {mode: ModeFixed, precondition: "genotype fitted as fixed"},
	StatBLUPs:        {mode: ModeRandom, precondition: "genotype fitted as random"},
	StatSeBLUPs:      {mode: ModeRandom, precondition: "genotype fitted as random"},
	StatHeritability: {mode: ModeRandom, precondition: "genotype fitted as random"},
	StatVarGen:       {mode: ModeRandom, precondition: "genotype fitted as random"},
	StatRMeans:       {mode: ModeRandom, precondition: "genotype fitted as random"},
	StatVarErr:       {precondition: "a fitted model"},
	StatVarSpat:      {engine: ports.EngineSpatial, precondition: "the spatial-smoothing engine"},
	StatEffDim:       {engine: ports.EngineSpatial, precondition: "the spatial-smoothing engine"},
}

// TraitStats holds every statistic extracted for one trait of one trial
type TraitStats struct {
	Trait string

	// Genotype-level statistics, keyed genotype level in Genotypes order
	Genotypes []string
	GenoStats map[Stat]map[string]float64

	Scalars map[Stat]float64

	// Observation-level statistics, aligned with the source rows in Rows
	Rows     []int
	ObsStats map[Stat][]float64

	EffDims map[string]float64

	// Keep columns joined back by genotype
	Keep map[string]map[string]string
}

// ExtractedResult maps the traits of one trial to their extracted statistics
type ExtractedResult struct {
	TrialID string
	Traits  map[string]*TraitStats
	// DroppedKeep lists keep columns that were not single-valued per
	// genotype and were dropped
	DroppedKeep []string
}

// Extractor reads uniform statistics out of heterogeneous engine fits
type Extractor struct {
	log *internal.Logger
}

func NewExtractor(log *internal.Logger) *Extractor {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Extractor{log: log.Named("extract")}
}

// Extract pulls the requested statistics for every fitted trait of a trial.
// "all" expands to whatever the fit supports; explicitly requesting an
// unavailable statistic is an error naming the missing precondition.
func (e *Extractor) Extract(res *FitResult, what []Stat, keep []string) (*ExtractedResult, error) {
	out := &ExtractedResult{
		TrialID: res.TrialID,
		Traits:  make(map[string]*TraitStats),
	}
	for traitName, tf := range res.Traits {
		ts, err := e.extractTrait(res, traitName, tf, what)
		if err != nil {
			return nil, err
		}
		out.Traits[traitName] = ts
	}
	if len(keep) > 0 {
		dropped, err := e.joinKeep(res, out, keep)
		if err != nil {
			return nil, err
		}
		out.DroppedKeep = dropped
	}
	return out, nil
}

func (e *Extractor) extractTrait(res *FitResult, traitName string, tf *TraitFit, what []Stat) (*TraitStats, error) {
	stats, err := resolveStats(tf, what)
	if err != nil {
		return nil, err
	}

	ts := &TraitStats{
		Trait:     traitName,
		GenoStats: make(map[Stat]map[string]float64),
		Scalars:   make(map[Stat]float64),
		ObsStats:  make(map[Stat][]float64),
	}
	if tf.Fixed != nil {
		ts.Rows = tf.Fixed.Rows()
		ts.Genotypes = tf.Fixed.GenoPredictions().Genotypes
	} else if tf.Random != nil {
		ts.Rows = tf.Random.Rows()
		ts.Genotypes = tf.Random.GenoPredictions().Genotypes
	}

	for _, stat := range stats {
		switch stat {
		case StatBLUEs:
			ts.GenoStats[stat] = tf.Fixed.GenoPredictions().Estimates
		case StatSeBLUEs:
			ts.GenoStats[stat] = tf.Fixed.GenoPredictions().StdErrors
		case StatBLUPs:
			ts.GenoStats[stat] = tf.Random.GenoPredictions().Estimates
		case StatSeBLUPs:
			ts.GenoStats[stat] = tf.Random.GenoPredictions().StdErrors
		case StatHeritability:
			h2, _ := tf.Random.Heritability()
			ts.Scalars[stat] = h2
		case StatVarGen:
			ts.Scalars[stat] = tf.Random.VarComponents()["genotype"]
		case StatVarErr:
			fit := tf.Random
			if fit == nil {
				fit = tf.Fixed
			}
			ts.Scalars[stat] = fit.VarComponents()["residual"]
		case StatVarSpat:
			fit := tf.Fixed
			if fit == nil {
				fit = tf.Random
			}
			ts.Scalars[stat] = fit.VarComponents()["spatial"]
		case StatFitted:
			ts.ObsStats[stat] = tf.Fixed.FittedValues()
		case StatResid:
			ts.ObsStats[stat] = tf.Fixed.Residuals()
		case StatStdRes:
			ts.ObsStats[stat] = tf.Fixed.StdResiduals()
		case StatRMeans:
			ts.ObsStats[stat] = tf.Random.FittedValues()
		case StatCV:
			ts.Scalars[stat] = coefVariation(tf.Fixed)
		case StatEffDim:
			fit := tf.Fixed
			if fit == nil {
				fit = tf.Random
			}
			dims, _ := fit.EffDims()
			ts.EffDims = dims
		default:
			return nil, core.NewUnsupportedStatisticError(string(stat), "a recognized statistic name")
		}
	}
	return ts, nil
}

// resolveStats validates the request against the capability table; "all"
// expands to what the fit supports. Explicit entries are validated even when
// "all" sits alongside them.
func resolveStats(tf *TraitFit, what []Stat) ([]Stat, error) {
	expandAll := len(what) == 0
	for _, s := range what {
		if s == StatAll {
			expandAll = true
			continue
		}
		req, ok := capabilities[s]
		if !ok {
			return nil, core.NewUnsupportedStatisticError(string(s), "a recognized statistic name")
		}
		if !available(tf, s) {
			return nil, core.NewUnsupportedStatisticError(string(s), req.precondition)
		}
	}
	if expandAll {
		var stats []Stat
		for _, s := range allStats {
			if available(tf, s) {
				stats = append(stats, s)
			}
		}
		return stats, nil
	}
	return what, nil
}

func available(tf *TraitFit, s Stat) bool {
	req, ok := capabilities[s]
	if !ok {
		return false
	}
	switch req.mode {
	case ModeFixed:
		if tf.Fixed == nil {
			return false
		}
	case ModeRandom:
		if tf.Random == nil {
			return false
		}
	default:
		if tf.Fixed == nil && tf.Random == nil {
			return false
		}
	}
	if req.engine != "" {
		fit := tf.Fixed
		if fit == nil {
			fit = tf.Random
		}
		if fit.EngineID() != req.engine {
			return false
		}
	}
	return true
}

func coefVariation(fit ports.ModelFit) float64 {
	m := 0.0
	for _, v := range fit.FittedValues() {
		m += v
	}
	n := float64(len(fit.FittedValues()))
	if n == 0 || m == 0 {
		return 0
	}
	m /= n
	sd := math.Sqrt(fit.VarComponents()["residual"])
	return 100 * sd / math.Abs(m)
}

// joinKeep joins extra source columns back at genotype level. A column that
// varies within a genotype cannot be joined and is dropped with a diagnostic.
func (e *Extractor) joinKeep(res *FitResult, out *ExtractedResult, keep []string) ([]string, error) {
	data := res.Source.Data
	geno, err := data.Strings(trial.ColGenotype)
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, col := range keep {
		if !data.HasColumn(col) {
			return nil, core.NewColumnNotFoundError(col)
		}
		vals, err := data.Strings(col)
		if err != nil {
			return nil, err
		}
		byGeno := make(map[string]string)
		single := true
		for i, g := range geno {
			if g == "" {
				continue
			}
			if prev, seen := byGeno[g]; seen && prev != vals[i] {
				single = false
				break
			}
			byGeno[g] = vals[i]
		}
		if !single {
			e.log.Warn("trial %q: keep column %q varies within genotype, dropped", res.TrialID, col)
			dropped = append(dropped, col)
			continue
		}
		for _, ts := range out.Traits {
			if ts.Keep == nil {
				ts.Keep = make(map[string]map[string]string)
			}
			ts.Keep[col] = byGeno
		}
	}
	return dropped, nil
}

// genoLevelStats are the statistics STAtoTD can rematerialize as traits
var genoLevelStats = map[Stat]bool{
	StatBLUEs:   true,
	StatSeBLUEs: true,
	StatBLUPs:   true,
	StatSeBLUPs: true,
}

// STAtoTD rebuilds a TrialData from genotype-level statistics, one row per
// genotype per trial with one `<trait>_<stat>` column per selection. With
// addWt a weight column 1/se^2 is added per trait, preferring seBLUEs over
// seBLUPs; requesting weights without a standard error selected is an error.
func (e *Extractor) STAtoTD(results []*ExtractedResult, stats []Stat, addWt bool, keep []string) (*trial.TrialData, error) {
	if len(stats) == 0 {
		stats = []Stat{StatBLUEs, StatSeBLUEs}
	}
	for _, s := range stats {
		if !genoLevelStats[s] {
			return nil, core.NewUnsupportedStatisticError(string(s), "a genotype-level statistic")
		}
	}
	seStat := Stat("")
	if addWt {
		for _, cand := range []Stat{StatSeBLUEs, StatSeBLUPs} {
			for _, s := range stats {
				if s == cand {
					seStat = cand
				}
			}
			if seStat != "" {
				break
			}
		}
		if seStat == "" {
			return nil, fmt.Errorf("%w: select seBLUEs or seBLUPs to compute weights", core.ErrMissingStandardError)
		}
	}

	traits := traitOrder(results)
	columns := []string{trial.ColTrial, trial.ColGenotype}
	var traitCols []string
	for _, tr := range traits {
		for _, s := range stats {
			traitCols = append(traitCols, tr+"_"+string(s))
		}
		if addWt {
			name := "wt"
			if len(traits) > 1 {
				name = "wt_" + tr
			}
			traitCols = append(traitCols, name)
		}
	}
	columns = append(columns, traitCols...)
	columns = append(columns, keep...)

	tbl := frame.New(columns)
	for _, res := range results {
		genotypes, keepVals := genotypeUnion(res, keep)
		for _, g := range genotypes {
			cells := []string{res.TrialID, g}
			for _, tr := range traits {
				ts := res.Traits[tr]
				for _, s := range stats {
					cells = append(cells, formatStat(ts, s, g))
				}
				if addWt {
					cells = append(cells, formatWeight(ts, seStat, g))
				}
			}
			for _, col := range keep {
				cells = append(cells, keepVals[col][g])
			}
			if err := tbl.AppendRow(cells); err != nil {
				return nil, err
			}
		}
	}

	return trial.Create(tbl, trial.RoleMapping{
		Genotype: trial.ColGenotype,
		Trial:    trial.ColTrial,
		Traits:   traitCols,
	})
}

// traitOrder returns the union of extracted traits in a stable order
func traitOrder(results []*ExtractedResult) []string {
	seen := make(map[string]bool)
	var traits []string
	for _, res := range results {
		for tr := range res.Traits {
			if !seen[tr] {
				seen[tr] = true
				traits = append(traits, tr)
			}
		}
	}
	sort.Strings(traits)
	return traits
}

// genotypeUnion collects the genotypes of a trial across traits, in the
// order they appear, along with the keep-column values joined per genotype.
func genotypeUnion(res *ExtractedResult, keep []string) ([]string, map[string]map[string]string) {
	seen := make(map[string]bool)
	var genotypes []string
	keepVals := make(map[string]map[string]string, len(keep))
	for _, col := range keep {
		keepVals[col] = make(map[string]string)
	}
	for _, tr := range traitOrder([]*ExtractedResult{res}) {
		ts := res.Traits[tr]
		for _, g := range ts.Genotypes {
			if !seen[g] {
				seen[g] = true
				genotypes = append(genotypes, g)
			}
		}
		for _, col := range keep {
			for g, v := range ts.Keep[col] {
				keepVals[col][g] = v
			}
		}
	}
	return genotypes, keepVals
}

func formatStat(ts *TraitStats, s Stat, genotype string) string {
	if ts == nil {
		return ""
	}
	vals, ok := ts.GenoStats[s]
	if !ok {
		return ""
	}
	v, ok := vals[genotype]
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatWeight(ts *TraitStats, seStat Stat, genotype string) string {
	if ts == nil {
		return ""
	}
	se, ok := ts.GenoStats[seStat][genotype]
	if !ok || se == 0 {
		return ""
	}
	return strconv.FormatFloat(1/(se*se), 'g', -1, 64)
}
