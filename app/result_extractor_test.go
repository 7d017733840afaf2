package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntduc11/statgenSTA/adapters/engine"
	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/design"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/ports"
)

// fixedOnlyResult builds a fit result with genotype fitted as fixed only
func fixedOnlyResult() *FitResult {
	data := frame.FromRecords(
		[]string{"genotype", "origin", "yield"},
		[][]string{
			{"G1", "NL", "10"},
			{"G1", "NL", "11"},
			{"G2", "DE", "12"},
			{"G2", "DE", "13"},
		},
	)
	fit := &engine.Result{
		Engine:  ports.EngineMixed,
		Model:   ports.ModelSpec{Trial: "E1", Trait: "yield"},
		ObsRows: []int{0, 1, 2, 3},
		Fitted:  []float64{10.5, 10.5, 12.5, 12.5},
		Resid:   []float64{-0.5, 0.5, -0.5, 0.5},
		StdRes:  []float64{-1, 1, -1, 1},
		Preds: ports.GenoPredictions{
			Genotypes: []string{"G1", "G2"},
			Estimates: map[string]float64{"G1": 10.5, "G2": 12.5},
			StdErrors: map[string]float64{"G1": 0.5, "G2": 0.25},
		},
		VarComps: map[string]float64{"residual": 0.5},
	}
	return &FitResult{
		TrialID: "E1",
		Engine:  ports.EngineMixed,
		Design:  design.RCBD,
		Traits:  map[string]*TraitFit{"yield": {Fixed: fit}},
		Source:  &trial.Trial{ID: "E1", Data: data, Traits: []string{"yield"}},
	}
}

func TestExtractBLUPsNeedsRandomFit(t *testing.T) {
	ex := NewExtractor(nil)
	_, err := ex.Extract(fixedOnlyResult(), []Stat{StatBLUPs}, nil)
	require.ErrorIs(t, err, core.ErrUnsupportedStatistic)
	assert.Contains(t, err.Error(), "genotype fitted as random")
}

func TestExtractAllFiltersToAvailable(t *testing.T) {
	ex := NewExtractor(nil)
	out, err := ex.Extract(fixedOnlyResult(), []Stat{StatAll}, nil)
	require.NoError(t, err)

	ts := out.Traits["yield"]
	require.NotNil(t, ts)
	assert.Contains(t, ts.GenoStats, StatBLUEs)
	assert.Contains(t, ts.GenoStats, StatSeBLUEs)
	assert.NotContains(t, ts.GenoStats, StatBLUPs)
	assert.Contains(t, ts.Scalars, StatVarErr)
	assert.Contains(t, ts.Scalars, StatCV)
	assert.NotContains(t, ts.Scalars, StatHeritability)
	// not a spatial fit
	assert.NotContains(t, ts.Scalars, StatVarSpat)
	assert.Equal(t, []float64{10.5, 10.5, 12.5, 12.5}, ts.ObsStats[StatFitted])
}

func TestExtractAllDoesNotMaskExplicitStats(t *testing.T) {
	ex := NewExtractor(nil)
	_, err := ex.Extract(fixedOnlyResult(), []Stat{StatAll, StatBLUPs}, nil)
	require.ErrorIs(t, err, core.ErrUnsupportedStatistic)
	assert.Contains(t, err.Error(), "genotype fitted as random")
}

func TestExtractKeepColumns(t *testing.T) {
	ex := NewExtractor(nil)
	out, err := ex.Extract(fixedOnlyResult(), []Stat{StatBLUEs}, []string{"origin"})
	require.NoError(t, err)
	ts := out.Traits["yield"]
	require.NotNil(t, ts.Keep)
	assert.Equal(t, "NL", ts.Keep["origin"]["G1"])
	assert.Equal(t, "DE", ts.Keep["origin"]["G2"])
	assert.Empty(t, out.DroppedKeep)
}

func TestExtractKeepColumnVaryingWithinGenotypeIsDropped(t *testing.T) {
	res := fixedOnlyResult()
	// a plot-level column is not constant per genotype
	require.NoError(t, res.Source.Data.AppendStringColumn("plot", []string{"p1", "p2", "p3", "p4"}))

	ex := NewExtractor(nil)
	out, err := ex.Extract(res, []Stat{StatBLUEs}, []string{"plot"})
	require.NoError(t, err)
	assert.Equal(t, []string{"plot"}, out.DroppedKeep)
	assert.NotContains(t, out.Traits["yield"].Keep, "plot")
}

func TestSTAtoTDBuildsTraitColumns(t *testing.T) {
	ex := NewExtractor(nil)
	extracted, err := ex.Extract(fixedOnlyResult(), []Stat{StatBLUEs, StatSeBLUEs}, nil)
	require.NoError(t, err)

	td, err := ex.STAtoTD([]*ExtractedResult{extracted}, []Stat{StatBLUEs, StatSeBLUEs}, true, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"E1"}, td.IDs())

	tr, ok := td.Get("E1")
	require.True(t, ok)
	require.Equal(t, 2, tr.Data.NRows())

	blues, err := tr.Data.Floats("yield_BLUEs")
	require.NoError(t, err)
	assert.Equal(t, []float64{10.5, 12.5}, blues)

	// weight is exactly 1/se^2 for every row
	se, err := tr.Data.Floats("yield_seBLUEs")
	require.NoError(t, err)
	wt, err := tr.Data.Floats("wt")
	require.NoError(t, err)
	for i := range wt {
		assert.Equal(t, 1/(se[i]*se[i]), wt[i], "row %d", i)
	}
}

func TestSTAtoTDWeightsNeedStandardErrors(t *testing.T) {
	ex := NewExtractor(nil)
	extracted, err := ex.Extract(fixedOnlyResult(), []Stat{StatBLUEs}, nil)
	require.NoError(t, err)

	_, err = ex.STAtoTD([]*ExtractedResult{extracted}, []Stat{StatBLUEs}, true, nil)
	require.ErrorIs(t, err, core.ErrMissingStandardError)
}

func TestSTAtoTDRejectsObservationStats(t *testing.T) {
	ex := NewExtractor(nil)
	extracted, err := ex.Extract(fixedOnlyResult(), []Stat{StatAll}, nil)
	require.NoError(t, err)

	_, err = ex.STAtoTD([]*ExtractedResult{extracted}, []Stat{StatFitted}, false, nil)
	require.ErrorIs(t, err, core.ErrUnsupportedStatistic)
}
