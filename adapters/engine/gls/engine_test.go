package gls

import (
	"context"
	"math"
	"testing"

	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/internal/testkit"
	"github.com/ntduc11/statgenSTA/ports"
)

func fixture(t *testing.T, spec testkit.TrialSpec) *trial.Trial {
	t.Helper()
	td, err := trial.Create(testkit.Generate(spec), trial.RoleMapping{
		Genotype: "geno",
		Trial:    "env",
		RepID:    "rep",
		RowCoord: "fieldRow",
		ColCoord: "fieldCol",
		Traits:   []string{"yield"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tr, ok := td.Get(spec.Name)
	if !ok {
		t.Fatalf("trial %q not found", spec.Name)
	}
	return tr
}

func TestStructuresCoverAllCandidates(t *testing.T) {
	for _, cand := range ports.SpatialCandidates() {
		if _, ok := structures[cand]; !ok {
			t.Errorf("no structure definition for %s", cand)
		}
	}
	if len(structures) != len(ports.SpatialCandidates()) {
		t.Errorf("structure table has %d entries, want %d", len(structures), len(ports.SpatialCandidates()))
	}
}

func TestSearchGridSizes(t *testing.T) {
	tests := []struct {
		cov  ports.CovStructure
		want int
	}{
		{ports.CovIdentity, 1},
		{ports.CovAR1Row, 9},
		{ports.CovAR1Both, 81},
		{ports.CovAR1RowNugget, 45},
		{ports.CovAR1BothNugget, 405},
	}
	for _, tc := range tests {
		got := len(searchGrid(structures[tc.cov]))
		if got != tc.want {
			t.Errorf("%s: grid size = %d, want %d", tc.cov, got, tc.want)
		}
	}
}

func TestParamCount(t *testing.T) {
	if n := paramCount(structures[ports.CovIdentity]); n != 0 {
		t.Errorf("id params = %d", n)
	}
	if n := paramCount(structures[ports.CovAR1BothNugget]); n != 3 {
		t.Errorf("ar1xar1+nugget params = %d", n)
	}
}

func TestCorrMatrixAR1Row(t *testing.T) {
	rows := []float64{1, 2, 1}
	cols := []float64{1, 1, 2}
	c := corrMatrix(structures[ports.CovAR1Row], params{rhoRow: 0.5}, rows, cols)

	// same column, one row apart
	if got := c.At(0, 1); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("corr(0,1) = %v, want 0.5", got)
	}
	// different columns are independent under a row-only structure
	if got := c.At(0, 2); got != 0 {
		t.Errorf("corr(0,2) = %v, want 0", got)
	}
	for i := 0; i < 3; i++ {
		if c.At(i, i) != 1 {
			t.Errorf("diagonal (%d) = %v", i, c.At(i, i))
		}
	}
}

func TestCorrMatrixNuggetScalesOffDiagonal(t *testing.T) {
	rows := []float64{1, 2}
	cols := []float64{1, 1}
	plain := corrMatrix(structures[ports.CovAR1Row], params{rhoRow: 0.6}, rows, cols)
	nug := corrMatrix(structures[ports.CovAR1RowNugget], params{rhoRow: 0.6, nugget: 0.5}, rows, cols)
	if got, want := nug.At(0, 1), 0.5*plain.At(0, 1); math.Abs(got-want) > 1e-12 {
		t.Errorf("nugget corr = %v, want %v", got, want)
	}
	if nug.At(0, 0) != 1 {
		t.Errorf("nugget must not touch the diagonal")
	}
}

func TestFitIdentityMatchesLeastSquares(t *testing.T) {
	// under the identity structure GLS is ordinary least squares, so the
	// noiseless adjusted means are exact
	tr := fixture(t, testkit.TrialSpec{
		Name:       "E1",
		Genotypes:  3,
		Reps:       2,
		RepEffects: []float64{0, 2},
	})
	fit, err := New().Fit(context.Background(), ports.ModelSpec{
		Trial:      "E1",
		Trait:      "yield",
		FixedTerms: []string{trial.ColRepID},
		Covariance: ports.CovIdentity,
	}, tr.Data)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	preds := fit.GenoPredictions()
	want := map[string]float64{"G1": 51, "G2": 52, "G3": 53}
	for g, w := range want {
		if math.Abs(preds.Estimates[g]-w) > 1e-6 {
			t.Errorf("estimate %s = %v, want %v", g, preds.Estimates[g], w)
		}
	}
	if fit.Spec().Covariance != ports.CovIdentity {
		t.Errorf("covariance = %s", fit.Spec().Covariance)
	}
}

func TestFitAR1PicksUpRowCorrelation(t *testing.T) {
	tr := fixture(t, testkit.TrialSpec{
		Name:      "E1",
		Genotypes: 6,
		Reps:      4,
		NoiseSD:   1,
		Seed:      5,
	})
	fit, err := New().Fit(context.Background(), ports.ModelSpec{
		Trial:      "E1",
		Trait:      "yield",
		Covariance: ports.CovAR1Row,
	}, tr.Data)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.IsNaN(fit.AIC()) || math.IsInf(fit.AIC(), 0) {
		t.Errorf("AIC = %v", fit.AIC())
	}
	if fit.BIC() <= fit.AIC() {
		// BIC penalizes harder than AIC once n >= 8
		t.Errorf("BIC %v should exceed AIC %v here", fit.BIC(), fit.AIC())
	}
}
