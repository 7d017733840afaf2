package lmm

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
		SubBlock: "block",
		RowID:    "row",
		ColID:    "col",
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

func TestFitFixedRecoversAdjustedMeans(t *testing.T) {
	// noiseless balanced data: y = 50 + geno + rep, so the adjusted mean of
	// genotype i is 50 + i + mean(rep effects)
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
	}, tr.Data)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	preds := fit.GenoPredictions()
	want := map[string]float64{"G1": 51, "G2": 52, "G3": 53}
	for g, w := range want {
		got := preds.Estimates[g]
		if math.Abs(got-w) > 1e-8 {
			t.Errorf("BLUE %s = %v, want %v", g, got, w)
		}
	}

	// the mean model explains the data exactly
	y, err := tr.Data.Floats("yield")
	if err != nil {
		t.Fatalf("floats: %v", err)
	}
	fitted := fit.FittedValues()
	resid := fit.Residuals()
	for i, r := range fit.Rows() {
		if math.Abs(fitted[i]+resid[i]-y[r]) > 1e-9 {
			t.Fatalf("row %d: fitted+resid = %v, y = %v", r, fitted[i]+resid[i], y[r])
		}
		if math.Abs(resid[i]) > 1e-8 {
			t.Errorf("row %d: residual %v, want ~0", r, resid[i])
		}
	}
	if fit.EngineID() != ports.EngineMixed {
		t.Errorf("engine = %s", fit.EngineID())
	}
}

func TestFitRandomShrinksTowardMean(t *testing.T) {
	tr := fixture(t, testkit.TrialSpec{
		Name:        "E1",
		Genotypes:   4,
		Reps:        3,
		GenoEffects: []float64{-3, -1, 1, 3},
		NoiseSD:     0.5,
		Seed:        7,
	})
	fit, err := New().Fit(context.Background(), ports.ModelSpec{
		Trial:            "E1",
		Trait:            "yield",
		GenotypeAsRandom: true,
	}, tr.Data)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	h2, ok := fit.Heritability()
	if !ok {
		t.Fatal("expected a heritability from a genotype-random fit")
	}
	if h2 <= 0 || h2 > 1 {
		t.Errorf("heritability = %v, want in (0, 1]", h2)
	}
	vc := fit.VarComponents()
	if vc["genotype"] <= 0 {
		t.Errorf("varGen = %v, want > 0", vc["genotype"])
	}
	if vc["residual"] <= 0 {
		t.Errorf("varErr = %v, want > 0", vc["residual"])
	}

	// BLUPs keep the true ranking on well separated effects
	preds := fit.GenoPredictions()
	if !(preds.Estimates["G4"] > preds.Estimates["G3"] &&
		preds.Estimates["G3"] > preds.Estimates["G2"] &&
		preds.Estimates["G2"] > preds.Estimates["G1"]) {
		t.Errorf("BLUP ordering broken: %v", preds.Estimates)
	}
	for _, g := range preds.Genotypes {
		if preds.StdErrors[g] < 0 {
			t.Errorf("negative se for %s", g)
		}
	}
}

func TestFitMissingResponsesAreExcluded(t *testing.T) {
	tr := fixture(t, testkit.TrialSpec{Name: "E1", Genotypes: 3, Reps: 2})
	tbl := tr.Data.Clone()
	if err := tbl.AppendRow([]string{"E1", "G1", "R3", "B1", "r1", "c3", "1", "3", "NA"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	fit, err := New().Fit(context.Background(), ports.ModelSpec{Trial: "E1", Trait: "yield"}, tbl)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(fit.Rows()) != 6 {
		t.Errorf("fitted rows = %d, want 6", len(fit.Rows()))
	}
	for _, r := range fit.Rows() {
		if r == 6 {
			t.Error("row with missing response entered the fit")
		}
	}
}
