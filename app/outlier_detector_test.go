package app

import (
	"context"
	"math"
	"testing"

	"github.com/ntduc11/statgenSTA/adapters/engine"
	"github.com/ntduc11/statgenSTA/adapters/engine/lmm"
	"github.com/ntduc11/statgenSTA/domain/design"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/ports"
)

// residualResult wires literal standardized residuals into a fit result
func residualResult(stdRes []float64) *FitResult {
	n := len(stdRes)
	var records [][]string
	genotypes := []string{"G1", "G2", "G1", "G2"}
	reps := []string{"R1", "R1", "R2", "R2"}
	for i := 0; i < n; i++ {
		records = append(records, []string{genotypes[i%4], reps[i%4], "10"})
	}
	data := frame.FromRecords([]string{"genotype", "repId", "yield"}, records)

	rows := make([]int, n)
	fitted := make([]float64, n)
	for i := range rows {
		rows[i] = i
		fitted[i] = 10
	}
	fit := &engine.Result{
		Engine:  ports.EngineMixed,
		Model:   ports.ModelSpec{Trial: "E1", Trait: "yield"},
		ObsRows: rows,
		Fitted:  fitted,
		Resid:   stdRes,
		StdRes:  stdRes,
	}
	return &FitResult{
		TrialID: "E1",
		Engine:  ports.EngineMixed,
		Design:  design.RCBD,
		Traits:  map[string]*TraitFit{"yield": {Fixed: fit}},
		Source:  &trial.Trial{ID: "E1", Data: data, Traits: []string{"yield"}},
	}
}

func TestDetectFlagsLiteralResiduals(t *testing.T) {
	stdRes := []float64{1.700, -1.167, -1.700, 1.167}
	d := NewOutlierDetector(nil)
	report, err := d.Detect([]*FitResult{residualResult(stdRes)}, OutlierOptions{RLimit: 1})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	indicator := report.Indicator["E1"]["yield"]
	want := []bool{true, true, true, true}
	for i := range want {
		if indicator[i] != want[i] {
			t.Errorf("row %d: flagged = %v, want %v", i, indicator[i], want[i])
		}
	}
	if len(report.Detail) != 4 {
		t.Errorf("detail rows = %d, want 4", len(report.Detail))
	}

	// tighten the threshold selection: only |r| > 1.5 now
	report, err = d.Detect([]*FitResult{residualResult(stdRes)}, OutlierOptions{RLimit: 1.5})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	indicator = report.Indicator["E1"]["yield"]
	want = []bool{true, false, true, false}
	for i := range want {
		if indicator[i] != want[i] {
			t.Errorf("rLimit 1.5 row %d: flagged = %v, want %v", i, indicator[i], want[i])
		}
	}
}

func TestDetectNoOutliersNilDetail(t *testing.T) {
	// four balanced replicates per genotype, residuals within one SD; the
	// derived threshold for n=8 is about 1.53
	stdRes := []float64{0.4, -0.6, 0.9, -0.2, 0.1, -0.8, 0.5, -0.3}
	d := NewOutlierDetector(nil)
	report, err := d.Detect([]*FitResult{residualResult(stdRes)}, OutlierOptions{})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	for i, flagged := range report.Indicator["E1"]["yield"] {
		if flagged {
			t.Errorf("row %d flagged unexpectedly", i)
		}
	}
	if report.Detail != nil {
		t.Errorf("detail = %v, want nil", report.Detail)
	}
}

func TestDefaultRLimit(t *testing.T) {
	// quantile at 1 - 0.5/n of the standard normal
	got := DefaultRLimit(20)
	if math.Abs(got-1.9600) > 1e-3 {
		t.Errorf("rLimit(20) = %v, want ~1.96", got)
	}
	if DefaultRLimit(100) <= got {
		t.Error("threshold must grow with the sample count")
	}
}

func TestDetectUnreplicatedGenotypeNeverFlagged(t *testing.T) {
	// G3 has a single plot; under a fixed-genotype fit its dummy absorbs the
	// observation, so the standardized residual is zero no matter how extreme
	// the value is.
	data := frame.FromRecords(
		[]string{"genotype", "repId", "yield"},
		[][]string{
			{"G1", "R1", "10"},
			{"G2", "R1", "12"},
			{"G1", "R2", "11"},
			{"G2", "R2", "13.5"},
			{"G3", "R1", "99"},
		},
	)
	td, err := trial.Create(data, trial.RoleMapping{
		Genotype: "genotype",
		RepID:    "repId",
		Traits:   []string{"yield"},
	}, trial.WithMeta(map[string]trial.Meta{trial.DefaultTrialID: {Design: design.RCBD}}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	registry := ports.NewRegistry()
	registry.Register(lmm.New())
	results, err := NewFitter(registry, nil).Fit(context.Background(), td, Options{Mode: ModeFixed})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	report, err := NewOutlierDetector(nil).Detect(results, OutlierOptions{RLimit: 0.0001})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	indicator := report.Indicator[trial.DefaultTrialID]["yield"]
	if indicator[4] {
		t.Error("single-plot genotype row flagged")
	}
	flagged := 0
	for _, f := range indicator[:4] {
		if f {
			flagged++
		}
	}
	if flagged == 0 {
		t.Error("expected the replicated rows to cross the aggressive threshold")
	}
	for _, e := range report.Detail {
		if e.Genotype == "G3" {
			t.Errorf("detail entry for the single-plot genotype: %+v", e)
		}
	}
}

func TestDetectCommonFactorsMarkSimilar(t *testing.T) {
	// rows 0 and 2 share genotype G1; only row 0 crosses the threshold
	stdRes := []float64{2.0, 0.1, 0.2, -0.1}
	d := NewOutlierDetector(nil)
	report, err := d.Detect([]*FitResult{residualResult(stdRes)}, OutlierOptions{
		RLimit:        1.5,
		CommonFactors: []string{trial.ColGenotype},
	})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	byRow := make(map[int]OutlierEntry)
	for _, e := range report.Detail {
		byRow[e.Row] = e
	}
	if e, ok := byRow[0]; !ok || !e.Outlier || e.Similar {
		t.Errorf("row 0 = %+v, want outlier and not similar to itself", byRow[0])
	}
	if e, ok := byRow[2]; !ok || e.Outlier || !e.Similar {
		t.Errorf("row 2 = %+v, want similar only", byRow[2])
	}
	if _, ok := byRow[1]; ok {
		t.Error("row 1 shares no factor value with the outlier and must be absent")
	}
	if _, ok := byRow[3]; ok {
		t.Error("row 3 shares no factor value with the outlier and must be absent")
	}
}
