package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ntduc11/statgenSTA/adapters/engine/lmm"
	"github.com/ntduc11/statgenSTA/app"
	"github.com/ntduc11/statgenSTA/domain/design"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/internal/testkit"
	"github.com/ntduc11/statgenSTA/ports"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	td, err := trial.Create(testkit.Generate(testkit.TrialSpec{
		Name: "E1", Genotypes: 4, Reps: 3, NoiseSD: 0.5, Seed: 21,
	}), trial.RoleMapping{
		Genotype: "geno",
		Trial:    "env",
		RepID:    "rep",
		Traits:   []string{"yield"},
	}, trial.WithMeta(map[string]trial.Meta{"E1": {Design: design.RCBD, Location: "Wageningen"}}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	registry := ports.NewRegistry()
	registry.Register(lmm.New())
	results, err := app.NewFitter(registry, nil).Fit(context.Background(), td, app.Options{})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	return NewServer(td, results, nil)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, testServer(t).Routes(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListTrials(t *testing.T) {
	rec := get(t, testServer(t).Routes(), "/trials")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0]["id"] != "E1" || out[0]["fitted"] != true {
		t.Errorf("trials = %v", out)
	}
}

func TestTrialDetail(t *testing.T) {
	h := testServer(t).Routes()
	rec := get(t, h, "/trials/E1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["design"] != "rcbd" || out["location"] != "Wageningen" {
		t.Errorf("detail = %v", out)
	}

	if rec := get(t, h, "/trials/E9"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown trial status = %d", rec.Code)
	}
}

func TestTrialStats(t *testing.T) {
	rec := get(t, testServer(t).Routes(), "/trials/E1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Traits map[string]struct {
			Scalars map[string]float64
		}
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out.Traits["yield"]; !ok {
		t.Errorf("stats = %s", rec.Body.String())
	}
}

func TestTrialOutliers(t *testing.T) {
	h := testServer(t).Routes()
	rec := get(t, h, "/trials/E1/outliers?rLimit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/trials/E1/outliers?rLimit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad rLimit status = %d", rec.Code)
	}
}
