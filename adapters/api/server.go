// Package api exposes trial data and analysis results over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ntduc11/statgenSTA/app"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/internal"
)

// Server serves a fitted analysis: the source trials, the per-trait model
// fits and derived statistics.
type Server struct {
	td       *trial.TrialData
	results  []*app.FitResult
	extract  *app.Extractor
	detector *app.OutlierDetector
	log      *internal.Logger
}

func NewServer(td *trial.TrialData, results []*app.FitResult, log *internal.Logger) *Server {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Server{
		td:       td,
		results:  results,
		extract:  app.NewExtractor(log),
		detector: app.NewOutlierDetector(log),
		log:      log.Named("api"),
	}
}

// Routes builds the HTTP routing table
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/trials", s.handleTrials)
	r.Get("/trials/{trialID}", s.handleTrial)
	r.Get("/trials/{trialID}/stats", s.handleStats)
	r.Get("/trials/{trialID}/outliers", s.handleOutliers)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type trialSummary struct {
	ID     string   `json:"id"`
	Rows   int      `json:"rows"`
	Traits []string `json:"traits"`
	Design string   `json:"design,omitempty"`
	Fitted bool     `json:"fitted"`
}

func (s *Server) handleTrials(w http.ResponseWriter, r *http.Request) {
	fitted := make(map[string]bool, len(s.results))
	for _, res := range s.results {
		fitted[res.TrialID] = len(res.Traits) > 0
	}
	var out []trialSummary
	for _, id := range s.td.IDs() {
		t, _ := s.td.Get(id)
		ts := trialSummary{
			ID:     id,
			Rows:   t.Data.NRows(),
			Traits: t.Traits,
			Fitted: fitted[id],
		}
		if t.Meta != nil {
			ts.Design = string(t.Meta.Design)
		}
		out = append(out, ts)
	}
	s.writeJSON(w, http.StatusOK, out)
}

type trialDetail struct {
	trialSummary
	Location string     `json:"location,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Lat      *float64   `json:"lat,omitempty"`
	Long     *float64   `json:"long,omitempty"`
	Columns  []string   `json:"columns"`
}

func (s *Server) handleTrial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trialID")
	t, ok := s.td.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown trial "+id)
		return
	}
	out := trialDetail{
		trialSummary: trialSummary{
			ID:     id,
			Rows:   t.Data.NRows(),
			Traits: t.Traits,
		},
		Columns: t.Data.Columns(),
	}
	if t.Meta != nil {
		out.Design = string(t.Meta.Design)
		out.Location = t.Meta.Location
		out.Date = t.Meta.Date
		out.Lat = t.Meta.Lat
		out.Long = t.Meta.Long
	}
	if res := s.resultFor(id); res != nil {
		out.Fitted = len(res.Traits) > 0
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trialID")
	res := s.resultFor(id)
	if res == nil {
		s.writeError(w, http.StatusNotFound, "no fit results for trial "+id)
		return
	}
	extracted, err := s.extract.Extract(res, []app.Stat{app.StatAll}, nil)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, extracted)
}

func (s *Server) handleOutliers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trialID")
	res := s.resultFor(id)
	if res == nil {
		s.writeError(w, http.StatusNotFound, "no fit results for trial "+id)
		return
	}
	opts := app.OutlierOptions{Trials: []string{id}}
	if raw := r.URL.Query().Get("rLimit"); raw != "" {
		limit, err := strconv.ParseFloat(raw, 64)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "rLimit must be a positive number")
			return
		}
		opts.RLimit = limit
	}
	if mode := r.URL.Query().Get("mode"); mode != "" {
		opts.Mode = app.EffectMode(mode)
	}
	report, err := s.detector.Detect(s.results, opts)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) resultFor(trialID string) *app.FitResult {
	for _, res := range s.results {
		if res.TrialID == trialID {
			return res
		}
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
