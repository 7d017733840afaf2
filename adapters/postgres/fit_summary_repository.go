// Package postgres persists analysis artifacts with sqlx.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/ntduc11/statgenSTA/internal/errors"
	"github.com/ntduc11/statgenSTA/ports"
)

const fitSummarySchema = `
CREATE TABLE IF NOT EXISTS fit_summaries (
	id           BIGSERIAL PRIMARY KEY,
	run_id       TEXT NOT NULL,
	trial        TEXT NOT NULL,
	trait        TEXT NOT NULL,
	engine       TEXT NOT NULL,
	design       TEXT NOT NULL,
	effect_mode  TEXT NOT NULL,
	aic          DOUBLE PRECISION NOT NULL,
	bic          DOUBLE PRECISION NOT NULL,
	heritability DOUBLE PRECISION,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fit_summaries_run ON fit_summaries (run_id);
`

// FitSummaryRepository is the sqlx-backed implementation of
// ports.FitSummaryRepository.
type FitSummaryRepository struct {
	db *sqlx.DB
}

func NewFitSummaryRepository(db *sqlx.DB) (*FitSummaryRepository, error) {
	if _, err := db.Exec(fitSummarySchema); err != nil {
		return nil, apperrors.DatabaseError("creating fit_summaries schema", err)
	}
	return &FitSummaryRepository{db: db}, nil
}

// Save inserts the summaries in one transaction
func (r *FitSummaryRepository) Save(ctx context.Context, summaries []ports.FitSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("beginning transaction", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO fit_summaries
			(run_id, trial, trait, engine, design, effect_mode, aic, bic, heritability, created_at)
		VALUES
			(:run_id, :trial, :trait, :engine, :design, :effect_mode, :aic, :bic, :heritability, :created_at)`
	for _, s := range summaries {
		if _, err := tx.NamedExecContext(ctx, q, s); err != nil {
			return apperrors.DatabaseError("inserting fit summary", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("committing fit summaries", err)
	}
	return nil
}

// ByRun returns the summaries of one fitting run in insertion order
func (r *FitSummaryRepository) ByRun(ctx context.Context, runID string) ([]ports.FitSummary, error) {
	const q = `
		SELECT run_id, trial, trait, engine, design, effect_mode, aic, bic, heritability, created_at
		FROM fit_summaries
		WHERE run_id = $1
		ORDER BY id`
	var out []ports.FitSummary
	if err := r.db.SelectContext(ctx, &out, q, runID); err != nil {
		return nil, apperrors.DatabaseError("querying fit summaries", err)
	}
	return out, nil
}
