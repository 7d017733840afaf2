package ports

import (
	"context"
	"time"
)

// FitSummary is the persisted per trial/trait record of a model fit
type FitSummary struct {
	RunID        string    `db:"run_id"`
	Trial        string    `db:"trial"`
	Trait        string    `db:"trait"`
	Engine       string    `db:"engine"`
	Design       string    `db:"design"`
	EffectMode   string    `db:"effect_mode"`
	AIC          float64   `db:"aic"`
	BIC          float64   `db:"bic"`
	Heritability *float64  `db:"heritability"`
	CreatedAt    time.Time `db:"created_at"`
}

// FitSummaryRepository persists fit summaries for later inspection
type FitSummaryRepository interface {
	Save(ctx context.Context, summaries []FitSummary) error
	ByRun(ctx context.Context, runID string) ([]FitSummary, error)
}
