// Command sta runs a single-site trial analysis: it loads a plot-level data
// file, partitions it into trials, fits the genotype models and writes the
// derived statistics as a report, a database record or an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/ntduc11/statgenSTA/adapters/api"
	"github.com/ntduc11/statgenSTA/adapters/engine/gls"
	"github.com/ntduc11/statgenSTA/adapters/engine/lmm"
	"github.com/ntduc11/statgenSTA/adapters/engine/spats"
	"github.com/ntduc11/statgenSTA/adapters/postgres"
	"github.com/ntduc11/statgenSTA/adapters/report"
	"github.com/ntduc11/statgenSTA/adapters/tabular"
	"github.com/ntduc11/statgenSTA/app"
	"github.com/ntduc11/statgenSTA/domain/design"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/internal"
	"github.com/ntduc11/statgenSTA/internal/config"
	"github.com/ntduc11/statgenSTA/ports"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sta:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	log := internal.DefaultLogger.Named("sta")

	var (
		input     = flag.String("input", "", "plot-level data file (csv or xlsx)")
		traitsArg = flag.String("traits", "", "comma-separated trait columns")
		genotype  = flag.String("genotype", "genotype", "genotype column")
		trialCol  = flag.String("trial", "", "trial column (single trial when empty)")
		repID     = flag.String("repid", "", "replicate column")
		subBlock  = flag.String("subblock", "", "sub-block column")
		rowCoord  = flag.String("rowcoord", "", "field row coordinate column")
		colCoord  = flag.String("colcoord", "", "field column coordinate column")
		rowID     = flag.String("rowid", "", "row id column")
		colID     = flag.String("colid", "", "column id column")
		designArg = flag.String("design", "", "design code override (ibd, res.ibd, rcbd, rowcol, res.rowcol)")
		modeArg   = flag.String("mode", "both", "genotype effect mode: fixed, random or both")
		spatial   = flag.Bool("spatial", false, "compare residual covariance structures (gls engine)")
		reportOut = flag.String("report", "", "write a report to this path (.html for html)")
		outliers  = flag.Bool("outliers", false, "print flagged residual outliers")
		serve     = flag.Bool("serve", false, "serve results over HTTP after fitting")
	)
	flag.Parse()

	if *input == "" || *traitsArg == "" {
		flag.Usage()
		return fmt.Errorf("-input and -traits are required")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := tabular.ReadFile(*input)
	if err != nil {
		return err
	}
	td, err := trial.Create(data, trial.RoleMapping{
		Genotype: *genotype,
		Trial:    *trialCol,
		RepID:    *repID,
		SubBlock: *subBlock,
		RowCoord: *rowCoord,
		ColCoord: *colCoord,
		RowID:    *rowID,
		ColID:    *colID,
		Traits:   splitList(*traitsArg),
	})
	if err != nil {
		return err
	}
	log.Info("loaded %d trial(s) from %s", td.Len(), *input)

	registry := ports.NewRegistry()
	registry.Register(lmm.New())
	registry.Register(spats.New())
	if cfg.GLSLicense {
		registry.Register(gls.New())
	}

	ctx := context.Background()
	fitter := app.NewFitter(registry, internal.DefaultLogger)
	results, err := fitter.Fit(ctx, td, app.Options{
		Design:      design.Code(*designArg),
		Engine:      ports.EngineID(cfg.Engine),
		Mode:        app.EffectMode(*modeArg),
		Spatial:     *spatial,
		NSegRow:     cfg.NSegRow,
		NSegCol:     cfg.NSegCol,
		Criterion:   app.Criterion(cfg.Criterion),
		MaxParallel: cfg.MaxParallel,
	})
	if err != nil {
		return err
	}
	for _, res := range results {
		log.Info("trial %s: %d trait(s) fitted, %d warning(s)", res.TrialID, len(res.Traits), len(res.Warnings))
	}

	if cfg.DatabaseURL != "" {
		if err := persistSummaries(ctx, cfg.DatabaseURL, results); err != nil {
			return err
		}
	}
	if *outliers {
		if err := printOutliers(results, cfg.RLimit); err != nil {
			return err
		}
	}
	if *reportOut != "" {
		if err := writeReport(*reportOut, results); err != nil {
			return err
		}
		log.Info("report written to %s", *reportOut)
	}

	if *serve {
		srv := api.NewServer(td, results, internal.DefaultLogger)
		addr := ":" + cfg.Port
		log.Info("listening on %s", addr)
		return http.ListenAndServe(addr, srv.Routes())
	}
	return nil
}

func persistSummaries(ctx context.Context, dbURL string, results []*app.FitResult) error {
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return err
	}
	defer db.Close()
	repo, err := postgres.NewFitSummaryRepository(db)
	if err != nil {
		return err
	}
	return repo.Save(ctx, summarize(results))
}

// summarize flattens the fit results into one persisted row per
// trial/trait/effect-mode
func summarize(results []*app.FitResult) []ports.FitSummary {
	now := time.Now().UTC()
	var out []ports.FitSummary
	for _, res := range results {
		for traitName, tf := range res.Traits {
			for _, fit := range []ports.ModelFit{tf.Fixed, tf.Random} {
				if fit == nil {
					continue
				}
				mode := "fixed"
				if fit.Spec().GenotypeAsRandom {
					mode = "random"
				}
				s := ports.FitSummary{
					RunID:      res.RunID.String(),
					Trial:      res.TrialID,
					Trait:      traitName,
					Engine:     string(fit.EngineID()),
					Design:     string(res.Design),
					EffectMode: mode,
					AIC:        fit.AIC(),
					BIC:        fit.BIC(),
					CreatedAt:  now,
				}
				if h2, ok := fit.Heritability(); ok {
					s.Heritability = &h2
				}
				out = append(out, s)
			}
		}
	}
	return out
}

func printOutliers(results []*app.FitResult, rLimit float64) error {
	detector := app.NewOutlierDetector(internal.DefaultLogger)
	rep, err := detector.Detect(results, app.OutlierOptions{RLimit: rLimit})
	if err != nil {
		return err
	}
	if len(rep.Detail) == 0 {
		fmt.Println("no outliers detected")
		return nil
	}
	for _, e := range rep.Detail {
		tag := "outlier"
		if !e.Outlier {
			tag = "similar"
		}
		fmt.Printf("%s\t%s\t%s\trow %d\tgenotype %s\tvalue %.4g\tstdRes %.3f\n",
			tag, e.Trial, e.Trait, e.Row, e.Genotype, e.Value, e.StdRes)
	}
	return nil
}

func writeReport(path string, results []*app.FitResult) error {
	renderer := report.NewRenderer(internal.DefaultLogger)
	var out []byte
	if strings.EqualFold(filepath.Ext(path), ".html") {
		html, err := renderer.HTML(results)
		if err != nil {
			return err
		}
		out = html
	} else {
		md, err := renderer.Markdown(results)
		if err != nil {
			return err
		}
		out = []byte(md)
	}
	return os.WriteFile(path, out, 0o644)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
