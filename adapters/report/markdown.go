// Package report renders a fitting run as a markdown document, optionally
// converted to HTML.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	mstats "github.com/montanaflynn/stats"

	"github.com/ntduc11/statgenSTA/app"
	"github.com/ntduc11/statgenSTA/internal"
)

// Renderer builds human-readable summaries of fit results
type Renderer struct {
	extract *app.Extractor
	log     *internal.Logger
}

func NewRenderer(log *internal.Logger) *Renderer {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Renderer{
		extract: app.NewExtractor(log),
		log:     log.Named("report"),
	}
}

// Markdown renders one section per trial: the model setup, per-trait summary
// statistics and the genotype estimate distribution.
func (r *Renderer) Markdown(results []*app.FitResult) (string, error) {
	var b strings.Builder
	b.WriteString("# Trial analysis report\n\n")

	for _, res := range results {
		fmt.Fprintf(&b, "## Trial %s\n\n", res.TrialID)
		if len(res.Traits) == 0 {
			b.WriteString("No models fitted.\n\n")
			writeWarnings(&b, res)
			continue
		}
		fmt.Fprintf(&b, "- Design: `%s`\n- Engine: `%s`\n\n", res.Design, res.Engine)

		extracted, err := r.extract.Extract(res, []app.Stat{app.StatAll}, nil)
		if err != nil {
			return "", err
		}
		for _, traitName := range sortedTraits(extracted) {
			ts := extracted.Traits[traitName]
			fmt.Fprintf(&b, "### %s\n\n", traitName)
			writeScalars(&b, ts)
			if err := writeEstimates(&b, ts); err != nil {
				return "", err
			}
			writeComparison(&b, res.Traits[traitName])
		}
		writeWarnings(&b, res)
	}
	return b.String(), nil
}

// HTML renders the markdown report to an HTML fragment
func (r *Renderer) HTML(results []*app.FitResult) ([]byte, error) {
	md, err := r.Markdown(results)
	if err != nil {
		return nil, err
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.Render(doc, renderer), nil
}

func sortedTraits(extracted *app.ExtractedResult) []string {
	traits := make([]string, 0, len(extracted.Traits))
	for tr := range extracted.Traits {
		traits = append(traits, tr)
	}
	sort.Strings(traits)
	return traits
}

var scalarOrder = []app.Stat{
	app.StatHeritability, app.StatVarGen, app.StatVarErr, app.StatVarSpat, app.StatCV,
}

func writeScalars(b *strings.Builder, ts *app.TraitStats) {
	if len(ts.Scalars) == 0 && len(ts.EffDims) == 0 {
		return
	}
	b.WriteString("| Statistic | Value |\n|---|---|\n")
	for _, s := range scalarOrder {
		if v, ok := ts.Scalars[s]; ok {
			fmt.Fprintf(b, "| %s | %.4g |\n", s, v)
		}
	}
	dims := make([]string, 0, len(ts.EffDims))
	for name := range ts.EffDims {
		dims = append(dims, name)
	}
	sort.Strings(dims)
	for _, name := range dims {
		fmt.Fprintf(b, "| effDim(%s) | %.4g |\n", name, ts.EffDims[name])
	}
	b.WriteString("\n")
}

// writeEstimates summarizes the genotype estimate distribution (BLUEs when
// available, BLUPs otherwise)
func writeEstimates(b *strings.Builder, ts *app.TraitStats) error {
	label := app.StatBLUEs
	est, ok := ts.GenoStats[label]
	if !ok {
		label = app.StatBLUPs
		est, ok = ts.GenoStats[label]
	}
	if !ok || len(est) == 0 {
		return nil
	}
	vals := make([]float64, 0, len(est))
	for _, v := range est {
		vals = append(vals, v)
	}
	mean, err := mstats.Mean(vals)
	if err != nil {
		return err
	}
	median, err := mstats.Median(vals)
	if err != nil {
		return err
	}
	lo, err := mstats.Min(vals)
	if err != nil {
		return err
	}
	hi, err := mstats.Max(vals)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "%d genotypes, %s mean %.4g, median %.4g, range [%.4g, %.4g].\n\n",
		len(est), label, mean, median, lo, hi)
	return nil
}

func writeComparison(b *strings.Builder, tf *app.TraitFit) {
	if tf == nil || tf.Comparison == nil {
		return
	}
	cmp := tf.Comparison
	fmt.Fprintf(b, "Covariance comparison (by %s):\n\n", cmp.Criterion)
	b.WriteString("| Structure | AIC | BIC | Best |\n|---|---|---|---|\n")
	for _, cand := range cmp.Candidates {
		best := ""
		if cand.Structure == cmp.Best {
			best = "*"
		}
		fmt.Fprintf(b, "| %s | %.2f | %.2f | %s |\n", cand.Structure, cand.AIC, cand.BIC, best)
	}
	b.WriteString("\n")
}

func writeWarnings(b *strings.Builder, res *app.FitResult) {
	if len(res.Warnings) == 0 {
		return
	}
	b.WriteString("Warnings:\n\n")
	for _, w := range res.Warnings {
		if w.Trait != "" {
			fmt.Fprintf(b, "- %s: %s\n", w.Trait, w.Message)
		} else {
			fmt.Fprintf(b, "- %s\n", w.Message)
		}
	}
	b.WriteString("\n")
}
