package engine

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/domain/trial"
	"github.com/ntduc11/statgenSTA/ports"
)

// ObsSet is the set of observations entering a fit: the rows of the trial
// table with a non-missing response and genotype.
type ObsSet struct {
	Rows       []int
	Y          []float64
	Geno       []string
	GenoLevels []string
}

// SelectObservations masks the trait column against missing responses
func SelectObservations(tbl *frame.Table, traitCol string) (*ObsSet, error) {
	if !tbl.HasColumn(trial.ColGenotype) {
		return nil, core.NewColumnNotFoundError(trial.ColGenotype)
	}
	y, err := tbl.Floats(traitCol)
	if err != nil {
		return nil, err
	}
	geno, err := tbl.Strings(trial.ColGenotype)
	if err != nil {
		return nil, err
	}

	obs := &ObsSet{}
	seen := make(map[string]bool)
	for r := range y {
		if math.IsNaN(y[r]) || geno[r] == "" {
			continue
		}
		obs.Rows = append(obs.Rows, r)
		obs.Y = append(obs.Y, y[r])
		obs.Geno = append(obs.Geno, geno[r])
		if !seen[geno[r]] {
			seen[geno[r]] = true
			obs.GenoLevels = append(obs.GenoLevels, geno[r])
		}
	}
	if len(obs.Rows) == 0 {
		return nil, fmt.Errorf("no usable observations for trait %q", traitCol)
	}
	return obs, nil
}

// Coordinates extracts the field row/column coordinates for the masked
// observations, failing when a fitted plot lacks either coordinate.
func Coordinates(tbl *frame.Table, obs *ObsSet) (rowCoord, colCoord []float64, err error) {
	allRows, err := tbl.Floats(trial.ColRowCoord)
	if err != nil {
		return nil, nil, err
	}
	allCols, err := tbl.Floats(trial.ColColCoord)
	if err != nil {
		return nil, nil, err
	}
	rowCoord = make([]float64, len(obs.Rows))
	colCoord = make([]float64, len(obs.Rows))
	for i, r := range obs.Rows {
		if math.IsNaN(allRows[r]) || math.IsNaN(allCols[r]) {
			return nil, nil, fmt.Errorf("missing field coordinate at row %d", r)
		}
		rowCoord[i] = allRows[r]
		colCoord[i] = allCols[r]
	}
	return rowCoord, colCoord, nil
}

// Design is a treatment-coded model matrix: intercept, dummies for each
// term level beyond the first, and optionally genotype dummies.
type Design struct {
	X        *mat.Dense
	Cols     []string
	GenoCols map[string]int // genotype level -> column index; reference absent
	GenoRef  string
}

// BuildDesign assembles the model matrix for the masked observations.
// Interaction terms are written "a:b" and act as a single combined factor.
func BuildDesign(tbl *frame.Table, obs *ObsSet, terms []string, includeGeno bool) (*Design, error) {
	n := len(obs.Rows)
	cols := []string{"(Intercept)"}
	data := [][]float64{ones(n)}

	for _, term := range terms {
		vals, err := termValues(tbl, obs.Rows, term)
		if err != nil {
			return nil, err
		}
		levels := appearanceLevels(vals)
		for _, level := range levels[1:] {
			col := make([]float64, n)
			for i, v := range vals {
				if v == level {
					col[i] = 1
				}
			}
			cols = append(cols, term+"_"+level)
			data = append(data, col)
		}
	}

	d := &Design{GenoCols: make(map[string]int)}
	if includeGeno {
		d.GenoRef = obs.GenoLevels[0]
		for _, level := range obs.GenoLevels[1:] {
			col := make([]float64, n)
			for i, g := range obs.Geno {
				if g == level {
					col[i] = 1
				}
			}
			d.GenoCols[level] = len(cols)
			cols = append(cols, trial.ColGenotype+"_"+level)
			data = append(data, col)
		}
	}

	X := mat.NewDense(n, len(cols), nil)
	for j, col := range data {
		X.SetCol(j, col)
	}
	d.X = X
	d.Cols = cols
	return d, nil
}

// termValues resolves a term to one combined string value per observation
func termValues(tbl *frame.Table, rows []int, term string) ([]string, error) {
	parts := strings.Split(term, ":")
	colVals := make([][]string, len(parts))
	for i, col := range parts {
		if !tbl.HasColumn(col) {
			return nil, core.NewColumnNotFoundError(col)
		}
		vals, err := tbl.Strings(col)
		if err != nil {
			return nil, err
		}
		colVals[i] = vals
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		pieces := make([]string, len(parts))
		for j := range parts {
			pieces[j] = colVals[j][r]
		}
		out[i] = strings.Join(pieces, "_")
	}
	return out, nil
}

func appearanceLevels(vals []string) []string {
	seen := make(map[string]bool)
	var levels []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	return levels
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// LSFit is an ordinary least squares solution via Cholesky of X'X
type LSFit struct {
	Beta   []float64
	XtXInv *mat.Dense
	Fitted []float64
	Resid  []float64
	RSS    float64
	Sigma2 float64 // RSS / (n - p); zero for saturated designs
	N, P   int
}

// SolveLS fits y = X beta, failing with ErrSingularDesign when X'X is not
// positive definite.
func SolveLS(X *mat.Dense, y []float64) (*LSFit, error) {
	n, p := X.Dims()
	if n < p {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", core.ErrSingularDesign, n, p)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, fmt.Errorf("%w: %d columns", core.ErrSingularDesign, p)
	}

	yVec := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(X.T(), yVec)
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	fit := &LSFit{
		Beta:   make([]float64, p),
		Fitted: make([]float64, n),
		Resid:  make([]float64, n),
		N:      n,
		P:      p,
	}
	for j := 0; j < p; j++ {
		fit.Beta[j] = beta.AtVec(j)
	}
	var fv mat.VecDense
	fv.MulVec(X, &beta)
	for i := 0; i < n; i++ {
		fit.Fitted[i] = fv.AtVec(i)
		fit.Resid[i] = y[i] - fit.Fitted[i]
		fit.RSS += fit.Resid[i] * fit.Resid[i]
	}
	if n > p {
		fit.Sigma2 = fit.RSS / float64(n-p)
	}
	fit.XtXInv = mat.DenseCopyOf(&inv)
	return fit, nil
}

// InfoCriteria computes Gaussian AIC and BIC for a fit with k estimated
// parameters
func InfoCriteria(n int, rss float64, k int) (aic, bic float64) {
	sigma2 := rss / float64(n)
	if sigma2 <= 0 {
		sigma2 = 1e-12
	}
	ll := -0.5 * float64(n) * (math.Log(2*math.Pi*sigma2) + 1)
	aic = -2*ll + 2*float64(k)
	bic = -2*ll + float64(k)*math.Log(float64(n))
	return aic, bic
}

// GenoMeans computes per-genotype adjusted means and standard errors from a
// fixed-genotype fit: each genotype is predicted at the average of the other
// model terms.
func GenoMeans(d *Design, fit *LSFit, obs *ObsSet) ports.GenoPredictions {
	n, p := fit.N, fit.P

	// average design row with the genotype block zeroed
	avg := make([]float64, p)
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += d.X.At(i, j)
		}
		avg[j] = sum / float64(n)
	}
	for _, j := range d.GenoCols {
		avg[j] = 0
	}

	preds := ports.GenoPredictions{
		Genotypes: append([]string(nil), obs.GenoLevels...),
		Estimates: make(map[string]float64, len(obs.GenoLevels)),
		StdErrors: make(map[string]float64, len(obs.GenoLevels)),
	}
	c := make([]float64, p)
	for _, g := range obs.GenoLevels {
		copy(c, avg)
		if j, ok := d.GenoCols[g]; ok {
			c[j] = 1
		}
		est := 0.0
		for j := 0; j < p; j++ {
			est += c[j] * fit.Beta[j]
		}
		preds.Estimates[g] = est
		preds.StdErrors[g] = math.Sqrt(quadForm(c, fit.XtXInv) * fit.Sigma2)
	}
	return preds
}

func quadForm(c []float64, m *mat.Dense) float64 {
	p := len(c)
	out := 0.0
	for i := 0; i < p; i++ {
		if c[i] == 0 {
			continue
		}
		for j := 0; j < p; j++ {
			out += c[i] * m.At(i, j) * c[j]
		}
	}
	return out
}

// VarComp holds method-of-moments genotype variance components computed
// from the residuals of the non-genotype mean model
type VarComp struct {
	SigmaG     float64
	SigmaE     float64
	RBar       float64
	GroupMeans map[string]float64
	GroupN     map[string]int
}

// GenoVarComp decomposes residual variation into between- and
// within-genotype components (one-way MSG/MSE estimator).
func GenoVarComp(resid []float64, geno []string) (*VarComp, error) {
	n := len(resid)
	sums := make(map[string]float64)
	counts := make(map[string]int)
	grand := 0.0
	for i, g := range geno {
		sums[g] += resid[i]
		counts[g]++
		grand += resid[i]
	}
	g := len(counts)
	if g < 2 {
		return nil, fmt.Errorf("need at least two genotypes, got %d", g)
	}
	grand /= float64(n)

	means := make(map[string]float64, g)
	for k, s := range sums {
		means[k] = s / float64(counts[k])
	}

	ssb, ssw := 0.0, 0.0
	sumSq := 0.0
	for k, m := range means {
		diff := m - grand
		ssb += float64(counts[k]) * diff * diff
		sumSq += float64(counts[k] * counts[k])
	}
	for i, gk := range geno {
		diff := resid[i] - means[gk]
		ssw += diff * diff
	}

	vc := &VarComp{GroupMeans: means, GroupN: counts}
	dfW := n - g
	if dfW > 0 {
		vc.SigmaE = ssw / float64(dfW)
	}
	vc.RBar = (float64(n) - sumSq/float64(n)) / float64(g-1)
	msg := ssb / float64(g-1)
	vc.SigmaG = (msg - vc.SigmaE) / vc.RBar
	if vc.SigmaG < 0 {
		vc.SigmaG = 0
	}
	return vc, nil
}

// Shrink returns the BLUP shrinkage factor for a genotype with ni records
func (vc *VarComp) Shrink(ni int) float64 {
	denom := vc.SigmaG + vc.SigmaE/float64(ni)
	if denom <= 0 {
		return 0
	}
	return vc.SigmaG / denom
}

// Heritability is the broad-sense line-mean heritability implied by the
// variance components
func (vc *VarComp) Heritability() float64 {
	denom := vc.SigmaG + vc.SigmaE/vc.RBar
	if denom <= 0 {
		return 0
	}
	return vc.SigmaG / denom
}

// StdResiduals scales residuals by the residual standard deviation; a zero
// variance (saturated fit) yields all-zero standardized residuals
func StdResiduals(resid []float64, sigma2 float64) []float64 {
	out := make([]float64, len(resid))
	if sigma2 <= 0 {
		return out
	}
	sd := math.Sqrt(sigma2)
	for i, r := range resid {
		out[i] = r / sd
	}
	return out
}
