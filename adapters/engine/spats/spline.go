package spats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const degree = 3

// smoothing parameter grid searched by GCV
var lambdaGrid = []float64{0.01, 0.1, 1, 10, 100, 1000}

// basis1D evaluates a cubic B-spline basis with nseg equal segments over
// the range of x. Returns an n x (nseg+degree) matrix.
func basis1D(x []float64, nseg int) (*mat.Dense, error) {
	if nseg < 1 {
		return nil, fmt.Errorf("need at least one segment, got %d", nseg)
	}
	lo, hi := x[0], x[0]
	for _, v := range x {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi <= lo {
		return nil, fmt.Errorf("coordinate range is degenerate")
	}
	h := (hi - lo) / float64(nseg)
	knots := make([]float64, nseg+2*degree+1)
	for i := range knots {
		knots[i] = lo + float64(i-degree)*h
	}

	ncol := nseg + degree
	B := mat.NewDense(len(x), ncol, nil)
	for i, xi := range x {
		if xi >= hi {
			xi = hi - 1e-9*(hi-lo)
		}
		for j := 0; j < ncol; j++ {
			B.Set(i, j, coxDeBoor(xi, j, degree, knots))
		}
	}
	return B, nil
}

// coxDeBoor evaluates the j-th B-spline of degree d at x
func coxDeBoor(x float64, j, d int, knots []float64) float64 {
	if d == 0 {
		if knots[j] <= x && x < knots[j+1] {
			return 1
		}
		return 0
	}
	out := 0.0
	if denom := knots[j+d] - knots[j]; denom > 0 {
		out += (x - knots[j]) / denom * coxDeBoor(x, j, d-1, knots)
	}
	if denom := knots[j+d+1] - knots[j+1]; denom > 0 {
		out += (knots[j+d+1] - x) / denom * coxDeBoor(x, j+1, d-1, knots)
	}
	return out
}

// rowTensor builds the row-wise tensor product of two bases
func rowTensor(br, bc *mat.Dense) *mat.Dense {
	n, cr := br.Dims()
	_, cc := bc.Dims()
	out := mat.NewDense(n, cr*cc, nil)
	for i := 0; i < n; i++ {
		for jr := 0; jr < cr; jr++ {
			v := br.At(i, jr)
			if v == 0 {
				continue
			}
			for jc := 0; jc < cc; jc++ {
				out.Set(i, jr*cc+jc, v*bc.At(i, jc))
			}
		}
	}
	return out
}

// diffPenalty returns D'D for the second-order difference matrix of size c
func diffPenalty(c int) *mat.Dense {
	if c < 3 {
		return mat.NewDense(c, c, nil)
	}
	d := mat.NewDense(c-2, c, nil)
	for i := 0; i < c-2; i++ {
		d.Set(i, i, 1)
		d.Set(i, i+1, -2)
		d.Set(i, i+2, 1)
	}
	var dtd mat.Dense
	dtd.Mul(d.T(), d)
	return &dtd
}

// anisoPenalty assembles the tensor penalty kron(Pr, Ic) + kron(Ir, Pc)
func anisoPenalty(cr, cc int) *mat.Dense {
	pr := diffPenalty(cr)
	pc := diffPenalty(cc)
	c := cr * cc
	out := mat.NewDense(c, c, nil)
	for ar := 0; ar < cr; ar++ {
		for br := 0; br < cr; br++ {
			v := pr.At(ar, br)
			if v != 0 {
				for k := 0; k < cc; k++ {
					i, j := ar*cc+k, br*cc+k
					out.Set(i, j, out.At(i, j)+v)
				}
			}
		}
	}
	for ac := 0; ac < cc; ac++ {
		for bc := 0; bc < cc; bc++ {
			v := pc.At(ac, bc)
			if v != 0 {
				for k := 0; k < cr; k++ {
					i, j := k*cc+ac, k*cc+bc
					out.Set(i, j, out.At(i, j)+v)
				}
			}
		}
	}
	return out
}

// surface is a fitted 2-D P-spline smooth
type surface struct {
	Values []float64
	EffDim float64
	Lambda float64
}

// fitSurface smooths z over the (row, col) coordinates with a tensor
// product P-spline, picking the smoothing parameter by GCV.
func fitSurface(rowCoord, colCoord, z []float64, segRow, segCol int) (*surface, error) {
	br, err := basis1D(rowCoord, segRow)
	if err != nil {
		return nil, fmt.Errorf("row basis: %w", err)
	}
	bc, err := basis1D(colCoord, segCol)
	if err != nil {
		return nil, fmt.Errorf("column basis: %w", err)
	}
	B := rowTensor(br, bc)
	n, c := B.Dims()
	P := anisoPenalty(segRow+degree, segCol+degree)

	var btb mat.Dense
	btb.Mul(B.T(), B)
	zVec := mat.NewVecDense(n, z)
	var btz mat.VecDense
	btz.MulVec(B.T(), zVec)

	best := (*surface)(nil)
	bestGCV := math.Inf(1)
	for _, lambda := range lambdaGrid {
		a := mat.NewSymDense(c, nil)
		for i := 0; i < c; i++ {
			for j := i; j < c; j++ {
				v := btb.At(i, j) + lambda*P.At(i, j)
				if i == j {
					v += 1e-8
				}
				a.SetSym(i, j, v)
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(a); !ok {
			continue
		}
		var theta mat.VecDense
		if err := chol.SolveVecTo(&theta, &btz); err != nil {
			continue
		}
		var inv mat.SymDense
		if err := chol.InverseTo(&inv); err != nil {
			continue
		}
		ed := 0.0
		for i := 0; i < c; i++ {
			for j := 0; j < c; j++ {
				ed += inv.At(i, j) * btb.At(j, i)
			}
		}

		var sv mat.VecDense
		sv.MulVec(B, &theta)
		vals := make([]float64, n)
		rss := 0.0
		for i := 0; i < n; i++ {
			vals[i] = sv.AtVec(i)
			diff := z[i] - vals[i]
			rss += diff * diff
		}
		denom := float64(n) - ed
		if denom <= 0 {
			continue
		}
		gcv := float64(n) * rss / (denom * denom)
		if gcv < bestGCV {
			bestGCV = gcv
			best = &surface{Values: vals, EffDim: ed, Lambda: lambda}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no smoothing parameter yielded a stable fit")
	}
	return best, nil
}
