package gls

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ntduc11/statgenSTA/ports"
)

// structure captures which components a covariance candidate carries
type structure struct {
	rowAR  bool
	colAR  bool
	nugget bool
}

var structures = map[ports.CovStructure]structure{
	ports.CovIdentity:      {},
	ports.CovAR1Row:        {rowAR: true},
	ports.CovAR1Col:        {colAR: true},
	ports.CovAR1Both:       {rowAR: true, colAR: true},
	ports.CovAR1RowNugget:  {rowAR: true, nugget: true},
	ports.CovAR1ColNugget:  {colAR: true, nugget: true},
	ports.CovAR1BothNugget: {rowAR: true, colAR: true, nugget: true},
}

// params is one point of the correlation search grid
type params struct {
	rhoRow float64
	rhoCol float64
	nugget float64
}

var rhoGrid = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
var nuggetGrid = []float64{0.1, 0.2, 0.3, 0.4, 0.5}

// searchGrid enumerates the parameter combinations for a candidate
func searchGrid(st structure) []params {
	rows := []float64{0}
	if st.rowAR {
		rows = rhoGrid
	}
	cols := []float64{0}
	if st.colAR {
		cols = rhoGrid
	}
	nugs := []float64{0}
	if st.nugget {
		nugs = nuggetGrid
	}
	var grid []params
	for _, rr := range rows {
		for _, rc := range cols {
			for _, ng := range nugs {
				grid = append(grid, params{rhoRow: rr, rhoCol: rc, nugget: ng})
			}
		}
	}
	return grid
}

// paramCount is the number of free covariance parameters of a candidate
func paramCount(st structure) int {
	n := 0
	if st.rowAR {
		n++
	}
	if st.colAR {
		n++
	}
	if st.nugget {
		n++
	}
	return n
}

// corrMatrix builds the unit-diagonal residual correlation matrix for the
// plot coordinates. AR1 components decay with coordinate distance; plots
// differing on an inactive dimension are uncorrelated.
func corrMatrix(st structure, p params, rowCoord, colCoord []float64) *mat.SymDense {
	n := len(rowCoord)
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		c.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			dr := math.Abs(rowCoord[i] - rowCoord[j])
			dc := math.Abs(colCoord[i] - colCoord[j])
			corr := 1.0
			switch {
			case st.rowAR && st.colAR:
				corr = math.Pow(p.rhoRow, dr) * math.Pow(p.rhoCol, dc)
			case st.rowAR:
				if dc != 0 {
					corr = 0
				} else {
					corr = math.Pow(p.rhoRow, dr)
				}
			case st.colAR:
				if dr != 0 {
					corr = 0
				} else {
					corr = math.Pow(p.rhoCol, dc)
				}
			default:
				if dr != 0 || dc != 0 {
					corr = 0
				}
			}
			if st.nugget {
				corr *= 1 - p.nugget
			}
			c.SetSym(i, j, corr)
		}
	}
	return c
}
