// Package testkit generates deterministic field trial fixtures for tests.
package testkit

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ntduc11/statgenSTA/domain/frame"
)

// Noise is a reproducible gaussian source: a linear congruential generator
// fed through the Box-Muller transform. Not suitable outside tests.
type Noise struct {
	state    uint64
	spare    float64
	hasSpare bool
}

func NewNoise(seed uint64) *Noise {
	if seed == 0 {
		seed = 1
	}
	return &Noise{state: seed}
}

func (n *Noise) uniform() float64 {
	n.state = n.state*6364136223846793005 + 1442695040888963407
	return float64(n.state>>11) / float64(1<<53)
}

// Gauss returns a normal deviate with the given standard deviation
func (n *Noise) Gauss(sd float64) float64 {
	if n.hasSpare {
		n.hasSpare = false
		return n.spare * sd
	}
	u1 := n.uniform()
	for u1 == 0 {
		u1 = n.uniform()
	}
	u2 := n.uniform()
	r := math.Sqrt(-2 * math.Log(u1))
	n.spare = r * math.Sin(2*math.Pi*u2)
	n.hasSpare = true
	return r * math.Cos(2*math.Pi*u2) * sd
}

// TrialSpec describes a synthetic balanced trial: every genotype observed
// once per replicate, laid out genotype by row and replicate by column.
type TrialSpec struct {
	Name      string
	Genotypes int
	Reps      int

	// GenoEffects defaults to 0, 1, 2, ... when nil
	GenoEffects []float64
	RepEffects  []float64
	Intercept   float64

	NoiseSD      float64
	SpatialTrend bool
	Seed         uint64
}

// Columns of a generated table, in order
var Columns = []string{
	"env", "geno", "rep", "block", "row", "col", "fieldRow", "fieldCol", "yield",
}

// Generate builds the raw table for a trial spec. Column names are
// deliberately non-canonical so tests exercise role mapping.
func Generate(spec TrialSpec) *frame.Table {
	if spec.Name == "" {
		spec.Name = "E1"
	}
	if spec.Intercept == 0 {
		spec.Intercept = 50
	}
	noise := NewNoise(spec.Seed)

	var records [][]string
	for g := 0; g < spec.Genotypes; g++ {
		for r := 0; r < spec.Reps; r++ {
			y := spec.Intercept + genoEffect(spec, g) + repEffect(spec, r)
			if spec.SpatialTrend {
				y += 0.5 * float64(g+r)
			}
			if spec.NoiseSD > 0 {
				y += noise.Gauss(spec.NoiseSD)
			}
			records = append(records, []string{
				spec.Name,
				fmt.Sprintf("G%d", g+1),
				fmt.Sprintf("R%d", r+1),
				fmt.Sprintf("B%d", g/2+1),
				fmt.Sprintf("r%d", g+1),
				fmt.Sprintf("c%d", r+1),
				strconv.Itoa(g + 1),
				strconv.Itoa(r + 1),
				strconv.FormatFloat(y, 'g', -1, 64),
			})
		}
	}
	return frame.FromRecords(Columns, records)
}

func genoEffect(spec TrialSpec, g int) float64 {
	if g < len(spec.GenoEffects) {
		return spec.GenoEffects[g]
	}
	if spec.GenoEffects != nil {
		return 0
	}
	return float64(g)
}

func repEffect(spec TrialSpec, r int) float64 {
	if r < len(spec.RepEffects) {
		return spec.RepEffects[r]
	}
	return 0
}
