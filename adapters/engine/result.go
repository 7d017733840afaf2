package engine

import (
	"github.com/ntduc11/statgenSTA/ports"
)

// Result is the shared fit-object implementation the concrete engines
// populate; it satisfies ports.ModelFit.
type Result struct {
	Engine ports.EngineID
	Model  ports.ModelSpec

	ObsRows []int
	Fitted  []float64
	Resid   []float64
	StdRes  []float64

	Preds    ports.GenoPredictions
	VarComps map[string]float64
	H2       float64
	HasH2    bool
	Dims     map[string]float64

	AICValue float64
	BICValue float64
}

func (r *Result) EngineID() ports.EngineID { return r.Engine }

func (r *Result) Spec() ports.ModelSpec { return r.Model }

func (r *Result) Rows() []int { return r.ObsRows }

func (r *Result) FittedValues() []float64 { return r.Fitted }

func (r *Result) Residuals() []float64 { return r.Resid }

func (r *Result) StdResiduals() []float64 { return r.StdRes }

func (r *Result) GenoPredictions() ports.GenoPredictions { return r.Preds }

func (r *Result) VarComponents() map[string]float64 { return r.VarComps }

func (r *Result) Heritability() (float64, bool) { return r.H2, r.HasH2 }

func (r *Result) EffDims() (map[string]float64, bool) {
	if len(r.Dims) == 0 {
		return nil, false
	}
	return r.Dims, true
}

func (r *Result) AIC() float64 { return r.AICValue }

func (r *Result) BIC() float64 { return r.BICValue }
