package ports

import (
	"context"
	"sync"

	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/frame"
)

// EngineID identifies a concrete mixed-model fitting backend
type EngineID string

const (
	// EngineMixed is the general linear mixed-model engine
	EngineMixed EngineID = "lmm"
	// EngineSpatial is the spatial-smoothing engine (2-D spline surface)
	EngineSpatial EngineID = "spats"
	// EngineCov is the license-gated engine with explicit residual
	// covariance structures; it may be absent at runtime
	EngineCov EngineID = "gls"
)

// CovStructure names a residual covariance candidate for the gls engine
type CovStructure string

const (
	CovIdentity      CovStructure = "id"
	CovAR1Row        CovStructure = "ar1(row)"
	CovAR1Col        CovStructure = "ar1(col)"
	CovAR1Both       CovStructure = "ar1(row):ar1(col)"
	CovAR1RowNugget  CovStructure = "ar1(row)+nugget"
	CovAR1ColNugget  CovStructure = "ar1(col)+nugget"
	CovAR1BothNugget CovStructure = "ar1(row):ar1(col)+nugget"
)

// SpatialCandidates returns the full candidate set for a spatial covariance
// comparison, in tie-break order.
func SpatialCandidates() []CovStructure {
	return []CovStructure{
		CovIdentity,
		CovAR1Row,
		CovAR1Col,
		CovAR1Both,
		CovAR1RowNugget,
		CovAR1ColNugget,
		CovAR1BothNugget,
	}
}

// ModelSpec describes one model to fit: the trial/trait pair, the formula
// terms resolved from the trial design, and engine-specific knobs.
type ModelSpec struct {
	Trial            string
	Trait            string
	Design           string
	GenotypeAsRandom bool

	// Non-genotype formula terms, canonical column names; interactions are
	// written "a:b"
	FixedTerms  []string
	RandomTerms []string

	// Spline segments for the spatial-smoothing engine, forwarded untouched
	// to the basis builder; zero means the engine default
	NSegRow int
	NSegCol int

	// Residual covariance candidate for the gls engine; empty means identity
	Covariance CovStructure
}

// GenoPredictions holds per-genotype estimates: BLUEs when genotype was
// fitted as fixed, BLUPs when fitted as random.
type GenoPredictions struct {
	Genotypes []string
	Estimates map[string]float64
	StdErrors map[string]float64
}

// ModelFit is the uniform view over heterogeneous engine fit objects
type ModelFit interface {
	EngineID() EngineID
	Spec() ModelSpec

	// Rows maps the fitted observations back to row indices of the source
	// trial table (rows with a missing response are excluded from a fit)
	Rows() []int
	FittedValues() []float64
	Residuals() []float64
	StdResiduals() []float64

	GenoPredictions() GenoPredictions
	VarComponents() map[string]float64
	Heritability() (float64, bool)
	EffDims() (map[string]float64, bool)

	AIC() float64
	BIC() float64
}

// ModelEngine fits a single model specification against a trial table
type ModelEngine interface {
	ID() EngineID
	Fit(ctx context.Context, spec ModelSpec, data *frame.Table) (ModelFit, error)
}

// Registry holds the engines available at runtime. The gls engine is only
// registered when a license is configured.
type Registry struct {
	mu      sync.RWMutex
	engines map[EngineID]ModelEngine
}

// NewRegistry creates an empty engine registry
func NewRegistry() *Registry {
	return &Registry{engines: make(map[EngineID]ModelEngine)}
}

// Register adds an engine, replacing any previous engine with the same id
func (r *Registry) Register(e ModelEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.ID()] = e
}

// Get returns the engine for id or ErrEngineUnavailable
func (r *Registry) Get(id EngineID) (ModelEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, core.NewEngineUnavailableError(string(id))
	}
	return e, nil
}

// Available reports whether an engine is registered
func (r *Registry) Available(id EngineID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.engines[id]
	return ok
}
