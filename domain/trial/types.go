package trial

import (
	"time"

	"github.com/ntduc11/statgenSTA/domain/design"
	"github.com/ntduc11/statgenSTA/domain/frame"
)

// Canonical column names for the recognized semantic roles
const (
	ColGenotype = "genotype"
	ColTrial    = "trial"
	ColRepID    = "repId"
	ColSubBlock = "subBlock"
	ColRowCoord = "rowCoord"
	ColColCoord = "colCoord"
	ColRowID    = "rowId"
	ColColID    = "colId"
)

// RoleMapping assigns source column names to semantic roles. Genotype is
// the only required role; Traits lists the phenotype columns, which keep
// their source names.
type RoleMapping struct {
	Genotype string
	Trial    string
	RepID    string
	SubBlock string
	RowCoord string
	ColCoord string
	RowID    string
	ColID    string
	Traits   []string
}

// roles returns the (canonical, source) pairs that are mapped
func (m RoleMapping) roles() [][2]string {
	all := [][2]string{
		{ColGenotype, m.Genotype},
		{ColTrial, m.Trial},
		{ColRepID, m.RepID},
		{ColSubBlock, m.SubBlock},
		{ColRowCoord, m.RowCoord},
		{ColColCoord, m.ColCoord},
		{ColRowID, m.RowID},
		{ColColID, m.ColID},
	}
	var mapped [][2]string
	for _, pair := range all {
		if pair[1] != "" {
			mapped = append(mapped, pair)
		}
	}
	return mapped
}

// categoricalRoles are the canonical columns cast to Categorical
var categoricalRoles = map[string]bool{
	ColGenotype: true,
	ColTrial:    true,
	ColRepID:    true,
	ColSubBlock: true,
	ColRowID:    true,
	ColColID:    true,
}

// numericRoles are the canonical columns cast to Numeric
var numericRoles = map[string]bool{
	ColRowCoord: true,
	ColColCoord: true,
}

// Meta is the optional per-trial metadata record. Absent fields stay nil or
// empty and never block an analysis step.
type Meta struct {
	Location string
	Date     *time.Time
	Lat      *float64
	Long     *float64
	PlWidth  *float64
	PlLength *float64
	Design   design.Code
}

// MetaRecord couples a metadata record with its trial id
type MetaRecord struct {
	TrialID string
	Meta
}

// Trial is one sub-table of a TrialData: the observations of a single
// experimental run, with the original-to-canonical renaming retained.
type Trial struct {
	ID   string
	Data *frame.Table
	// Renamed maps canonical role names to the source columns they were
	// renamed from
	Renamed map[string]string
	Traits  []string
	Meta    *Meta
}

// clone returns a shallow structural copy; Data is shared (it is never
// mutated after construction)
func (tr *Trial) clone() *Trial {
	renamed := make(map[string]string, len(tr.Renamed))
	for k, v := range tr.Renamed {
		renamed[k] = v
	}
	out := &Trial{
		ID:      tr.ID,
		Data:    tr.Data,
		Renamed: renamed,
		Traits:  append([]string(nil), tr.Traits...),
	}
	if tr.Meta != nil {
		meta := *tr.Meta
		out.Meta = &meta
	}
	return out
}

// TrialData maps trial identifiers to their sub-tables, preserving the
// order in which trials first appeared.
type TrialData struct {
	order  []string
	trials map[string]*Trial
}

// IDs returns the trial identifiers in order
func (td *TrialData) IDs() []string {
	return append([]string(nil), td.order...)
}

// Get returns the trial with the given id
func (td *TrialData) Get(id string) (*Trial, bool) {
	tr, ok := td.trials[id]
	return tr, ok
}

// Len returns the number of trials
func (td *TrialData) Len() int { return len(td.order) }

func (td *TrialData) clone() *TrialData {
	out := &TrialData{
		order:  append([]string(nil), td.order...),
		trials: make(map[string]*Trial, len(td.trials)),
	}
	for id, tr := range td.trials {
		out.trials[id] = tr.clone()
	}
	return out
}
