package design

import (
	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/ports"
)

// Code identifies a field trial design
type Code string

const (
	// IBD is an incomplete block design
	IBD Code = "ibd"
	// ResIBD is a resolvable incomplete block design
	ResIBD Code = "res.ibd"
	// RCBD is a randomized complete block design
	RCBD Code = "rcbd"
	// RowCol is a row-column design
	RowCol Code = "rowcol"
	// ResRowCol is a resolvable row-column design
	ResRowCol Code = "res.rowcol"
)

// Template is the base model formula for a design: the non-genotype fixed
// and random terms, and the engine used when the caller does not override.
// Genotype enters as fixed or random per the requested effect mode.
type Template struct {
	Code          Code
	Fixed         []string
	Random        []string
	DefaultEngine ports.EngineID
}

// Requires lists the canonical columns the template's terms reference
func (t Template) Requires() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, term := range append(append([]string{}, t.Fixed...), t.Random...) {
		for _, col := range splitTerm(term) {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	return cols
}

func splitTerm(term string) []string {
	var cols []string
	start := 0
	for i := 0; i <= len(term); i++ {
		if i == len(term) || term[i] == ':' {
			if i > start {
				cols = append(cols, term[start:i])
			}
			start = i + 1
		}
	}
	return cols
}

// The design table. Row-column designs default to the spatial-smoothing
// engine, everything else to the general mixed-model engine.
var templates = map[Code]Template{
	IBD: {
		Code:          IBD,
		Random:        []string{"subBlock"},
		DefaultEngine: ports.EngineMixed,
	},
	ResIBD: {
		Code:          ResIBD,
		Fixed:         []string{"repId"},
		Random:        []string{"repId:subBlock"},
		DefaultEngine: ports.EngineMixed,
	},
	RCBD: {
		Code:          RCBD,
		Fixed:         []string{"repId"},
		DefaultEngine: ports.EngineMixed,
	},
	RowCol: {
		Code:          RowCol,
		Random:        []string{"rowId", "colId"},
		DefaultEngine: ports.EngineSpatial,
	},
	ResRowCol: {
		Code:          ResRowCol,
		Fixed:         []string{"repId"},
		Random:        []string{"repId:rowId", "repId:colId"},
		DefaultEngine: ports.EngineSpatial,
	},
}

// Resolve maps a design code to its model template
func Resolve(code Code) (Template, error) {
	tpl, ok := templates[code]
	if !ok {
		return Template{}, core.NewUnknownDesignError(string(code))
	}
	return tpl, nil
}

// All returns the recognized design codes in a stable order
func All() []Code {
	return []Code{IBD, ResIBD, RCBD, RowCol, ResRowCol}
}

// Valid reports whether code is a recognized design
func Valid(code Code) bool {
	_, ok := templates[code]
	return ok
}
