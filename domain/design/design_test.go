package design

import (
	"errors"
	"testing"

	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/ports"
)

func TestResolveTemplates(t *testing.T) {
	tests := []struct {
		code   Code
		fixed  []string
		random []string
		engine ports.EngineID
	}{
		{IBD, nil, []string{"subBlock"}, ports.EngineMixed},
		{ResIBD, []string{"repId"}, []string{"repId:subBlock"}, ports.EngineMixed},
		{RCBD, []string{"repId"}, nil, ports.EngineMixed},
		{RowCol, nil, []string{"rowId", "colId"}, ports.EngineSpatial},
		{ResRowCol, []string{"repId"}, []string{"repId:rowId", "repId:colId"}, ports.EngineSpatial},
	}
	for _, tc := range tests {
		tpl, err := Resolve(tc.code)
		if err != nil {
			t.Fatalf("%s: %v", tc.code, err)
		}
		if tpl.DefaultEngine != tc.engine {
			t.Errorf("%s: engine = %s, want %s", tc.code, tpl.DefaultEngine, tc.engine)
		}
		if !equal(tpl.Fixed, tc.fixed) || !equal(tpl.Random, tc.random) {
			t.Errorf("%s: terms = %v / %v, want %v / %v", tc.code, tpl.Fixed, tpl.Random, tc.fixed, tc.random)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("latin.square")
	if !errors.Is(err, core.ErrUnknownDesign) {
		t.Errorf("err = %v, want ErrUnknownDesign", err)
	}
}

func TestRequiresSplitsInteractions(t *testing.T) {
	tpl, err := Resolve(ResRowCol)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"repId", "rowId", "colId"}
	if !equal(tpl.Requires(), want) {
		t.Errorf("requires = %v, want %v", tpl.Requires(), want)
	}
}

func TestValid(t *testing.T) {
	for _, code := range All() {
		if !Valid(code) {
			t.Errorf("%s should be valid", code)
		}
	}
	if Valid("rcb") {
		t.Error("rcb should not be valid")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
