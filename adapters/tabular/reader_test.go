package tabular

import (
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := "geno, rep,yield\nG1,R1,10.5\nG2,R1,NA\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tbl.NRows() != 2 || tbl.NCols() != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", tbl.NRows(), tbl.NCols())
	}
	if !tbl.HasColumn("rep") {
		t.Errorf("header not trimmed: %v", tbl.Columns())
	}
	v, _ := tbl.Value(1, "yield")
	if !v.Missing {
		t.Error("NA cell should be missing")
	}
}

func TestReadCSVNeedsData(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("geno,yield\n")); err == nil {
		t.Error("expected error for header-only input")
	}
}

func TestReadCSVRejectsEmptyHeader(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("geno,,yield\nG1,x,1\n")); err == nil {
		t.Error("expected error for empty column name")
	}
}
