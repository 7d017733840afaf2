package frame

import (
	"math"
	"testing"
)

func sampleTable() *Table {
	return FromRecords(
		[]string{"geno", "rep", "yield"},
		[][]string{
			{"G1", "R1", "10.5"},
			{"G1", "R2", "NA"},
			{"G2", "R1", "12"},
			{"G2", "R2", "11.5"},
		},
	)
}

func TestFromRecordsMissingMarkers(t *testing.T) {
	tbl := FromRecords([]string{"a"}, [][]string{{""}, {"NA"}, {"nan"}, {"NULL"}, {"x"}})
	for r, want := range []bool{true, true, true, true, false} {
		v, ok := tbl.Value(r, "a")
		if !ok {
			t.Fatalf("row %d: no value", r)
		}
		if v.Missing != want {
			t.Errorf("row %d: missing = %v, want %v", r, v.Missing, want)
		}
	}
}

func TestCastNumeric(t *testing.T) {
	tbl := sampleTable()
	if err := tbl.Cast("yield", Numeric); err != nil {
		t.Fatalf("cast: %v", err)
	}
	vals, err := tbl.Floats("yield")
	if err != nil {
		t.Fatalf("floats: %v", err)
	}
	if vals[0] != 10.5 || !math.IsNaN(vals[1]) || vals[2] != 12 {
		t.Errorf("unexpected values %v", vals)
	}

	bad := FromRecords([]string{"x"}, [][]string{{"1"}, {"two"}})
	if err := bad.Cast("x", Numeric); err == nil {
		t.Error("expected cast error for non-numeric cell")
	}
}

func TestLevelsAppearanceOrder(t *testing.T) {
	tbl := FromRecords([]string{"g"}, [][]string{{"b"}, {"a"}, {"b"}, {""}, {"c"}})
	levels, err := tbl.Levels("g")
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	want := []string{"b", "a", "c"}
	if len(levels) != len(want) {
		t.Fatalf("got %v, want %v", levels, want)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("got %v, want %v", levels, want)
		}
	}
}

func TestFilterLeavesSourceUntouched(t *testing.T) {
	tbl := sampleTable()
	sub := tbl.Filter(func(row int) bool {
		v, _ := tbl.Value(row, "geno")
		return v.Raw == "G1"
	})
	if sub.NRows() != 2 {
		t.Errorf("filtered rows = %d, want 2", sub.NRows())
	}
	if tbl.NRows() != 4 {
		t.Errorf("source rows = %d, want 4", tbl.NRows())
	}
}

func TestRename(t *testing.T) {
	tbl := sampleTable()
	if err := tbl.Rename("geno", "genotype"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !tbl.HasColumn("genotype") || tbl.HasColumn("geno") {
		t.Error("rename did not replace the column name")
	}
	if err := tbl.Rename("rep", "genotype"); err == nil {
		t.Error("expected clash error")
	}
}

func TestAppendFloatColumn(t *testing.T) {
	tbl := sampleTable()
	if err := tbl.AppendFloatColumn("wt", []float64{1, math.NaN(), 2, 3}); err != nil {
		t.Fatalf("append: %v", err)
	}
	vals, err := tbl.Floats("wt")
	if err != nil {
		t.Fatalf("floats: %v", err)
	}
	if vals[0] != 1 || !math.IsNaN(vals[1]) || vals[3] != 3 {
		t.Errorf("unexpected values %v", vals)
	}
	if err := tbl.AppendFloatColumn("short", []float64{1}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestAppendRequiresSameColumns(t *testing.T) {
	a := sampleTable()
	b := FromRecords([]string{"geno", "rep"}, [][]string{{"G3", "R1"}})
	if err := a.Append(b); err == nil {
		t.Error("expected column mismatch error")
	}
	c := sampleTable()
	if err := a.Append(c); err != nil {
		t.Fatalf("append: %v", err)
	}
	if a.NRows() != 8 {
		t.Errorf("rows = %d, want 8", a.NRows())
	}
}
