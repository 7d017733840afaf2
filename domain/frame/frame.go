package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind describes how a column's values are interpreted
type Kind int

const (
	Text Kind = iota
	Categorical
	Numeric
)

func (k Kind) String() string {
	switch k {
	case Categorical:
		return "categorical"
	case Numeric:
		return "numeric"
	default:
		return "text"
	}
}

// Value is a single cell. Raw always holds the original text; Num is
// populated once the column has been cast to Numeric.
type Value struct {
	Raw     string
	Num     float64
	Missing bool
}

// Table is a small column-typed table: ordered rows, ordered named columns.
// All mutating helpers return a fresh value or copy columns first, so a
// Table handed to a caller is never changed underneath it.
type Table struct {
	names []string
	kinds []Kind
	index map[string]int
	rows  [][]Value
}

// New creates an empty table with the given text columns
func New(columns []string) *Table {
	t := &Table{
		names: append([]string(nil), columns...),
		kinds: make([]Kind, len(columns)),
		index: make(map[string]int, len(columns)),
	}
	for i, name := range columns {
		t.index[name] = i
	}
	return t
}

// FromRecords builds a table from a header row and raw string records.
// Empty cells and the common missing markers are flagged as missing.
func FromRecords(headers []string, records [][]string) *Table {
	t := New(headers)
	for _, rec := range records {
		row := make([]Value, len(headers))
		for i := range headers {
			raw := ""
			if i < len(rec) {
				raw = strings.TrimSpace(rec[i])
			}
			row[i] = newValue(raw)
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func newValue(raw string) Value {
	if isMissingMarker(raw) {
		return Value{Raw: raw, Missing: true}
	}
	return Value{Raw: raw}
}

func isMissingMarker(raw string) bool {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "NA", "NAN", "NULL":
		return true
	}
	return false
}

// NRows returns the number of rows
func (t *Table) NRows() int { return len(t.rows) }

// NCols returns the number of columns
func (t *Table) NCols() int { return len(t.names) }

// Columns returns the column names in order
func (t *Table) Columns() []string {
	return append([]string(nil), t.names...)
}

// HasColumn reports whether the named column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// KindOf returns the kind of the named column
func (t *Table) KindOf(name string) (Kind, bool) {
	i, ok := t.index[name]
	if !ok {
		return Text, false
	}
	return t.kinds[i], true
}

// Value returns the cell at (row, column)
func (t *Table) Value(row int, column string) (Value, bool) {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return Value{}, false
	}
	return t.rows[row][i], true
}

// AppendRow adds a row of raw string cells in column order
func (t *Table) AppendRow(cells []string) error {
	if len(cells) != len(t.names) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.names))
	}
	row := make([]Value, len(cells))
	for i, raw := range cells {
		v := newValue(strings.TrimSpace(raw))
		if !v.Missing && t.kinds[i] == Numeric {
			num, err := ParseNumeric(v.Raw)
			if err != nil {
				return fmt.Errorf("column %q: %v", t.names[i], err)
			}
			v.Num = num
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// Rename renames a column in place
func (t *Table) Rename(from, to string) error {
	i, ok := t.index[from]
	if !ok {
		return fmt.Errorf("no column %q", from)
	}
	if from == to {
		return nil
	}
	if _, clash := t.index[to]; clash {
		return fmt.Errorf("column %q already exists", to)
	}
	t.names[i] = to
	delete(t.index, from)
	t.index[to] = i
	return nil
}

// Cast changes a column's kind. Casting to Numeric parses every
// non-missing value; the first unparsable cell aborts with its value.
func (t *Table) Cast(column string, kind Kind) error {
	i, ok := t.index[column]
	if !ok {
		return fmt.Errorf("no column %q", column)
	}
	if kind == Numeric {
		for r := range t.rows {
			v := &t.rows[r][i]
			if v.Missing {
				continue
			}
			num, err := ParseNumeric(v.Raw)
			if err != nil {
				return fmt.Errorf("row %d value %q: %v", r, v.Raw, err)
			}
			v.Num = num
		}
	}
	t.kinds[i] = kind
	return nil
}

// ParseNumeric parses a trimmed decimal value, rejecting NaN and infinities
func ParseNumeric(raw string) (float64, error) {
	num, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, fmt.Errorf("not a finite number: %q", raw)
	}
	return num, nil
}

// Floats returns the column as float64 values with NaN for missing cells.
// Non-numeric columns are parsed on the fly; an unparsable cell is an error.
func (t *Table) Floats(column string) ([]float64, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, fmt.Errorf("no column %q", column)
	}
	out := make([]float64, len(t.rows))
	for r, row := range t.rows {
		v := row[i]
		switch {
		case v.Missing:
			out[r] = math.NaN()
		case t.kinds[i] == Numeric:
			out[r] = v.Num
		default:
			num, err := ParseNumeric(v.Raw)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %v", column, r, err)
			}
			out[r] = num
		}
	}
	return out, nil
}

// Strings returns the column as raw strings ("" for missing cells)
func (t *Table) Strings(column string) ([]string, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, fmt.Errorf("no column %q", column)
	}
	out := make([]string, len(t.rows))
	for r, row := range t.rows {
		if row[i].Missing {
			out[r] = ""
			continue
		}
		out[r] = row[i].Raw
	}
	return out, nil
}

// Levels returns the distinct non-missing values of a column in order of
// first appearance
func (t *Table) Levels(column string) ([]string, error) {
	vals, err := t.Strings(column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var levels []string
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		levels = append(levels, v)
	}
	return levels, nil
}

// Filter returns a new table with the rows for which keep returns true.
// Row values are copied; the receiver is untouched.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := t.emptyLike()
	for r := range t.rows {
		if keep(r) {
			out.rows = append(out.rows, append([]Value(nil), t.rows[r]...))
		}
	}
	return out
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	out := t.emptyLike()
	out.rows = make([][]Value, len(t.rows))
	for r := range t.rows {
		out.rows[r] = append([]Value(nil), t.rows[r]...)
	}
	return out
}

func (t *Table) emptyLike() *Table {
	out := New(t.names)
	copy(out.kinds, t.kinds)
	return out
}

// AppendFloatColumn adds a numeric column; vals must match the row count
func (t *Table) AppendFloatColumn(name string, vals []float64) error {
	if len(vals) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(vals), len(t.rows))
	}
	if _, clash := t.index[name]; clash {
		return fmt.Errorf("column %q already exists", name)
	}
	t.index[name] = len(t.names)
	t.names = append(t.names, name)
	t.kinds = append(t.kinds, Numeric)
	for r := range t.rows {
		v := Value{Num: vals[r], Raw: strconv.FormatFloat(vals[r], 'g', -1, 64)}
		if math.IsNaN(vals[r]) {
			v = Value{Missing: true}
		}
		t.rows[r] = append(t.rows[r], v)
	}
	return nil
}

// AppendStringColumn adds a categorical column; vals must match the row count
func (t *Table) AppendStringColumn(name string, vals []string) error {
	if len(vals) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(vals), len(t.rows))
	}
	if _, clash := t.index[name]; clash {
		return fmt.Errorf("column %q already exists", name)
	}
	t.index[name] = len(t.names)
	t.names = append(t.names, name)
	t.kinds = append(t.kinds, Categorical)
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], newValue(vals[r]))
	}
	return nil
}

// Append adds all rows of other, which must have the same column set in the
// same order
func (t *Table) Append(other *Table) error {
	if len(other.names) != len(t.names) {
		return fmt.Errorf("column count mismatch: %d vs %d", len(other.names), len(t.names))
	}
	for i, name := range t.names {
		if other.names[i] != name {
			return fmt.Errorf("column order mismatch at %d: %q vs %q", i, name, other.names[i])
		}
	}
	for r := range other.rows {
		t.rows = append(t.rows, append([]Value(nil), other.rows[r]...))
	}
	return nil
}
