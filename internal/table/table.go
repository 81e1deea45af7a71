package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind describes how a column's cells are typed in memory and serialized on disk.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindDecimal
	KindBool
	KindDate
	KindMonth
)

// Serialized layouts for calendar columns.
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindMonth:
		return "month"
	default:
		return "text"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names String produces.
func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{KindText, KindInt, KindDecimal, KindBool, KindDate, KindMonth} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown column kind %q", b)
}

// Column is a named, typed column of a table.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
}

// Default is the value a newly introduced column takes in existing rows.
// Boolean columns default to false, everything else to nil (missing).
func (c Column) Default() any {
	if c.Kind == KindBool {
		return false
	}
	return nil
}

// Row is one record. ID is the storage row id (0 until persisted).
// A nil cell is a missing value.
type Row struct {
	ID    int64          `json:"id"`
	Cells map[string]any `json:"cells"`
}

// Table is an in-memory snapshot of one named table.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// New returns an empty table with the given columns.
func New(name string, columns []Column) *Table {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols, Rows: []Row{}}
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Append adds a row built from the given cells. Columns missing from cells take their default.
func (t *Table) Append(cells map[string]any) {
	row := Row{Cells: make(map[string]any, len(t.Columns))}
	for _, c := range t.Columns {
		if v, ok := cells[c.Name]; ok {
			row.Cells[c.Name] = v
		} else {
			row.Cells[c.Name] = c.Default()
		}
	}
	t.Rows = append(t.Rows, row)
}

// Clone returns a deep copy of the snapshot (cell values are immutable scalars).
func (t *Table) Clone() *Table {
	out := New(t.Name, t.Columns)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		cells := make(map[string]any, len(r.Cells))
		for k, v := range r.Cells {
			cells[k] = v
		}
		out.Rows[i] = Row{ID: r.ID, Cells: cells}
	}
	return out
}

// EnsureSchema returns a copy of t in which every required column exists.
// Missing columns are appended at the end and filled with their default in every row.
// Present columns keep their position, kind and values. Applying it twice is a no-op.
func EnsureSchema(t *Table, required []Column) *Table {
	out := t.Clone()
	for _, col := range required {
		if out.HasColumn(col.Name) {
			continue
		}
		out.Columns = append(out.Columns, col)
		for i := range out.Rows {
			out.Rows[i].Cells[col.Name] = col.Default()
		}
	}
	return out
}

// Get returns the raw cell value, nil if missing.
func (r Row) Get(name string) any {
	if r.Cells == nil {
		return nil
	}
	return r.Cells[name]
}

// String returns the cell as text, "" if missing.
func (r Row) String(name string) string {
	switch v := r.Get(name).(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(DateLayout)
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the cell as an integer. ok is false when missing or not numeric.
func (r Row) Int(name string) (int64, bool) {
	switch v := r.Get(name).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case decimal.Decimal:
		return v.IntPart(), true
	default:
		return 0, false
	}
}

// Decimal returns the cell as a decimal. ok is false when missing or not numeric.
func (r Row) Decimal(name string) (decimal.Decimal, bool) {
	switch v := r.Get(name).(type) {
	case decimal.Decimal:
		return v, true
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	default:
		return decimal.Zero, false
	}
}

// Bool returns the cell as a boolean; missing reads as false.
func (r Row) Bool(name string) bool {
	v, _ := r.Get(name).(bool)
	return v
}

// Date returns the cell as a calendar date. ok is false for missing or unparseable values.
func (r Row) Date(name string) (time.Time, bool) {
	switch v := r.Get(name).(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		return ParseDate(v)
	default:
		return time.Time{}, false
	}
}

// ParseDate accepts YYYY-MM-DD and the timestamp forms spreadsheet exports commonly carry.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
