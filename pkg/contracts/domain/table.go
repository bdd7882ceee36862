package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// IndexDate is the index name used for month-indexed tables
const IndexDate = "Date"

// DateLayout is the layout of month-indexed row labels
const DateLayout = "2006-01-02"

// TableFormat tells writers how to render numeric cells
type TableFormat string

const (
	FormatInteger TableFormat = "integer"
	FormatFloat   TableFormat = "float"
)

// Value is a nullable numeric cell
type Value struct {
	Num   float64
	Valid bool
}

// Null is the missing value
var Null = Value{}

// V wraps a number as a valid Value
func V(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null
	}
	return Value{Num: f, Valid: true}
}

// MarshalJSON renders null cells as JSON null
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Num)
}

// UnmarshalJSON accepts a number or null
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = V(f)
	return nil
}

// Table is a labelled two-dimensional numeric table. Rows[i][j] is the cell at
// Index[i] and Columns[j].
type Table struct {
	IndexName string      `json:"index_name"`
	Index     []string    `json:"index"`
	Columns   []string    `json:"columns"`
	Rows      [][]Value   `json:"rows"`
	Format    TableFormat `json:"format"`

	// ColumnFormats overrides Format per column when set
	ColumnFormats []TableFormat `json:"column_formats,omitempty"`
}

// NewTable allocates a table of null cells with the given shape
func NewTable(indexName string, index, columns []string, format TableFormat) *Table {
	rows := make([][]Value, len(index))
	for i := range rows {
		rows[i] = make([]Value, len(columns))
	}
	return &Table{
		IndexName: indexName,
		Index:     append([]string(nil), index...),
		Columns:   append([]string(nil), columns...),
		Rows:      rows,
		Format:    format,
	}
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	return len(t.Index)
}

// ColumnIndex returns the position of a column, or -1
func (t *Table) ColumnIndex(name string) int {
	for j, c := range t.Columns {
		if c == name {
			return j
		}
	}
	return -1
}

// Column returns a copy of the named column's cells
func (t *Table) Column(name string) ([]Value, bool) {
	j := t.ColumnIndex(name)
	if j < 0 {
		return nil, false
	}
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out, true
}

// Tail returns a copy of the last n rows. A shorter table is returned whole.
func (t *Table) Tail(n int) *Table {
	start := len(t.Rows) - n
	if start < 0 {
		start = 0
	}
	c := NewTable(t.IndexName, t.Index[start:], t.Columns, t.Format)
	c.ColumnFormats = append([]TableFormat(nil), t.ColumnFormats...)
	for i := range c.Rows {
		copy(c.Rows[i], t.Rows[start+i])
	}
	return c
}

// Latest returns the most recent row as a one-row table. An empty table stays empty.
func (t *Table) Latest() *Table {
	return t.Tail(1)
}

// FormatOf returns the format of column j
func (t *Table) FormatOf(j int) TableFormat {
	if j >= 0 && j < len(t.ColumnFormats) && t.ColumnFormats[j] != "" {
		return t.ColumnFormats[j]
	}
	return t.Format
}

// FormatCell renders the cell v of column j
func (t *Table) FormatCell(j int, v Value) string {
	return formatValue(t.FormatOf(j), v)
}

func formatValue(format TableFormat, v Value) string {
	if !v.Valid {
		return ""
	}
	if format == FormatInteger {
		return strconv.FormatInt(int64(math.Round(v.Num)), 10)
	}
	return strconv.FormatFloat(v.Num, 'f', 5, 64)
}

// NamedTable pairs a table with its sheet/display name
type NamedTable struct {
	Name  string `json:"name"`
	Table *Table `json:"table"`
}

// Bundle is an ordered collection of named tables
type Bundle []NamedTable

// Names returns the table names in order
func (b Bundle) Names() []string {
	names := make([]string, len(b))
	for i, nt := range b {
		names[i] = nt.Name
	}
	return names
}

// Get returns the table with the given name
func (b Bundle) Get(name string) (*Table, bool) {
	for _, nt := range b {
		if nt.Name == name {
			return nt.Table, true
		}
	}
	return nil, false
}
