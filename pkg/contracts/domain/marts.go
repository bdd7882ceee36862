package domain

import (
	"fmt"
)

// MARTS field names as returned by the Census time-series API
const (
	FieldDataTypeCode  = "data_type_code"
	FieldTimeSlotID    = "time_slot_id"
	FieldSeasonallyAdj = "seasonally_adj"
	FieldCategoryCode  = "category_code"
	FieldCellValue     = "cell_value"
	FieldErrorData     = "error_data"
	FieldTime          = "time"
)

// DataTypeMonthlySales is the data_type_code of the monthly sales series
const DataTypeMonthlySales = "SM"

// Seasonal adjustment selectors
const (
	SeasonallyAdjusted    = "yes"
	NotSeasonallyAdjusted = "no"
)

// RawTable is the upstream response: a header row followed by data rows.
// It is treated as immutable once fetched.
type RawTable struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// ColumnIndex returns the position of the named header field, or -1.
func (t *RawTable) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// RequireColumns resolves every named field to its column position.
func (t *RawTable) RequireColumns(names ...string) (map[string]int, error) {
	idx := make(map[string]int, len(names))
	for _, name := range names {
		i := t.ColumnIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("missing field %q in response header %v", name, t.Header)
		}
		idx[name] = i
	}
	return idx, nil
}

// Len returns the number of data rows
func (t *RawTable) Len() int {
	return len(t.Rows)
}
