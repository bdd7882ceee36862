package testutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"retailsales/pkg/contracts/domain"
)

// MARTSHeader is the header row the Census API returns for the retail query
var MARTSHeader = []string{
	domain.FieldDataTypeCode,
	domain.FieldTimeSlotID,
	domain.FieldSeasonallyAdj,
	domain.FieldCategoryCode,
	domain.FieldCellValue,
	domain.FieldErrorData,
	domain.FieldTime,
	"us",
}

// MARTSRow builds one monthly sales row in header order
func MARTSRow(dataType, adjusted, code, month, value string) []string {
	return []string{dataType, "0", adjusted, code, value, "no", month, "1"}
}

// SalesSeries builds consecutive adjusted SM rows for one category starting at start ("YYYY-MM")
func SalesSeries(t testing.TB, code, start string, values ...int) [][]string {
	t.Helper()

	month, err := time.Parse("2006-01", start)
	if err != nil {
		t.Fatalf("bad fixture month %q: %v", start, err)
	}

	rows := make([][]string, 0, len(values))
	for _, v := range values {
		rows = append(rows, MARTSRow(domain.DataTypeMonthlySales, domain.SeasonallyAdjusted, code,
			month.Format("2006-01"), strconv.Itoa(v)))
		month = month.AddDate(0, 1, 0)
	}
	return rows
}

// NewRawTable assembles a raw table with the standard header
func NewRawTable(rows ...[]string) *domain.RawTable {
	return &domain.RawTable{Header: append([]string(nil), MARTSHeader...), Rows: rows}
}

// CensusJSON renders a raw table the way the API sends it: header first, then rows
func CensusJSON(t testing.TB, raw *domain.RawTable) []byte {
	t.Helper()

	out := make([][]string, 0, raw.Len()+1)
	out = append(out, raw.Header)
	out = append(out, raw.Rows...)

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal census fixture: %v", err)
	}
	return data
}

// Month returns the "YYYY-MM" label n months after start
func Month(start string, n int) string {
	m, err := time.Parse("2006-01", start)
	if err != nil {
		panic(fmt.Sprintf("bad fixture month %q", start))
	}
	return m.AddDate(0, n, 0).Format("2006-01")
}
