package dataprocessing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "retailsales/internal/errors"
	"retailsales/pkg/contracts/domain"
)

// requiredFields are the header fields Reshape reads
var requiredFields = []string{
	domain.FieldDataTypeCode,
	domain.FieldSeasonallyAdj,
	domain.FieldCategoryCode,
	domain.FieldCellValue,
	domain.FieldTime,
}

const periodLayout = "2006-01"

type cellKey struct {
	month time.Time
	label string
}

type columnInfo struct {
	label    string
	onReport bool
	order    int
}

// Reshape pivots the raw MARTS rows into the wide table: one row per month
// (first of month, ascending) and one integer column per short category label.
//
// Only monthly sales rows (data_type_code SM) of the selected seasonal
// adjustment are kept. Non-integer values, malformed periods and duplicate
// (month, label) pairs are data-shape errors. The raw table is not modified.
func Reshape(raw *domain.RawTable, opts ReshapeOptions) (*domain.Table, *ReshapeReport, error) {
	if raw == nil {
		return nil, nil, apperrors.NewParsingError("no data to reshape", nil)
	}
	if opts.Categories == nil {
		return nil, nil, apperrors.NewConfigError("category lookup is required", nil)
	}

	adjusted := opts.Adjusted
	if adjusted == "" {
		adjusted = domain.SeasonallyAdjusted
	}
	if adjusted != domain.SeasonallyAdjusted && adjusted != domain.NotSeasonallyAdjusted {
		return nil, nil, apperrors.NewAppValidationError(fmt.Sprintf("adjusted must be yes or no, got %q", adjusted))
	}

	policy := opts.Unmapped
	if policy == "" {
		policy = UnmappedDrop
	}

	idx, err := raw.RequireColumns(requiredFields...)
	if err != nil {
		return nil, nil, apperrors.NewParsingError("unexpected response header", err)
	}

	report := &ReshapeReport{RowsIn: raw.Len()}
	cells := make(map[cellKey]int64)
	months := make(map[time.Time]struct{})
	columns := make(map[string]*columnInfo)
	unmapped := make(map[string]struct{})

	for i, row := range raw.Rows {
		if len(row) != len(raw.Header) {
			return nil, nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d has %d cells, header has %d", i+1, len(row), len(raw.Header)), nil)
		}
		if row[idx[domain.FieldDataTypeCode]] != domain.DataTypeMonthlySales ||
			row[idx[domain.FieldSeasonallyAdj]] != adjusted {
			continue
		}
		report.RowsMatched++

		code := row[idx[domain.FieldCategoryCode]]
		label, onReport := code, false
		if cat, ok := opts.Categories.Lookup(code); ok {
			label, onReport = cat.Short, cat.OnReport
		} else {
			switch policy {
			case UnmappedFail:
				return nil, nil, apperrors.NewParsingError(fmt.Sprintf("category code %q has no lookup entry", code), nil).
					WithContext("category_code", code)
			case UnmappedDrop:
				if _, seen := unmapped[code]; !seen {
					unmapped[code] = struct{}{}
					report.Unmapped = append(report.Unmapped, code)
				}
				continue
			}
		}
		if opts.OnReportOnly && !onReport {
			continue
		}

		cell := strings.TrimSpace(row[idx[domain.FieldCellValue]])
		value, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d: cell_value %q for %s is not an integer", i+1, cell, code), err)
		}

		period := row[idx[domain.FieldTime]]
		month, err := time.Parse(periodLayout, period)
		if err != nil {
			return nil, nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d: time %q is not a YYYY-MM period", i+1, period), err)
		}

		key := cellKey{month: month, label: label}
		if _, dup := cells[key]; dup {
			return nil, nil, apperrors.NewParsingError(
				fmt.Sprintf("duplicate value for %s in %s", label, period), nil).
				WithContext("category", label).
				WithContext("period", period)
		}
		cells[key] = value
		months[month] = struct{}{}
		if _, ok := columns[label]; !ok {
			columns[label] = &columnInfo{label: label, onReport: onReport, order: len(columns)}
		}
		report.RowsKept++
	}

	if len(cells) == 0 {
		return nil, nil, apperrors.NewParsingError(
			fmt.Sprintf("no monthly sales rows for seasonally_adj=%s", adjusted), nil)
	}

	dates := make([]time.Time, 0, len(months))
	for m := range months {
		dates = append(dates, m)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	ordered := make([]*columnInfo, 0, len(columns))
	for _, c := range columns {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].onReport != ordered[j].onReport {
			return ordered[i].onReport
		}
		return ordered[i].order < ordered[j].order
	})

	index := make([]string, len(dates))
	for i, d := range dates {
		index[i] = d.Format(domain.DateLayout)
	}
	labels := make([]string, len(ordered))
	for j, c := range ordered {
		labels[j] = c.label
	}

	wide := domain.NewTable(domain.IndexDate, index, labels, domain.FormatInteger)
	for i, d := range dates {
		for j, label := range labels {
			if v, ok := cells[cellKey{month: d, label: label}]; ok {
				wide.Rows[i][j] = domain.V(float64(v))
			}
		}
	}

	report.Columns = len(labels)
	report.Months = len(dates)
	sort.Strings(report.Unmapped)

	return wide, report, nil
}
