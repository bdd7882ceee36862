package dataprocessing

import (
	"retailsales/pkg/contracts/domain"
)

// PctChange returns value[t]/value[t-w] - 1 for every cell. The first w rows
// are null, as is any cell whose operands are null or whose base is zero.
// A non-positive w yields an all-null table.
func PctChange(t *domain.Table, w int) *domain.Table {
	out := domain.NewTable(t.IndexName, t.Index, t.Columns, domain.FormatFloat)
	lagged(t, out, w, func(cur, base float64) domain.Value {
		if base == 0 {
			return domain.Null
		}
		return domain.V(cur/base - 1)
	})
	return out
}

// Diff returns value[t] - value[t-w] with the same null rule as PctChange,
// except that a zero base is allowed.
func Diff(t *domain.Table, w int) *domain.Table {
	out := domain.NewTable(t.IndexName, t.Index, t.Columns, t.Format)
	lagged(t, out, w, func(cur, base float64) domain.Value {
		return domain.V(cur - base)
	})
	return out
}

func lagged(src, dst *domain.Table, w int, f func(cur, base float64) domain.Value) {
	if w < 1 {
		return
	}
	for i := w; i < len(src.Rows); i++ {
		for j := range src.Columns {
			cur, base := src.Rows[i][j], src.Rows[i-w][j]
			if !cur.Valid || !base.Valid {
				continue
			}
			dst.Rows[i][j] = f(cur.Num, base.Num)
		}
	}
}

// OHLC summarizes the last OHLCLookback rows of PctChange(t, w), one row per
// column of t:
//
//	Level  last row of t, null when that month is missing
//	Open   second row of the look-back slice
//	High   maximum over the slice, nulls skipped
//	Low    minimum over the slice, nulls skipped
//	Close  last row of the slice
//
// A shorter series gives a shorter slice; nothing is padded.
func OHLC(t *domain.Table, w int) *domain.Table {
	tail := PctChange(t, w).Tail(OHLCLookback)

	out := domain.NewTable(IndexCategory, t.Columns,
		[]string{ColLevel, ColOpen, ColHigh, ColLow, ColClose}, domain.FormatFloat)
	out.ColumnFormats = []domain.TableFormat{t.Format, "", "", "", ""}

	n := len(tail.Rows)
	for j := range t.Columns {
		row := out.Rows[j]
		if last := len(t.Rows); last > 0 {
			row[0] = t.Rows[last-1][j]
		}
		if n > 1 {
			row[1] = tail.Rows[1][j]
		}
		if n > 0 {
			row[4] = tail.Rows[n-1][j]
		}
		row[2], row[3] = extremes(tail, j)
	}
	return out
}

func extremes(t *domain.Table, j int) (high, low domain.Value) {
	for _, r := range t.Rows {
		v := r[j]
		if !v.Valid {
			continue
		}
		if !high.Valid || v.Num > high.Num {
			high = v
		}
		if !low.Valid || v.Num < low.Num {
			low = v
		}
	}
	return high, low
}

// BuildBundle derives every table shown and exported from the wide table,
// in sheet order: levels, then percent change and change per window, then
// the OHLC summaries.
func BuildBundle(wide *domain.Table) domain.Bundle {
	bundle := domain.Bundle{{Name: SheetRetailSales, Table: wide}}
	for _, w := range Windows {
		bundle = append(bundle,
			domain.NamedTable{Name: w.PctChangeName(), Table: PctChange(wide, int(w))},
			domain.NamedTable{Name: w.DiffName(), Table: Diff(wide, int(w))},
		)
	}
	for _, w := range Windows {
		bundle = append(bundle, domain.NamedTable{Name: w.OHLCName(), Table: OHLC(wide, int(w))})
	}
	return bundle
}
