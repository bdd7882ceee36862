package exporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/xuri/excelize/v2"

	apperrors "retailsales/internal/errors"
	"retailsales/internal/infrastructure"
	"retailsales/pkg/contracts/domain"
)

// Download metadata
const (
	WorkbookFileName = "Retail_Sales_Data.xlsx"
	WorkbookMIME     = "application/vnd.ms-excel"
	CSVMIME          = "text/csv; charset=utf-8"
)

// WorkbookWriter renders a bundle as one workbook with a sheet per table
type WorkbookWriter struct {
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer
func NewWorkbookWriter(logger *slog.Logger) *WorkbookWriter {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &WorkbookWriter{logger: infrastructure.WithComponent(logger, "workbook_writer")}
}

// WorkbookBytes renders bundle with a default writer
func WorkbookBytes(bundle domain.Bundle) ([]byte, error) {
	return NewWorkbookWriter(nil).Bytes(context.Background(), bundle)
}

// Bytes renders bundle into memory
func (w *WorkbookWriter) Bytes(ctx context.Context, bundle domain.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(ctx, &buf, bundle); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders bundle to out. Each sheet has the index name and column
// names on row 1 and the row labels in column A. Floats are rounded to five
// decimals; null cells stay empty. Column A is 10 wide, every other column
// as wide as its longest rendered value or header.
func (w *WorkbookWriter) Write(ctx context.Context, out io.Writer, bundle domain.Bundle) error {
	if len(bundle) == 0 {
		return apperrors.NewExportError("no tables to export", nil)
	}

	f := excelize.NewFile()
	defer f.Close()

	floatStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr(floatNumFmt)})
	if err != nil {
		return apperrors.NewExportError("create number style", err)
	}

	names := UniqueSheetNames(bundle.Names())
	defaultSheet := f.GetSheetName(0)

	for i, nt := range bundle {
		if nt.Table == nil {
			return apperrors.NewExportError(fmt.Sprintf("table %q is empty", nt.Name), nil)
		}

		sheet := names[i]
		if i == 0 {
			err = f.SetSheetName(defaultSheet, sheet)
		} else {
			_, err = f.NewSheet(sheet)
		}
		if err != nil {
			return apperrors.NewExportError(fmt.Sprintf("create sheet %q", sheet), err)
		}

		if err := writeSheet(f, sheet, nt.Table, floatStyle); err != nil {
			return apperrors.NewExportError(fmt.Sprintf("write sheet %q", sheet), err).
				WithContext("sheet", sheet)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(out); err != nil {
		return apperrors.NewExportError("serialize workbook", err)
	}

	w.logger.DebugContext(ctx, "workbook written",
		slog.Int("sheets", len(bundle)),
		slog.Any("sheet_names", names))
	return nil
}

func writeSheet(f *excelize.File, sheet string, t *domain.Table, floatStyle int) error {
	if err := setCell(f, sheet, 1, 1, t.IndexName); err != nil {
		return err
	}
	for j, col := range t.Columns {
		if err := setCell(f, sheet, j+2, 1, col); err != nil {
			return err
		}
	}

	for i, label := range t.Index {
		row := i + 2
		if err := setCell(f, sheet, 1, row, label); err != nil {
			return err
		}
		for j, v := range t.Rows[i] {
			if !v.Valid {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+2, row)
			if err != nil {
				return err
			}
			if t.FormatOf(j) == domain.FormatInteger {
				err = f.SetCellValue(sheet, cell, int64(math.Round(v.Num)))
			} else {
				err = f.SetCellFloat(sheet, cell, roundFloat(v.Num), FloatDecimals, 64)
			}
			if err != nil {
				return err
			}
		}
	}

	for j, col := range t.Columns {
		name, err := excelize.ColumnNumberToName(j + 2)
		if err != nil {
			return err
		}

		width := textWidth(col)
		for i := range t.Rows {
			width = max(width, textWidth(t.FormatCell(j, t.Rows[i][j])))
		}
		if err := f.SetColWidth(sheet, name, name, clampWidth(width)); err != nil {
			return err
		}

		if t.FormatOf(j) == domain.FormatFloat && len(t.Rows) > 0 {
			top, _ := excelize.CoordinatesToCellName(j+2, 2)
			bottom, _ := excelize.CoordinatesToCellName(j+2, len(t.Rows)+1)
			if err := f.SetCellStyle(sheet, top, bottom, floatStyle); err != nil {
				return err
			}
		}
	}

	return f.SetColWidth(sheet, "A", "A", indexColumnWidth)
}

func setCell(f *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellStr(sheet, cell, value)
}

func ptr[T any](v T) *T {
	return &v
}
