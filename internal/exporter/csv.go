package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	apperrors "retailsales/internal/errors"
	"retailsales/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides single-table CSV export
type CSVWriter struct{}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter() *CSVWriter {
	return &CSVWriter{}
}

// CSVOptions configures CSV writing behavior
type CSVOptions struct {
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteTable writes t as CSV: a header of the index name and column names,
// then one record per row. Cells use the same rendering as the workbook.
func (w *CSVWriter) WriteTable(out io.Writer, t *domain.Table, opts CSVOptions) error {
	if t == nil {
		return apperrors.NewExportError("no table to export", nil)
	}

	if opts.BOMPrefix {
		if _, err := out.Write(utf8BOM); err != nil {
			return apperrors.NewExportError("failed to write BOM", err)
		}
	}

	writer := csv.NewWriter(out)

	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, t.IndexName)
	header = append(header, t.Columns...)
	if err := writer.Write(header); err != nil {
		return apperrors.NewExportError("failed to write headers", err)
	}

	record := make([]string, len(t.Columns)+1)
	for i, label := range t.Index {
		record[0] = label
		for j, v := range t.Rows[i] {
			record[j+1] = t.FormatCell(j, v)
		}
		if err := writer.Write(record); err != nil {
			return apperrors.NewExportError(fmt.Sprintf("failed to write record %d", i), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperrors.NewExportError("failed to flush csv", err)
	}
	return nil
}
