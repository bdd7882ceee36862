// Package exporter renders tables for download.
//
// WorkbookWriter writes a domain.Bundle as one Excel workbook (excelize),
// one sheet per table, with floats rounded to five decimals, column widths
// sized to content and the index column fixed at 10 characters. Sheet names
// are sanitized with SanitizeSheetName and made unique with UniqueSheetNames.
//
// CSVWriter writes a single table as CSV with an optional UTF-8 BOM for
// Excel compatibility.
//
// Example usage:
//
//	data, err := exporter.WorkbookBytes(bundle)
//	if err != nil {
//	    return err
//	}
//	w.Header().Set("Content-Type", exporter.WorkbookMIME)
package exporter
