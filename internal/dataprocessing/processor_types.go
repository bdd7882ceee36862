package dataprocessing

import (
	"retailsales/internal/config"
	"retailsales/internal/lookup"
)

// UnmappedPolicy decides what happens to rows whose category code has no
// lookup entry
type UnmappedPolicy string

const (
	// UnmappedDrop drops the rows and reports the codes
	UnmappedDrop UnmappedPolicy = config.UnmappedDrop
	// UnmappedKeep keeps the rows under a column named by the raw code
	UnmappedKeep UnmappedPolicy = config.UnmappedKeep
	// UnmappedFail rejects the whole table
	UnmappedFail UnmappedPolicy = config.UnmappedFail
)

// ReshapeOptions configures Reshape
type ReshapeOptions struct {
	// Adjusted selects the seasonally_adj series, "yes" or "no". Empty means "yes".
	Adjusted string

	// Categories maps codes to labels. Required.
	Categories *lookup.Categories

	// Unmapped defaults to UnmappedDrop
	Unmapped UnmappedPolicy

	// OnReportOnly keeps only categories flagged on_report
	OnReportOnly bool
}

// DefaultReshapeOptions builds options from pipeline configuration
func DefaultReshapeOptions(cfg config.PipelineConfig, categories *lookup.Categories) ReshapeOptions {
	return ReshapeOptions{
		Adjusted:     cfg.Adjusted,
		Categories:   categories,
		Unmapped:     UnmappedPolicy(cfg.Unmapped),
		OnReportOnly: cfg.OnReportOnly,
	}
}

// ReshapeReport summarizes what Reshape kept and dropped
type ReshapeReport struct {
	RowsIn      int      `json:"rows_in"`
	RowsMatched int      `json:"rows_matched"`
	RowsKept    int      `json:"rows_kept"`
	Unmapped    []string `json:"unmapped,omitempty"`
	Columns     int      `json:"columns"`
	Months      int      `json:"months"`
}
