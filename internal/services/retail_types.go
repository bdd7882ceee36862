package services

import (
	"retailsales/internal/dataprocessing"
	"retailsales/pkg/contracts/domain"
)

// ViewMode selects how much of a table a view returns
type ViewMode string

const (
	// ViewLatest returns the most recent row only
	ViewLatest ViewMode = "latest"
	// ViewAll returns every row
	ViewAll ViewMode = "all"
)

// Status messages emitted while a dataset is built
const (
	MsgTransformStarted  = "Transforming and pivoting data..."
	MsgTransformComplete = "Data transformation complete."
	MsgUnmappedPrefix    = "Dropped rows for unmapped category codes: "
)

// LoadRequest selects the dataset to build. Zero years take the configured
// defaults, an empty APIKey the configured key and an empty Adjusted the
// pipeline default.
type LoadRequest struct {
	APIKey   string
	From     int
	To       int
	Adjusted string
}

// ViewRequest selects one table of a dataset and how much of it to show
type ViewRequest struct {
	LoadRequest
	Table string
	Mode  ViewMode
}

// Dataset is everything derived from one fetch
type Dataset struct {
	From     int
	To       int
	Adjusted string
	Wide     *domain.Table
	Bundle   domain.Bundle
	Report   *dataprocessing.ReshapeReport
	Notices  []string
}

// ViewModel is what the page and the JSON view endpoint render
type ViewModel struct {
	Tables   []string          `json:"tables"`
	Selected string            `json:"selected"`
	Mode     ViewMode          `json:"mode"`
	Table    *domain.Table     `json:"table"`
	// Labels maps column names to the long category description
	Labels   map[string]string `json:"labels,omitempty"`
	Unmapped []string          `json:"unmapped,omitempty"`
	Notices  []string          `json:"notices,omitempty"`
	From     int               `json:"from"`
	To       int               `json:"to"`
	Adjusted string            `json:"adjusted"`
}

// Download is a rendered file ready to be served
type Download struct {
	Name string
	MIME string
	Data []byte
}
