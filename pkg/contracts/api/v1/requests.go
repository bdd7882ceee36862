// Package api contains the JSON contracts of the retail sales HTTP API.
// Version v1 represents the current stable API version.
package api

// View modes
const (
	ViewLatest = "latest"
	ViewAll    = "all"
)

// DatasetQuery selects which dataset to build. Zero years are filled with
// server defaults before validation.
type DatasetQuery struct {
	From     int    `json:"from" query:"from" validate:"martsyear"`
	To       int    `json:"to" query:"to" validate:"martsyear,gtefield=From"`
	Adjusted string `json:"adjusted" query:"adjusted" validate:"omitempty,adjusted"`
}

// ViewQuery selects a table and how much of it to show
type ViewQuery struct {
	DatasetQuery
	Table string `json:"table" query:"table" validate:"omitempty,max=64"`
	View  string `json:"view" query:"view" validate:"omitempty,oneof=latest all"`
}

// TablesResponse lists the derived tables in display order
type TablesResponse struct {
	Tables []string `json:"tables"`
}

// HealthResponse is the body of /api/health
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}
