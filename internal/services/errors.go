package services

import "errors"

// Retail service errors
var (
	// ErrTableNotFound is wrapped in a NOT_FOUND AppError when a view or
	// export names a table the bundle does not contain
	ErrTableNotFound = errors.New("table not found")

	// ErrInvalidViewMode rejects a view mode other than latest or all
	ErrInvalidViewMode = errors.New("invalid view mode")
)
