// Package services implements the business logic layer of the retail sales
// application. It sits between the HTTP handlers and the pipeline packages
// so handlers stay thin and every operation is testable without a server.
//
// # Services
//
// RetailService runs the whole pipeline for each request:
//
//	raw, _ := fetcher.Fetch(ctx, query)          // census, usually cached
//	wide, report, _ := dataprocessing.Reshape(raw, opts)
//	bundle := dataprocessing.BuildBundle(wide)
//	data, _ := workbook.Bytes(ctx, bundle)       // Export only
//
// Load, View, Tables, Export and ExportTable share no state between calls
// other than the fetcher's cache. A failure at any step returns an error and
// nothing else; handlers never see half a dataset.
//
// Progress is reported through a census.Notifier (the websocket hub in the
// server, a log line in the CLI) using the same messages the fetcher sends.
//
// HealthService backs the health, readiness, liveness and version endpoints
// and reports cache and hub counters.
//
// # Errors
//
// Errors are *errors.AppError values from the pipeline packages, wrapped with
// the failing step. A missing table is an ErrTypeNotFound AppError wrapping
// ErrTableNotFound so both errors.Is and the HTTP error handler recognise it.
package services
