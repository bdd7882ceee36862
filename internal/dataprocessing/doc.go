// Package dataprocessing turns the raw MARTS rows into the tables a user
// previews and exports.
//
// # Pipeline
//
//	RawTable → Reshape → wide table → BuildBundle → Bundle
//
// Reshape filters to monthly sales (SM) of one seasonal adjustment, maps
// category codes to short labels and pivots to one row per month and one
// column per category. BuildBundle derives the percent-change and change
// tables at lags of 1, 3 and 12 months and an OHLC summary per lag.
//
// Every function here is pure: inputs are never modified and the same input
// always yields the same tables.
//
// # Errors
//
// Data-shape problems (missing header fields, non-integer values, malformed
// periods, duplicate month/category pairs) are returned as PARSING
// AppErrors so the HTTP layer can answer 422.
package dataprocessing
