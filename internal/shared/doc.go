// Package shared holds helpers used across packages that do not belong to a
// single domain layer.
//
// The testutil subpackage provides an in-memory slog handler for asserting on
// log output and fixtures that build Census MARTS responses:
//
//	raw := testutil.NewRawTable(testutil.SalesSeries(t, "44X72", "2024-01", 503000, 512000)...)
//	body := testutil.CensusJSON(t, raw)
package shared
