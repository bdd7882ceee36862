// Package http implements the HTTP handlers of the retail sales web service.
// Handlers only parse requests, call the services layer and format responses;
// the pipeline itself lives in internal/services.
//
// # Routes
//
//	GET  /                              server-rendered page (PageHandler)
//	GET  /api/retail/tables             table names in display order
//	GET  /api/retail/view               one table as JSON (ViewModel)
//	GET  /api/retail/export             the workbook
//	GET  /api/retail/tables/{table}/csv one table as CSV
//	POST /api/logs                      browser error reports
//	GET  /api/health, /api/health/live, /api/health/ready, /api/version
//
// The dataset endpoints accept from, to and adjusted; the view endpoints add
// table and view (latest or all). Missing years take the configured defaults
// before validation.
//
// # Error Handling
//
// Every error is rendered as RFC 7807 Problem Details by errors.ErrorHandler:
//
//	{
//	    "type": "/errors/census/upstream",
//	    "title": "Upstream Request Failed",
//	    "status": 502,
//	    "detail": "census api request failed",
//	    "instance": "/api/retail/view",
//	    "upstream_status": 500
//	}
//
// The page renders the same problem title and detail in place of the table.
//
// # Testing
//
// Handlers are tested with httptest against a testify mock of
// RetailServiceInterface.
package http
