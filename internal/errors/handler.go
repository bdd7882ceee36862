package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Generic problem types (RFC 7807)
const (
	TypeValidation = "/errors/validation"
	TypeNotFound   = "/errors/not-found"
	TypeRateLimit  = "/errors/rate-limit"
	TypeInternal   = "/errors/internal"
	TypeTimeout    = "/errors/timeout"
	TypeMethod     = "/errors/method-not-allowed"
)

// Retail problem types
const (
	TypeUpstream        = "/errors/census/upstream"
	TypeUpstreamTimeout = "/errors/census/timeout"
	TypeDataShape       = "/errors/data/unexpected-shape"
	TypeTableNotFound   = "/errors/data/table-not-found"
	TypeExportFailed    = "/errors/export/failed"
	TypeConfiguration   = "/errors/configuration"
)

// ErrorHandler renders errors as problem+json and logs them once
type ErrorHandler struct {
	logger  *slog.Logger
	verbose bool
}

// NewErrorHandler creates an ErrorHandler. When verbose is set, problems
// carry the full error chain in a "cause" extension.
func NewErrorHandler(logger *slog.Logger, verbose bool) *ErrorHandler {
	return &ErrorHandler{
		logger:  logger.With(slog.String("component", "error_handler")),
		verbose: verbose,
	}
}

// HandleError logs err and writes it as a problem response. Client errors
// log at warn, server and upstream errors at error.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("problem", problem.Type),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	if h.verbose {
		problem.WithExtension("cause", err.Error())
	}
	render.Render(w, r, problem)
}

// ErrorToProblem maps err onto a problem without writing it. The page
// handler uses it to show the same message inline.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var (
		apiErr  *APIError
		appErr  *AppError
		problem *ProblemDetails
	)

	switch {
	case errors.As(err, &apiErr):
		problem = apiErrorProblem(apiErr, r.URL.Path)
	case errors.As(err, &appErr):
		problem = appErrorProblem(appErr, r.URL.Path)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		problem = NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", r.URL.Path)
	default:
		problem = NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
			"An unexpected error occurred while processing your request", r.URL.Path)
	}

	return problem.WithExtension("trace_id", middleware.GetReqID(r.Context()))
}

func appErrorProblem(appErr *AppError, instance string) *ProblemDetails {
	spec, ok := problemSpecs[appErr.Type]
	if !ok {
		spec = problemSpec{http.StatusInternalServerError, TypeInternal, "Internal Server Error", false}
	}

	detail := appErr.Message
	if spec.withCause {
		detail = appErr.Error()
	}

	problem := NewProblemDetails(spec.status, spec.typ, spec.title, detail, instance).
		WithExtension("error_type", string(appErr.Type))
	for k, v := range appErr.Context {
		problem.WithExtension(k, v)
	}
	return problem
}

func apiErrorProblem(apiErr *APIError, instance string) *ProblemDetails {
	typ := TypeInternal
	if apiErr.StatusCode == http.StatusBadRequest {
		typ = TypeValidation
	}

	problem := NewProblemDetails(apiErr.StatusCode, typ, http.StatusText(apiErr.StatusCode), apiErr.Message, instance).
		WithExtension("error_code", apiErr.ErrorCode)
	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// NotFound is the router's 404 handler
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())))
}

// MethodNotAllowed is the router's 405 handler
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeMethod, "Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method), r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())))
}
