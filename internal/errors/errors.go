package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// APIError is an error raised at the HTTP boundary, before any domain code
// runs: malformed bodies and query parameters that fail validation.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError names one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the details payload of a validation APIError
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Fields lists the rejected field names in order
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

// String renders the errors as "field: message; field: message"
func (v ValidationErrors) String() string {
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// NewWithDetails creates an APIError carrying a details payload
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// ErrInvalidRequest is returned for bodies that cannot be decoded
var ErrInvalidRequest = &APIError{
	StatusCode: http.StatusBadRequest,
	ErrorCode:  "INVALID_REQUEST",
	Message:    "Invalid request format",
}

// InvalidRequestWithError wraps a decode failure
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ErrValidation rejects a single field
func ErrValidation(field, message string) *APIError {
	return NewValidationErrors([]ValidationError{{Field: field, Message: message}})
}

// NewValidationErrors rejects several fields at once
func NewValidationErrors(fieldErrs []ValidationError) *APIError {
	return NewWithDetails(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Request validation failed",
		ValidationErrors{Errors: fieldErrs},
	)
}

// ValidationDetails returns the field errors carried by err, if any
func ValidationDetails(err error) (ValidationErrors, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ValidationErrors{}, false
	}
	details, ok := apiErr.Details.(ValidationErrors)
	return details, ok
}
