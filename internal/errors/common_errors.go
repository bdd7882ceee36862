package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError. Each type is served as one kind of
// problem response, see problemSpecs.
type ErrorType string

const (
	ErrTypeNetwork    ErrorType = "NETWORK"
	ErrTypeTimeout    ErrorType = "TIMEOUT"
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeExport     ErrorType = "EXPORT"
)

type problemSpec struct {
	status int
	typ    string
	title  string
	// withCause puts the wrapped error in the detail
	withCause bool
}

var problemSpecs = map[ErrorType]problemSpec{
	ErrTypeNetwork:    {http.StatusBadGateway, TypeUpstream, "Upstream Request Failed", false},
	ErrTypeTimeout:    {http.StatusGatewayTimeout, TypeUpstreamTimeout, "Upstream Timeout", false},
	ErrTypeParsing:    {http.StatusUnprocessableEntity, TypeDataShape, "Unexpected Data Shape", true},
	ErrTypeValidation: {http.StatusBadRequest, TypeValidation, "Validation Failed", false},
	ErrTypeNotFound:   {http.StatusNotFound, TypeTableNotFound, "Not Found", false},
	ErrTypeExport:     {http.StatusInternalServerError, TypeExportFailed, "Export Failed", false},
	ErrTypeConfig:     {http.StatusInternalServerError, TypeConfiguration, "Configuration Error", false},
}

// Status is the HTTP status errors of type t are served with
func (t ErrorType) Status() int {
	if spec, ok := problemSpecs[t]; ok {
		return spec.status
	}
	return http.StatusInternalServerError
}

// AppError is a classified failure from the census client, the reshaping
// pipeline or an exporter. Context entries become problem extensions.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches key to the error and returns it for chaining
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError builds an AppError of any type
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause, Context: map[string]interface{}{}}
}

// NewNetworkError reports a Census call that failed or was rejected
func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNetwork, message, cause)
}

// NewTimeoutError reports a Census call that ran out of time
func NewTimeoutError(message string, cause error) *AppError {
	return NewAppError(ErrTypeTimeout, message, cause)
}

// NewParsingError reports data that does not have the expected shape
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewAppValidationError reports a rejected query
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError reports a missing resource, e.g. a table name
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, resource+" not found", nil)
}

// NewConfigError reports unusable configuration or lookup assets
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewExportError reports a failure while writing a workbook or CSV
func NewExportError(message string, cause error) *AppError {
	return NewAppError(ErrTypeExport, message, cause)
}

// IsType reports whether err wraps an AppError of type t
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}
