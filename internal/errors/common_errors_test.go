package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    NewAppValidationError("from year must be at least 1992"),
			wantMessage: "[VALIDATION] from year must be at least 1992",
		},
		{
			name:        "error with cause",
			appError:    NewNetworkError("census request failed", fmt.Errorf("status 500")),
			wantMessage: "[NETWORK] census request failed: status 500",
		},
		{
			name:        "not found",
			appError:    NewNotFoundError("table \"Bogus\""),
			wantMessage: "[NOT_FOUND] table \"Bogus\" not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	sentinel := errors.New("connection reset")
	err := fmt.Errorf("load: %w", NewNetworkError("census request failed", sentinel))

	assert.ErrorIs(t, err, sentinel)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrTypeNetwork, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := &AppError{Type: ErrTypeNetwork, Message: "boom"}
	err.WithContext("upstream_status", 500).WithContext("attempt", 1)

	assert.Equal(t, 500, err.Context["upstream_status"])
	assert.Equal(t, 1, err.Context["attempt"])
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  *AppError
		want ErrorType
	}{
		{NewNetworkError("x", nil), ErrTypeNetwork},
		{NewTimeoutError("x", nil), ErrTypeTimeout},
		{NewParsingError("x", nil), ErrTypeParsing},
		{NewAppValidationError("x"), ErrTypeValidation},
		{NewNotFoundError("x"), ErrTypeNotFound},
		{NewConfigError("x", nil), ErrTypeConfig},
		{NewExportError("x", nil), ErrTypeExport},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Type)
			assert.NotNil(t, tt.err.Context)
			assert.True(t, IsType(fmt.Errorf("wrapped: %w", tt.err), tt.want))
		})
	}

	assert.False(t, IsType(errors.New("plain"), ErrTypeNetwork))
}
