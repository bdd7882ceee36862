package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "retailsales/internal/errors"
)

// FirstMARTSYear is the first year the MARTS series covers
const FirstMARTSYear = 1992

// RequestValidator validates decoded request structs using struct tags
type RequestValidator struct {
	validator *validator.Validate
}

// NewRequestValidator creates a validator that reports JSON field names
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterValidation("martsyear", isMARTSYear)
	v.RegisterValidation("adjusted", isAdjustedSelector)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	return &RequestValidator{validator: v}
}

// ValidateStruct validates a struct and returns an APIError listing every failed field
func (m *RequestValidator) ValidateStruct(v interface{}) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	validationErrors := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		validationErrors = append(validationErrors, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}

	return apierrors.NewValidationErrors(validationErrors)
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "martsyear":
		return fmt.Sprintf("%s must be a year no earlier than %d", field, FirstMARTSYear)
	case "adjusted":
		return fmt.Sprintf("%s must be yes or no", field)
	case "gtefield":
		return fmt.Sprintf("%s must not be earlier than %s", field, strings.ToLower(param))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

func isMARTSYear(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= FirstMARTSYear
}

func isAdjustedSelector(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "yes", "no":
		return true
	}
	return false
}
