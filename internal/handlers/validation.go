package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Global validator instance (reused across all handlers)
var validate = validator.New()

// ValidateRequest validates a request DTO and returns a user-friendly error
// naming the first failing field. The DTOs here carry only optional identity
// signals and a solution string, so length caps are the main concern: an
// oversized account or fingerprint would bloat identity keys in storage.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
		fe := ve[0]
		return fmt.Errorf("validation failed: %s: %s", fe.Field(), formatValidationError(fe))
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
