package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dvtools/dv-hooks/internal/domain/policy"
)

// hookTimestampLayout is the local wall-clock format spec.md mandates for
// token expiry and freeze-window bounds.
const hookTimestampLayout = "2006-01-02 15:04:05"

// RegisterCustomValidators wires the policy-specific validation rules into
// a validator instance, mirroring the teacher's RegisterCustomValidators.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("hooktimestamp", validateHookTimestamp); err != nil {
		return fmt.Errorf("register hooktimestamp validator: %w", err)
	}
	return nil
}

// validateHookTimestamp checks the "YYYY-MM-DD HH:MM:SS" local format.
func validateHookTimestamp(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := time.ParseInLocation(hookTimestampLayout, s, time.Local)
	return err == nil
}

// ParseHookTimestamp parses a policy timestamp field as local wall-clock
// time. Callers that already validated the policy can ignore the error.
func ParseHookTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(hookTimestampLayout, s, time.Local)
}

// Validate runs struct-tag validation plus the cross-field checks spec.md
// §4.1 requires (every token's sha256 is 64 hex chars; expires, when
// present, parses as the local wall-clock format).
func Validate(p *policy.Policy) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(p); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, e.Param())
	case "hexadecimal":
		return fmt.Sprintf("%s must be a hexadecimal string", field)
	case "hooktimestamp":
		return fmt.Sprintf("%s must match the format %q", field, hookTimestampLayout)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
