package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kmun/registration-service/pkg/util/errorutil"
)

// validate is shared by every service input type.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		}
		return name
	})
	return v
}

// validateInput runs struct validation and merges in extra field problems.
// It returns a ValidationError listing every offending field, or nil.
func validateInput(message string, input any, extra map[string]any) error {
	details := map[string]any{}
	if err := validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errorutil.NewValidationError(message, map[string]any{"input": err.Error()})
		}
		for _, fe := range fieldErrs {
			details[fe.Field()] = describeFieldError(fe)
		}
	}
	for field, problem := range extra {
		details[field] = problem
	}
	if len(details) == 0 {
		return nil
	}
	return errorutil.NewValidationError(message, details)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

// normalizeEmail produces the comparison key used for account lookups.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
