package validator

import (
	"fmt"
	"strings"
	"sync"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterValidation("decimal_gte0", func(fl validator.FieldLevel) bool {
			switch v := fl.Field().Interface().(type) {
			case decimal.Decimal:
				return !v.IsNegative()
			case *decimal.Decimal:
				return v == nil || !v.IsNegative()
			}
			return false
		})
	})
	return validate
}

// ValidateRequest runs struct tag validation and converts failures into a
// validation error carrying the offending fields.
func ValidateRequest(req interface{}) error {
	err := get().Struct(req)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ierr.WithError(err).
			WithHint("Request validation failed").
			Mark(ierr.ErrValidation)
	}

	details := make(map[string]interface{}, len(validationErrs))
	fields := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		details[fe.Field()] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
		fields = append(fields, fe.Field())
	}

	return ierr.WithError(err).
		WithHintf("Invalid value for %s", strings.Join(fields, ", ")).
		WithReportableDetails(details).
		Mark(ierr.ErrValidation)
}
