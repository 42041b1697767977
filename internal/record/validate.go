package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError names the offending field in the wording the command bridge
// and the HTTP API return to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		validate = v
	})
	return validate
}

// Validate checks the title and description rules.
func Validate(r Record) error {
	return ValidateStruct(r)
}

// ValidateStruct runs the record field rules over any struct tagged with
// "validate" and reports the first violation as a *ValidationError. Request
// payloads use it to reject bad fields before reaching a Store.
func ValidateStruct(v any) error {
	err := recordValidator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("must be at most %s characters", fe.Param())}
	default:
		return &ValidationError{Field: fe.Field(), Reason: "is invalid"}
	}
}
