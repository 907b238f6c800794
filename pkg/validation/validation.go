package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	dErrors "stampgate/pkg/domain-errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("semver_version", func(fl validator.FieldLevel) bool {
		_, err := semver.NewVersion(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks req's validate tags and reports the first violation as a
// CodeValidation domain error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// messages maps validator tags to a message template; %[1]s is the JSON
// field path and %[2]s the tag parameter.
var messages = map[string]string{
	"required":       "%[1]s is required",
	"min":            "%[1]s must have at least %[2]s entries",
	"max":            "%[1]s must be at most %[2]s",
	"notblank":       "%[1]s must not be blank",
	"eth_addr":       "%[1]s must be a 0x-prefixed EVM address",
	"semver_version": "%[1]s must be a semantic version",
}

// ErrorMessage renders the first field error of a validator failure.
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}

	fe := fieldErrs[0]
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}
	if field == "" {
		return "invalid request body"
	}
	if tmpl, ok := messages[fe.ActualTag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return field + " is invalid"
}
