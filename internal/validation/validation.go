// Package validation checks request structs and reports failures as
// domain validation errors.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nfrund/hackchat/internal/domain"
)

// Validator wraps go-playground/validator. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator that names fields by their json tag.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates s. The first failing field is returned as a
// domain.ErrValidation error attributed to op.
func (v *Validator) Struct(op string, s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.Validation(op, "", err.Error())
	}
	fe := fieldErrs[0]
	return domain.Validation(op, fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "max":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}
