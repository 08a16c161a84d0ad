package services

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vytor/simclinic/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names so clients see the keys they sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateInput runs struct tag validation and converts failures into a
// field-level VALIDATION_ERROR.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !stderrors.As(err, &ve) {
		return errors.NewBadRequestError(err.Error())
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = describe(fe)
	}
	return errors.NewFieldsValidationError("invalid input", fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " long"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
