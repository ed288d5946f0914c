package fault

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator runs struct-tag validation and reports failures as a
// *ValidationError keyed by the json field name.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out.Fields[field] = field + " is required"
		case "min":
			out.Fields[field] = field + " must be at least " + e.Param()
		case "max":
			out.Fields[field] = field + " must be at most " + e.Param()
		case "gt", "gte":
			out.Fields[field] = field + " must be greater than " + e.Param()
		case "lt", "lte":
			out.Fields[field] = field + " must be at most " + e.Param()
		case "oneof":
			out.Fields[field] = field + " must be one of " + e.Param()
		default:
			out.Fields[field] = field + " is invalid"
		}
	}
	return out
}
