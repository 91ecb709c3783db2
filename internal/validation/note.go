// Package validation holds the create-note schema.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"notehub/internal/model"
)

// FieldErrors maps a form field name to its first failing rule message.
type FieldErrors map[string]string

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("notetag", func(fl validator.FieldLevel) bool {
			_, err := model.ParseTag(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// ValidateCreate checks p against the create-note schema. An empty result means valid.
func ValidateCreate(p model.CreateNoteParams) FieldErrors {
	errs := FieldErrors{}
	err := instance().Struct(p)
	if err == nil {
		return errs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["form"] = "Invalid form"
		return errs
	}
	for _, fe := range verrs {
		if _, seen := errs[fe.Field()]; seen {
			continue
		}
		errs[fe.Field()] = message(fe)
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "Required"
	case "min":
		return "Min " + fe.Param()
	case "max":
		return "Max " + fe.Param()
	case "notetag":
		names := make([]string, 0, 5)
		for _, t := range model.AllTags() {
			names = append(names, string(t))
		}
		return "Must be one of: " + strings.Join(names, ", ")
	default:
		return "Invalid value"
	}
}
