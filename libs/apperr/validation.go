package apperr

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

var tagMessages = map[string]string{
	"required": "es obligatorio",
	"email":    "debe ser un correo electrónico válido",
	"uuid":     "debe ser un identificador válido",
	"min":      "debe tener al menos %s",
	"max":      "no puede superar %s",
	"gte":      "debe ser mayor o igual que %s",
	"lte":      "debe ser menor o igual que %s",
	"gt":       "debe ser mayor que %s",
	"oneof":    "debe ser uno de: %s",
	"clock":    "debe tener el formato HH:MM",
	"isodate":  "debe tener el formato AAAA-MM-DD",
	"url":      "debe ser una URL válida",
	"numeric":  "debe ser numérico",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.DateOnly, fl.Field().String())
		return err == nil
	})
	return v
}

// ValidateStruct runs the struct's `validate` tags and returns a validation
// *Error with one Spanish message per offending field, or nil.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Internal(err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = fieldMessage(fe)
	}
	first := verrs[0]
	return Validation(first.Field()+" "+fieldMessage(first), fields).Wrap(err)
}

func fieldMessage(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return "no es válido"
	}
	if strings.Contains(msg, "%s") {
		param := fe.Param()
		if fe.Tag() == "oneof" {
			param = strings.Join(strings.Fields(param), ", ")
		}
		msg = strings.Replace(msg, "%s", param, 1)
	}
	return msg
}
