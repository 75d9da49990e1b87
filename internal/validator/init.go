package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"ctchen222/blog-web-api/internal/api/models"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	// Initialize validation
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire name, e.g. "newPassword" instead of "NewPassword".
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

func GetValidator() *validator.Validate {
	return validate
}

// Check validates a request struct. Absent required fields take precedence
// over length violations, so any missing field yields ErrMissingArgument.
func Check(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return models.NewError(models.ErrMissingArgument, fmt.Sprintf("Missing '%s' argument.", fe.Field()))
		}
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "min", "max":
		if lo, hi, ok := lengthBounds(req, fe.StructField()); ok {
			return models.NewError(models.ErrValidation, fmt.Sprintf("'%s' needs to be between %s and %s characters.", fe.Field(), lo, hi))
		}
		if fe.Tag() == "min" {
			return models.NewError(models.ErrValidation, fmt.Sprintf("'%s' needs to be at least %s characters.", fe.Field(), fe.Param()))
		}
		return models.NewError(models.ErrValidation, fmt.Sprintf("'%s' needs to be at most %s characters.", fe.Field(), fe.Param()))
	default:
		return models.NewError(models.ErrValidation, fmt.Sprintf("Invalid '%s' argument.", fe.Field()))
	}
}

// lengthBounds reads the min and max params of field's validate tag.
func lengthBounds(req any, field string) (lo, hi string, ok bool) {
	t := reflect.TypeOf(req)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", "", false
	}
	sf, found := t.FieldByName(field)
	if !found {
		return "", "", false
	}

	for _, rule := range strings.Split(sf.Tag.Get("validate"), ",") {
		name, param, _ := strings.Cut(rule, "=")
		switch name {
		case "min":
			lo = param
		case "max":
			hi = param
		}
	}
	return lo, hi, lo != "" && hi != ""
}
