package handler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/xenking/storefront/internal/domain/fault"
)

var errInvalidField = errors.New("invalid request field")

// newValidator returns a validator that reports JSON field names and checks
// the cross-field rules of the request bodies.
func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// coordinates need both halves or none.
	v.RegisterStructValidation(coordinatesStructValidation, coordinatesRequest{})

	return v
}

func coordinatesStructValidation(sl validatorv10.StructLevel) {
	c := sl.Current().Interface().(coordinatesRequest)
	if (c.Lat == nil) != (c.Lng == nil) {
		sl.ReportError(c.Lat, "coordinates", "Lat", "lat_lng_pair", "")
	}
}

// check validates req and converts the first violation into an InvalidInput
// failure.
func (h *Handler) check(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return errors.Wrap(err, "validate request")
	}
	return fault.New(fault.InvalidInput, errInvalidField, "%s", fieldMessage(ve[0]))
}

func fieldMessage(fe validatorv10.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field %s is required.", field)
	case "email":
		return fmt.Sprintf("Field %s must be a valid email address.", field)
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Field %s must have at most %s entries.", field, fe.Param())
		}
		return fmt.Sprintf("Field %s must be at most %s characters long.", field, fe.Param())
	case "min":
		return fmt.Sprintf("Field %s must be at least %s.", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("Field %s must be a UUID.", field)
	case "lat_lng_pair":
		return "Coordinates need both lat and lng."
	default:
		return fmt.Sprintf("Field %s is invalid.", field)
	}
}
