package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// NewValidator returns a validator that reports json field names and
// understands decimal.Decimal numeric tags such as gte=0.
func NewValidator() *validator.Validate {
	v := validator.New()
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
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", ErrBadRequest)
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return NewValidationError(typeErr.Field, fmt.Sprintf("The %s field has an invalid type.", typeErr.Field))
		}
		return fmt.Errorf("%w: malformed JSON", ErrBadRequest)
	}
	return nil
}

// Bind decodes the JSON body into target and validates it.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return Validate(v, target)
}

// Validate runs struct validation and converts failures into a ValidationError.
func Validate(v *validator.Validate, target any) error {
	err := v.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe), message(fe))
	}
	return verr
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required", "required_without", "required_with":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "uuid", "uuid4":
		return fmt.Sprintf("The %s must be a valid identifier.", field)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s.", field, fe.Param())
	case "gte":
		return fmt.Sprintf("The %s must be greater than or equal to %s.", field, fe.Param())
	case "gtfield", "gtefield":
		return fmt.Sprintf("The %s must be after %s.", field, strings.ToLower(fe.Param()))
	case "datetime":
		return fmt.Sprintf("The %s does not match the format %s.", field, fe.Param())
	case "excluded_with":
		return fmt.Sprintf("The %s field cannot be combined with %s.", field, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("The %s is invalid.", field)
	}
}
