package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"graphi/backend/internal/domain"
)

// requestValidator checks decoded request bodies against their validate tags.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() (*requestValidator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return domain.ValidCurrency(domain.NormalizeCurrency(fl.Field().String()))
	}); err != nil {
		return nil, fmt.Errorf("register currency validator: %w", err)
	}
	if err := v.RegisterValidation("storetype", func(fl validator.FieldLevel) bool {
		return domain.ValidStoreType(strings.ToLower(strings.TrimSpace(fl.Field().String())))
	}); err != nil {
		return nil, fmt.Errorf("register storetype validator: %w", err)
	}
	if err := v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return domain.ValidCategory(strings.ToLower(strings.TrimSpace(fl.Field().String())))
	}); err != nil {
		return nil, fmt.Errorf("register category validator: %w", err)
	}

	return &requestValidator{v: v}, nil
}

func (rv *requestValidator) Validate(s any) error {
	return rv.v.Struct(s)
}

// fieldErrors flattens validator errors into field -> message pairs.
func fieldErrors(err error) (map[string]string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = validationErrorMessage(fe)
	}
	return out, true
}

func validationErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "currency":
		return "must be a supported ISO 4217 currency code"
	case "storetype":
		return "must be a known store type"
	case "category":
		return "must be a known product category"
	default:
		return "is invalid"
	}
}
