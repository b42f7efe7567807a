package http

import (
	"reflect"
	"strings"

	"loan-lifecycle-bridge/internal/usecase/hashgate"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Reusable error payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
type ErrorResponse struct {
	Error   string       `json:"error"`
	TxRef   string       `json:"transaction_hash,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

type CustomValidator struct {
	v        *validator.Validate
	min, max decimal.Decimal
}

// NewValidator registers the loan request tags. Principals must fall within
// [min, max].
func NewValidator(min, max decimal.Decimal) *CustomValidator {
	v := validator.New()
	cv := &CustomValidator{v: v, min: min, max: max}

	// report json names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// decimals are validated through their string form
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if d, ok := f.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("principal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.LessThan(cv.min) && !d.GreaterThan(cv.max)
	})
	_ = v.RegisterValidation("posdec", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	// 64 hex chars, 0x optional
	_ = v.RegisterValidation("hash32", func(fl validator.FieldLevel) bool {
		_, ok := hashgate.Canonical(fl.Field().String())
		return ok
	})

	return cv
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// Map validator.ValidationErrors → []FieldError with readable messages.
func ToFieldErrors(err error) []FieldError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "principal":
			out = append(out, FieldError{Field: field, Message: "is outside the allowed principal range"})
		case "posdec":
			out = append(out, FieldError{Field: field, Message: "must be a positive amount"})
		case "hash32":
			out = append(out, FieldError{Field: field, Message: "must be 64 hex characters, optionally 0x-prefixed"})
		case "eth_addr":
			out = append(out, FieldError{Field: field, Message: "must be 0x followed by 40 hex characters"})
		case "oneof":
			out = append(out, FieldError{Field: field, Message: "must be one of " + e.Param()})
		case "gte":
			out = append(out, FieldError{Field: field, Message: "must be greater than or equal to " + e.Param()})
		case "lte":
			out = append(out, FieldError{Field: field, Message: "must be less than or equal to " + e.Param()})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}
