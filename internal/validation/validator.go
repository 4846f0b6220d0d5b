package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
)

// New returns a validator that reports fields by their JSON names and
// rejects checkout amounts below minAmount minor units of currency.
func New(minAmount int64, currency string) *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	minMsg := MinimumAmountMessage(minAmount, currency)
	v.RegisterStructValidation(func(sl validatorv10.StructLevel) {
		req := sl.Current().Interface().(CreateCheckoutRequest)
		// zero is already reported by "required"
		if req.Amount != 0 && req.Amount < minAmount {
			sl.ReportError(req.Amount, "amount", "Amount", "min_amount", minMsg)
		}
	}, CreateCheckoutRequest{})

	return v
}

// MinimumAmountMessage renders e.g. "Minimum gift amount is $2.00 CAD".
func MinimumAmountMessage(minAmount int64, currency string) string {
	return fmt.Sprintf("Minimum gift amount is $%d.%02d %s", minAmount/100, minAmount%100, strings.ToUpper(currency))
}

// Error lists the fields that failed validation. It matches
// apperrors.ErrInvalidInput.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	if msg, ok := e.Fields["amount"]; ok && len(e.Fields) == 1 {
		return msg
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error { return apperrors.ErrInvalidInput }

// Check validates req and returns an *Error describing every failed field.
func Check(v *validatorv10.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &Error{Fields: fields}
}

func fieldMessage(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min_amount":
		return fe.Param()
	default:
		return fe.Error()
	}
}
