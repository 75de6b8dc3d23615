package ledger

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"roombook/backend/internal/domain"
)

const maxLabelLength = 100

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("civil_date", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("time_of_day", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

// rulePriority orders failures so that a missing field always wins over a
// malformed one, whatever the field order.
var rulePriority = map[string]int{
	"required":    0,
	"max":         1,
	"civil_date":  2,
	"time_of_day": 2,
}

var ruleReason = map[string]string{
	"required":    ReasonMissingField,
	"max":         ReasonTooLong,
	"civil_date":  ReasonInvalidDate,
	"time_of_day": ReasonInvalidTime,
}

func translateValidationErrors(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return err
	}

	first := vErrs[0]
	for _, fe := range vErrs[1:] {
		if rulePriority[fe.Tag()] < rulePriority[first.Tag()] {
			first = fe
		}
	}
	reason, ok := ruleReason[first.Tag()]
	if !ok {
		reason = "invalid value"
	}
	return validationError(first.Field(), reason)
}
