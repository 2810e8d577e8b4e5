package billing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Auto-recharge bounds in cents, inclusive.
const (
	MinAmountCents  int64 = 500
	MaxAmountCents  int64 = 50000
	MinTriggerCents int64 = 100
	MaxTriggerCents int64 = 10000
)

var patchValidator = newPatchValidator()

func newPatchValidator() *validator.Validate {
	v := validator.New()
	// Report violations under the JSON names clients send.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks every field present in the patch. It returns a
// *ValidationError listing all violations, or nil.
func (p PartialConfig) Validate() error {
	var violations []FieldViolation

	if err := patchValidator.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			violations = append(violations, violationFor(fe.Field(), fe.Tag(), fe.Param()))
		}
	}

	// The cap has no relation to amount or trigger; only its sign is checked.
	if p.MonthlyCapCents.Set && p.MonthlyCapCents.Value != nil && *p.MonthlyCapCents.Value < 0 {
		violations = append(violations, violationFor("capCentsOrNull", "min", "0"))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func violationFor(field, rule, bound string) FieldViolation {
	var msg string
	switch rule {
	case "min":
		msg = fmt.Sprintf("%s must be at least %s", field, bound)
	case "max":
		msg = fmt.Sprintf("%s must be at most %s", field, bound)
	default:
		msg = fmt.Sprintf("%s failed %s %s", field, rule, bound)
	}
	return FieldViolation{Field: field, Rule: rule, Bound: bound, Message: msg}
}

// ApplyUpdate validates patch and merges it into current. A patch with any
// invalid field is rejected as a whole; fields absent from the patch keep
// their current value.
func ApplyUpdate(current AutoRechargeConfig, patch PartialConfig) (AutoRechargeConfig, error) {
	if err := patch.Validate(); err != nil {
		return AutoRechargeConfig{}, err
	}

	next := current
	if current.MonthlyCapCents != nil {
		v := *current.MonthlyCapCents
		next.MonthlyCapCents = &v
	}
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	if patch.AmountCents != nil {
		next.AmountCents = *patch.AmountCents
	}
	if patch.TriggerCents != nil {
		next.TriggerCents = *patch.TriggerCents
	}
	if patch.MonthlyCapCents.Set {
		if patch.MonthlyCapCents.Value == nil {
			next.MonthlyCapCents = nil
		} else {
			v := *patch.MonthlyCapCents.Value
			next.MonthlyCapCents = &v
		}
	}
	return next, nil
}
