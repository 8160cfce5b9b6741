// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Messages for the cross-field rules.
const (
	MsgDateOrder   = "Start date must be earlier than the end date."
	MsgBudgetOrder = "Minimum budget must not exceed maximum budget."
)

// prefsValidate is the validator instance for TravelPreferences.
// Initialized in init() with custom validators.
var prefsValidate *validator.Validate

func init() {
	prefsValidate = validator.New()

	// Report fields by their JSON name so diagnostics match the wire format.
	prefsValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = prefsValidate.RegisterValidation("travelstyle", func(fl validator.FieldLevel) bool {
		return TravelStyle(fl.Field().String()).IsValid()
	})
	_ = prefsValidate.RegisterValidation("activitytype", func(fl validator.FieldLevel) bool {
		return ActivityType(fl.Field().String()).IsValid()
	})
	prefsValidate.RegisterStructValidation(preferencesStructLevel, TravelPreferences{})
}

// preferencesStructLevel enforces the rules that span fields.
func preferencesStructLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(TravelPreferences)

	startSet := !p.Start().IsZero()
	endSet := !p.End().IsZero()
	if !startSet {
		sl.ReportError(p.StartDate, "start_date", "StartDate", "required", "")
	}
	if !endSet {
		sl.ReportError(p.EndDate, "end_date", "EndDate", "required", "")
	}
	if startSet && endSet && !p.Start().Before(p.End()) {
		sl.ReportError(p.StartDate, "start_date", "StartDate", "dateorder", "")
	}
	if p.BudgetMin > p.BudgetMax {
		sl.ReportError(p.BudgetMin, "budget_min", "BudgetMin", "budgetorder", "")
	}
}

// FieldViolation describes one failed constraint.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in a request.
type ValidationError struct {
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "invalid travel preferences: " + strings.Join(parts, "; ")
}

// Validate checks every constraint on p.
//
// # Outputs
//
//   - error: nil when valid, otherwise a *ValidationError listing every
//     violated field.
func (p *TravelPreferences) Validate() error {
	err := prefsValidate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating preferences: %w", err)
	}
	out := &ValidationError{Violations: make([]FieldViolation, 0, len(verrs))}
	for _, fe := range verrs {
		out.Violations = append(out.Violations, FieldViolation{
			Field:   fieldPath(fe),
			Rule:    fe.Tag(),
			Message: violationMessage(fe),
		})
	}
	return out
}

// DecodePreferences decodes and validates a preferences document.
func DecodePreferences(data []byte) (TravelPreferences, error) {
	var p TravelPreferences
	if err := json.Unmarshal(data, &p); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return p, verr
		}
		return p, decodeError(err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "travelstyle":
		return "must be one of: " + joinStyles()
	case "activitytype":
		return "must be one of: " + joinActivities()
	case "dateorder":
		return MsgDateOrder
	case "budgetorder":
		return MsgBudgetOrder
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// decodeError maps JSON decoding failures onto a ValidationError.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return &ValidationError{Violations: []FieldViolation{{
			Field:   field,
			Rule:    "type",
			Message: fmt.Sprintf("expected %s", typeErr.Type),
		}}}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ValidationError{Violations: []FieldViolation{{
			Field:   "body",
			Rule:    "json",
			Message: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset),
		}}}
	}
	return err
}

func joinStyles() string {
	out := make([]string, len(TravelStyles))
	for i, s := range TravelStyles {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

func joinActivities() string {
	out := make([]string, len(ActivityTypes))
	for i, a := range ActivityTypes {
		out[i] = string(a)
	}
	return strings.Join(out, ", ")
}
