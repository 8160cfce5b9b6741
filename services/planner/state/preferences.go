// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// =============================================================================
// Enumerations
// =============================================================================

// TravelStyle is the traveler's preferred style of trip.
type TravelStyle string

const (
	StyleLuxury     TravelStyle = "luxury"
	StyleBudget     TravelStyle = "budget"
	StyleAdventure  TravelStyle = "adventure"
	StyleFamily     TravelStyle = "family"
	StyleBusiness   TravelStyle = "business"
	StyleCultural   TravelStyle = "cultural"
	StyleRelaxation TravelStyle = "relaxation"
)

// TravelStyles lists every valid TravelStyle in declaration order.
var TravelStyles = []TravelStyle{
	StyleLuxury, StyleBudget, StyleAdventure, StyleFamily,
	StyleBusiness, StyleCultural, StyleRelaxation,
}

// IsValid reports whether s is a known style.
func (s TravelStyle) IsValid() bool {
	for _, v := range TravelStyles {
		if s == v {
			return true
		}
	}
	return false
}

// ActivityType is a category of activity the traveler enjoys.
type ActivityType string

const (
	ActivitySightseeing   ActivityType = "sightseeing"
	ActivityOutdoor       ActivityType = "outdoor"
	ActivityCultural      ActivityType = "cultural"
	ActivityDining        ActivityType = "dining"
	ActivityShopping      ActivityType = "shopping"
	ActivityEntertainment ActivityType = "entertainment"
	ActivityRelaxation    ActivityType = "relaxation"
)

// ActivityTypes lists every valid ActivityType in declaration order.
var ActivityTypes = []ActivityType{
	ActivitySightseeing, ActivityOutdoor, ActivityCultural, ActivityDining,
	ActivityShopping, ActivityEntertainment, ActivityRelaxation,
}

// IsValid reports whether a is a known activity type.
func (a ActivityType) IsValid() bool {
	for _, v := range ActivityTypes {
		if a == v {
			return true
		}
	}
	return false
}

// =============================================================================
// TravelPreferences
// =============================================================================

// TravelPreferences is the immutable input to a planning run.
//
// # Description
//
// Decoded from the client's first message. Dates use the YYYY-MM-DD wire
// format. Decoding applies defaults (one traveler, English) and collapses
// duplicate activities; Validate enforces every constraint and must pass
// before a run starts.
type TravelPreferences struct {
	Destination               string         `json:"destination" validate:"required,max=200"`
	AdditionalDestinations    []string       `json:"additional_destinations" validate:"dive,required"`
	StartDate                 strfmt.Date    `json:"start_date" validate:"-"`
	EndDate                   strfmt.Date    `json:"end_date" validate:"-"`
	BudgetMin                 float64        `json:"budget_min" validate:"gte=0"`
	BudgetMax                 float64        `json:"budget_max" validate:"gte=0"`
	TravelStyle               TravelStyle    `json:"travel_style" validate:"required,travelstyle"`
	PreferredActivities       []ActivityType `json:"preferred_activities" validate:"required,min=1,dive,activitytype"`
	AccessibilityRequirements string         `json:"accessibility_requirements,omitempty"`
	DietaryRestrictions       []string       `json:"dietary_restrictions"`
	NumberOfTravelers         int            `json:"number_of_travelers" validate:"gte=1"`
	PreferredLanguages        []string       `json:"preferred_languages"`
}

// UnmarshalJSON decodes preferences and applies defaults.
//
// Malformed dates are reported as a *ValidationError so the client sees
// the same diagnostics as for constraint violations.
func (p *TravelPreferences) UnmarshalJSON(data []byte) error {
	type alias TravelPreferences
	aux := struct {
		*alias
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}{alias: (*alias)(p)}

	p.NumberOfTravelers = 1
	if err := json.Unmarshal(data, &aux); err != nil {
		return decodeError(err)
	}

	var violations []FieldViolation
	if v := parseDate(&p.StartDate, "start_date", aux.StartDate); v != nil {
		violations = append(violations, *v)
	}
	if v := parseDate(&p.EndDate, "end_date", aux.EndDate); v != nil {
		violations = append(violations, *v)
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	p.applyDefaults()
	return nil
}

func parseDate(dst *strfmt.Date, field, raw string) *FieldViolation {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*dst = strfmt.Date{}
		return nil
	}
	if err := dst.UnmarshalText([]byte(raw)); err != nil {
		return &FieldViolation{Field: field, Rule: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw)}
	}
	return nil
}

func (p *TravelPreferences) applyDefaults() {
	if p.DietaryRestrictions == nil {
		p.DietaryRestrictions = []string{}
	}
	if p.AdditionalDestinations == nil {
		p.AdditionalDestinations = []string{}
	}
	if len(p.PreferredLanguages) == 0 {
		p.PreferredLanguages = []string{"English"}
	}
	if len(p.PreferredActivities) > 1 {
		seen := make(map[ActivityType]struct{}, len(p.PreferredActivities))
		unique := p.PreferredActivities[:0]
		for _, a := range p.PreferredActivities {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			unique = append(unique, a)
		}
		p.PreferredActivities = unique
	}
}

// Start returns the start date as a time.Time (UTC midnight).
func (p TravelPreferences) Start() time.Time { return time.Time(p.StartDate) }

// End returns the end date as a time.Time (UTC midnight).
func (p TravelPreferences) End() time.Time { return time.Time(p.EndDate) }

// TripDays returns the inclusive trip length in days.
func (p TravelPreferences) TripDays() int {
	return int(p.End().Sub(p.Start()).Hours()/24) + 1
}

// ActivityNames returns the preferred activities as strings.
func (p TravelPreferences) ActivityNames() []string {
	out := make([]string, len(p.PreferredActivities))
	for i, a := range p.PreferredActivities {
		out[i] = string(a)
	}
	return out
}

// Summary renders a short human-readable description of the trip.
func (p TravelPreferences) Summary() string {
	return fmt.Sprintf(
		"Destination: %s\nDates: %s to %s\nBudget: $%s - $%s\nStyle: %s\nActivities: %s\nTravelers: %d\nLanguages: %s",
		p.Destination,
		p.StartDate, p.EndDate,
		FormatAmount(p.BudgetMin), FormatAmount(p.BudgetMax),
		p.TravelStyle,
		strings.Join(p.ActivityNames(), ", "),
		p.NumberOfTravelers,
		strings.Join(p.PreferredLanguages, ", "),
	)
}

// FormatAmount renders a currency amount without trailing zeros.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
