// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// TransportationDetails is one transport segment of a day.
type TransportationDetails struct {
	Type          string    `json:"type"`
	FromLocation  string    `json:"from_location"`
	ToLocation    string    `json:"to_location"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	Cost          float64   `json:"cost"`
	BookingURL    string    `json:"booking_url,omitempty"`
}

// ActivityDetails is one planned activity.
type ActivityDetails struct {
	Name            string       `json:"name"`
	Type            ActivityType `json:"type"`
	Location        string       `json:"location"`
	DurationHours   float64      `json:"duration"`
	Cost            float64      `json:"cost"`
	Description     string       `json:"description"`
	BookingRequired bool         `json:"booking_required"`
	BookingURL      string       `json:"booking_url,omitempty"`
	RecommendedTime string       `json:"recommended_time,omitempty"`
	Indoor          bool         `json:"indoor"`
}

// AccommodationDetails is where the travelers stay.
type AccommodationDetails struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Location     string    `json:"location"`
	CheckIn      time.Time `json:"check_in"`
	CheckOut     time.Time `json:"check_out"`
	CostPerNight float64   `json:"cost_per_night"`
	BookingURL   string    `json:"booking_url"`
	Amenities    []string  `json:"amenities"`
	Rating       *float64  `json:"rating,omitempty"`
}

// DayPlan is the plan for a single day.
type DayPlan struct {
	DayDate        strfmt.Date             `json:"day_date"`
	Accommodation  *AccommodationDetails   `json:"accommodation,omitempty"`
	Activities     []ActivityDetails       `json:"activities"`
	Transportation []TransportationDetails `json:"transportation"`
	TotalCost      float64                 `json:"total_cost"`
	Notes          string                  `json:"notes,omitempty"`
}

var (
	dayHeading   = regexp.MustCompile(`(?i)^#{2,4}\s*(?:\*\*)?day\s+(\d+)\b[\s:.\-–—]*(.*)$`)
	bulletLine   = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s+(.+)$`)
	costPattern  = regexp.MustCompile(`\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)`)
	hoursPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:-\s*\d+(?:\.\d+)?\s*)?(?:hours?|hrs?)\b`)
	timeOfDay    = regexp.MustCompile(`(?i)\b(morning|afternoon|evening|night|sunrise|sunset)\b`)
)

var activityKeywords = []struct {
	kind     ActivityType
	keywords []string
}{
	{ActivityDining, []string{"lunch", "dinner", "breakfast", "restaurant", "cafe", "food", "tasting", "brunch"}},
	{ActivityOutdoor, []string{"hike", "hiking", "beach", "park", "kayak", "bike", "garden", "trail", "boat"}},
	{ActivityCultural, []string{"museum", "gallery", "cathedral", "church", "temple", "palace", "historic"}},
	{ActivityShopping, []string{"market", "shop", "shopping", "boutique", "bazaar"}},
	{ActivityEntertainment, []string{"show", "concert", "theater", "theatre", "club", "bar", "fado"}},
	{ActivityRelaxation, []string{"spa", "relax", "massage", "leisure"}},
}

var outdoorTypes = map[ActivityType]bool{ActivityOutdoor: true}

// ParseDayPlans extracts a day-by-day skeleton from a markdown itinerary.
//
// # Description
//
// Headings of the form "## Day N" (any level 2–4, optional bold and
// trailing title) open a day dated start+(N-1). Bullet and numbered list
// items below a day heading become activities; dollar amounts in an item
// set its cost and contribute to the day total. Days appear in heading
// order; repeated day numbers are merged.
func ParseDayPlans(markdown string, start time.Time) []DayPlan {
	var days []DayPlan
	index := map[int]int{}
	current := -1

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		if m := dayHeading.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				current = -1
				continue
			}
			if i, ok := index[n]; ok {
				current = i
				continue
			}
			days = append(days, DayPlan{
				DayDate:        strfmt.Date(start.AddDate(0, 0, n-1)),
				Activities:     []ActivityDetails{},
				Transportation: []TransportationDetails{},
				Notes:          strings.Trim(strings.TrimSpace(m[2]), "*"),
			})
			current = len(days) - 1
			index[n] = current
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "# ") {
				current = -1
			}
			continue
		}
		if current < 0 {
			continue
		}
		m := bulletLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		act := parseActivity(m[1])
		days[current].Activities = append(days[current].Activities, act)
		days[current].TotalCost += act.Cost
	}
	return days
}

func parseActivity(text string) ActivityDetails {
	plain := strings.ReplaceAll(text, "**", "")
	name := plain
	description := ""
	if i := strings.Index(plain, ":"); i > 0 && i < 80 {
		name = strings.TrimSpace(plain[:i])
		description = strings.TrimSpace(plain[i+1:])
	}

	act := ActivityDetails{
		Name:        name,
		Type:        classifyActivity(plain),
		Description: description,
		Indoor:      true,
	}
	if m := costPattern.FindStringSubmatch(plain); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			act.Cost = v
		}
	}
	if m := hoursPattern.FindStringSubmatch(plain); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			act.DurationHours = v
		}
	}
	if m := timeOfDay.FindStringSubmatch(plain); m != nil {
		act.RecommendedTime = strings.ToLower(m[1])
	}
	lower := strings.ToLower(plain)
	act.BookingRequired = strings.Contains(lower, "book ") || strings.Contains(lower, "reservation") || strings.Contains(lower, "reserve")
	act.Indoor = !outdoorTypes[act.Type]
	return act
}

func classifyActivity(text string) ActivityType {
	lower := strings.ToLower(text)
	for _, group := range activityKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.kind
			}
		}
	}
	return ActivitySightseeing
}
