// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// Fallback values used when a page yields nothing for a field.
const (
	unknownPriceRange    = "Price information not available"
	unknownLocation      = "Location details not available"
	unknownDuration      = "Duration not specified"
	unknownBestTime      = "Time information not available"
	unknownTransportType = "Transport type not specified"
	unknownSchedule      = "Schedule not available"
	unknownCost          = "Cost information not available"
	unknownCuisine       = "Cuisine type not specified"
	unknownPriceLevel    = "Price level not available"
	unknownOpeningHours  = "Opening hours not available"
)

var (
	pricePattern    = regexp.MustCompile(`(?:[$€£¥]\s?\d[\d,]*(?:\.\d{1,2})?(?:\s?(?:-|–|to)\s?[$€£¥]?\s?\d[\d,]*(?:\.\d{1,2})?)?|\d[\d,]*(?:\.\d{1,2})?\s?(?:USD|EUR|GBP|JPY))`)
	durationPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:-|–|to)?\s*\d*(?:\.\d+)?\s*(?:hours?|hrs?|minutes?|mins?|days?)\b`)
	locatedPattern  = regexp.MustCompile(`(?i)\b(?:located|situated)\s+(?:in|at|on|near)\s+([^.;\n]{3,80})`)
	addressPattern  = regexp.MustCompile(`(?i)\baddress:\s*([^.;\n]{3,80})`)
	bestTimePattern = regexp.MustCompile(`(?i)\bbest time to (?:visit|go)[^.;\n]{0,100}`)
	clockPattern    = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s?(?:am|pm)?\s?(?:-|–|to)\s?\d{1,2}(?::\d{2})?\s?(?:am|pm)?\b`)
	everyPattern    = regexp.MustCompile(`(?i)\bevery\s+\d+\s*(?:-\s*\d+\s*)?(?:minutes?|mins?|hours?)\b`)
	openPattern     = regexp.MustCompile(`(?i)\b(?:open(?:s|ing hours)?|hours)\b[:\s]+[^.;\n]{0,80}\d[^.;\n]{0,40}`)
	bookingPattern  = regexp.MustCompile(`(?i)\b(?:book(?:ing)? (?:in advance|required|recommended|ahead)|reservations? (?:required|recommended|essential)|advance (?:booking|reservation)|pre-?book)\b`)
	priceLevelSigns = regexp.MustCompile(`(?:^|\s)(\${1,4}|€{1,4})(?:\s|$)`)
)

var amenityKeywords = []struct{ needle, name string }{
	{"wifi", "Wi-Fi"},
	{"wi-fi", "Wi-Fi"},
	{"pool", "Pool"},
	{"breakfast", "Breakfast"},
	{"parking", "Parking"},
	{"gym", "Gym"},
	{"fitness", "Gym"},
	{"spa", "Spa"},
	{"air conditioning", "Air conditioning"},
	{"kitchen", "Kitchen"},
	{"restaurant", "Restaurant"},
	{"bar", "Bar"},
	{"airport shuttle", "Airport shuttle"},
	{"pet friendly", "Pet friendly"},
	{"wheelchair", "Wheelchair accessible"},
}

var transportKeywords = []struct{ needle, name string }{
	{"metro", "Metro"},
	{"subway", "Metro"},
	{"underground", "Metro"},
	{"train", "Train"},
	{"rail", "Train"},
	{"tram", "Tram"},
	{"bus", "Bus"},
	{"ferry", "Ferry"},
	{"taxi", "Taxi"},
	{"rideshare", "Rideshare"},
	{"uber", "Rideshare"},
	{"flight", "Flight"},
	{"car rental", "Car rental"},
	{"bike", "Bicycle"},
}

var cuisineKeywords = []string{
	"italian", "french", "japanese", "chinese", "thai", "indian", "mexican",
	"spanish", "portuguese", "greek", "turkish", "korean", "vietnamese",
	"mediterranean", "middle eastern", "seafood", "vegetarian", "vegan",
	"street food", "fusion", "local",
}

// Enrich extracts category-specific fields from page text. It returns
// nil for categories without enrichment fields.
func Enrich(category, text string) *state.Enrichment {
	lower := strings.ToLower(text)
	switch category {
	case state.ClusterAccommodations:
		amenities := matchKeywords(lower, amenityKeywords)
		if amenities == nil {
			amenities = []string{}
		}
		return &state.Enrichment{
			PriceRange: firstMatch(pricePattern, text, unknownPriceRange),
			Amenities:  amenities,
			Location:   extractLocation(text),
		}

	case state.ClusterActivities:
		booking := bookingPattern.MatchString(text)
		return &state.Enrichment{
			Duration:        firstMatch(durationPattern, text, unknownDuration),
			BestTime:        firstMatch(bestTimePattern, text, unknownBestTime),
			BookingRequired: &booking,
		}

	case state.ClusterTransportation:
		transport := unknownTransportType
		if types := matchKeywords(lower, transportKeywords); len(types) > 0 {
			transport = strings.Join(types, ", ")
		}
		schedule := firstMatch(everyPattern, text, "")
		if schedule == "" {
			schedule = firstMatch(clockPattern, text, unknownSchedule)
		}
		return &state.Enrichment{
			TransportType: transport,
			Schedule:      schedule,
			Cost:          firstMatch(pricePattern, text, unknownCost),
		}

	case state.ClusterDining:
		return &state.Enrichment{
			Cuisine:      extractCuisine(lower),
			PriceLevel:   extractPriceLevel(text, lower),
			OpeningHours: firstMatch(openPattern, text, unknownOpeningHours),
		}
	}
	return nil
}

func firstMatch(re *regexp.Regexp, text, fallback string) string {
	if m := strings.TrimSpace(re.FindString(text)); m != "" {
		return m
	}
	return fallback
}

// matchKeywords returns the distinct names whose needle occurs in lower
// as a whole word, in table order.
func matchKeywords(lower string, table []struct{ needle, name string }) []string {
	var out []string
	seen := map[string]bool{}
	for _, k := range table {
		if seen[k.name] || !containsWord(lower, k.needle) {
			continue
		}
		seen[k.name] = true
		out = append(out, k.name)
	}
	return out
}

func containsWord(lower, word string) bool {
	for i := 0; ; {
		j := strings.Index(lower[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || !isWordByte(lower[start-1])) && (end == len(lower) || !isWordByte(lower[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

func extractLocation(text string) string {
	for _, re := range []*regexp.Regexp{addressPattern, locatedPattern} {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return unknownLocation
}

func extractCuisine(lower string) string {
	var found []string
	for _, c := range cuisineKeywords {
		if containsWord(lower, c) {
			found = append(found, strings.ToUpper(c[:1])+c[1:])
		}
	}
	if len(found) == 0 {
		return unknownCuisine
	}
	return strings.Join(found, ", ")
}

func extractPriceLevel(text, lower string) string {
	if m := priceLevelSigns.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	switch {
	case containsWord(lower, "fine dining") || containsWord(lower, "upscale") || containsWord(lower, "expensive"):
		return "Expensive"
	case containsWord(lower, "moderate") || containsWord(lower, "mid-range"):
		return "Moderate"
	case containsWord(lower, "cheap") || containsWord(lower, "budget") || containsWord(lower, "inexpensive"):
		return "Inexpensive"
	}
	return unknownPriceLevel
}
