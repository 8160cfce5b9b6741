// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/wayfarer/services/orchestrator/datatypes"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// maxPreferencesBytes bounds request bodies and first websocket frames.
const maxPreferencesBytes = 64 * 1024

// decodeStart parses a plan request: the envelope fields and the
// preferences that sit next to them.
func decodeStart(data []byte) (datatypes.StartFrame, state.TravelPreferences, state.OutputFormat, error) {
	var frame datatypes.StartFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		_, perr := state.DecodePreferences(data)
		var prefsErr *state.ValidationError
		if errors.As(perr, &prefsErr) && !errors.As(err, new(*json.UnmarshalTypeError)) {
			// Syntax errors are already described by the preferences decoder.
			return frame, state.TravelPreferences{}, "", prefsErr
		}
		out := &state.ValidationError{Violations: []state.FieldViolation{{
			Field:   "body",
			Rule:    "type",
			Message: err.Error(),
		}}}
		if prefsErr != nil {
			out.Violations = append(out.Violations, prefsErr.Violations...)
		}
		return frame, state.TravelPreferences{}, "", out
	}
	if frame.IsResume() {
		return frame, state.TravelPreferences{}, "", nil
	}

	prefs, err := state.DecodePreferences(data)
	format, ferr := state.ParseOutputFormat(frame.OutputFormat)
	if ferr == nil {
		return frame, prefs, format, err
	}

	var formatErr, prefsErr *state.ValidationError
	if !errors.As(ferr, &formatErr) {
		return frame, prefs, "", ferr
	}
	if errors.As(err, &prefsErr) {
		prefsErr.Violations = append(prefsErr.Violations, formatErr.Violations...)
		return frame, prefs, "", prefsErr
	}
	if err != nil {
		return frame, prefs, "", err
	}
	return frame, prefs, "", formatErr
}

// ValidatePreferences checks a preferences document without planning.
//
// Responds 200 with the trip summary when valid, 422 with every field
// violation otherwise.
func ValidatePreferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPreferencesBytes))
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		_, prefs, format, err := decodeStart(body)
		if err != nil {
			var verr *state.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusUnprocessableEntity, datatypes.ValidationResponse{
					Valid:      false,
					Violations: verr.Violations,
				})
				return
			}
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.ValidationResponse{
			Valid:        true,
			Summary:      prefs.Summary(),
			TripDays:     prefs.TripDays(),
			OutputFormat: format,
		})
	}
}
