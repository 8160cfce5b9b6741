// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfarer/pkg/ux"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := readPreferences(cmd, prefsPath)
	if err != nil {
		return err
	}
	printer := ux.NewPrinter(cmd.OutOrStdout(), plainOutput(cmd.OutOrStdout()))

	prefs, err := state.DecodePreferences(data)
	var verr *state.ValidationError
	switch {
	case errors.As(err, &verr):
		printer.Title("Preferences are invalid")
		for _, v := range verr.Violations {
			printer.KeyValue(v.Field, v.Message)
		}
		return fmt.Errorf("%d violation(s) in %s", len(verr.Violations), prefsPath)
	case err != nil:
		return err
	}

	printer.Title("Preferences are valid")
	printer.Summary(prefs.Summary())
	printer.KeyValue("Trip days", strconv.Itoa(prefs.TripDays()))
	return nil
}
