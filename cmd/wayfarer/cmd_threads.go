// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfarer/pkg/ux"
	"github.com/AleutianAI/wayfarer/services/orchestrator/datatypes"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
)

// withStore opens the checkpoint store for the duration of fn. Thread
// commands need no API keys.
func withStore(fn func(store graph.Store) error) error {
	store, closeStore, err := openStore(cfg.Checkpoints, logger())
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()
	return fn(store)
}

func runThreadsList(cmd *cobra.Command, args []string) error {
	return withStore(func(store graph.Store) error {
		ids, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No saved threads.")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	})
}

func runThreadsShow(cmd *cobra.Command, args []string) error {
	return withStore(func(store graph.Store) error {
		cp, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		summary := datatypes.NewThreadSummary(cp, showState)
		if showJSON || showState {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		p := ux.NewPrinter(cmd.OutOrStdout(), plainOutput(cmd.OutOrStdout()))
		p.Title("Thread " + summary.ThreadID)
		p.KeyValue("Status", string(summary.Status))
		p.KeyValue("Step", strconv.Itoa(summary.Step))
		if summary.Next != "" {
			p.KeyValue("Next", summary.Next)
		}
		p.KeyValue("Path", strings.Join(summary.Path, " → "))
		if summary.Error != "" {
			p.KeyValue("Error", summary.Error)
			p.KeyValue("Failed node", summary.FailedNode)
		}
		p.KeyValue("Updated", summary.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	})
}

func runThreadsDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(store graph.Store) error {
		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	})
}
