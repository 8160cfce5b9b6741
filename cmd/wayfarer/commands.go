// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfarer/cmd/wayfarer/config"
	"github.com/AleutianAI/wayfarer/pkg/logging"
)

// annotationQuietLogs keeps log lines off stderr for commands that draw
// on the terminal. Logs still reach the log directory.
const annotationQuietLogs = "quiet-logs"

var (
	configPath string
	logLevel   string

	cfg       config.WayfarerConfig
	appLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "wayfarer",
		Short: "Research and plan travel itineraries",
		Long: `Wayfarer researches a destination on the web, clusters what it finds,
and writes a day-by-day itinerary as PDF or Markdown.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfigAndLogger,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the planner over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Planning ---
	planCmd = &cobra.Command{
		Use:         "plan",
		Short:       "Plan an itinerary from a preferences file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationQuietLogs: "true"},
		RunE:        runPlan, // Defined in cmd_plan.go
	}
	resumeCmd = &cobra.Command{
		Use:         "resume [thread_id]",
		Short:       "Resume a saved planning thread",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationQuietLogs: "true"},
		RunE:        runResume, // Defined in cmd_plan.go
	}
	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check a preferences file without planning",
		Args:  cobra.NoArgs,
		RunE:  runValidate, // Defined in cmd_validate.go
	}

	// --- Threads ---
	threadsCmd = &cobra.Command{
		Use:   "threads",
		Short: "Inspect saved planning threads",
	}
	threadsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved thread ids",
		Args:  cobra.NoArgs,
		RunE:  runThreadsList, // Defined in cmd_threads.go
	}
	threadsShowCmd = &cobra.Command{
		Use:   "show [thread_id]",
		Short: "Show a saved thread",
		Args:  cobra.ExactArgs(1),
		RunE:  runThreadsShow,
	}
	threadsDeleteCmd = &cobra.Command{
		Use:   "delete [thread_id]",
		Short: "Delete a saved thread",
		Args:  cobra.ExactArgs(1),
		RunE:  runThreadsDelete,
	}
)

// Flag values.
var (
	prefsPath     string
	outputFormat  string
	threadID      string
	noInteractive bool
	showJSON      bool
	showState     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.wayfarer/wayfarer.yaml or $WAYFARER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	planCmd.Flags().StringVarP(&prefsPath, "prefs", "p", "", "travel preferences JSON file, '-' reads stdin")
	planCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format: pdf or markdown (default output.format)")
	planCmd.Flags().StringVar(&threadID, "thread", "", "thread id to save the run under (default generated)")
	planCmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "never prompt; clustering is retried instead of asking")
	_ = planCmd.MarkFlagRequired("prefs")

	validateCmd.Flags().StringVarP(&prefsPath, "prefs", "p", "", "travel preferences JSON file, '-' reads stdin")
	_ = validateCmd.MarkFlagRequired("prefs")

	resumeCmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "never prompt; clustering is retried instead of asking")

	threadsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print the thread as JSON")
	threadsShowCmd.Flags().BoolVar(&showState, "state", false, "include the research state (implies --json)")

	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsDeleteCmd)
	rootCmd.AddCommand(serveCmd, planCmd, resumeCmd, validateCmd, threadsCmd)
}

func loadConfigAndLogger(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	level, err := logging.ParseLevel(loaded.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	cfg = loaded

	closeLogger()
	appLogger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "wayfarer",
		JSON:    cfg.Logging.JSON,
		Quiet:   cmd.Annotations[annotationQuietLogs] == "true" && level != logging.LevelDebug,
		Stderr:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(appLogger.Slog())
	return nil
}

func closeLogger() {
	if appLogger != nil {
		_ = appLogger.Close()
		appLogger = nil
	}
}

func logger() *slog.Logger {
	if appLogger == nil {
		return slog.Default()
	}
	return appLogger.Slog()
}
