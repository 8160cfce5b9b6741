// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// Replies and notices of the manual selection exchange.
const (
	msgNoChannel       = "Manual selection needed, trying to cluster again."
	msgRejected        = "No suitable cluster found. Trying to cluster again."
	msgInvalidInput    = "Invalid input. Please enter a valid number."
	msgInvalidChoice   = "Invalid choice. Please enter a number corresponding to the listed clusters or '0' to re-cluster."
	rejectedClusterIdx = -1
)

// ManualSelectNode asks the user which cluster to enrich.
//
// Description:
//
//	Lists the clusters 1-based on the interactive channel and waits for a
//	reply. "0" rejects every cluster (chosen_cluster = -1); a listed
//	number selects that cluster; anything else re-prompts without
//	changing state. Without an interactive channel, or when no reply
//	arrives within the selection timeout, the node rejects instead of
//	blocking. Every message it records is flagged manual-selection so the
//	executor does not relay it as progress.
//
// Thread Safety:
//
//	Safe for concurrent use.
type ManualSelectNode struct {
	graph.BaseNode
	cfg Config
}

func NewManualSelectNode(cfg Config) *ManualSelectNode {
	cfg = cfg.withDefaults()
	return &ManualSelectNode{
		BaseNode: graph.BaseNode{NodeName: NameManualSelect, NodeTimeout: cfg.SelectionTimeout + time.Minute},
		cfg:      cfg,
	}
}

func (n *ManualSelectNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	if !rc.HasInteractiveChannel() {
		return reject(msgNoChannel), nil
	}

	clusters := s.DocumentClusters
	sctx, cancel := context.WithTimeout(ctx, n.cfg.SelectionTimeout)
	defer cancel()

	prompt := SelectionPrompt(clusters)
	for {
		reply, err := rc.Interaction.Ask(sctx, prompt)
		if err != nil {
			return n.askFailed(ctx, sctx, rc, err)
		}

		choice, err := strconv.Atoi(strings.TrimSpace(reply))
		switch {
		case err != nil:
			prompt = msgInvalidInput
		case choice == 0:
			rc.Notify(ctx, msgRejected)
			return reject(msgRejected), nil
		case choice >= 1 && choice <= len(clusters):
			msg := fmt.Sprintf("You selected cluster '%s'.", clusters[choice-1].Category)
			rc.Notify(ctx, msg)
			return state.Update{}.
				WithChosenCluster(state.IntPtr(choice - 1)).
				WithManualMessage(msg), nil
		default:
			prompt = msgInvalidChoice
		}
	}
}

func (n *ManualSelectNode) askFailed(ctx, sctx context.Context, rc graph.RunContext, err error) (state.Update, error) {
	switch {
	case ctx.Err() != nil:
		return state.Update{}, ctx.Err()
	case errors.Is(err, progress.ErrClosed):
		return state.Update{}, err
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("⌛️ No cluster selection received within %s. Trying to cluster again.", n.cfg.SelectionTimeout)
		rc.Notify(ctx, msg)
		return reject(msg), nil
	default:
		logger(rc).Warn("manual cluster selection unavailable",
			slog.String("thread_id", rc.ThreadID),
			slog.String("error", err.Error()))
		return reject(msgNoChannel), nil
	}
}

func reject(msg string) state.Update {
	return state.Update{}.
		WithChosenCluster(state.IntPtr(rejectedClusterIdx)).
		WithManualMessage(msg)
}

// SelectionPrompt lists the clusters for the user.
func SelectionPrompt(clusters []state.Cluster) string {
	var b strings.Builder
	b.WriteString("Multiple clusters were identified. Please review the options and select the cluster that best matches your trip.\n\n")
	for i, c := range clusters {
		fmt.Fprintf(&b, "%d. %s (%d sources)", i+1, c.Category, len(c.URLs))
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nEnter '0' if none of these clusters match your trip.")
	return b.String()
}
