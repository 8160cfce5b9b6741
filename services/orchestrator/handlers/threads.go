// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/wayfarer/services/orchestrator/datatypes"
)

// ListThreads returns the ids of saved threads.
func ListThreads(planner Planner) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := planner.Threads(c.Request.Context())
		if err != nil {
			slog.Error("failed to list threads", "error", err)
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.ThreadList{Threads: ids})
	}
}

// GetThread returns the checkpoint summary of a thread. The research
// state is included unless the query has state=false.
func GetThread(planner Planner) gin.HandlerFunc {
	return func(c *gin.Context) {
		threadID := c.Param("threadId")
		cp, err := planner.Thread(c.Request.Context(), threadID)
		if err != nil {
			abortWithError(c, threadErrorStatus(err), err)
			return
		}
		c.JSON(http.StatusOK, datatypes.NewThreadSummary(cp, c.Query("state") != "false"))
	}
}

// DeleteThread discards a saved thread. Deleting an unknown thread
// succeeds.
func DeleteThread(planner Planner) gin.HandlerFunc {
	return func(c *gin.Context) {
		threadID := c.Param("threadId")
		if err := planner.DeleteThread(c.Request.Context(), threadID); err != nil {
			abortWithError(c, threadErrorStatus(err), err)
			return
		}
		slog.Info("thread deleted", "thread_id", threadID)
		c.JSON(http.StatusOK, gin.H{"deleted": threadID})
	}
}
