// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/wayfarer/services/orchestrator/handlers"
)

// SetupRoutes registers the planning API on router. A nil metricsHandler
// leaves /metrics unregistered.
func SetupRoutes(router *gin.Engine, planner handlers.Planner, sessions handlers.SessionMetrics,
	metricsHandler http.Handler) {

	router.GET("/health", handlers.HealthCheck)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/plan/ws", handlers.HandlePlanWebSocket(planner, sessions))
		v1.POST("/preferences/validate", handlers.ValidatePreferences())

		threads := v1.Group("/threads")
		{
			threads.GET("", handlers.ListThreads(planner))
			threads.GET("/:threadId", handlers.GetThread(planner))
			threads.DELETE("/:threadId", handlers.DeleteThread(planner))
		}
	}
}
