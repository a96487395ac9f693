// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/research/engine"
	"github.com/AleutianAI/AleutianResearch/services/research/handlers"
	"github.com/AleutianAI/AleutianResearch/services/research/ingest"
	"github.com/AleutianAI/AleutianResearch/services/research/oracle"
	"github.com/AleutianAI/AleutianResearch/services/research/policy"
	"github.com/AleutianAI/AleutianResearch/services/research/store"
)

func SetupRoutes(router *gin.Engine, eng *engine.Engine, runStore store.RunStore,
	o oracle.Oracle, policyEngine *policy.Engine, ingestor *ingest.Ingestor,
	defaults datatypes.RunConfig) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		research := v1.Group("/research")
		{
			research.POST("", handlers.StartResearch(eng, policyEngine, defaults))
			research.GET("", handlers.ListResearch(runStore))
			research.GET("/:id", handlers.GetResearch(runStore))
			research.GET("/:id/ws", handlers.HandleRunWebSocket(runStore))
			research.POST("/:id/followup", handlers.Followup(runStore, o))
		}

		v1.POST("/documents", handlers.CreateDocument(ingestor))
		v1.DELETE("/documents", handlers.DeleteBySource(ingestor))
	}
}
