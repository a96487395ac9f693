// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin HTTP handlers for the research service.
// Handlers are transport only: validate, delegate, map errors to status
// codes. All run semantics live in the engine.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/research/engine"
	"github.com/AleutianAI/AleutianResearch/services/research/oracle"
	"github.com/AleutianAI/AleutianResearch/services/research/policy"
	"github.com/AleutianAI/AleutianResearch/services/research/store"
)

// StartResearchRequest is the POST /v1/research body. Zero-valued limit
// fields inherit the service defaults.
type StartResearchRequest struct {
	Task         string   `json:"task" binding:"required"`
	MaxSteps     int      `json:"max_steps"`
	Temperature  float32  `json:"temperature"`
	EnabledTools []string `json:"enabled_tools"`
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StartResearch accepts a task, scans it against the policy engine, and
// starts a run. Returns 202 with the run id; progress is observed via
// GET or the websocket.
func StartResearch(eng *engine.Engine, policyEngine *policy.Engine, defaults datatypes.RunConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartResearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if policyEngine != nil {
			if findings := policyEngine.Scan(req.Task); len(findings) > 0 {
				slog.Warn("Rejected task on policy findings", "findings", len(findings))
				c.JSON(http.StatusForbidden, gin.H{
					"error":    "task contains classified data",
					"findings": findings,
				})
				return
			}
		}

		cfg := defaults
		if req.MaxSteps > 0 {
			cfg.MaxSteps = req.MaxSteps
		}
		if req.Temperature > 0 {
			cfg.Temperature = req.Temperature
		}
		if len(req.EnabledTools) > 0 {
			cfg.EnabledTools = req.EnabledTools
		}

		runID, err := eng.Execute(c.Request.Context(), req.Task, cfg)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
	}
}

// GetResearch returns the current RunState snapshot.
func GetResearch(runStore store.RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := runStore.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// ListResearch returns runs newest-first. ?limit caps the result,
// defaulting to 50.
func ListResearch(runStore store.RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		runs, err := runStore.List(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
	}
}

// FollowupRequest is the POST /v1/research/:id/followup body.
type FollowupRequest struct {
	Question string `json:"question" binding:"required"`
}

// Followup answers a question about a finished run. The run's final
// answer is the only context; the stored RunState is never mutated.
func Followup(runStore store.RunStore, o oracle.Oracle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FollowupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		run, err := runStore.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !run.Terminal() {
			c.JSON(http.StatusConflict, gin.H{"error": "run is still in progress"})
			return
		}

		answer, err := o.AnswerFollowup(c.Request.Context(), run.FinalAnswer, req.Question)
		if err != nil {
			slog.Error("Followup synthesis failed", "run_id", run.ID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to answer the follow-up"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"run_id": run.ID, "answer": answer})
	}
}
