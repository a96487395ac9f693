// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianResearch/services/research/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

const runPollInterval = 500 * time.Millisecond

// HandleRunWebSocket streams RunState snapshots for one run until the run
// is terminal or the client disconnects. A snapshot is sent whenever the
// observable state advanced (new step, phase change, termination).
func HandleRunWebSocket(runStore store.RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("Run websocket connected", "run_id", runID)

		lastSteps := -1
		lastPhase := ""
		ticker := time.NewTicker(runPollInterval)
		defer ticker.Stop()

		for {
			run, err := runStore.Get(c.Request.Context(), runID)
			if errors.Is(err, store.ErrNotFound) {
				_ = ws.WriteJSON(gin.H{"error": "run not found"})
				return
			}
			if err != nil {
				slog.Warn("Run snapshot read failed", "run_id", runID, "error", err)
				return
			}

			advanced := len(run.Steps) != lastSteps || string(run.Phase) != lastPhase || run.Terminal()
			if advanced {
				if err := ws.WriteJSON(run); err != nil {
					slog.Info("Run websocket client disconnected", "run_id", runID)
					return
				}
				lastSteps = len(run.Steps)
				lastPhase = string(run.Phase)
			}
			if run.Terminal() {
				return
			}

			select {
			case <-ticker.C:
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}
