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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianResearch/services/research/ingest"
)

// CreateDocumentRequest is the POST /v1/documents body. Text is the
// already-extracted document content; extraction of PDFs, office files,
// and images stays with the ingestion sidecar.
type CreateDocumentRequest struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source" binding:"required"`
	Text       string `json:"text" binding:"required"`
}

// CreateDocument chunks the document text and upserts it into the
// internal knowledge store.
func CreateDocument(ingestor *ingest.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ingestor == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge store is not configured"})
			return
		}

		var req CreateDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.DocumentID == "" {
			req.DocumentID = uuid.New().String()
		}

		chunks, err := ingestor.IngestDocument(c.Request.Context(), req.DocumentID, req.Source, req.Text)
		if err != nil {
			slog.Error("Document ingest failed", "source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"document_id": req.DocumentID,
			"source":      req.Source,
			"chunks":      chunks,
		})
	}
}

// DeleteBySource removes every chunk ingested under ?source=.
func DeleteBySource(ingestor *ingest.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ingestor == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge store is not configured"})
			return
		}

		source := c.Query("source")
		if source == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source query parameter is required"})
			return
		}

		if err := ingestor.DeleteSource(c.Request.Context(), source); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted_source": source})
	}
}
