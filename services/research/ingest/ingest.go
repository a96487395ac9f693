// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest populates the internal knowledge store consumed by the
// semantic-search tool.
//
// Extraction stays in the Python ingestion sidecar; this package receives
// already-extracted text, splits it into overlapping chunks, and
// batch-upserts the chunks into Weaviate under the ResearchChunk class.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianResearch/services/research/tools"
)

var tracer = otel.Tracer("aleutian.research.ingest")

const (
	chunkSize    = 1000
	chunkOverlap = 150

	upsertBatchSize   = 64
	upsertConcurrency = 4
)

// Ingestor splits documents into chunks and writes them to Weaviate.
type Ingestor struct {
	client   *weaviate.Client
	splitter textsplitter.RecursiveCharacter
}

// NewIngestor creates an Ingestor over the given Weaviate client.
func NewIngestor(client *weaviate.Client) *Ingestor {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	return &Ingestor{client: client, splitter: splitter}
}

// EnsureSchema creates the ResearchChunk class when it does not exist.
// Safe to call on every startup.
func (i *Ingestor) EnsureSchema(ctx context.Context) error {
	exists, err := i.client.Schema().ClassExistenceChecker().
		WithClassName(tools.ChunkClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check the %s class: %w", tools.ChunkClassName, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       tools.ChunkClassName,
		Description: "One chunk of an ingested document, retrievable by nearText search",
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}},
			{Name: "document_id", DataType: []string{"text"}},
			{Name: "chunk_index", DataType: []string{"int"}},
			{Name: "source", DataType: []string{"text"}},
		},
	}
	if err := i.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create the %s class: %w", tools.ChunkClassName, err)
	}
	slog.Info("Created Weaviate class", "class", tools.ChunkClassName)
	return nil
}

// IngestDocument splits the document text and upserts every chunk.
// Returns the number of chunks written.
func (i *Ingestor) IngestDocument(ctx context.Context, documentID, source, text string) (int, error) {
	ctx, span := tracer.Start(ctx, "Ingestor.IngestDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("document_id", documentID),
		attribute.Int("text_chars", len(text)),
	)

	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("document %s has no text to ingest", documentID)
	}

	chunks, err := i.splitter.SplitText(text)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to split document %s: %w", documentID, err)
	}

	objects := make([]*models.Object, 0, len(chunks))
	for idx, chunk := range chunks {
		objects = append(objects, &models.Object{
			Class: tools.ChunkClassName,
			Properties: map[string]any{
				"text":        chunk,
				"document_id": documentID,
				"chunk_index": idx,
				"source":      source,
			},
		})
	}

	if err := i.upsertBatches(ctx, objects); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int("chunks", len(objects)))
	slog.Info("Ingested document",
		"document_id", documentID, "source", source, "chunks", len(objects))
	return len(objects), nil
}

// upsertBatches writes objects in fixed-size batches with bounded
// concurrency. Any batch failure fails the whole ingest; partial writes
// are idempotent to re-run because chunks carry their document id.
func (i *Ingestor) upsertBatches(ctx context.Context, objects []*models.Object) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertConcurrency)

	for start := 0; start < len(objects); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(objects) {
			end = len(objects)
		}
		batch := objects[start:end]

		g.Go(func() error {
			resp, err := i.client.Batch().ObjectsBatcher().
				WithObjects(batch...).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("batch upsert failed: %w", err)
			}
			for _, obj := range resp {
				if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
					return fmt.Errorf("batch upsert rejected an object: %s", obj.Result.Errors.Error[0].Message)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// DeleteSource removes every chunk ingested under the given source.
func (i *Ingestor) DeleteSource(ctx context.Context, source string) error {
	ctx, span := tracer.Start(ctx, "Ingestor.DeleteSource")
	defer span.End()
	span.SetAttributes(attribute.String("source", source))

	where := filters.Where().
		WithPath([]string{"source"}).
		WithOperator(filters.Equal).
		WithValueText(source)

	resp, err := i.client.Batch().ObjectsBatchDeleter().
		WithClassName(tools.ChunkClassName).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks for source %s: %w", source, err)
	}
	if resp != nil && resp.Results != nil {
		slog.Info("Deleted source chunks", "source", source, "matches", resp.Results.Matches)
	}
	return nil
}
