// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

var searchTracer = otel.Tracer("aleutian.research.tools.semantic_search")

// ChunkClassName is the Weaviate class holding ingested document chunks.
const ChunkClassName = "ResearchChunk"

const defaultSearchLimit = 8

// SemanticSearch retrieves document chunks from the internal Weaviate
// store by nearText similarity. The input string is the query.
type SemanticSearch struct {
	client *weaviate.Client
	limit  int
}

// NewSemanticSearch creates the tool over the given Weaviate client.
// A non-positive limit falls back to the default of 8 chunks per query.
func NewSemanticSearch(client *weaviate.Client, limit int) *SemanticSearch {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &SemanticSearch{client: client, limit: limit}
}

func (s *SemanticSearch) Name() string { return NameSemanticSearch }

// chunkQueryResponse matches the GraphQL response shape for ChunkClassName.
type chunkQueryResponse struct {
	Get struct {
		ResearchChunk []struct {
			Text       string `json:"text"`
			DocumentID string `json:"document_id"`
			ChunkIndex int    `json:"chunk_index"`
			Source     string `json:"source"`
			Additional struct {
				Distance float64 `json:"distance"`
			} `json:"_additional"`
		} `json:"ResearchChunk"`
	} `json:"Get"`
}

func (s *SemanticSearch) Execute(ctx context.Context, input string) (*Result, error) {
	ctx, span := searchTracer.Start(ctx, "SemanticSearch.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("query", input), attribute.Int("limit", s.limit))

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{input})

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "document_id"},
		{Name: "chunk_index"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(s.limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		slog.Warn("Semantic search query failed", "query", input, "error", err)
		return FailureResult(NameSemanticSearch, err), nil
	}

	parsed, err := parseGraphQLResponse[chunkQueryResponse](resp)
	if err != nil {
		span.RecordError(err)
		return FailureResult(NameSemanticSearch, err), nil
	}

	raw := parsed.Get.ResearchChunk
	if len(raw) == 0 {
		return &Result{Content: fmt.Sprintf("no internal documents matched %q", input)}, nil
	}

	chunks := make([]datatypes.EvidenceChunk, 0, len(raw))
	sources := make([]string, 0, len(raw))
	var b strings.Builder
	for _, hit := range raw {
		chunks = append(chunks, datatypes.EvidenceChunk{
			DocumentID: hit.DocumentID,
			ChunkIndex: hit.ChunkIndex,
			Text:       hit.Text,
			Source:     hit.Source,
			Distance:   hit.Additional.Distance,
		})
		sources = append(sources, hit.Source)
		fmt.Fprintf(&b, "[%s #%d] %s\n", hit.DocumentID, hit.ChunkIndex, hit.Text)
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	return &Result{
		Content: b.String(),
		Sources: sources,
		Chunks:  chunks,
	}, nil
}

// parseGraphQLResponse converts Weaviate's dynamic response payload into a
// typed struct via a marshal round trip.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("GraphQL errors: %s", strings.Join(msgs, "; "))
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}
