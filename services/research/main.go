// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/research/config"
	"github.com/AleutianAI/AleutianResearch/services/research/engine"
	"github.com/AleutianAI/AleutianResearch/services/research/ingest"
	"github.com/AleutianAI/AleutianResearch/services/research/observability"
	"github.com/AleutianAI/AleutianResearch/services/research/oracle"
	"github.com/AleutianAI/AleutianResearch/services/research/policy"
	"github.com/AleutianAI/AleutianResearch/services/research/routes"
	"github.com/AleutianAI/AleutianResearch/services/research/store"
	"github.com/AleutianAI/AleutianResearch/services/research/tools"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("research-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient connects to the knowledge store, or returns nil when
// it is not configured. The service still runs without it; semantic
// search and ingestion just stay unavailable.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Semantic search disabled.")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Semantic search disabled.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	return client
}

func main() {
	port := os.Getenv("RESEARCH_PORT")
	if port == "" {
		port = "12220"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	cfg, err := config.Load(os.Getenv("RESEARCH_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("FATAL: Could not load the engine config: %v", err)
	}

	policyEngine, err := policy.NewEngine()
	if err != nil {
		log.Fatalf("FATAL: Could not initialize the policy engine: %v", err)
	}

	llmClient, err := llm.NewClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	decisionOracle := oracle.NewLLMOracle(llmClient)

	// --- Run store ---
	storePath := cfg.StorePath
	if envPath := os.Getenv("RESEARCH_STORE_PATH"); envPath != "" {
		storePath = envPath
	}
	var runStore store.RunStore
	if storePath == "" {
		slog.Warn("No store path configured, run history is in-memory only")
		memStore, err := store.OpenBadgerInMemory()
		if err != nil {
			log.Fatalf("Failed to open the run store: %v", err)
		}
		defer memStore.Close()
		runStore = memStore
	} else {
		diskStore, err := store.OpenBadger(storePath)
		if err != nil {
			log.Fatalf("Failed to open the run store: %v", err)
		}
		defer diskStore.Close()
		runStore = diskStore
	}

	// --- Tools ---
	limiter := rate.NewLimiter(rate.Limit(cfg.OutboundRatePerSecond), 1)
	var registered []tools.Tool

	weaviateClient := newWeaviateClient()
	var ingestor *ingest.Ingestor
	if weaviateClient != nil {
		ingestor = ingest.NewIngestor(weaviateClient)
		if err := ingestor.EnsureSchema(context.Background()); err != nil {
			slog.Error("Failed to ensure the Weaviate schema", "error", err)
		}
		registered = append(registered, tools.NewSemanticSearch(weaviateClient, cfg.SearchLimit))
	}

	if searchURL := os.Getenv("SEARCH_ENGINE_URL"); searchURL != "" {
		registered = append(registered,
			tools.NewWebSearch(searchURL, limiter),
			tools.NewWebExtract(limiter),
		)
	} else {
		slog.Info("SEARCH_ENGINE_URL not set. Web tools disabled.")
	}

	if os.Getenv("DRIVE_ENABLED") == "true" {
		driveSvc, err := tools.NewDriveService(context.Background())
		if err != nil {
			slog.Error("Failed to initialize the Drive service", "error", err)
		} else {
			registered = append(registered,
				tools.NewDriveList(driveSvc),
				tools.NewDriveFetch(driveSvc),
			)
		}
	}

	registry := tools.NewRegistry(registered...)
	slog.Info("Registered tools", "tools", registry.Names())

	// Default runs to the tools that actually came up, so phases skip
	// unavailable capabilities instead of recording degraded steps.
	if len(cfg.Defaults.EnabledTools) == 0 {
		cfg.Defaults.EnabledTools = registry.Names()
	}

	metrics := observability.NewResearchMetrics()
	eng := engine.NewEngine(decisionOracle, registry, runStore, metrics)

	router := gin.Default()
	router.Use(otelgin.Middleware("research-service"))

	routes.SetupRoutes(router, eng, runStore, decisionOracle, policyEngine, ingestor, cfg.Defaults)

	log.Println("Starting the research server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
