// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the research service.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for research-run metrics
const researchSubsystem = "research"

// ResearchMetrics holds all Prometheus metrics for research run execution.
// Initialize once at startup via NewResearchMetrics(); promauto registers
// with the default registry, so a second call would panic.
type ResearchMetrics struct {
	// RunsStartedTotal counts runs accepted for execution.
	RunsStartedTotal prometheus.Counter

	// RunsTerminatedTotal counts terminal runs by final status.
	// Labels: status (completed, failed, max_steps_reached)
	RunsTerminatedTotal *prometheus.CounterVec

	// StepsPerRun measures how many tool invocations each run consumed.
	StepsPerRun prometheus.Histogram

	// PhaseDurationSeconds measures wall time per phase.
	// Labels: phase (understanding, internal_knowledge, ...)
	PhaseDurationSeconds *prometheus.HistogramVec

	// ActiveRuns gauges runs currently in status=running.
	ActiveRuns prometheus.Gauge

	// ToolCallsTotal counts tool invocations by tool name and outcome.
	// Labels: tool, outcome (ok, degraded)
	ToolCallsTotal *prometheus.CounterVec
}

// NewResearchMetrics creates and registers all research metrics.
func NewResearchMetrics() *ResearchMetrics {
	return &ResearchMetrics{
		RunsStartedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: researchSubsystem,
				Name:      "runs_started_total",
				Help:      "Total research runs accepted for execution.",
			},
		),
		RunsTerminatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: researchSubsystem,
				Name:      "runs_terminated_total",
				Help:      "Total terminal research runs by final status.",
			},
			[]string{"status"},
		),
		StepsPerRun: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: researchSubsystem,
				Name:      "steps_per_run",
				Help:      "Tool invocations consumed per run.",
				Buckets:   prometheus.LinearBuckets(0, 2, 11),
			},
		),
		PhaseDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: researchSubsystem,
				Name:      "phase_duration_seconds",
				Help:      "Wall time spent in each phase.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"phase"},
		),
		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: researchSubsystem,
				Name:      "active_runs",
				Help:      "Runs currently executing.",
			},
		),
		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: researchSubsystem,
				Name:      "tool_calls_total",
				Help:      "Tool invocations by tool name and outcome.",
			},
			[]string{"tool", "outcome"},
		),
	}
}
