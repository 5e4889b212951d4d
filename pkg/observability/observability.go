// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability provides thin helpers over the OpenTelemetry API.
// No SDK is wired here; with the default global providers every span and
// metric call is a no-op, so instrumentation is free unless a deployment
// installs real providers in main.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Span names used across the service.
const (
	SpanAgentRequest  = "agent.request"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanVectorSearch  = "retrieval.vector_search"
	SpanHybridSearch  = "retrieval.hybrid_search"
	SpanIngestion     = "ingestion.index_repository"
)

// Attribute keys used across the service.
const (
	AttrRepositoryID = "repository.id"
	AttrToolName     = "tool.name"
	AttrLLMModel     = "llm.model"
	AttrChunkCount   = "ingestion.chunk_count"
	AttrIterations   = "agent.iterations"
)

// GetTracer returns a named tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Metrics holds the service counters and histograms.
type Metrics struct {
	toolExecutions  metric.Int64Counter
	agentIterations metric.Int64Counter
	toolDuration    metric.Float64Histogram
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// GetMetrics returns the lazily initialized global metrics set.
func GetMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		meter := otel.Meter("codequery")

		toolExecutions, _ := meter.Int64Counter("codequery.tool.executions",
			metric.WithDescription("Number of agent tool executions"))
		agentIterations, _ := meter.Int64Counter("codequery.agent.iterations",
			metric.WithDescription("Number of agent reasoning iterations"))
		toolDuration, _ := meter.Float64Histogram("codequery.tool.duration_ms",
			metric.WithDescription("Tool execution duration in milliseconds"))

		globalMetrics = &Metrics{
			toolExecutions:  toolExecutions,
			agentIterations: agentIterations,
			toolDuration:    toolDuration,
		}
	})
	return globalMetrics
}

// RecordToolExecution records one tool execution with its outcome.
func (m *Metrics) RecordToolExecution(ctx context.Context, toolName string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String(AttrToolName, toolName),
		attribute.Bool("tool.error", err != nil),
	)
	m.toolExecutions.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordAgentIteration records one reasoning loop iteration.
func (m *Metrics) RecordAgentIteration(ctx context.Context, repositoryID string) {
	m.agentIterations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRepositoryID, repositoryID),
	))
}
