// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for the client.
var (
	tracer = otel.Tracer("lspbridge.lsp")
	meter  = otel.Meter("lspbridge.lsp")
)

var (
	serverSpawns    metric.Int64Counter
	requestTotal    metric.Int64Counter
	requestLatency  metric.Float64Histogram
	protocolErrors  metric.Int64Counter
	editsApplied    metric.Int64Counter
	stderrLinesDrop metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		serverSpawns, err = meter.Int64Counter(
			"lsp_server_spawns_total",
			metric.WithDescription("Language server spawn attempts by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"lsp_requests_total",
			metric.WithDescription("Requests sent to the language server"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestLatency, err = meter.Float64Histogram(
			"lsp_request_duration_seconds",
			metric.WithDescription("Time from request write to response"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		protocolErrors, err = meter.Int64Counter(
			"lsp_protocol_errors_total",
			metric.WithDescription("Incoming messages dropped as malformed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		editsApplied, err = meter.Int64Counter(
			"lsp_edits_applied_total",
			metric.WithDescription("Workspace text edits applied"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stderrLinesDrop, err = meter.Int64Counter(
			"lsp_stderr_lines_dropped_total",
			metric.WithDescription("Server stderr lines dropped by the forwarding throttle"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordServerSpawn(ctx context.Context, command string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", success),
	))
}

func recordRequest(ctx context.Context, method string) {
	if err := initMetrics(); err != nil {
		return
	}
	requestTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

func recordResponse(ctx context.Context, method string, elapsed time.Duration, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	requestLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("error", failed),
	))
}

func recordProtocolError(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	protocolErrors.Add(ctx, 1)
}

func recordEditsApplied(ctx context.Context, files, edits int) {
	if err := initMetrics(); err != nil {
		return
	}
	editsApplied.Add(ctx, int64(edits), metric.WithAttributes(attribute.Int("files", files)))
}

func recordStderrDropped(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	stderrLinesDrop.Add(ctx, int64(n))
}

// startApplySpan creates a span for one workspace edit application.
func startApplySpan(ctx context.Context, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "EditApplier.Apply",
		trace.WithAttributes(attribute.Int("lsp.edit.files", files)),
	)
}

// setApplySpanResult sets the result attributes on an apply span.
func setApplySpanResult(span trace.Span, files, edits int) {
	span.SetAttributes(
		attribute.Int("lsp.edit.files_changed", files),
		attribute.Int("lsp.edit.edits_applied", edits),
	)
}
