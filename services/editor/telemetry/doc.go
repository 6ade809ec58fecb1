// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry SDK for lspbridge commands.
//
// The lsp package records spans and instruments through the global otel
// providers and never imports an SDK. This package is what the CLI calls to
// make those providers real. Without it every instrument is a no-op.
//
// # Trace exporters
//
//   - none: no provider is installed (default)
//   - stdout: pretty-printed spans on the configured writer
//   - otlp: gRPC export to OTLPEndpoint
//
// # Metric exporters
//
//   - none: no provider is installed (default)
//   - stdout: periodic pretty-printed snapshots on the configured writer
//   - prometheus: pull-based, served by MetricsHandler
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: none, stdout or otlp
//   - OTEL_METRICS_EXPORTER: none, stdout or prometheus
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//
// # Thread Safety
//
// Init is called once per process. Everything else is safe for concurrent use.
package telemetry
