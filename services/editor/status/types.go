// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status serves a read-only HTTP view of a running lspbridge
// client: readiness, server command, pending syncs, diagnostics, recent
// server log lines and Prometheus metrics. `lspbridge watch --listen`
// mounts it so editors and scripts can poll a long-lived session.
package status

import (
	"time"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// HealthResponse is returned by GET /v1/lspbridge/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is returned by GET /v1/lspbridge/ready.
type ReadyResponse struct {
	// Ready is true after a successful initialize handshake.
	Ready bool `json:"ready"`

	// Message is the last readiness text, e.g. "ready (pylsp)".
	Message string `json:"message"`

	// Since is when readiness last changed.
	Since time.Time `json:"since,omitempty"`

	// Root is the workspace root of the live connection.
	Root string `json:"root,omitempty"`

	// Command is the running server command line.
	Command string `json:"command,omitempty"`

	// PendingSyncs counts documents queued until the server is ready.
	PendingSyncs int `json:"pending_syncs"`
}

// DiagnosticsResponse is returned by GET /v1/lspbridge/diagnostics.
type DiagnosticsResponse struct {
	Files  []FileDiagnostics `json:"files"`
	Counts SeverityCounts    `json:"counts"`
}

// FileDiagnostics is the diagnostic set for one document.
type FileDiagnostics struct {
	URI         string           `json:"uri"`
	Path        string           `json:"path,omitempty"`
	Diagnostics []lsp.Diagnostic `json:"diagnostics"`
}

func newFileDiagnostics(uri string, diags []lsp.Diagnostic) FileDiagnostics {
	fd := FileDiagnostics{URI: uri, Diagnostics: append([]lsp.Diagnostic(nil), diags...)}
	if path, ok := lsp.URIToPath(uri); ok {
		fd.Path = path
	}
	return fd
}

// SeverityCounts totals diagnostics by severity.
type SeverityCounts struct {
	Files       int `json:"files"`
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
	Information int `json:"information"`
	Hints       int `json:"hints"`
}

func (c *SeverityCounts) add(diags []lsp.Diagnostic) {
	for _, d := range diags {
		switch d.Severity {
		case lsp.SeverityError:
			c.Errors++
		case lsp.SeverityWarning:
			c.Warnings++
		case lsp.SeverityInformation:
			c.Information++
		default:
			c.Hints++
		}
	}
}

// LogsResponse is returned by GET /v1/lspbridge/logs.
type LogsResponse struct {
	Lines []string `json:"lines"`
}

// ErrorResponse is returned for client errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
