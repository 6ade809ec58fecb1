// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package status

import (
	"net/http"
	"strconv"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/gin-gonic/gin"
)

// ClientView is the part of *lsp.Client the handlers read.
type ClientView interface {
	IsReady() bool
	RootPath() string
	ServerCommand() (lsp.Command, bool)
	PendingSyncCount() int
	Diagnostics(path string) []lsp.Diagnostic
}

// Handlers serves the status endpoints.
type Handlers struct {
	client  ClientView
	tracker *Tracker
}

// NewHandlers creates Handlers reading from client and tracker. tracker
// must be registered as an observer of client.
func NewHandlers(client ClientView, tracker *Tracker) *Handlers {
	return &Handlers{client: client, tracker: tracker}
}

// HandleHealth handles GET /v1/lspbridge/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// HandleReady handles GET /v1/lspbridge/ready.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	_, message, since := h.tracker.State()
	resp := ReadyResponse{
		Ready:        h.client.IsReady(),
		Message:      message,
		Since:        since,
		Root:         h.client.RootPath(),
		PendingSyncs: h.client.PendingSyncCount(),
	}
	if cmd, ok := h.client.ServerCommand(); ok {
		resp.Command = cmd.String()
	}

	if !resp.Ready {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDiagnostics handles GET /v1/lspbridge/diagnostics.
//
// Query:
//
//	path - optional file path; when set only that file is returned, read
//	       from the client rather than the tracker.
func (h *Handlers) HandleDiagnostics(c *gin.Context) {
	if path := c.Query("path"); path != "" {
		diags := h.client.Diagnostics(path)
		var counts SeverityCounts
		counts.add(diags)
		files := []FileDiagnostics{}
		if len(diags) > 0 {
			counts.Files = 1
			files = append(files, newFileDiagnostics(lsp.PathToURI(path), diags))
		}
		c.JSON(http.StatusOK, DiagnosticsResponse{Files: files, Counts: counts})
		return
	}
	c.JSON(http.StatusOK, DiagnosticsResponse{
		Files:  h.tracker.Diagnostics(),
		Counts: h.tracker.Counts(),
	})
}

// HandleLogs handles GET /v1/lspbridge/logs?limit=n.
func (h *Handlers) HandleLogs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	lines := h.tracker.Logs(limit)
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, LogsResponse{Lines: lines})
}
