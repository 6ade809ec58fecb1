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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the /lspbridge endpoints on rg.
//
// Endpoints:
//
//	GET /v1/lspbridge/health      - Liveness
//	GET /v1/lspbridge/ready       - Readiness, 503 until the handshake completes
//	GET /v1/lspbridge/diagnostics - Stored diagnostics, optionally ?path=
//	GET /v1/lspbridge/logs        - Recent server log lines, ?limit=
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	g := rg.Group("/lspbridge")
	g.GET("/health", h.HandleHealth)
	g.GET("/ready", h.HandleReady)
	g.GET("/diagnostics", h.HandleDiagnostics)
	g.GET("/logs", h.HandleLogs)
}

// NewRouter builds the status engine with tracing middleware. metrics, when
// non-nil, is mounted at /metrics.
func NewRouter(h *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("lspbridge-status"))

	RegisterRoutes(router.Group("/v1"), h)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
