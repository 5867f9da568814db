// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the generation endpoints on a /v1 group.
//
// Endpoints:
//
//	POST   /v1/generations              - Start a session
//	POST   /v1/generations/:id/feedback - Resume with feedback
//	GET    /v1/generations/:id          - Read a session
//	GET    /v1/generations              - List session ids
//	DELETE /v1/generations/:id          - Evict a session
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	g := rg.Group("/generations")
	g.POST("", h.HandleStart)
	g.GET("", h.HandleList)
	g.GET("/:id", h.HandleGet)
	g.DELETE("/:id", h.HandleDelete)
	g.POST("/:id/feedback", h.HandleResume)
}

// NewRouter builds the full HTTP router: recovery, tracing middleware,
// /health, /metrics from gatherer and the /v1 routes.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	RegisterRoutes(router.Group("/v1"), h)
	return router
}
