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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/soapgen/services/generator/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StatusClientClosedRequest is returned when the caller disconnects before
// the run finishes.
const StatusClientClosedRequest = 499

// Handlers contains the HTTP handlers for the generation service.
type Handlers struct {
	svc            *Service
	logger         *slog.Logger
	requestTimeout time.Duration
}

// NewHandlers creates handlers for the given service. A positive
// requestTimeout bounds every Start and Resume.
func NewHandlers(svc *Service, logger *slog.Logger, requestTimeout time.Duration) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger, requestTimeout: requestTimeout}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStart handles POST /v1/generations.
//
// Description:
//
//	Opens a session and runs the first-pass generation.
//
// Request Body:
//
//	GenerationRequest
//
// Response:
//
//	200 OK: GenerationResponse
//	400 Bad Request: INVALID_REQUEST or INVALID_INPUT
//	403 Forbidden: POLICY_VIOLATION
//	502 Bad Gateway: GENERATION_FAILED, with session_id set
//	499 / 504: caller went away or request deadline passed
func (h *Handlers) HandleStart(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleStart")

	var req GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warn("Request validation failed", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Request validation failed",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	ctx, cancel := h.withTimeout(c.Request.Context())
	defer cancel()

	res, err := h.svc.Start(ctx, req.SpecDocument, req.Categories)
	if err != nil {
		h.writeError(c, logger, res, err)
		return
	}
	c.JSON(http.StatusOK, newGenerationResponse(res))
}

// HandleResume handles POST /v1/generations/:id/feedback.
//
// Response:
//
//	200 OK: GenerationResponse
//	400 Bad Request: INVALID_REQUEST or INVALID_INPUT
//	403 Forbidden: POLICY_VIOLATION
//	404 Not Found: SESSION_NOT_FOUND
//	502 Bad Gateway: GENERATION_FAILED
//	499 / 504: caller went away or request deadline passed
func (h *Handlers) HandleResume(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	sessionID := c.Param("id")
	logger := h.logger.With("request_id", requestID, "handler", "HandleResume", "session_id", sessionID)

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ctx, cancel := h.withTimeout(c.Request.Context())
	defer cancel()

	res, err := h.svc.Resume(ctx, sessionID, req.Feedback)
	if err != nil {
		h.writeError(c, logger, res, err)
		return
	}
	c.JSON(http.StatusOK, newGenerationResponse(res))
}

// HandleGet handles GET /v1/generations/:id.
func (h *Handlers) HandleGet(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	sessionID := c.Param("id")
	logger := h.logger.With("request_id", requestID, "handler", "HandleGet", "session_id", sessionID)

	st, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, logger, Result{}, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sessionID, st))
}

// HandleList handles GET /v1/generations.
func (h *Handlers) HandleList(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleList")

	ids, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.writeError(c, logger, Result{}, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, SessionListResponse{Sessions: ids})
}

// HandleDelete handles DELETE /v1/generations/:id.
func (h *Handlers) HandleDelete(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	sessionID := c.Param("id")
	logger := h.logger.With("request_id", requestID, "handler", "HandleDelete", "session_id", sessionID)

	if err := h.svc.Delete(c.Request.Context(), sessionID); err != nil {
		h.writeError(c, logger, Result{}, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": sessionID})
}

func (h *Handlers) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.requestTimeout)
}

// writeError maps service errors to status codes. Policy findings are
// checked before the generic invalid-input case they wrap.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, res Result, err error) {
	var (
		perr   *PolicyViolationError
		genErr *GenerationFailedError
	)
	switch {
	case errors.As(err, &perr):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:    "Policy violation: input contains sensitive data",
			Code:     "POLICY_VIOLATION",
			Details:  perr.Error(),
			Findings: perr.Findings,
		})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid input",
			Code:    "INVALID_INPUT",
			Details: err.Error(),
		})
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
	case errors.As(err, &genErr):
		logger.Warn("Generation failed", "session_id", genErr.SessionID, "attempt", genErr.AttemptCount)
		body := newGenerationResponse(res)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     "Generation failed",
			Code:      "GENERATION_FAILED",
			Details:   genErr.Detail,
			SessionID: genErr.SessionID,
			Result:    &body,
		})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Request deadline exceeded", "error", err)
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{
			Error: "Request timed out",
			Code:  "TIMEOUT",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, workflow.ErrRunCancelled):
		logger.Info("Request cancelled by client")
		c.JSON(StatusClientClosedRequest, ErrorResponse{
			Error: "Request cancelled",
			Code:  "CANCELLED",
		})
	default:
		logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal error",
			Code:  "INTERNAL_ERROR",
		})
	}
}

// getOrCreateRequestID echoes the caller's X-Request-ID or assigns one.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
