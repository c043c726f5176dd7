package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/grassrootshq/clubassist/ai/assistant"
)

type errorResponse struct {
	Error string `json:"error"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// QueryAI handles POST /query-ai: authenticate the caller, resolve the message
// to capabilities, invoke them, and return the aggregated reply.
//
// Response contract:
//
//	200 {"reply": ...}  aggregated answer, possibly with embedded per-capability failure text
//	400 {"error": "Missing required fields"}
//	401 {"error": "Invalid token"}
//	403 {"error": "Email mismatch"}
//	500 {"error": ...}  inference or gateway transport failure
func (s *APIV1Service) QueryAI(c echo.Context) error {
	req := &assistant.ChatRequest{}
	if err := c.Bind(req); err != nil || !req.HasRequiredFields() {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing required fields"})
	}

	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID)
	start := time.Now()

	// Once a request begins it runs to completion: a client disconnect must
	// not abort in-flight identity, inference, or gateway calls.
	ctx := context.WithoutCancel(c.Request().Context())

	claims, err := s.Verifier.VerifyIDToken(ctx, req.Token)
	if err != nil {
		logger.Warn("token verification failed", "error", err)
		s.recordChat("unauthorized", start)
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Invalid token"})
	}
	if claims.Email != req.Email {
		logger.Warn("verified subject does not match claimed email",
			"verified_email", claims.Email,
			"claimed_email", req.Email,
		)
		s.recordChat("forbidden", start)
		return c.JSON(http.StatusForbidden, errorResponse{Error: "Email mismatch"})
	}

	if err := s.chatSemaphore.Acquire(ctx, 1); err != nil {
		logger.Error("failed to acquire chat slot", "error", err)
		s.recordChat("error", start)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	defer s.chatSemaphore.Release(1)

	reply, err := s.Assistant.Answer(ctx, req, claims.Email)
	if err != nil {
		logger.Error("assistant request failed", "error", err)
		s.recordChat("error", start)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	logger.Info("assistant request completed",
		"user", claims.Email,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.recordChat("success", start)
	return c.JSON(http.StatusOK, replyResponse{Reply: reply})
}

func (s *APIV1Service) recordChat(status string, start time.Time) {
	if s.Metrics != nil {
		s.Metrics.RecordChatRequest(status, time.Since(start))
	}
}
