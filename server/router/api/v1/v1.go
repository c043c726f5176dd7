// Package v1 exposes the assistant's REST surface.
package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/grassrootshq/clubassist/ai/assistant"
	"github.com/grassrootshq/clubassist/ai/metrics"
	"github.com/grassrootshq/clubassist/internal/profile"
	"github.com/grassrootshq/clubassist/server/auth"
)

// Assistant answers one conversational request on behalf of a verified user.
type Assistant interface {
	Answer(ctx context.Context, req *assistant.ChatRequest, verifiedEmail string) (string, error)
}

// APIV1Service wires the assistant, the token verifier, and the metrics
// exporter into the HTTP routes.
type APIV1Service struct {
	Profile   *profile.Profile
	Verifier  auth.TokenVerifier
	Assistant Assistant
	Metrics   *metrics.Exporter

	// chatSemaphore bounds concurrent LLM-backed chats; each request holds a
	// slot for its full resolve/invoke/synthesize pipeline.
	chatSemaphore *semaphore.Weighted
}

// maxConcurrentChats bounds in-flight conversational requests per process.
const maxConcurrentChats = 8

// NewAPIV1Service creates the API service.
func NewAPIV1Service(p *profile.Profile, verifier auth.TokenVerifier, assistantService Assistant, exporter *metrics.Exporter) *APIV1Service {
	return &APIV1Service{
		Profile:       p,
		Verifier:      verifier,
		Assistant:     assistantService,
		Metrics:       exporter,
		chatSemaphore: semaphore.NewWeighted(maxConcurrentChats),
	}
}

// Register attaches the routes to the Echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	e.POST("/query-ai", s.QueryAI)
	e.GET("/healthz", s.Healthz)
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}
}

// Healthz reports process liveness.
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
