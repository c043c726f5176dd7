// Package server hosts the HTTP surface of the assistant.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/grassrootshq/clubassist/internal/profile"
	apiv1 "github.com/grassrootshq/clubassist/server/router/api/v1"
)

// Server is the HTTP server hosting the assistant API.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
}

// NewServer creates the server and registers all routes and middleware.
func NewServer(_ context.Context, p *profile.Profile, apiService *apiv1.APIV1Service) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	// Inference calls are expensive; cap the per-client request rate well
	// below what the semaphore in the API layer would otherwise queue.
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(10))))

	apiService.Register(e)

	return &Server{
		echoServer: e,
		profile:    p,
	}, nil
}

// Start begins serving in the background. Fatal listener errors are logged.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("clubassist stopped properly")
}
