// Package server exposes the agent over HTTP for remote frame processing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/larsll/deepracer-llm-agent/internal/agent"
	"github.com/larsll/deepracer-llm-agent/internal/models"
)

const (
	maxBodyBytes        = 8 << 20 // base64 frames are bulky
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 120 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server wires the agent behind an HTTP control surface.
type Server struct {
	agent   *agent.Agent
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(port int, a *agent.Agent) (*Server, error) {
	if a == nil {
		return nil, errors.New("agent must not be nil")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("port %d must be a valid TCP port", port)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))

	srv := &Server{
		agent:   a,
		app:     e,
		address: fmt.Sprintf(":%d", port),
	}

	srv.registerRoutes()
	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address, "model_id", s.agent.ModelID())

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the echo handler for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/v1/frames", s.handleFrame)
	s.app.GET("/v1/usage", s.handleUsage)
	s.app.POST("/v1/reset", s.handleReset)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type frameRequest struct {
	ImageB64 string `json:"image_b64"`
}

type frameResponse struct {
	RequestID string               `json:"request_id"`
	Action    models.DrivingAction `json:"action"`
}

func (s *Server) handleFrame(c echo.Context) error {
	var req frameRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if req.ImageB64 == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "image_b64 is required",
			Type:    "invalid_request_error",
		}
	}

	action := s.agent.ProcessImage(c.Request().Context(), req.ImageB64)

	return c.JSON(http.StatusOK, frameResponse{
		RequestID: uuid.NewString(),
		Action:    action,
	})
}

func (s *Server) handleUsage(c echo.Context) error {
	return c.JSON(http.StatusOK, s.agent.TokenUsage())
}

func (s *Server) handleReset(c echo.Context) error {
	resetTokens := c.QueryParam("tokens") == "true"
	refreshPricing := c.QueryParam("pricing") == "true"

	s.agent.Reset(c.Request().Context(), resetTokens, refreshPricing)
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	return c.JSON(status, payload)
}

func errorHandler(err error, c echo.Context) {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type)
		return
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		_ = writeError(c, echoErr.Code, fmt.Sprintf("%v", echoErr.Message), "invalid_request_error")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error")
}
