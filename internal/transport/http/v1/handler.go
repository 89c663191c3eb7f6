// Package v1 provides the versioned HTTP API of the assistant.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/service"
)

// SessionHeader names the request header carrying the session key.
const SessionHeader = "X-Session-ID"

// Handler handles HTTP requests.
type Handler struct {
	service   *service.Service
	debugRate rate.Limit
}

// NewHandler creates a new handler. debugRate bounds the debug log endpoint
// in requests per second per client; zero disables the limit.
func NewHandler(service *service.Service, debugRate float64) *Handler {
	return &Handler{
		service:   service,
		debugRate: rate.Limit(debugRate),
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")

	api.POST("/conversations", h.CreateConversation)
	api.POST("/images", h.UploadImage)
	api.POST("/sessions", h.CreateSession)

	if h.debugRate > 0 {
		api.POST("/debug", h.DebugLog, middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(h.debugRate)))
	} else {
		api.POST("/debug", h.DebugLog)
	}

	api.GET("/sessions/:session_id/messages", h.GetSessionMessages)
	api.GET("/turns/:turn_id/events", h.GetTurnEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps input errors to 400 with their message. Everything else is
// logged and reported as a generic 500.
func writeError(c echo.Context, err error) error {
	if domain.IsInputError(err) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Something went wrong"})
}
