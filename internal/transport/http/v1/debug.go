package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type debugLogRequest struct {
	Level   string      `json:"level"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// DebugLog records a diagnostic line sent by a client.
// POST /api/v1/debug
func (h *Handler) DebugLog(c echo.Context) error {
	var req debugLogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}

	attrs := []any{"source", "client", "remote", c.RealIP()}
	if req.Data != nil {
		attrs = append(attrs, "data", req.Data)
	}

	switch strings.ToUpper(req.Level) {
	case "ERROR":
		slog.Error(req.Message, attrs...)
	case "WARN", "WARNING":
		slog.Warn(req.Message, attrs...)
	case "INFO":
		slog.Info(req.Message, attrs...)
	default:
		slog.Debug(req.Message, attrs...)
	}

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
