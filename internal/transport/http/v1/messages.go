package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// GetSessionMessages retrieves the persisted history of a session.
// GET /api/v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	messages, err := h.service.GetMessages(c.Request().Context(), sessionID, limit)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": len(messages) == limit,
	})
}

// GetTurnEvents retrieves the trace of a turn.
// GET /api/v1/turns/:turn_id/events
func (h *Handler) GetTurnEvents(c echo.Context) error {
	turnID := c.Param("turn_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}

	turn, events, err := h.service.GetTurnEvents(c.Request().Context(), turnID, afterTs, limit)
	if err != nil {
		return writeError(c, err)
	}
	if turn == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "turn not found"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"turn":   turn,
		"events": events,
	})
}
