package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
)

// CreateSession hands out a fresh session key. Sessions themselves are
// created lazily by the first turn that names them.
// POST /api/v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	return c.JSON(http.StatusCreated, map[string]string{
		"session_id": shortuuid.New(),
	})
}
