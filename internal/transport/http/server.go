// Package http assembles the HTTP server of the assistant.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/stockpilot/internal/config"
	"github.com/xiaot623/stockpilot/internal/service"
	v1 "github.com/xiaot623/stockpilot/internal/transport/http/v1"
	"github.com/xiaot623/stockpilot/internal/transport/ws"
)

// NewServer creates and configures the HTTP server. It serves the API, the
// generated media and the WebSocket subscription endpoint.
func NewServer(cfg *config.Config, svc *service.Service, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Media
	e.Static("/api/v1/audio", cfg.AudioDir())
	e.Static("/api/v1/images", cfg.ImageDir())

	// Handlers
	v1Handler := v1.NewHandler(svc, cfg.DebugLogRate)
	v1Handler.RegisterRoutes(e)

	if wsServer != nil {
		e.GET("/api/v1/ws", wsServer.HandleWebSocket)
	}

	return e
}
