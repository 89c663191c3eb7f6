package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

type imageUploadRequest struct {
	Image string `json:"image"`
	Stock string `json:"stock,omitempty"`
}

type imageUploadResponse struct {
	ImageURL string `json:"image_url"`
	Stock    string `json:"stock,omitempty"`
}

// UploadImage stores a screenshot for later turns.
// POST /api/v1/images
func (h *Handler) UploadImage(c echo.Context) error {
	var req imageUploadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}
	if req.Image == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing image"})
	}

	url, err := h.service.StoreImage(req.Image)
	if err != nil {
		slog.Warn("image upload rejected", "err", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, imageUploadResponse{ImageURL: url, Stock: req.Stock})
}
