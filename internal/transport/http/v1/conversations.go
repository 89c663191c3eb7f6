package v1

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/input"
	"github.com/xiaot623/stockpilot/internal/service"
)

const defaultSessionKey = "default"

type conversationMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type conversationRequest struct {
	SessionID   string                `json:"session_id"`
	Messages    []conversationMessage `json:"messages"`
	ImageURL    string                `json:"image_url"`
	Image       string                `json:"image"`
	Base64Image string                `json:"base64Image"`
	Text        *string               `json:"text"`
	Stock       string                `json:"stock"`
}

// CreateConversation runs one conversation turn.
// POST /api/v1/conversations
func (h *Handler) CreateConversation(c echo.Context) error {
	req, err := h.parseTurnRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	env, err := h.service.Respond(c.Request().Context(), *req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, env)
}

func (h *Handler) parseTurnRequest(c echo.Context) (*service.TurnRequest, error) {
	sessionKey := c.Request().Header.Get(SessionHeader)

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return parseAudioRequest(c, sessionKey)
	}

	var body conversationRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil && err != io.EOF {
		return nil, domain.NewInputError("Invalid request body")
	}
	if sessionKey == "" {
		sessionKey = body.SessionID
	}
	if sessionKey == "" {
		sessionKey = defaultSessionKey
	}

	in, err := h.inputFromBody(&body)
	if err != nil {
		return nil, err
	}
	return &service.TurnRequest{SessionKey: sessionKey, Input: in}, nil
}

func parseAudioRequest(c echo.Context, sessionKey string) (*service.TurnRequest, error) {
	if sessionKey == "" {
		sessionKey = c.FormValue("session_id")
	}
	if sessionKey == "" {
		sessionKey = defaultSessionKey
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return nil, domain.NewInputError("Missing or invalid input")
	}
	src, err := file.Open()
	if err != nil {
		return nil, domain.NewInputError("Missing or invalid input")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, domain.NewInputError("Missing or invalid input")
	}
	return &service.TurnRequest{
		SessionKey:    sessionKey,
		Audio:         data,
		AudioFilename: file.Filename,
	}, nil
}

// inputFromBody picks the first input form present in the body, in the order
// messages, image_url, image, text.
func (h *Handler) inputFromBody(body *conversationRequest) (*input.Input, error) {
	switch {
	case body.Messages != nil:
		return multimodalInput(body.Messages, body.Stock)
	case body.ImageURL != "":
		image, err := h.service.LoadImage(body.ImageURL)
		if err != nil {
			return nil, err
		}
		return input.FromObject(withStock(map[string]any{"image": image}, body.Stock)), nil
	case body.Image != "" || body.Base64Image != "":
		fields := map[string]any{}
		if body.Base64Image != "" {
			fields["base64Image"] = body.Base64Image
		}
		if body.Image != "" {
			fields["image"] = body.Image
		}
		if body.Text != nil {
			fields["text"] = *body.Text
		}
		return input.FromObject(withStock(fields, body.Stock)), nil
	case body.Text != nil:
		return input.FromText(*body.Text), nil
	}
	return nil, domain.NewInputError("Missing or invalid input")
}

// multimodalInput merges the content parts of the first message. A later
// part of the same kind replaces an earlier one and unknown parts are skipped.
func multimodalInput(messages []conversationMessage, stock string) (*input.Input, error) {
	if len(messages) == 0 {
		return nil, domain.NewInputError("Invalid messages format")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(messages[0].Content, &raw); err != nil {
		return nil, domain.NewInputError("Invalid messages format")
	}

	fields := map[string]any{}
	for _, r := range raw {
		var part domain.ContentPart
		if err := json.Unmarshal(r, &part); err != nil {
			continue
		}
		switch part.Kind {
		case domain.PartText:
			fields["text"] = part.Text
		case domain.PartImage:
			fields["image_url"] = part.URL
		}
	}
	return input.FromObject(withStock(fields, stock)), nil
}

func withStock(fields map[string]any, stock string) map[string]any {
	if stock != "" {
		fields["stock"] = stock
	}
	return fields
}
