// Package chat talks to the conversation API and routes every reply through
// a router.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/stockpilot/internal/client/router"
	"github.com/xiaot623/stockpilot/internal/domain"
)

const (
	conversationPath = "/api/v1/conversations"
	imagePath        = "/api/v1/images"
	sessionPath      = "/api/v1/sessions"
	sessionHeader    = "X-Session-ID"
)

// Client sends user turns on behalf of one session.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
	router     *router.Router
}

// NewClient creates a chat client. An empty sessionID lets the server use
// its default session.
func NewClient(baseURL, sessionID string, timeout time.Duration, r *router.Router) *Client {
	if r == nil {
		r = router.New()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		router: r,
	}
}

// Router returns the router replies are delivered to.
func (c *Client) Router() *router.Router {
	return c.router
}

// SessionID returns the session the client speaks for.
func (c *Client) SessionID() string {
	return c.sessionID
}

// SendText sends a text turn. It also serves as the sender of the speech
// session.
func (c *Client) SendText(ctx context.Context, text string) (*domain.Envelope, error) {
	return c.sendChat(ctx, text, "", "")
}

// SendImage sends a screenshot with optional text and stock hint.
func (c *Client) SendImage(ctx context.Context, dataURI, text, stock string) (*domain.Envelope, error) {
	return c.sendChat(ctx, text, dataURI, stock)
}

type chatMessage struct {
	Role    string               `json:"role"`
	Content []domain.ContentPart `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Stock    string        `json:"stock,omitempty"`
}

func (c *Client) sendChat(ctx context.Context, text, image, stock string) (*domain.Envelope, error) {
	content := []domain.ContentPart{}
	if image != "" {
		content = append(content, domain.ImagePart(image))
	}
	if t := strings.TrimSpace(text); t != "" {
		content = append(content, domain.TextPart(t))
	}

	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{{Role: string(domain.RoleUser), Content: content}},
		Stock:    stock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	env := &domain.Envelope{}
	if err := c.do(ctx, conversationPath, "application/json", bytes.NewReader(body), env); err != nil {
		return nil, err
	}
	return env, c.router.Route(ctx, env)
}

// SendVoice uploads a recording as a voice turn.
func (c *Client) SendVoice(ctx context.Context, audio []byte, filename string) (*domain.Envelope, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	env := &domain.Envelope{}
	if err := c.do(ctx, conversationPath, w.FormDataContentType(), &buf, env); err != nil {
		return nil, err
	}
	return env, c.router.Route(ctx, env)
}

// UploadImage stores a screenshot and returns its URL.
func (c *Client) UploadImage(ctx context.Context, dataURI, stock string) (string, error) {
	body, err := json.Marshal(map[string]string{"image": dataURI, "stock": stock})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp struct {
		ImageURL string `json:"image_url"`
	}
	if err := c.do(ctx, imagePath, "application/json", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.ImageURL, nil
}

// NewSession asks the server for a fresh session key and switches to it.
func (c *Client) NewSession(ctx context.Context) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, sessionPath, "application/json", nil, &resp); err != nil {
		return "", err
	}
	c.sessionID = resp.SessionID
	return resp.SessionID, nil
}

// Error is a non-2xx reply of the server.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error [%d]: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return &Error{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
