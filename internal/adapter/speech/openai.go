package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

// Client calls the OpenAI-compatible audio endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	sttModel   string
	httpClient *http.Client
}

// NewClient creates a new audio client. sttModel names the transcription
// model.
func NewClient(baseURL, apiKey, sttModel string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		sttModel: sttModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var (
	_ Transcriber = (*Client)(nil)
	_ Synthesizer = (*Client)(nil)
)

// Name identifies the engine in logs.
func (c *Client) Name() string { return "openai" }

// Transcribe uploads audio as multipart form data and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model", c.sttModel); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", audioContentType(filename))
	part, err := w.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal transcription: %w", err)
	}
	return result.Text, nil
}

// Synthesize requests mp3 speech for req.Text.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"model": req.Model,
		"voice": req.Voice,
		"input": req.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio API error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// audioContentType derives "audio/<ext>" from the uploaded file name.
func audioContentType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		ext = "webm"
	}
	return "audio/" + ext
}
