package domain

import (
	"encoding/json"
	"fmt"
)

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Kind PartKind
	Text string
	URL  string
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

// ImagePart builds an image content part from a URL or data URI.
func ImagePart(url string) ContentPart {
	return ContentPart{Kind: PartImage, URL: url}
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     *string       `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

// MarshalJSON encodes the part in the chat-completions multimodal form.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PartText:
		text := p.Text
		return json.Marshal(wirePart{Type: string(PartText), Text: &text})
	case PartImage:
		return json.Marshal(wirePart{Type: string(PartImage), ImageURL: &wireImageURL{URL: p.URL}})
	default:
		return nil, fmt.Errorf("unknown content part kind %q", p.Kind)
	}
}

// UnmarshalJSON decodes the chat-completions multimodal form.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var w wirePart
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch PartKind(w.Type) {
	case PartText:
		*p = ContentPart{Kind: PartText}
		if w.Text != nil {
			p.Text = *w.Text
		}
	case PartImage:
		*p = ContentPart{Kind: PartImage}
		if w.ImageURL != nil {
			p.URL = w.ImageURL.URL
		}
	default:
		return fmt.Errorf("unknown content part type %q", w.Type)
	}
	return nil
}

// Message is one conversation entry. Content is a string or []ContentPart
// once the history has been sanitized.
type Message struct {
	Role    Role `json:"role"`
	Content any  `json:"content"`
}

// ToolDefinition describes a capability offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolInvocation is a tool call selected by the model.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Envelope is the response of one conversation turn.
type Envelope struct {
	AssistantReply string           `json:"assistantReply"`
	ToolCalls      []ToolInvocation `json:"toolCalls"`
	Messages       []string         `json:"messages"`
	AudioURL       string           `json:"audioUrl,omitempty"`
	Transcription  string           `json:"transcription,omitempty"`
}

// NewEnvelope returns an envelope whose slices encode as arrays.
func NewEnvelope(reply string, calls ...ToolInvocation) *Envelope {
	if calls == nil {
		calls = []ToolInvocation{}
	}
	return &Envelope{
		AssistantReply: reply,
		ToolCalls:      calls,
		Messages:       []string{reply},
	}
}

// Frame is pushed to WebSocket subscribers of a session.
type Frame struct {
	Type      FrameType       `json:"type"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"`
	Envelope  *Envelope       `json:"envelope,omitempty"`
	Tool      *ToolInvocation `json:"tool,omitempty"`
}
