// Package input converts raw user input into the multimodal payload sent to
// the model and the textual note kept in conversation history.
package input

import "strings"

// Kind tags the variant held by an Input.
type Kind int

const (
	// KindNone means no input was received.
	KindNone Kind = iota
	// KindText is a bare text value, used verbatim.
	KindText
	// KindObject is a structured record with optional text, image and stock.
	KindObject
)

// Image keys in the order they are consulted on a structured record.
var imageKeys = []string{"base64Image", "image", "image_url"}

// Input is the validated form of one user input.
type Input struct {
	Kind  Kind
	Text  string
	Image string
	Stock string
	// Fields keeps the original record for the serialized fallback.
	Fields map[string]any
}

// None returns the absent input.
func None() *Input {
	return &Input{Kind: KindNone}
}

// FromText wraps a bare text value.
func FromText(text string) *Input {
	return &Input{Kind: KindText, Text: text}
}

// FromObject builds an input from a structured record. The image reference is
// taken from the first non-empty of base64Image, image and image_url.
func FromObject(fields map[string]any) *Input {
	if fields == nil {
		fields = map[string]any{}
	}
	in := &Input{Kind: KindObject, Fields: fields}
	for _, key := range imageKeys {
		if s, ok := fields[key].(string); ok && s != "" {
			in.Image = s
			break
		}
	}
	if s, ok := fields["text"].(string); ok {
		in.Text = s
	}
	if s, ok := fields["stock"].(string); ok {
		in.Stock = s
	}
	return in
}

// HasStock reports whether a stock hint accompanies the input.
func (in *Input) HasStock() bool {
	return in != nil && strings.TrimSpace(in.Stock) != ""
}
