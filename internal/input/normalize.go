package input

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/stockpilot/internal/domain"
)

const (
	noInputNote      = "No input received"
	imagePlaceholder = "[Image uploaded]"
	noTextContent    = "[No text content]"
)

// Normalized is the outcome of normalizing one input.
type Normalized struct {
	// Payload goes to the model as the current user turn.
	Payload []domain.ContentPart
	// Note is what conversation history records for the turn.
	Note string
}

// Normalize converts in into a model payload and a history note. It never
// fails: absent input yields the placeholder as both note and text part.
func Normalize(in *Input) Normalized {
	if in == nil || in.Kind == KindNone {
		return Normalized{
			Payload: []domain.ContentPart{domain.TextPart(noInputNote)},
			Note:    noInputNote,
		}
	}

	if in.Kind == KindText {
		return Normalized{
			Payload: []domain.ContentPart{domain.TextPart(in.Text)},
			Note:    in.Text,
		}
	}

	var (
		payload []domain.ContentPart
		notes   []string
	)
	text := strings.TrimSpace(in.Text)
	if in.Image != "" {
		payload = append(payload, domain.ImagePart(in.Image))
		notes = append(notes, imagePlaceholder)
	}
	if text != "" {
		payload = append(payload, domain.TextPart(text))
		notes = append(notes, text)
	}

	if len(payload) == 0 {
		serialized := serialize(in.Fields)
		return Normalized{
			Payload: []domain.ContentPart{domain.TextPart(serialized)},
			Note:    serialized,
		}
	}

	note := strings.Join(notes, "\n\n")
	if note == "" {
		note = noTextContent
	}
	return Normalized{Payload: payload, Note: note}
}

func serialize(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprint(fields)
	}
	return string(data)
}
