package input

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/stockpilot/internal/domain"
)

func TestNormalizeNone(t *testing.T) {
	for _, in := range []*Input{nil, None()} {
		got := Normalize(in)
		assert.Equal(t, []domain.ContentPart{domain.TextPart("No input received")}, got.Payload)
		assert.Equal(t, "No input received", got.Note)
	}
}

func TestNormalizeText(t *testing.T) {
	got := Normalize(FromText("  hi  "))
	assert.Equal(t, []domain.ContentPart{domain.TextPart("  hi  ")}, got.Payload)
	assert.Equal(t, "  hi  ", got.Note)
}

func TestNormalizeImageAndText(t *testing.T) {
	got := Normalize(FromObject(map[string]any{
		"text":        " what is this? ",
		"base64Image": "data:image/png;base64,AAA",
	}))
	assert.Equal(t, []domain.ContentPart{
		domain.ImagePart("data:image/png;base64,AAA"),
		domain.TextPart("what is this?"),
	}, got.Payload)
	assert.Equal(t, "[Image uploaded]\n\nwhat is this?", got.Note)
}

func TestNormalizeImageOnly(t *testing.T) {
	got := Normalize(FromObject(map[string]any{"image_url": "/images/latest.png", "text": "   "}))
	assert.Equal(t, []domain.ContentPart{domain.ImagePart("/images/latest.png")}, got.Payload)
	assert.Equal(t, "[Image uploaded]", got.Note)
}

func TestImageKeyPriority(t *testing.T) {
	in := FromObject(map[string]any{
		"image_url":   "c",
		"image":       "b",
		"base64Image": "a",
	})
	assert.Equal(t, "a", in.Image)

	in = FromObject(map[string]any{"image_url": "c", "image": "b"})
	assert.Equal(t, "b", in.Image)

	in = FromObject(map[string]any{"image_url": "c", "image": ""})
	assert.Equal(t, "c", in.Image)
}

func TestNormalizeObjectFallback(t *testing.T) {
	got := Normalize(FromObject(map[string]any{"foo": 1.0, "stock": "Apple"}))
	assert.Equal(t, `{"foo":1,"stock":"Apple"}`, got.Note)
	assert.Equal(t, []domain.ContentPart{domain.TextPart(`{"foo":1,"stock":"Apple"}`)}, got.Payload)
}

func TestHasStock(t *testing.T) {
	assert.True(t, FromObject(map[string]any{"stock": "Tesla"}).HasStock())
	assert.False(t, FromObject(map[string]any{"stock": "  "}).HasStock())
	assert.False(t, FromText("Tesla").HasStock())
	var in *Input
	assert.False(t, in.HasStock())
}
