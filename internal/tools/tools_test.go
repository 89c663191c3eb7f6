package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionsOrder(t *testing.T) {
	defs := Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{
		SelectStock, OpenTrainingArea, ExitTrainingArea,
		ToggleActualData, DeleteDataPoints, TakeScreenshot,
	}, names)

	props := defs[0].Parameters["properties"].(map[string]any)
	stock := props["stock"].(map[string]any)
	assert.Equal(t, []string{"Uber", "Google", "Apple", "Tesla", "Netflix", "Facebook", "Disney"}, stock["enum"])
	assert.Equal(t, []string{"stock"}, defs[0].Parameters["required"])
}

func TestStockOptionsIsCopy(t *testing.T) {
	opts := StockOptions()
	opts[0] = "Nope"
	assert.Equal(t, "Uber", StockOptions()[0])
}

func TestAcknowledge(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
		want string
	}{
		{SelectStock, map[string]any{"stock": "Tesla"}, "I've selected Tesla stock for you."},
		{SelectStock, map[string]any{}, "I've selected the requested stock for you."},
		{OpenTrainingArea, nil, "I've opened the training area for you."},
		{ExitTrainingArea, nil, "I've returned you to the main area."},
		{ToggleActualData, nil, "I've toggled the actual data display."},
		{DeleteDataPoints, nil, "I've deleted the data points for you."},
		{TakeScreenshot, nil, "I've triggered the screenshot selection tool for you."},
		{"zoom_chart", nil, "I've executed the zoom_chart action."},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Acknowledge(tc.name, tc.args), tc.name)
	}
}

func TestParseArguments(t *testing.T) {
	assert.Equal(t, map[string]any{"stock": "Apple"}, ParseArguments(`{"stock":"Apple"}`))
	assert.Equal(t, map[string]any{}, ParseArguments(""))
	assert.Equal(t, map[string]any{}, ParseArguments("not json"))
	assert.Equal(t, map[string]any{}, ParseArguments("null"))
	assert.Equal(t, map[string]any{}, ParseArguments(`["a"]`))
}

func TestDispatcherNamedAndFallback(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	require.NoError(t, d.Register(SelectStock, func(ctx context.Context, name string, args map[string]any) error {
		calls = append(calls, "first:"+name)
		return nil
	}))
	require.NoError(t, d.Register(SelectStock, func(ctx context.Context, name string, args map[string]any) error {
		calls = append(calls, "named:"+args["stock"].(string))
		return nil
	}))
	d.RegisterFallback(func(ctx context.Context, name string, args map[string]any) error {
		calls = append(calls, "old-fallback:"+name)
		return nil
	})
	d.RegisterFallback(func(ctx context.Context, name string, args map[string]any) error {
		calls = append(calls, "fallback:"+name)
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), SelectStock, map[string]any{"stock": "Uber"}))
	require.NoError(t, d.Dispatch(context.Background(), TakeScreenshot, map[string]any{}))

	assert.Equal(t, []string{"named:Uber", "fallback:take_screenshot"}, calls)
}

func TestDispatcherNoHandlerIsNoop(t *testing.T) {
	d := NewDispatcher()
	assert.NoError(t, d.Dispatch(context.Background(), "anything", nil))
	assert.ErrorIs(t, d.Register("", nil), ErrEmptyName)
}

func TestDispatcherPropagatesErrors(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	d.RegisterFallback(func(ctx context.Context, name string, args map[string]any) error { return boom })
	assert.ErrorIs(t, d.Dispatch(context.Background(), ToggleActualData, nil), boom)
}
