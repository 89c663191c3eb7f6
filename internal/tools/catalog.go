// Package tools declares the dashboard actions offered to the model and
// dispatches the ones it selects.
package tools

import (
	"slices"

	"github.com/xiaot623/stockpilot/internal/domain"
)

// Dashboard action names.
const (
	SelectStock       = "select_stock"
	OpenTrainingArea  = "open_training_area"
	ExitTrainingArea  = "exit_training_area"
	ToggleActualData  = "toggle_actual_data"
	DeleteDataPoints  = "delete_data_points"
	TakeScreenshot    = "take_screenshot"
	stockArgumentName = "stock"
)

var stockOptions = []string{"Uber", "Google", "Apple", "Tesla", "Netflix", "Facebook", "Disney"}

// StockOptions returns the stocks the dashboard can display.
func StockOptions() []string {
	return slices.Clone(stockOptions)
}

func noArguments() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

// Definitions returns the tool catalog in its fixed order.
func Definitions() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        SelectStock,
			Description: "Select a stock to display on the dashboard chart.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					stockArgumentName: map[string]any{
						"type":        "string",
						"enum":        StockOptions(),
						"description": "The stock to select.",
					},
				},
				"required": []string{stockArgumentName},
			},
		},
		{
			Name:        OpenTrainingArea,
			Description: "Open the training area where the user can draw their own price prediction.",
			Parameters:  noArguments(),
		},
		{
			Name:        ExitTrainingArea,
			Description: "Leave the training area and return to the main dashboard.",
			Parameters:  noArguments(),
		},
		{
			Name:        ToggleActualData,
			Description: "Show or hide the actual price data next to the user's prediction.",
			Parameters:  noArguments(),
		},
		{
			Name:        DeleteDataPoints,
			Description: "Delete the data points the user has drawn in the training area.",
			Parameters:  noArguments(),
		},
		{
			Name:        TakeScreenshot,
			Description: "Open the screenshot selection tool so the user can capture part of the chart.",
			Parameters:  noArguments(),
		},
	}
}
