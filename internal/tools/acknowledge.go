package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Acknowledge returns the reply spoken after a tool is dispatched. It is
// defined for every name.
func Acknowledge(name string, args map[string]any) string {
	switch name {
	case SelectStock:
		stock, _ := args[stockArgumentName].(string)
		if strings.TrimSpace(stock) == "" {
			return "I've selected the requested stock for you."
		}
		return fmt.Sprintf("I've selected %s stock for you.", stock)
	case OpenTrainingArea:
		return "I've opened the training area for you."
	case ExitTrainingArea:
		return "I've returned you to the main area."
	case ToggleActualData:
		return "I've toggled the actual data display."
	case DeleteDataPoints:
		return "I've deleted the data points for you."
	case TakeScreenshot:
		return "I've triggered the screenshot selection tool for you."
	default:
		return fmt.Sprintf("I've executed the %s action.", name)
	}
}

// ParseArguments decodes the JSON argument text of a tool call. Anything that
// is not a JSON object yields an empty map.
func ParseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
