package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeModelJSON parses JSON out of an LLM response, tolerating markdown
// code fences and surrounding prose.
func DecodeModelJSON(text string, out any) error {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimPrefix(cleaned, "json")
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	// Fall back to the outermost braces when the model added prose.
	if !strings.HasPrefix(cleaned, "{") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("no JSON object in model output")
		}
		cleaned = cleaned[start : end+1]
	}

	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}
