package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the outermost JSON object or array out of model output,
// tolerating code fences and surrounding prose. The second return is false
// when no JSON payload can be located; callers treat that as "no data".
func ExtractJSON(raw string) (string, bool) {
	clean := stripCodeFences(strings.TrimSpace(raw))

	objStart := strings.Index(clean, "{")
	arrStart := strings.Index(clean, "[")

	start, closer := objStart, "}"
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start < 0 {
		return "", false
	}

	end := strings.LastIndex(clean, closer)
	if end <= start {
		return "", false
	}
	return clean[start : end+1], true
}

// DecodeJSON extracts the JSON payload from raw and unmarshals it into v.
func DecodeJSON(raw string, v any) error {
	payload, ok := ExtractJSON(raw)
	if !ok {
		return fmt.Errorf("no json payload in model output")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to parse model json: %w", err)
	}
	return nil
}

func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
