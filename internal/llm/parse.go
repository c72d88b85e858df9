package llm

import (
	"encoding/json"
	"strings"
)

// ParseJSON extracts a JSON document from a completion that may wrap it
// in markdown fences or surrounding prose. Returns false when no
// parseable document is found; callers fall back to a default value.
func ParseJSON(text string, v any) bool {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		lines = lines[1:]
		end := len(lines)
		for i, l := range lines {
			if strings.TrimSpace(l) == "```" {
				end = i
				break
			}
		}
		text = strings.Join(lines[:end], "\n")
	}

	if json.Unmarshal([]byte(text), v) == nil {
		return true
	}

	if sub := extractDelimited(text, '{', '}'); sub != "" {
		if json.Unmarshal([]byte(sub), v) == nil {
			return true
		}
	}
	if sub := extractDelimited(text, '[', ']'); sub != "" {
		if json.Unmarshal([]byte(sub), v) == nil {
			return true
		}
	}

	return false
}

func extractDelimited(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
