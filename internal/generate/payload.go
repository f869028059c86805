package generate

import (
	"encoding/json"
	"strings"
)

// extractCompletionText pulls generated text out of a completion response
// without assuming one fixed schema. Accepted shapes, in order:
//
//	"bare string"
//	{"content": "text"} or {"content": ["frag", {"text": "frag"}]}
//	{"choices": [{"text": "..."}]} or {"choices": [{"message": {"content": "..."}}]}
func extractCompletionText(body []byte) string {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch v := payload.(type) {
	case string:
		return v
	case map[string]any:
		if text := normalizeContent(v["content"]); text != "" {
			return text
		}
		return textFromChoices(v["choices"])
	}
	return ""
}

func normalizeContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var pieces []string
		for _, item := range v {
			switch it := item.(type) {
			case string:
				pieces = append(pieces, it)
			case map[string]any:
				if text, ok := it["text"].(string); ok {
					pieces = append(pieces, text)
				}
			}
		}
		return strings.Join(pieces, "")
	}
	return ""
}

func textFromChoices(choices any) string {
	list, ok := choices.([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return ""
	}
	if text, ok := first["text"].(string); ok {
		return text
	}
	if message, ok := first["message"].(map[string]any); ok {
		if content, ok := message["content"].(string); ok {
			return content
		}
	}
	return ""
}
