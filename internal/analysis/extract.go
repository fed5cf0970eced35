package analysis

import (
	"encoding/json"
	"strings"
)

// ExtractJSON turns a raw LLM completion into a decoded JSON object.
// Markdown code fences are stripped, and unbalanced trailing braces or
// brackets (a common truncation artifact) are repaired before giving up.
// A top-level value that parses but is not an object is not an error:
// the sanitizer treats every missing field as absent, so we hand it an
// empty candidate.
func ExtractJSON(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidErr("empty response from model")
	}

	stripped := stripFences(trimmed)
	if stripped == "" {
		return nil, invalidErr("response contained only code fences")
	}

	if candidate, ok := tryDecode(stripped); ok {
		return candidate, nil
	}

	repaired := repairBrackets(stripped)
	if repaired != stripped {
		if candidate, ok := tryDecode(repaired); ok {
			log.Warn().
				Int("originalLen", len(stripped)).
				Int("repairedLen", len(repaired)).
				Msg("model output was truncated; recovered by balancing brackets")
			return candidate, nil
		}
		return nil, invalidErr("truncated JSON: bracket repair did not yield a parseable document")
	}

	if strings.HasPrefix(stripped, "{") || strings.HasPrefix(stripped, "[") {
		return nil, invalidErr("malformed JSON in model response")
	}
	return nil, invalidErr("model response is not JSON")
}

func tryDecode(s string) (map[string]any, bool) {
	var value any
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return nil, false
	}
	if obj, ok := value.(map[string]any); ok {
		return obj, true
	}
	// Valid JSON, wrong top-level shape. Shape problems belong to the
	// sanitizer, not to this layer.
	return map[string]any{}, true
}

// stripFences removes a single surrounding Markdown code fence,
// with or without a language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag line ("json", "JSON", ...).
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || isLanguageTag(firstLine) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// repairBrackets appends missing closing braces/brackets when the model
// stopped mid-document. A stack keeps nesting order correct; brackets
// inside string literals are ignored.
func repairBrackets(s string) string {
	var stack []rune
	inString := false
	escaped := false

	for _, char := range s {
		if escaped {
			escaped = false
			continue
		}
		switch char {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, char)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	// An unterminated string cannot be repaired by appending brackets.
	if inString || len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
