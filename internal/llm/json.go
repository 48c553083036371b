package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Model output is expected to be strict JSON but often arrives wrapped
// in code fences or prose. These helpers extract the first balanced
// JSON value before decoding; they never guess at malformed JSON.

// ExtractJSONObject returns the first balanced {...} substring.
func ExtractJSONObject(s string) (string, bool) {
	return extractBalanced(stripFences(s), '{', '}')
}

// ExtractJSONArray returns the first balanced [...] substring.
func ExtractJSONArray(s string) (string, bool) {
	return extractBalanced(stripFences(s), '[', ']')
}

// DecodeObject extracts and unmarshals the first JSON object in s.
func DecodeObject(s string, v interface{}) error {
	obj, ok := ExtractJSONObject(s)
	if !ok {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// DecodeStringArray extracts and unmarshals the first JSON array of
// strings in s.
func DecodeStringArray(s string) ([]string, error) {
	arr, ok := ExtractJSONArray(s)
	if !ok {
		return nil, fmt.Errorf("no JSON array in model output")
	}
	var out []string
	if err := json.Unmarshal([]byte(arr), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// extractBalanced finds the first balanced open..close span, tracking
// JSON string literals so braces inside strings do not count.
func extractBalanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
