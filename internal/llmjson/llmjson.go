// Package llmjson extracts JSON objects from language-model output.
//
// Model responses rarely contain clean JSON: they arrive wrapped in
// markdown fences, prefixed with prose, or truncated mid-object when the
// token budget runs out. Extract scans for the first balanced object and
// repairs unterminated tails so callers can unmarshal with a deterministic
// fallback on failure instead of trusting the model's formatting.
package llmjson

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject is returned when the input contains no JSON object at all.
var ErrNoObject = errors.New("no JSON object found in text")

// Extract returns the first JSON object span found in s. Markdown code
// fences and surrounding prose are ignored. If the object is truncated,
// the unterminated string and any open braces/brackets are closed so the
// result is syntactically balanced. The returned span is not guaranteed
// to unmarshal; callers must still handle Decode failure.
func Extract(s string) (string, bool) {
	s = stripFences(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	var (
		stack    []byte // open '{' and '['
		inString bool
		escaped  bool
	)

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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}

	// Truncated output: close the open string, then unwind the stack.
	var b strings.Builder
	b.WriteString(s[start:])
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

// Decode extracts the first JSON object from s and unmarshals it into v.
func Decode(s string, v any) error {
	obj, ok := Extract(s)
	if !ok {
		return ErrNoObject
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return err
	}
	return nil
}

// stripFences removes markdown code fences so the scanner sees the payload
// even when the model wraps it in ```json blocks.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
