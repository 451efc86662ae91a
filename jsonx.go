package reconcile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

var fencePattern = regexp.MustCompile("(?s)```\\s*(?:json|JSON)?\\s*\\n(.*?)\\n?\\s*```")

// refusalPrefixes and refusalMarkers identify prose answers that mean
// "nothing to extract".
var (
	refusalPrefixes = []string{"I'm sorry", "I’m sorry", "Sorry"}
	refusalMarkers  = []string{"does not specify", "no relevant"}
)

// SanitizeJSONResponse removes the code fences completion services like to
// wrap JSON in.
func SanitizeJSONResponse(b []byte) []byte {
	s := strings.TrimSpace(string(b))
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}

// IsRefusal reports whether text is a natural-language answer saying the
// input holds nothing relevant.
func IsRefusal(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	for _, p := range refusalPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	lower := strings.ToLower(t)
	for _, m := range refusalMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ParsePayload turns raw completion text into a Value.
//
// Text that starts like JSON is decoded directly, falling back to recovery.
// Refusals become an empty array. Anything else is searched for an embedded
// JSON document. A single-element array is unwrapped to its element.
func ParsePayload(raw string) (Value, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Value{}, &ParseError{Raw: raw, Err: ErrEmptyResponse}
	}

	looksJSON := strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")
	if !looksJSON && IsRefusal(text) {
		return Array(), nil
	}

	v, err := ExtractJSON(text)
	if err != nil {
		return Value{}, &ParseError{Raw: raw, Err: err}
	}
	return unwrapSingle(v), nil
}

func unwrapSingle(v Value) Value {
	if v.Kind() == KindArray && v.Len() == 1 {
		return v.Items()[0]
	}
	return v
}

// ExtractJSON recovers a JSON document from text that may surround it with
// prose or code fences.
func ExtractJSON(text string) (Value, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Value{}, eris.Wrap(ErrEmptyResponse, "extract json")
	}

	if cleaned := SanitizeJSONResponse([]byte(text)); gjson.ValidBytes(cleaned) {
		v, err := ParseValue(cleaned)
		// a JSON string holding a JSON document
		if err == nil && v.Kind() == KindString && gjson.Valid(v.AsString()) {
			return ParseValue([]byte(v.AsString()))
		}
		return v, err
	}

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if gjson.Valid(body) {
			return ParseValue([]byte(body))
		}
		if unescaped := strings.ReplaceAll(body, `\"`, `"`); gjson.Valid(unescaped) {
			return ParseValue([]byte(unescaped))
		}
	}

	if span, ok := firstJSONSpan(text); ok {
		return ParseValue([]byte(span))
	}

	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		if unquoted, err := strconv.Unquote(text); err == nil && gjson.Valid(unquoted) {
			return ParseValue([]byte(unquoted))
		}
		inner := strings.ReplaceAll(text[1:len(text)-1], `\"`, `"`)
		if gjson.Valid(inner) {
			return ParseValue([]byte(inner))
		}
	}

	return Value{}, eris.Wrap(ErrNoJSON, "extract json")
}

// firstJSONSpan scans for the first balanced {...} or [...] span that is
// valid JSON.
func firstJSONSpan(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end, ok := balancedEnd(text, start)
		if !ok {
			continue
		}
		if span := text[start : end+1]; gjson.Valid(span) {
			return span, true
		}
	}
	return "", false
}

func balancedEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
