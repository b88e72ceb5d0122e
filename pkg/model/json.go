package model

import (
	"encoding/json"
	"strings"

	"github.com/tallyhq/tally/pkg/errors"
)

// DecodeJSON extracts and unmarshals a JSON object from model output.
// Models wrap JSON in markdown fences or prose often enough that decoding
// the raw text directly is not reliable.
func DecodeJSON(text string, v any) error {
	payload := ExtractJSON(text)
	if payload == "" {
		return errors.New(errors.ErrCodeLMBadResponse, "no JSON object in model output").
			WithContext("text", truncate(text, 500))
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return errors.Wrap(err, errors.ErrCodeLMBadResponse, "decode model JSON").
			WithContext("text", truncate(payload, 500))
	}
	return nil
}

// ExtractJSON returns the first JSON object found in text, handling
// ```json fences and surrounding prose. Returns "" when none is found.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if after, ok := strings.CutPrefix(rest, "json"); ok {
			rest = after
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
