package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNotJSON is returned when a completion cannot be parsed as a JSON object
// even after repair. It signals a malformed model reply, not a provider
// outage; callers should not retry.
var ErrNotJSON = errors.New("llm: response is not valid JSON")

// ExtractJSON pulls a JSON object out of a model completion. The text may
// be bare JSON, a single fenced code block (with or without a language tag),
// or a fenced block surrounded by prose. Returns a string that unmarshals
// cleanly into an object, applying jsonrepair before giving up.
func ExtractJSON(raw string) (string, error) {
	candidate := strings.TrimSpace(StripFence(raw))
	if candidate == "" {
		return "", ErrNotJSON
	}

	if isJSONObject(candidate) {
		return candidate, nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil || !isJSONObject(repaired) {
		return "", ErrNotJSON
	}
	return repaired, nil
}

// isJSONObject reports whether s is a valid JSON document with an object at
// the top level. Repair coerces arbitrary prose into a quoted JSON string,
// so validity alone does not prove the model answered in the shape asked
// for.
func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// StripFence removes a single markdown code fence from the text, tolerating
// a language tag after the opening marker and prose before or after the
// block. Text without a fence is returned trimmed.
func StripFence(text string) string {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "```")
	if start == -1 {
		return text
	}

	body := text[start+3:]
	// Drop the language tag, if any, on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(body[:nl])
		if isLanguageTag(firstLine) {
			body = body[nl+1:]
		}
	}

	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// isLanguageTag reports whether a fence header line looks like a language
// identifier ("json", "go", ...) rather than content.
func isLanguageTag(line string) bool {
	if line == "" {
		return true
	}
	if len(line) > 20 {
		return false
	}
	for _, r := range line {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '#') {
			return false
		}
	}
	return true
}
