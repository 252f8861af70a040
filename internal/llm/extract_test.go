package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONBare(t *testing.T) {
	out, err := ExtractJSON(`{"a": [1, 2]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"a": [1, 2]}` {
		t.Errorf("got %q", out)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	cases := map[string]string{
		"tagged fence":    "```json\n{\"a\": 1}\n```",
		"untagged fence":  "```\n{\"a\": 1}\n```",
		"leading prose":   "Here is the result you asked for:\n```json\n{\"a\": 1}\n```",
		"trailing prose":  "```json\n{\"a\": 1}\n```\nLet me know if you need more.",
		"prose both ends": "Sure!\n```\n{\"a\": 1}\n```\nDone.",
	}

	for name, input := range cases {
		out, err := ExtractJSON(input)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
			continue
		}
		var parsed map[string]int
		if err := json.Unmarshal([]byte(out), &parsed); err != nil {
			t.Errorf("%s: output does not parse: %v", name, err)
			continue
		}
		if parsed["a"] != 1 {
			t.Errorf("%s: got %v", name, parsed)
		}
	}
}

func TestExtractJSONRepairsMalformed(t *testing.T) {
	// Trailing comma and single quotes are common model slips.
	out, err := ExtractJSON("```json\n{'items': [\"x\", \"y\",]}\n```")
	if err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	var parsed struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("repaired output does not parse: %v", err)
	}
	if len(parsed.Items) != 2 {
		t.Errorf("got %v", parsed.Items)
	}
}

func TestExtractJSONHardFailure(t *testing.T) {
	// Repair can quote arbitrary prose into a valid JSON string; a refusal
	// must still fail, not come back as "\"I cannot help with that.\"".
	cases := []string{
		"the model refused to answer",
		"I cannot help with that.",
		"",
		`"just a string"`,
		`[1, 2, 3]`,
	}
	for _, input := range cases {
		if out, err := ExtractJSON(input); err != ErrNotJSON {
			t.Errorf("input %q: expected ErrNotJSON, got %q, %v", input, out, err)
		}
	}
}

func TestStripFenceNoFence(t *testing.T) {
	if got := StripFence("  plain text  "); got != "plain text" {
		t.Errorf("got %q", got)
	}
}
