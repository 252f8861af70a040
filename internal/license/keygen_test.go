package license

import (
	"regexp"
	"testing"
)

var keyPattern = regexp.MustCompile(`^GOBOT-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func TestGenerateKeyCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateKeyCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !keyPattern.MatchString(code) {
			t.Fatalf("key %q does not match expected format", code)
		}
	}
}

func TestGenerateKeyCodeUniqueness(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		code, err := GenerateKeyCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if seen[code] {
			t.Fatalf("duplicate key generated: %s", code)
		}
		seen[code] = true
	}
}
