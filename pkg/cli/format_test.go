package cli

import (
	"strings"
	"testing"
)

func TestDotPad(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{"normal case", "bgp-neighbor", 20, "bgp-neighbor " + strings.Repeat(".", 7)},
		{"short name", "ok", 10, "ok " + strings.Repeat(".", 7)},
		{"name equals width minus one", "abcde", 6, "abcde"},
		{"name longer than width", "abcdefgh", 6, "abcdefgh"},
		{"zero width", "abc", 0, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DotPad(tt.input, tt.width); got != tt.expected {
				t.Errorf("DotPad(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
			}
		})
	}
}

func TestColorsDisabled(t *testing.T) {
	SetColor(false)
	defer SetColor(false)

	for _, fn := range []func(string) string{Green, Yellow, Red, Bold, Dim} {
		if got := fn("x"); got != "x" {
			t.Errorf("colour disabled: got %q, want %q", got, "x")
		}
	}
}

func TestStatus(t *testing.T) {
	SetColor(true)
	defer SetColor(false)

	tests := []struct {
		status string
		code   string
	}{
		{"PASS", "\033[32m"},
		{"FAIL", "\033[31m"},
		{"ERROR", "\033[31m"},
		{"SKIP", "\033[33m"},
	}
	for _, tt := range tests {
		if got := Status(tt.status); !strings.HasPrefix(got, tt.code) {
			t.Errorf("Status(%q) = %q, want prefix %q", tt.status, got, tt.code)
		}
	}
	if got := Status("running"); got != "running" {
		t.Errorf("Status(running) = %q, want uncoloured", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"neighbor 10.0.0.1 remote-as 2", 12, "neighbor ..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
