// Package cli provides shared formatting helpers for vtyconform terminal output.
package cli

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// colorEnabled is false when NO_COLOR is set (per no-color.org) or stdout is
// not a terminal.
var colorEnabled = os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())

// SetColor forces colour output on or off, overriding detection.
func SetColor(on bool) {
	colorEnabled = on
}

func wrap(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Green wraps s in ANSI green.
func Green(s string) string { return wrap("32", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return wrap("33", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return wrap("31", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return wrap("1", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return wrap("2", s) }

// Status colours a PASS/FAIL/SKIP/ERROR style status word.
func Status(s string) string {
	switch strings.ToUpper(s) {
	case "PASS", "COMPLETE":
		return Green(s)
	case "FAIL", "ERROR", "FAILED", "ABORTED":
		return Red(s)
	case "SKIP", "PAUSED", "PAUSING":
		return Yellow(s)
	default:
		return s
	}
}

// DotPad pads name with dots to the given width.
// Example: DotPad("bgp-neighbor", 20) → "bgp-neighbor ......."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
