package vtytest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vtyconform/vtyconform/pkg/output"
	"github.com/vtyconform/vtyconform/pkg/session"
)

// checkOutput evaluates the output assertions of e against d. It returns
// whether every assertion held and a message naming the first that did not,
// or summarising what was checked. An invalid regular expression is an error.
func checkOutput(e *ExpectBlock, d output.Dump) (bool, string, error) {
	if e == nil {
		return true, "no expectations", nil
	}
	if e.Section != "" {
		d = d.Section(e.Section)
		if d.Empty() && (len(e.Contains) > 0 || len(e.Lines) > 0 || len(e.Matches) > 0) {
			return false, fmt.Sprintf("section %q not found", e.Section), nil
		}
	}

	checks := 0
	for _, s := range e.Contains {
		checks++
		if !d.Contains(s) {
			return false, fmt.Sprintf("output does not contain %q", s), nil
		}
	}
	for _, s := range e.Absent {
		checks++
		if d.Contains(s) {
			return false, fmt.Sprintf("output still contains %q", s), nil
		}
	}
	for _, s := range e.Lines {
		checks++
		if !d.ContainsLine(s) {
			return false, fmt.Sprintf("no line equal to %q", s), nil
		}
	}
	for _, p := range e.Matches {
		checks++
		ok, err := d.Match(p)
		if err != nil {
			return false, "", fmt.Errorf("pattern %q: %w", p, err)
		}
		if !ok {
			return false, fmt.Sprintf("output does not match /%s/", p), nil
		}
	}
	for _, p := range e.NotMatches {
		checks++
		ok, err := d.Match(p)
		if err != nil {
			return false, "", fmt.Errorf("pattern %q: %w", p, err)
		}
		if ok {
			return false, fmt.Sprintf("output matches /%s/", p), nil
		}
	}
	for _, s := range sortedKeys(e.Count) {
		checks++
		want := e.Count[s]
		if got := d.Count(s); got != want {
			return false, fmt.Sprintf("%q appears on %d lines, want %d", s, got, want), nil
		}
	}
	for _, path := range sortedKeys(e.JSON) {
		checks++
		want := e.JSON[path]
		got, ok := d.JSON(path)
		if !ok {
			return false, fmt.Sprintf("json path %s not found", path), nil
		}
		if got != want {
			return false, fmt.Sprintf("json %s = %q, want %q", path, got, want), nil
		}
	}
	if e.Empty != nil {
		checks++
		if d.Empty() != *e.Empty {
			if *e.Empty {
				return false, fmt.Sprintf("output not empty: %s", firstLine(d)), nil
			}
			return false, "output is empty", nil
		}
	}

	return true, fmt.Sprintf("%d checks passed", checks), nil
}

// checkCLIError compares a command's rejection text (empty when the CLI
// accepted it) with what e expects. It returns ok=false with a message when
// they disagree.
func checkCLIError(e *ExpectBlock, rejected string) (bool, string) {
	if !e.expectsCLIError() {
		if rejected != "" {
			return false, rejected
		}
		return true, ""
	}
	if rejected == "" {
		return false, "command accepted, expected CLI error"
	}
	if e.CLIErrorContains != "" && !strings.Contains(rejected, e.CLIErrorContains) {
		return false, fmt.Sprintf("CLI error %q does not contain %q", rejected, e.CLIErrorContains)
	}
	return true, "rejected as expected: " + rejected
}

// rejection returns the CLI error line in d. A command that printed no marker
// but exited non-zero counts as rejected with the exit status as its text.
func rejection(d output.Dump, runErr error) string {
	if msg := d.CLIError(); msg != "" {
		return msg
	}
	var exitErr *session.ExitError
	if errors.As(runErr, &exitErr) {
		return fmt.Sprintf("exit status %d", exitErr.Status)
	}
	return ""
}

// hardError drops non-zero exit statuses from err; what is left is a
// transport or timeout failure.
func hardError(err error) error {
	var exitErr *session.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func firstLine(d output.Dump) string {
	if d.Empty() {
		return ""
	}
	return d.Lines()[0]
}
