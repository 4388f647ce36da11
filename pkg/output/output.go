// Package output models the text a device CLI returns for a command and the
// checks scenarios run against it: substring, whole-line, regular expression,
// running-config section and JSON path lookups.
package output

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ansiRe  = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	pagerRe = regexp.MustCompile(`[ \t]*--More--[ \t]*(\x08+[ \t]*\x08+)?`)
)

// cliErrorMarkers are the line prefixes vtysh uses to reject a command.
var cliErrorMarkers = []string{
	"% Unknown command",
	"% Invalid input",
	"% Command incomplete",
	"% Ambiguous command",
	"% Error",
	"% Malformed",
}

// Dump is the normalised output of one command.
type Dump struct {
	Command string
	Raw     string

	lines []string
}

// New normalises raw command output. CRLF becomes LF, ANSI escapes and pager
// prompts are removed, and trailing whitespace is trimmed from every line.
func New(command, raw string) Dump {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")
	// Removing one marker can join the halves of another.
	for {
		stripped := pagerRe.ReplaceAllString(ansiRe.ReplaceAllString(text, ""), "")
		if stripped == text {
			break
		}
		text = stripped
	}

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		lines = append(lines, strings.TrimRight(l, " \t\x08"))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return Dump{Command: command, Raw: raw, lines: lines}
}

// Lines returns the normalised lines. The slice must not be modified.
func (d Dump) Lines() []string {
	return d.lines
}

// Text returns the normalised output joined with newlines.
func (d Dump) Text() string {
	return strings.Join(d.lines, "\n")
}

// Empty reports whether the dump has no lines.
func (d Dump) Empty() bool {
	return len(d.lines) == 0
}

// Contains reports whether substr appears on any line.
func (d Dump) Contains(substr string) bool {
	for _, l := range d.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// ContainsLine reports whether a line equals line once both are trimmed.
func (d Dump) ContainsLine(line string) bool {
	want := strings.TrimSpace(line)
	for _, l := range d.lines {
		if strings.TrimSpace(l) == want {
			return true
		}
	}
	return false
}

// Count returns how many lines contain substr.
func (d Dump) Count(substr string) int {
	n := 0
	for _, l := range d.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

// Match reports whether the regular expression matches anywhere in the
// normalised text. Patterns are compiled in multi-line mode.
func (d Dump) Match(pattern string) (bool, error) {
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(d.Text()), nil
}

// Section returns the running-config block that starts with header: the
// header line itself and every following line indented deeper than it. The
// block ends at the first line at the header's depth or shallower, a "!"
// separator, or a bare "exit" line. The result is empty when the header is absent.
func (d Dump) Section(header string) Dump {
	want := strings.TrimSpace(header)
	start := -1
	for i, l := range d.lines {
		if strings.TrimSpace(l) == want {
			start = i
			break
		}
	}
	if start < 0 {
		return Dump{Command: d.Command}
	}

	depth := indent(d.lines[start])
	block := []string{d.lines[start]}
	for _, l := range d.lines[start+1:] {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || trimmed == "!" || trimmed == "exit" || indent(l) <= depth {
			break
		}
		block = append(block, l)
	}
	return Dump{Command: d.Command, Raw: strings.Join(block, "\n"), lines: block}
}

// JSON looks up a gjson path in the dump. It returns false when the output is
// not valid JSON or the path does not exist.
func (d Dump) JSON(path string) (string, bool) {
	text := d.Text()
	if !gjson.Valid(text) {
		return "", false
	}
	res := gjson.Get(text, path)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// CLIError returns the first line that carries a vtysh rejection marker, or "".
func (d Dump) CLIError() string {
	for _, l := range d.lines {
		trimmed := strings.TrimSpace(l)
		for _, m := range cliErrorMarkers {
			if strings.HasPrefix(trimmed, m) {
				return trimmed
			}
		}
	}
	return ""
}

// indent counts leading whitespace; a tab counts as one column.
func indent(l string) int {
	return len(l) - len(strings.TrimLeft(l, " \t"))
}
