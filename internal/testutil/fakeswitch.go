// Package testutil provides test helpers: an in-memory vtysh switch for unit
// tests and, under the integration tag, helpers for a live test Redis.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vtyconform/vtyconform/pkg/session"
	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// FakeSwitch is an in-memory vtysh. Configuration commands build a
// running-config tree: each context line nests under the previous one and
// "no <cmd>" removes the matching line (and its children). Show commands
// return canned output; "show running-config" renders the tree.
type FakeSwitch struct {
	// Delay is applied before every command; a cancelled ctx aborts it.
	Delay time.Duration

	name string

	mu       sync.Mutex
	root     *configLine
	shows    map[string][]string
	shells   map[string]shellReply
	rejects  map[string]string
	history  []string
	closed   bool
	showHits map[string]int
}

type configLine struct {
	text     string
	children []*configLine
}

type shellReply struct {
	output string
	status int
}

// NewFakeSwitch returns a switch whose running-config holds only its hostname.
func NewFakeSwitch(name string) *FakeSwitch {
	f := &FakeSwitch{
		name:     name,
		root:     &configLine{},
		shows:    make(map[string][]string),
		shells:   make(map[string]shellReply),
		rejects:  make(map[string]string),
		showHits: make(map[string]int),
	}
	f.root.children = append(f.root.children, &configLine{text: "hostname " + name})
	return f
}

// FakeDialer returns a dialer that hands out the given switches by device
// name. Unknown devices fail with util.ErrNotConnected.
func FakeDialer(switches map[string]*FakeSwitch) func(ctx context.Context, dev *topology.Device) (session.Session, error) {
	return func(ctx context.Context, dev *topology.Device) (session.Session, error) {
		f, ok := switches[dev.Name]
		if !ok {
			return nil, fmt.Errorf("device %s: %w", dev.Name, util.ErrNotConnected)
		}
		f.mu.Lock()
		f.closed = false
		f.mu.Unlock()
		return f, nil
	}
}

// SetShow makes cmd return outputs in turn; the last one repeats.
func (f *FakeSwitch) SetShow(cmd string, outputs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shows[cmd] = outputs
	f.showHits[cmd] = 0
}

// SetShell makes shell commands starting with prefix print output and exit
// with status.
func (f *FakeSwitch) SetShell(prefix, output string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shells[prefix] = shellReply{output: output, status: status}
}

// Reject makes configuration commands starting with prefix fail with the
// given vtysh error line, for example "% Invalid input detected at '^' marker.".
func (f *FakeSwitch) Reject(prefix, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects[prefix] = message
}

// History returns every command received, in order.
func (f *FakeSwitch) History() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.history...)
}

// Closed reports whether Close was called since the last dial.
func (f *FakeSwitch) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// RunningConfig renders the configuration tree as vtysh does.
func (f *FakeSwitch) RunningConfig() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renderLocked()
}

func (f *FakeSwitch) Name() string { return f.name }

func (f *FakeSwitch) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", f.name, util.ErrTimeout)
	}
}

func (f *FakeSwitch) Exec(ctx context.Context, cmd string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, cmd)

	cmd = strings.TrimSpace(cmd)
	if outs, ok := f.shows[cmd]; ok && len(outs) > 0 {
		i := min(f.showHits[cmd], len(outs)-1)
		f.showHits[cmd]++
		return outs[i], nil
	}
	if cmd == "show running-config" || cmd == "show run" {
		return f.renderLocked(), nil
	}
	if strings.HasPrefix(cmd, "show ") {
		return "", nil
	}
	return fmt.Sprintf("%% Unknown command: %s\n", cmd), nil
}

func (f *FakeSwitch) Configure(ctx context.Context, contextLines, commands []string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out strings.Builder
	parent := f.root
	for _, line := range contextLines {
		f.history = append(f.history, line)
		if msg, ok := f.rejectedLocked(line); ok {
			out.WriteString(msg + "\n")
			return out.String(), nil
		}
		parent = parent.child(strings.TrimSpace(line), true)
	}
	for _, cmd := range commands {
		f.history = append(f.history, cmd)
		if msg, ok := f.rejectedLocked(cmd); ok {
			out.WriteString(msg + "\n")
			continue
		}
		cmd = strings.TrimSpace(cmd)
		if rest, ok := strings.CutPrefix(cmd, "no "); ok {
			parent.remove(strings.TrimSpace(rest))
			continue
		}
		parent.child(cmd, true)
	}
	return out.String(), nil
}

// Shell answers from SetShell replies. Unmatched commands exit 127.
func (f *FakeSwitch) Shell(ctx context.Context, cmd string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, cmd)

	best := ""
	for prefix := range f.shells {
		if strings.HasPrefix(cmd, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	reply, ok := f.shells[best]
	if !ok || best == "" {
		return "sh: command not found\n", &session.ExitError{Device: f.name, Command: cmd, Status: 127}
	}
	if reply.status != 0 {
		return reply.output, &session.ExitError{Device: f.name, Command: cmd, Status: reply.status}
	}
	return reply.output, nil
}

func (f *FakeSwitch) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeSwitch) rejectedLocked(cmd string) (string, bool) {
	for prefix, msg := range f.rejects {
		if strings.HasPrefix(strings.TrimSpace(cmd), prefix) {
			return msg, true
		}
	}
	return "", false
}

func (f *FakeSwitch) renderLocked() string {
	var b strings.Builder
	b.WriteString("Current configuration:\n!\n")
	for _, c := range f.root.children {
		c.render(&b, 0)
		b.WriteString("!\n")
	}
	b.WriteString("end\n")
	return b.String()
}

// child returns the child line equal to text, appending it when create is set.
func (c *configLine) child(text string, create bool) *configLine {
	for _, ch := range c.children {
		if ch.text == text {
			return ch
		}
	}
	if !create {
		return nil
	}
	ch := &configLine{text: text}
	c.children = append(c.children, ch)
	return ch
}

// remove deletes children equal to text or starting with text followed by a
// space, which is how "no neighbor X description" drops the full line.
func (c *configLine) remove(text string) {
	kept := c.children[:0]
	for _, ch := range c.children {
		if ch.text == text || strings.HasPrefix(ch.text, text+" ") {
			continue
		}
		kept = append(kept, ch)
	}
	c.children = kept
}

func (c *configLine) render(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat(" ", depth))
	b.WriteString(c.text)
	b.WriteString("\n")
	for _, ch := range c.children {
		ch.render(b, depth+1)
	}
}

var (
	_ session.Session = (*FakeSwitch)(nil)
	_ session.Sheller = (*FakeSwitch)(nil)
)
