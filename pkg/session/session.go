// Package session opens CLI sessions to topology devices.
//
// Three transports are supported:
//
//   - SSH exec: one SSH connection per device and one exec channel per
//     command. Switch commands are wrapped as vtysh -c invocations, so no
//     prompt parsing is needed.
//   - Prompt shell: an interactive PTY over SSH, or a telnet connection.
//     Commands are typed at the prompt and output is read until the prompt
//     returns.
//   - Local exec: a local argv (for example "docker exec -i sw1 vtysh")
//     receives each command as -c arguments.
//
// Every blocking call takes a context; cancelling it aborts the command.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// DefaultTimeout bounds connection setup when ctx carries no deadline.
const DefaultTimeout = 30 * time.Second

// Session is an open CLI session on one device.
type Session interface {
	// Name returns the device name.
	Name() string

	// Exec runs one exec-mode command and returns its raw output.
	Exec(ctx context.Context, cmd string) (string, error)

	// Configure enters configuration mode, applies the context lines
	// (e.g. "router bgp 1"), then the commands, and leaves configuration
	// mode. The combined raw output is returned.
	Configure(ctx context.Context, contextLines, commands []string) (string, error)

	Close() error
}

// Sheller is implemented by sessions that can run a command in the device's
// Linux shell, outside the switch CLI.
type Sheller interface {
	Shell(ctx context.Context, cmd string) (string, error)
}

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Device  string
	Command string
	Status  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %q exited with status %d", e.Device, e.Command, e.Status)
}

// Dial opens a session to dev using its configured transport.
func Dial(ctx context.Context, dev *topology.Device) (Session, error) {
	util.WithDevice(dev.Name).Debugf("dialing %s via %s", dev.Address, dev.Transport)

	switch dev.Transport {
	case topology.TransportSSH:
		return dialSSH(ctx, dev)
	case topology.TransportSSHShell:
		return dialSSHShell(ctx, dev)
	case topology.TransportTelnet:
		return dialTelnet(ctx, dev)
	case topology.TransportExec:
		return newExecSession(dev)
	default:
		return nil, fmt.Errorf("device %s: transport %q: %w", dev.Name, dev.Transport, util.ErrInvalidConfig)
	}
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@,+", r)
}

// ConfigureLines returns the CLI lines Configure sends: configure terminal,
// the context lines, then the commands.
func ConfigureLines(contextLines, commands []string) []string {
	lines := make([]string, 0, len(contextLines)+len(commands)+1)
	lines = append(lines, "configure terminal")
	lines = append(lines, contextLines...)
	lines = append(lines, commands...)
	return lines
}

// CLICommandLine builds a single shell command that runs lines through the
// CLI wrapper: vtysh -c 'line1' -c 'line2'. With no wrapper the lines are
// joined with "; " and run as-is.
func CLICommandLine(wrapper string, lines []string) string {
	if wrapper == "" {
		return strings.Join(lines, "; ")
	}
	var b strings.Builder
	b.WriteString(wrapper)
	for _, l := range lines {
		b.WriteString(" -c ")
		b.WriteString(ShellQuote(l))
	}
	return b.String()
}

// withDialTimeout applies DefaultTimeout when ctx has no deadline.
func withDialTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// ctxErr converts a context error into one wrapping util.ErrTimeout when the
// deadline passed.
func ctxErr(ctx context.Context, device, what string) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %s: %w", device, what, util.ErrTimeout)
	}
	return fmt.Errorf("%s: %s: %w", device, what, err)
}
