package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"show", "show"},
		{"10.0.0.0/8", "10.0.0.0/8"},
		{"show running-config", "'show running-config'"},
		{"banner motd 'hi'", `'banner motd '\''hi'\'''`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := ShellQuote(tt.in); got != tt.want {
			t.Errorf("ShellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCLICommandLine(t *testing.T) {
	lines := ConfigureLines([]string{"router bgp 1"}, []string{"neighbor 9.0.0.2 remote-as 2"})
	got := CLICommandLine("vtysh", lines)
	want := "vtysh -c 'configure terminal' -c 'router bgp 1' -c 'neighbor 9.0.0.2 remote-as 2'"
	if got != want {
		t.Errorf("CLICommandLine =\n  %s\nwant\n  %s", got, want)
	}

	if got := CLICommandLine("", []string{"ip link", "ip addr"}); got != "ip link; ip addr" {
		t.Errorf("raw CLICommandLine = %q", got)
	}
}

func TestStripEcho(t *testing.T) {
	text := "sw1# show version\r\nOpenSwitch 0.4.0\r\nsw1# "
	if got := stripEcho(text, "show version"); got != "OpenSwitch 0.4.0" {
		t.Errorf("stripEcho = %q", got)
	}
	// no echo with ECHO disabled on the PTY
	if got := stripEcho("line a\nline b\nsw1# ", "show x"); got != "line a\nline b" {
		t.Errorf("stripEcho without echo = %q", got)
	}
}

// fakeCLI plays the device side of an interactive session over pipes.
type fakeCLI struct {
	t      *testing.T
	in     *bufio.Reader
	out    io.WriteCloser
	mode   string
	silent bool
}

func (f *fakeCLI) prompt() string {
	switch f.mode {
	case "user":
		return "sw1> "
	case "exec":
		return "sw1# "
	default:
		return "sw1(" + f.mode + ")# "
	}
}

func (f *fakeCLI) write(s string) {
	io.WriteString(f.out, s)
}

func (f *fakeCLI) readLine() (string, bool) {
	line, err := f.in.ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

func (f *fakeCLI) serve() {
	defer f.out.Close()

	f.write("\r\nUser Name: ")
	if user, ok := f.readLine(); !ok || user != "admin" {
		return
	}
	f.write("admin\r\nPassword: ")
	if pass, ok := f.readLine(); !ok || pass != "secret" {
		return
	}
	f.mode = "user"
	f.write("\r\n" + f.prompt())

	for {
		cmd, ok := f.readLine()
		if !ok {
			return
		}
		if f.silent {
			continue
		}
		f.write(f.prompt() + cmd + "\r\n")
		switch {
		case cmd == "enable":
			f.write("Password: ")
			if pass, ok := f.readLine(); !ok || pass != "en" {
				return
			}
			f.mode = "exec"
			f.write("\r\n")
		case cmd == "terminal length 0":
		case cmd == "show version":
			f.write("OpenSwitch 0.4.0\r\n")
		case cmd == "configure terminal":
			f.mode = "config"
		case strings.HasPrefix(cmd, "router bgp"):
			f.mode = "config-router"
		case cmd == "end":
			f.mode = "exec"
		case cmd == "hang":
			f.silent = true
			continue
		case f.mode != "exec" && strings.HasPrefix(cmd, "bgp "):
		default:
			f.write("% Unknown command.\r\n")
		}
		f.write(f.prompt())
	}
}

func newFakePromptConn(t *testing.T) (*promptConn, *fakeCLI) {
	t.Helper()
	devIn, cliOut := io.Pipe()
	cliIn, devOut := io.Pipe()
	f := &fakeCLI{t: t, in: bufio.NewReader(devIn), out: devOut}
	go f.serve()

	p := newPromptConn("sw1", cliIn, cliOut, nil)
	t.Cleanup(func() {
		p.stop()
		cliOut.Close()
		cliIn.Close()
	})
	return p, f
}

func TestPromptConn_LoginAndExec(t *testing.T) {
	p, _ := newFakePromptConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := p.login(ctx, "admin", "secret", "en"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := p.command(ctx, "terminal length 0"); err != nil {
		t.Fatalf("terminal length: %v", err)
	}

	out, err := p.command(ctx, "show version")
	if err != nil {
		t.Fatalf("show version: %v", err)
	}
	if out != "OpenSwitch 0.4.0" {
		t.Errorf("show version output = %q", out)
	}
}

func TestPromptConn_Configure(t *testing.T) {
	p, f := newFakePromptConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := p.login(ctx, "admin", "secret", "en"); err != nil {
		t.Fatalf("login: %v", err)
	}

	out, err := p.configure(ctx, []string{"router bgp 1"}, []string{"bgp router-id 9.0.0.1", "bogus"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !strings.Contains(out, "% Unknown command.") {
		t.Errorf("configure output should carry the CLI error, got %q", out)
	}
	if strings.Contains(out, "bgp router-id") {
		t.Errorf("configure output should not contain echoed commands, got %q", out)
	}

	if _, err := p.command(ctx, "show version"); err != nil {
		t.Fatalf("show version after configure: %v", err)
	}
	if f.mode != "exec" {
		t.Errorf("device left in mode %q, want exec", f.mode)
	}
}

func TestPromptConn_Timeout(t *testing.T) {
	p, _ := newFakePromptConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.login(ctx, "admin", "secret", "en"); err != nil {
		t.Fatalf("login: %v", err)
	}

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	_, err := p.command(short, "hang")
	if !errors.Is(err, util.ErrTimeout) {
		t.Errorf("command error = %v, want ErrTimeout", err)
	}
}

func TestPromptConn_UnusableAfterTimeout(t *testing.T) {
	p, f := newFakePromptConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.login(ctx, "admin", "secret", "en"); err != nil {
		t.Fatalf("login: %v", err)
	}

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	if _, err := p.configure(short, []string{"router bgp 1"}, []string{"hang"}); !errors.Is(err, util.ErrTimeout) {
		t.Fatalf("configure error = %v, want ErrTimeout", err)
	}

	out, err := p.command(ctx, "show version")
	if !errors.Is(err, util.ErrNotConnected) {
		t.Errorf("command after timeout = %q, %v; want ErrNotConnected", out, err)
	}
	if out != "" {
		t.Errorf("stale output returned: %q", out)
	}
	if _, err := p.configure(ctx, nil, []string{"bgp router-id 1.1.1.1"}); !errors.Is(err, util.ErrNotConnected) {
		t.Errorf("configure after timeout = %v, want ErrNotConnected", err)
	}
	if f.mode != "config-router" {
		t.Errorf("fake CLI mode = %q; later commands must not reach it", f.mode)
	}
}

func TestPromptConn_BadPassword(t *testing.T) {
	p, _ := newFakePromptConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.login(ctx, "admin", "wrong", "")
	if !errors.Is(err, util.ErrNotConnected) {
		t.Errorf("login error = %v, want ErrNotConnected", err)
	}
}

func TestPromptConn_Expect(t *testing.T) {
	r, w := io.Pipe()
	p := newPromptConn("sw1", r, io.Discard, nil)
	defer p.stop()

	go func() {
		io.WriteString(w, "partial output ")
		io.WriteString(w, "still going\r\nsw1(config-vlan)# ")
		w.Close()
	}()

	i, text, err := p.expect(context.Background(), passwordPrompt, p.prompt)
	if err != nil {
		t.Fatalf("expect: %v", err)
	}
	if i != 1 {
		t.Errorf("matched pattern %d, want 1", i)
	}
	if !strings.HasPrefix(text, "partial output still going") {
		t.Errorf("text = %q", text)
	}

	if _, _, err := p.expect(context.Background(), p.prompt); !errors.Is(err, util.ErrNotConnected) {
		t.Errorf("expect after EOF = %v, want ErrNotConnected", err)
	}
}

func TestExecSession(t *testing.T) {
	dev := &topology.Device{Name: "local", Transport: topology.TransportExec, Command: []string{"sh"}}
	s, err := newExecSession(dev)
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	out, err := s.Exec(ctx, "echo hello")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("Exec output = %q", out)
	}

	_, err = s.Exec(ctx, "exit 3")
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Status != 3 {
		t.Errorf("Exec(exit 3) error = %v, want ExitError status 3", err)
	}
}

func TestCLIArgs(t *testing.T) {
	got := cliArgs([]string{"docker", "exec", "-i", "sw1", "vtysh"}, ConfigureLines(nil, []string{"vlan 10"}))
	want := []string{"docker", "exec", "-i", "sw1", "vtysh", "-c", "configure terminal", "-c", "vlan 10"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cliArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestDial_UnknownTransport(t *testing.T) {
	_, err := Dial(context.Background(), &topology.Device{Name: "sw1", Transport: "serial"})
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("Dial error = %v, want ErrInvalidConfig", err)
	}
}
