package session

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/vtyconform/vtyconform/pkg/util"
)

const readBufferSize = 4096

var (
	// DefaultPrompt matches the last line of a CLI prompt: "sw1#",
	// "sw1(config-router)# " or "sw1>".
	DefaultPrompt = regexp.MustCompile(`[>#]\s*$`)

	loginPrompt    = regexp.MustCompile(`(?i)(user\s?name|login)\s*:\s*$`)
	passwordPrompt = regexp.MustCompile(`(?i)password\s*:\s*$`)
	anyPrompt      = regexp.MustCompile(`[>#$%]\s*$`)
)

// promptConn drives an interactive CLI: it writes a line, then reads until
// the last line of buffered output matches a prompt pattern.
type promptConn struct {
	device string
	w      io.Writer
	prompt *regexp.Regexp

	chunks  chan []byte
	done    chan struct{}
	readErr error
	buf     []byte

	// broken is set once a read gives up part way through a reply. Output
	// still in flight would be taken for the next command's, so the
	// connection is not used again.
	broken error
}

func newPromptConn(device string, r io.Reader, w io.Writer, prompt *regexp.Regexp) *promptConn {
	if prompt == nil {
		prompt = DefaultPrompt
	}
	p := &promptConn{
		device: device,
		w:      w,
		prompt: prompt,
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go p.readLoop(r)
	return p
}

func (p *promptConn) readLoop(r io.Reader) {
	defer close(p.chunks)
	b := make([]byte, readBufferSize)
	for {
		n, err := r.Read(b)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, b[:n])
			select {
			case p.chunks <- chunk:
			case <-p.done:
				return
			}
		}
		if err != nil {
			p.readErr = err
			return
		}
	}
}

// stop releases the read loop. The underlying reader must be closed by the
// owner for a blocked Read to return.
func (p *promptConn) stop() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// send writes line followed by a newline.
func (p *promptConn) send(line string) error {
	if p.broken != nil {
		return p.broken
	}
	if _, err := io.WriteString(p.w, line+"\n"); err != nil {
		return fmt.Errorf("%s: write: %w: %w", p.device, util.ErrNotConnected, err)
	}
	return nil
}

// expect reads until the last line of output matches one of patterns and
// returns the index of the pattern and everything read up to that point.
func (p *promptConn) expect(ctx context.Context, patterns ...*regexp.Regexp) (int, string, error) {
	if p.broken != nil {
		return -1, "", p.broken
	}
	for {
		last := lastLine(p.buf)
		for i, re := range patterns {
			if re.MatchString(last) {
				text := string(p.buf)
				p.buf = p.buf[:0]
				return i, text, nil
			}
		}

		select {
		case <-ctx.Done():
			err := ctxErr(ctx, p.device, "waiting for prompt")
			p.broken = fmt.Errorf("%s: session abandoned after %v: %w", p.device, ctx.Err(), util.ErrNotConnected)
			return -1, string(p.buf), err
		case chunk, ok := <-p.chunks:
			if !ok {
				err := p.readErr
				if err == nil {
					err = io.EOF
				}
				p.broken = fmt.Errorf("%s: connection closed: %w: %w", p.device, util.ErrNotConnected, err)
				return -1, string(p.buf), p.broken
			}
			p.buf = append(p.buf, chunk...)
		}
	}
}

// command sends cmd and returns its output with the echoed command line and
// the trailing prompt removed.
func (p *promptConn) command(ctx context.Context, cmd string) (string, error) {
	util.WithDevice(p.device).Debugf("cli: %s", cmd)
	if err := p.send(cmd); err != nil {
		return "", err
	}
	_, text, err := p.expect(ctx, p.prompt)
	if err != nil {
		return text, err
	}
	return stripEcho(text, cmd), nil
}

// login answers username and password prompts until a CLI prompt appears,
// then enters privileged mode when the device lands in user EXEC mode.
func (p *promptConn) login(ctx context.Context, username, password, enable string) (string, error) {
	sentPassword := false
	for {
		i, text, err := p.expect(ctx, loginPrompt, passwordPrompt, anyPrompt)
		if err != nil {
			return text, err
		}
		switch i {
		case 0:
			if err := p.send(username); err != nil {
				return text, err
			}
		case 1:
			if sentPassword {
				return text, fmt.Errorf("%s: login rejected: %w", p.device, util.ErrNotConnected)
			}
			sentPassword = true
			if err := p.send(password); err != nil {
				return text, err
			}
		default:
			if strings.HasSuffix(strings.TrimSpace(lastLine([]byte(text))), ">") && enable != "" {
				return text, p.enable(ctx, enable)
			}
			return text, nil
		}
	}
}

func (p *promptConn) enable(ctx context.Context, password string) error {
	if err := p.send("enable"); err != nil {
		return err
	}
	i, _, err := p.expect(ctx, passwordPrompt, p.prompt)
	if err != nil {
		return err
	}
	if i == 0 {
		if err := p.send(password); err != nil {
			return err
		}
		if _, _, err := p.expect(ctx, p.prompt); err != nil {
			return err
		}
	}
	return nil
}

// configure runs configure terminal, the context lines and the commands,
// then leaves configuration mode with end.
func (p *promptConn) configure(ctx context.Context, contextLines, commands []string) (string, error) {
	var out []string
	for _, line := range ConfigureLines(contextLines, commands) {
		text, err := p.command(ctx, line)
		if text != "" {
			out = append(out, text)
		}
		if err != nil {
			return strings.Join(out, "\n"), err
		}
	}
	if _, err := p.command(ctx, "end"); err != nil {
		return strings.Join(out, "\n"), err
	}
	return strings.Join(out, "\n"), nil
}

func lastLine(buf []byte) string {
	s := strings.ReplaceAll(string(buf), "\r", "")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// stripEcho drops the prompt line at the end of text and the echoed command
// at its start.
func stripEcho(text, cmd string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines = lines[:len(lines)-1]
	if len(lines) > 0 && cmd != "" && strings.HasSuffix(strings.TrimRight(lines[0], " \r"), strings.TrimSpace(cmd)) {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}
