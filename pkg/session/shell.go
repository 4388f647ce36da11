package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"sync"

	"github.com/ziutek/telnet"
	"golang.org/x/crypto/ssh"

	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// shellSession is a prompt-driven CLI over an SSH PTY or telnet.
// Commands are serialised; the CLI only has one prompt.
type shellSession struct {
	dev *topology.Device
	mu  sync.Mutex
	p   *promptConn

	closer io.Closer
	client *ssh.Client // nil for telnet
}

func promptFor(dev *topology.Device) (*regexp.Regexp, error) {
	if dev.Prompt == "" {
		return DefaultPrompt, nil
	}
	re, err := regexp.Compile(dev.Prompt)
	if err != nil {
		return nil, fmt.Errorf("device %s: prompt %q: %w", dev.Name, dev.Prompt, util.ErrInvalidConfig)
	}
	return re, nil
}

func dialSSHShell(ctx context.Context, dev *topology.Device) (*shellSession, error) {
	prompt, err := promptFor(dev)
	if err != nil {
		return nil, err
	}
	config, err := sshClientConfig(dev)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", dev.Name, err)
	}
	client, err := dialSSHClient(ctx, dev, config)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", dev.Name, err)
	}

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("device %s: SSH session: %w", dev.Name, err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 9600,
		ssh.TTY_OP_OSPEED: 9600,
	}
	if err := sess.RequestPty("vt100", 200, 40, modes); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("device %s: request PTY: %w", dev.Name, err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("device %s: stdin pipe: %w", dev.Name, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("device %s: stdout pipe: %w", dev.Name, err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("device %s: start shell: %w", dev.Name, err)
	}

	s := &shellSession{
		dev:    dev,
		p:      newPromptConn(dev.Name, stdout, stdin, prompt),
		closer: sess,
		client: client,
	}
	if err := s.start(ctx, false); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func dialTelnet(ctx context.Context, dev *topology.Device) (*shellSession, error) {
	prompt, err := promptFor(dev)
	if err != nil {
		return nil, err
	}
	dctx, cancel := withDialTimeout(ctx)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(dctx, "tcp", dev.Addr())
	if err != nil {
		return nil, fmt.Errorf("device %s: telnet dial %s: %w: %w", dev.Name, dev.Addr(), util.ErrNotConnected, err)
	}
	conn, err := telnet.NewConn(raw)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("device %s: telnet: %w", dev.Name, err)
	}
	conn.SetUnixWriteMode(true)

	s := &shellSession{
		dev:    dev,
		p:      newPromptConn(dev.Name, conn, conn, prompt),
		closer: conn,
	}
	if err := s.start(ctx, true); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// start logs in (telnet only), enters the CLI wrapper when one is configured
// and disables paging.
func (s *shellSession) start(ctx context.Context, needLogin bool) error {
	ctx, cancel := withDialTimeout(ctx)
	defer cancel()

	if needLogin {
		if _, err := s.p.login(ctx, s.dev.Username, s.dev.Password, s.dev.Enable); err != nil {
			return err
		}
	} else if _, _, err := s.p.expect(ctx, anyPrompt); err != nil {
		return err
	}

	if s.dev.Shell != "" {
		if _, err := s.p.command(ctx, s.dev.Shell); err != nil {
			return err
		}
	}
	_, err := s.p.command(ctx, "terminal length 0")
	return err
}

func (s *shellSession) Name() string { return s.dev.Name }

func (s *shellSession) Exec(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.command(ctx, cmd)
}

func (s *shellSession) Configure(ctx context.Context, contextLines, commands []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.configure(ctx, contextLines, commands)
}

// Shell runs cmd on a separate SSH exec channel. Telnet sessions have no
// out-of-band channel.
func (s *shellSession) Shell(ctx context.Context, cmd string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("device %s: shell commands need an SSH transport: %w", s.dev.Name, util.ErrInvalidConfig)
	}
	return runSSH(ctx, s.client, s.dev.Name, cmd, cmd)
}

func (s *shellSession) Close() error {
	s.p.stop()
	err := s.closer.Close()
	if s.client != nil {
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
