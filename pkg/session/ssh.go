package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// sshClientConfig builds the client config for dev. Password devices also get
// keyboard-interactive auth, which many switch SSH daemons require.
func sshClientConfig(dev *topology.Device) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if dev.KeyFile != "" {
		key, err := os.ReadFile(dev.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key %s: %w", dev.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing key %s: %w", dev.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if dev.Password != "" {
		pass := dev.Password
		auth = append(auth,
			ssh.Password(pass),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = pass
				}
				return answers, nil
			}),
		)
	}
	return &ssh.ClientConfig{
		User: dev.Username,
		Auth: auth,
		// Lab devices are rebuilt constantly; host keys are not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         DefaultTimeout,
	}, nil
}

// dialSSHClient connects and authenticates, honouring ctx during the TCP dial
// and the SSH handshake.
func dialSSHClient(ctx context.Context, dev *topology.Device, config *ssh.ClientConfig) (*ssh.Client, error) {
	ctx, cancel := withDialTimeout(ctx)
	defer cancel()

	addr := dev.Addr()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w: %w", addr, util.ErrNotConnected, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake %s: %w: %w", addr, util.ErrNotConnected, err)
	}
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// sshSession runs every command on its own exec channel over one connection.
type sshSession struct {
	dev    *topology.Device
	client *ssh.Client
}

func dialSSH(ctx context.Context, dev *topology.Device) (*sshSession, error) {
	config, err := sshClientConfig(dev)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", dev.Name, err)
	}
	client, err := dialSSHClient(ctx, dev, config)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", dev.Name, err)
	}
	return &sshSession{dev: dev, client: client}, nil
}

func (s *sshSession) Name() string { return s.dev.Name }

func (s *sshSession) Exec(ctx context.Context, cmd string) (string, error) {
	return s.run(ctx, cmd, CLICommandLine(s.dev.Shell, []string{cmd}))
}

func (s *sshSession) Configure(ctx context.Context, contextLines, commands []string) (string, error) {
	if s.dev.Shell == "" {
		return s.run(ctx, "configure", CLICommandLine("", commands))
	}
	line := CLICommandLine(s.dev.Shell, ConfigureLines(contextLines, commands))
	return s.run(ctx, "configure", line)
}

// Shell runs cmd in the login shell without the CLI wrapper.
func (s *sshSession) Shell(ctx context.Context, cmd string) (string, error) {
	return s.run(ctx, cmd, cmd)
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// run executes line on a fresh exec channel. label names the command in
// logs and errors.
func (s *sshSession) run(ctx context.Context, label, line string) (string, error) {
	return runSSH(ctx, s.client, s.dev.Name, label, line)
}

func runSSH(ctx context.Context, client *ssh.Client, device, label, line string) (string, error) {
	util.WithDevice(device).Debugf("ssh exec: %s", line)

	sess, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%s: SSH session: %w: %w", device, util.ErrNotConnected, err)
	}
	defer sess.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(line)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		sess.Close()
		return "", ctxErr(ctx, device, label)
	case r := <-done:
		out := string(r.out)
		if r.err == nil {
			return out, nil
		}
		var ee *ssh.ExitError
		if errors.As(r.err, &ee) {
			return out, &ExitError{Device: device, Command: label, Status: ee.ExitStatus()}
		}
		return out, fmt.Errorf("%s: SSH exec %q: %w", device, label, r.err)
	}
}
