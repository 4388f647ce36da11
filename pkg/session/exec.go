package session

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// execSession runs the device's local argv once per command, appending the
// CLI lines as -c arguments: docker exec -i sw1 vtysh -c 'show version'.
type execSession struct {
	dev *topology.Device
}

func newExecSession(dev *topology.Device) (*execSession, error) {
	if len(dev.Command) == 0 {
		return nil, fmt.Errorf("device %s: exec transport needs a command: %w", dev.Name, util.ErrInvalidConfig)
	}
	if _, err := exec.LookPath(dev.Command[0]); err != nil {
		return nil, fmt.Errorf("device %s: %w: %w", dev.Name, util.ErrNotConnected, err)
	}
	return &execSession{dev: dev}, nil
}

func (s *execSession) Name() string { return s.dev.Name }

func (s *execSession) Exec(ctx context.Context, cmd string) (string, error) {
	return s.run(ctx, cmd, cliArgs(s.dev.Command, []string{cmd}))
}

func (s *execSession) Configure(ctx context.Context, contextLines, commands []string) (string, error) {
	return s.run(ctx, "configure", cliArgs(s.dev.Command, ConfigureLines(contextLines, commands)))
}

// Shell runs cmd through sh -c. When the argv ends with the CLI wrapper
// (docker exec -i sw1 vtysh) the wrapper is replaced, so the command runs
// inside the same container.
func (s *execSession) Shell(ctx context.Context, cmd string) (string, error) {
	argv := s.dev.Command
	if s.dev.Shell != "" && argv[len(argv)-1] == s.dev.Shell {
		argv = argv[:len(argv)-1]
	}
	args := make([]string, 0, len(argv)+3)
	args = append(args, argv...)
	args = append(args, "sh", "-c", cmd)
	return s.run(ctx, cmd, args)
}

func (s *execSession) Close() error { return nil }

func cliArgs(argv, lines []string) []string {
	args := make([]string, 0, len(argv)+2*len(lines))
	args = append(args, argv...)
	for _, l := range lines {
		args = append(args, "-c", l)
	}
	return args
}

func (s *execSession) run(ctx context.Context, label string, args []string) (string, error) {
	util.WithDevice(s.dev.Name).Debugf("exec: %q", args)

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if ctx.Err() != nil {
		return string(out), ctxErr(ctx, s.dev.Name, label)
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return string(out), &ExitError{Device: s.dev.Name, Command: label, Status: ee.ExitCode()}
		}
		return string(out), fmt.Errorf("%s: exec %q: %w", s.dev.Name, label, err)
	}
	return string(out), nil
}
