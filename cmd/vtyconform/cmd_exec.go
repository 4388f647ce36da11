package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vtyconform/vtyconform/pkg/output"
	"github.com/vtyconform/vtyconform/pkg/session"
	"github.com/vtyconform/vtyconform/pkg/topology"
)

func newExecCmd() *cobra.Command {
	var (
		topoName     string
		configure    bool
		contextLines []string
		askPassword  bool
	)

	cmd := &cobra.Command{
		Use:   "exec <device> <command...>",
		Short: "Run one command on a topology device",
		Long: `Connects to a device from a topology and runs a single command, printing
the raw output. Useful for checking what a verify-show step will see.

  vtyconform exec sw1 show running-config --topology 1switch
  vtyconform exec sw1 --configure --context 'router bgp 65001' 'neighbor 10.0.0.2 remote-as 65002'
  vtyconform exec sw1 show version --ask-password`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setLogLevel()

			if topoName == "" {
				return fmt.Errorf("--topology is required")
			}
			topo, err := topology.LoadDir(filepath.Join(resolveTopologiesDir(), topoName))
			if err != nil {
				return err
			}
			dev, err := topo.Device(args[0])
			if err != nil {
				return err
			}
			command := strings.Join(args[1:], " ")

			if askPassword {
				pw, err := readPassword(fmt.Sprintf("%s@%s password: ", dev.Username, dev.Name))
				if err != nil {
					return err
				}
				dev.Password = pw
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*session.DefaultTimeout)
			defer cancel()

			sess, err := session.Dial(ctx, dev)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return errInfraError
			}
			defer sess.Close()

			var out string
			if configure {
				out, err = sess.Configure(ctx, contextLines, []string{command})
			} else {
				out, err = sess.Exec(ctx, command)
			}
			fmt.Print(out)
			if out != "" && !strings.HasSuffix(out, "\n") {
				fmt.Println()
			}
			rejected, err := execOutcome(command, out, err)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return errInfraError
			}
			if rejected != "" {
				fmt.Fprintf(os.Stderr, "%s: rejected: %s\n", dev.Name, rejected)
				return errTestFailure
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&topoName, "topology", "t", os.Getenv("VTYCONFORM_TOPOLOGY"), "topology name under the topologies directory")
	cmd.Flags().BoolVar(&configure, "configure", false, "apply the command in configuration mode")
	cmd.Flags().StringArrayVar(&contextLines, "context", nil, "mode line entered before the command (repeatable, implies --configure)")
	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "prompt for the login password")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if len(contextLines) > 0 {
			configure = true
		}
	}

	return cmd
}

// readPassword prompts on stderr and reads a line from the terminal without
// echo.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ask-password needs a terminal on stdin")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// execOutcome splits a command's result into a CLI rejection and a transport
// failure. A non-zero exit status is a rejection, as it is in a run.
func execOutcome(command, out string, err error) (rejected string, _ error) {
	var exitErr *session.ExitError
	if errors.As(err, &exitErr) {
		if msg := output.New(command, out).CLIError(); msg != "" {
			return msg, nil
		}
		return fmt.Sprintf("exit status %d", exitErr.Status), nil
	}
	if err != nil {
		return "", err
	}
	return output.New(command, out).CLIError(), nil
}
