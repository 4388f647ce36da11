package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/version"
)

var verboseFlag bool

// Sentinel errors for exit code mapping. RunE handlers return these instead
// of calling os.Exit directly, so deferred cleanup (like lock release) runs.
var (
	errTestFailure = errors.New("test failure")
	errInfraError  = errors.New("infrastructure error")
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vtyconform",
		Short: "CLI conformance tests for network switches",
		Long: `Vtyconform drives a switch's interactive CLI over SSH or telnet and checks
that configuration commands are accepted, reflected in show output, and
cleanly removed by their negated form.

A suite is a directory of YAML scenario files (e.g., "openswitch").
Suites can be specified by name (resolved under suites/) or by path.

Lifecycle:
  vtyconform run <suite>             # connect, run all scenarios
  vtyconform status                  # check progress
  vtyconform pause                   # stop after current scenario
  vtyconform run <suite>             # resume from where it left off
  vtyconform clean                   # remove suite state

Discovery:
  vtyconform list                    # show available suites
  vtyconform list <suite>            # show scenarios in a suite
  vtyconform validate <suite>        # parse and check without connecting
  vtyconform actions                 # show step actions`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newListCmd(),
		newActionsCmd(),
		newStatusCmd(),
		newPauseCmd(),
		newCleanCmd(),
		newExecCmd(),
		newAuditCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.Info("vtyconform"))
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		if err != errInfraError && err != errTestFailure {
			fmt.Fprintln(os.Stderr, err)
		}
		if errors.Is(err, errInfraError) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
