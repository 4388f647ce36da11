package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/audit"
	"github.com/vtyconform/vtyconform/pkg/util"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func newRunCmd() *cobra.Command {
	var (
		dir        string
		scenario   string
		topology   string
		vars       []string
		junitPath  string
		reportPath string
		keepState  bool
	)

	cmd := &cobra.Command{
		Use:   "run [suite]",
		Short: "Run or resume a test suite",
		Long: `Connect to the suite's topology and run its scenarios in dependency order.

The suite can be a name (resolved under suites/) or a path.
All scenarios run by default. Use --scenario to select by name or glob;
scenarios the selection requires are run too.

  vtyconform run openswitch                       # run all scenarios
  vtyconform run openswitch --scenario 'bgp-*'
  vtyconform run openswitch --var asn=65100 --junit out/junit.xml

If a previous run was paused, run resumes from where it left off.
Every command sent to a device is appended to the audit log; see 'vtyconform audit'.
State of a fully passing run is removed unless --keep-state is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setLogLevel()

			var positional string
			if len(args) > 0 {
				positional = args[0]
			}
			dir = resolveDir(cmd, dir, positional)
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve dir: %w", err)
			}
			overrides, err := parseVars(vars)
			if err != nil {
				return err
			}

			topologiesDir := resolveTopologiesDir()
			suite := vtytest.SuiteName(absDir)

			fmt.Fprintf(os.Stderr, "vtyconform: suite %s (%s)\n", suite, absDir)

			opts := vtytest.RunOptions{
				Scenario: scenario,
				Topology: topology,
				Vars:     overrides,
				Verbose:  verboseFlag,
				Suite:    suite,
			}

			existing, err := vtytest.LoadRunState(suite)
			if err != nil {
				return err
			}
			if existing != nil && existing.Status == vtytest.SuiteStatusPaused {
				fmt.Fprintf(os.Stderr, "resuming paused suite %s\n", suite)
				opts.Resume = true
				opts.Completed = vtytest.CompletedScenarios(existing)
			}

			state := vtytest.NewRunState(suite, absDir, topology)
			opts.RunID = state.RunID
			lock, err := vtytest.AcquireLock(state)
			if err != nil {
				return err
			}
			released := false
			release := func() {
				if released {
					return
				}
				released = true
				if err := vtytest.ReleaseLock(state, lock); err != nil {
					util.Logger.Warnf("release lock: %v", err)
				}
			}
			defer release()

			reporter := &vtytest.StateReporter{
				Inner: vtytest.NewConsoleProgress(verboseFlag),
				State: state,
			}

			runner := vtytest.NewRunner(absDir, topologiesDir)
			runner.Progress = reporter
			if auditLog, err := audit.NewFileLogger(auditLogPath(), audit.DefaultRotation); err != nil {
				util.Logger.Warnf("audit log disabled: %v", err)
			} else {
				defer auditLog.Close()
				runner.Audit = auditLog
			}

			results, runErr := runner.Run(cmd.Context(), opts)

			var pauseErr *vtytest.PauseError
			if errors.As(runErr, &pauseErr) {
				state.Status = vtytest.SuiteStatusPaused
				saveState(state)
				fmt.Fprintf(os.Stderr, "\n%s; resume with: vtyconform run %s\n", pauseErr, suite)
				return nil
			}

			var infraErr *vtytest.InfraError
			if errors.As(runErr, &infraErr) {
				state.Status = vtytest.SuiteStatusAborted
				state.Finished = time.Now()
				saveState(state)
				fmt.Fprintln(os.Stderr, runErr)
				writeReports(results, reportPath, junitPath)
				return errInfraError
			}
			if runErr != nil {
				state.Status = vtytest.SuiteStatusFailed
				state.Finished = time.Now()
				saveState(state)
				return runErr
			}

			hasFailure, hasError := false, false
			for _, r := range results {
				if r.Status == vtytest.StepStatusFailed {
					hasFailure = true
				}
				if r.Status == vtytest.StepStatusError || r.ConnectError != nil {
					hasError = true
				}
			}

			if hasFailure || hasError {
				state.Status = vtytest.SuiteStatusFailed
			} else {
				state.Status = vtytest.SuiteStatusComplete
			}
			state.Finished = time.Now()
			saveState(state)

			writeReports(results, reportPath, junitPath)

			if hasError {
				return errInfraError
			}
			if hasFailure {
				return errTestFailure
			}
			if !keepState {
				release()
				if err := vtytest.RemoveRunState(suite); err != nil {
					util.Logger.Warnf("remove run state: %v", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory containing scenario YAML files")
	cmd.Flags().StringVar(&scenario, "scenario", "", "run scenarios matching name or glob (default: all)")
	cmd.Flags().StringVar(&topology, "topology", "", "override topology")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable override (key=value, repeatable)")
	cmd.Flags().StringVar(&junitPath, "junit", "", "JUnit XML output path")
	cmd.Flags().StringVar(&reportPath, "report", "", "markdown report output path")
	cmd.Flags().BoolVar(&keepState, "keep-state", false, "keep run state after a passing run")

	return cmd
}

func saveState(state *vtytest.RunState) {
	if err := vtytest.SaveRunState(state); err != nil {
		util.Logger.Warnf("failed to save run state: %v", err)
	}
}

func writeReports(results []*vtytest.ScenarioResult, reportPath, junitPath string) {
	if len(results) == 0 {
		return
	}
	gen := &vtytest.ReportGenerator{Results: results}
	if reportPath != "" {
		if err := gen.WriteMarkdown(reportPath); err != nil {
			util.Logger.Warnf("failed to write markdown report: %v", err)
		}
	}
	if junitPath != "" {
		if err := gen.WriteJUnit(junitPath); err != nil {
			util.Logger.Warnf("failed to write JUnit report: %v", err)
		}
	}
}
