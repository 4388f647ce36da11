package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/cli"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func newStatusCmd() *cobra.Command {
	var (
		dir         string
		jsonOutput  bool
		suiteFilter string
		detail      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show suite run status",
		Long: `Show the status of a running, paused, or finished suite.
Without --dir or --suite, shows all suites with state.

  vtyconform status                       # all suites
  vtyconform status --suite open          # suites whose name contains "open"
  vtyconform status --detail              # show per-step status
  vtyconform status --json                # machine-readable output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var suites []string
			if cmd.Flags().Changed("dir") {
				suites = []string{vtytest.SuiteName(dir)}
			} else {
				all, err := vtytest.ListSuiteStates()
				if err != nil {
					return err
				}
				suites = all
			}

			// --suite is a case-insensitive substring match.
			if suiteFilter != "" {
				lower := strings.ToLower(suiteFilter)
				var matched []string
				for _, s := range suites {
					if strings.Contains(strings.ToLower(s), lower) {
						matched = append(matched, s)
					}
				}
				if len(matched) == 0 {
					return fmt.Errorf("no suite matching %q", suiteFilter)
				}
				suites = matched
			}

			if jsonOutput {
				states := []*vtytest.RunState{}
				for _, suite := range suites {
					state, err := vtytest.LoadRunState(suite)
					if err != nil || state == nil {
						continue
					}
					states = append(states, state)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(states)
			}

			if len(suites) == 0 {
				fmt.Println("no suites with state")
				return nil
			}
			for i, suite := range suites {
				if i > 0 {
					fmt.Println()
				}
				if err := printSuiteStatus(suite, detail); err != nil {
					fmt.Printf("  error: %v\n", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "suite directory")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	cmd.Flags().StringVarP(&suiteFilter, "suite", "s", "", "show only suites whose name contains this string")
	cmd.Flags().BoolVarP(&detail, "detail", "d", false, "show per-step status")

	return cmd
}

func printSuiteStatus(suite string, detail bool) error {
	state, err := vtytest.LoadRunState(suite)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no state found for suite %s", suite)
	}

	fmt.Printf("vtyconform: %s\n", suite)
	if state.SuiteDir != "" {
		fmt.Printf("  suite:     %s\n", state.SuiteDir)
	}
	if topo := topologyFromState(state); topo != "" {
		fmt.Printf("  topology:  %s\n", topo)
	}

	statusStr := string(state.Status)
	if vtytest.IsLocked(suite) {
		statusStr = fmt.Sprintf("%s (pid %d)", statusStr, state.PID)
	} else if state.Status == vtytest.SuiteStatusRunning || state.Status == vtytest.SuiteStatusPausing {
		// Nobody holds the lock: the runner died without recording an outcome.
		statusStr = string(vtytest.SuiteStatusAborted)
		if state.PID != 0 {
			statusStr += fmt.Sprintf(" (pid %d exited)", state.PID)
		}
		state.Status = vtytest.SuiteStatusAborted
	}
	fmt.Printf("  status:    %s\n", colorRunStatus(state.Status, statusStr))
	fmt.Printf("  run:       %s\n", cli.Dim(state.RunID))

	if !state.Started.IsZero() {
		ago := time.Since(state.Started).Round(time.Second)
		fmt.Printf("  started:   %s (%s ago)\n", state.Started.Format(vtytest.DateTimeFormat), ago)
	}
	if !state.Finished.IsZero() {
		took := state.Finished.Sub(state.Started).Round(time.Second)
		fmt.Printf("  finished:  %s (took %s)\n", state.Finished.Format(vtytest.DateTimeFormat), took)
	}

	if len(state.Scenarios) == 0 {
		return nil
	}

	fmt.Println()
	t := cli.NewTable("#", "SCENARIO", "STEPS", "STATUS", "REQUIRES", "DURATION").WithPrefix("  ")
	counts := make(map[vtytest.StepStatus]int)
	for i, sc := range state.Scenarios {
		requires := "—"
		if len(sc.Requires) > 0 {
			requires = strings.Join(sc.Requires, ", ")
		}
		duration := sc.Duration
		if sc.Status == "running" && sc.CurrentStep != "" {
			duration = fmt.Sprintf("step %d/%d: %s", sc.CurrentStepIndex+1, sc.TotalSteps, sc.CurrentStep)
		}
		if vtytest.StepStatus(sc.Status) == vtytest.StepStatusSkipped && sc.SkipReason != "" {
			duration = sc.SkipReason
		}
		t.Row(fmt.Sprintf("%d", i+1), sc.Name, fmt.Sprintf("%d", sc.TotalSteps),
			colorScenarioStatus(vtytest.StepStatus(sc.Status)), requires, duration)
		counts[vtytest.StepStatus(sc.Status)]++
	}
	t.Flush()

	if detail {
		printDetailView(state)
	}

	passed := counts[vtytest.StepStatusPassed]
	fmt.Printf("\n  progress: %d/%d passed", passed, len(state.Scenarios))
	if n := counts[vtytest.StepStatusFailed]; n > 0 {
		fmt.Printf(", %d failed", n)
	}
	if n := counts[vtytest.StepStatusError]; n > 0 {
		fmt.Printf(", %d errored", n)
	}
	if n := counts[vtytest.StepStatusSkipped]; n > 0 {
		fmt.Printf(", %d skipped", n)
	}
	if n := counts[""]; n > 0 {
		fmt.Printf(", %d pending", n)
	}
	fmt.Println()
	return nil
}

// printDetailView prints per-step results for each scenario that has them.
func printDetailView(state *vtytest.RunState) {
	for _, sc := range state.Scenarios {
		if len(sc.Steps) == 0 && sc.Status != "running" {
			continue
		}

		fmt.Printf("\n  %s\n", sc.Name)
		if sc.Description != "" {
			for _, line := range strings.Split(strings.TrimSpace(sc.Description), "\n") {
				fmt.Printf("    %s\n", cli.Dim(line))
			}
		}
		if path := scenarioFilePath(state.SuiteDir, sc.Name); path != "" {
			fmt.Printf("    %s %s\n", cli.Dim("file:"), cli.Dim(path))
		}
		fmt.Println()

		t := cli.NewTable("#", "STEP", "ACTION", "STATUS", "DURATION", "MESSAGE").WithPrefix("    ")
		for i, step := range sc.Steps {
			t.Row(fmt.Sprintf("%d", i+1), step.Name, step.Action,
				colorScenarioStatus(vtytest.StepStatus(step.Status)), step.Duration, cli.Truncate(step.Message, 60))
		}
		if sc.Status == "running" && sc.CurrentStep != "" && sc.CurrentStepIndex >= len(sc.Steps) {
			t.Row(fmt.Sprintf("%d", sc.CurrentStepIndex+1), sc.CurrentStep, sc.CurrentStepAction,
				cli.Yellow("running"), "...", "")
		}
		t.Flush()
	}
}

// topologyFromState returns the run's topology, falling back to the first
// scenario's when no override was given.
func topologyFromState(state *vtytest.RunState) string {
	if state.Topology != "" {
		return state.Topology
	}
	if state.SuiteDir != "" {
		scenarios, _ := vtytest.ParseAllScenarios(state.SuiteDir)
		if len(scenarios) > 0 {
			return scenarios[0].Topology
		}
	}
	return ""
}

// scenarioFilePath finds the file in suiteDir that defines scenario name.
func scenarioFilePath(suiteDir, name string) string {
	if suiteDir == "" {
		return ""
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(suiteDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	scenarios, _ := vtytest.ParseAllScenarios(suiteDir)
	for _, s := range scenarios {
		if s.Name == name {
			return s.Path
		}
	}
	return ""
}

func colorRunStatus(status vtytest.SuiteStatus, text string) string {
	switch status {
	case vtytest.SuiteStatusRunning, vtytest.SuiteStatusComplete:
		return cli.Green(text)
	case vtytest.SuiteStatusPausing, vtytest.SuiteStatusPaused:
		return cli.Yellow(text)
	case vtytest.SuiteStatusFailed, vtytest.SuiteStatusAborted:
		return cli.Red(text)
	default:
		return text
	}
}

func colorScenarioStatus(status vtytest.StepStatus) string {
	if status == "" {
		return "—"
	}
	return cli.Status(string(status))
}
