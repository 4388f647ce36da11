package vtytest

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vtyconform/vtyconform/pkg/cli"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// ProgressReporter receives lifecycle callbacks during test execution.
type ProgressReporter interface {
	SuiteStart(scenarios []*Scenario)
	ScenarioStart(name string, index, total int)
	ScenarioEnd(result *ScenarioResult, index, total int)
	StepStart(scenario string, step *Step, index, total int)
	StepEnd(scenario string, result *StepResult, index, total int)
	SuiteEnd(results []*ScenarioResult, duration time.Duration)
}

// ConsoleProgress is an append-only terminal progress reporter.
// It never uses ANSI cursor rewriting, so output is safe for pipes, CI,
// and scrollback buffers.
type ConsoleProgress struct {
	W       io.Writer
	Verbose bool

	dotWidth int
}

// NewConsoleProgress creates a ConsoleProgress writing to stdout.
func NewConsoleProgress(verbose bool) *ConsoleProgress {
	return &ConsoleProgress{
		W:       os.Stdout,
		Verbose: verbose,
	}
}

func (p *ConsoleProgress) SuiteStart(scenarios []*Scenario) {
	if len(scenarios) == 0 {
		return
	}

	maxName := 0
	topologies := map[string]bool{}
	for _, s := range scenarios {
		if len(s.Name) > maxName {
			maxName = len(s.Name)
		}
		topologies[s.Topology] = true
	}
	p.dotWidth = maxName + 6

	fmt.Fprintf(p.W, "\nvtyconform: %d scenarios, topology: %s\n\n",
		len(scenarios), strings.Join(sortedKeys(topologies), ", "))

	fmt.Fprintf(p.W, "  %-4s  %-*s  %s\n", "#", p.dotWidth-6, "SCENARIO", "STEPS")
	for i, s := range scenarios {
		fmt.Fprintf(p.W, "  %-4d  %-*s  %d\n", i+1, p.dotWidth-6, s.Name, len(s.Steps))
	}
	fmt.Fprintln(p.W)
}

func (p *ConsoleProgress) ScenarioStart(name string, index, total int) {
	if p.Verbose {
		fmt.Fprintf(p.W, "  [%d/%d]  %s\n", index+1, total, name)
	}
}

func (p *ConsoleProgress) ScenarioEnd(result *ScenarioResult, index, total int) {
	tag := fmt.Sprintf("[%d/%d]", index+1, total)
	if p.dotWidth == 0 {
		p.dotWidth = len(result.Name) + 6
	}

	if p.Verbose {
		if result.ConnectError != nil {
			fmt.Fprintf(p.W, "          %s\n", cli.Dim(result.ConnectError.Error()))
		}
		if result.SkipReason != "" {
			fmt.Fprintf(p.W, "  %-7s %s %s\n", tag, cli.DotPad(result.Name, p.dotWidth), cli.Yellow("SKIP"))
			fmt.Fprintf(p.W, "          %s\n\n", cli.Dim(result.SkipReason))
			return
		}
		fmt.Fprintf(p.W, "          %s  (%s)\n\n", cli.Status(string(result.Status)), formatDuration(result.Duration))
		return
	}

	padded := cli.DotPad(result.Name, p.dotWidth)
	switch result.Status {
	case StepStatusSkipped:
		fmt.Fprintf(p.W, "  %-7s %s %s\n", tag, padded, cli.Yellow("SKIP"))
	default:
		fmt.Fprintf(p.W, "  %-7s %s %s  (%s)\n", tag, padded, cli.Status(string(result.Status)), formatDuration(result.Duration))
	}
}

func (p *ConsoleProgress) StepStart(scenario string, step *Step, index, total int) {}

func (p *ConsoleProgress) StepEnd(scenario string, result *StepResult, index, total int) {
	if !p.Verbose {
		return
	}

	width := p.dotWidth - 10
	if width < len(result.Name)+4 {
		width = len(result.Name) + 4
	}
	stepDot := cli.DotPad(result.Name, width)
	tag := fmt.Sprintf("[%d/%d]", index+1, total)
	iter := ""
	if result.Iteration > 0 {
		iter = fmt.Sprintf(" #%d", result.Iteration)
	}
	fmt.Fprintf(p.W, "          %s%s %s %s  (%s)\n", tag, iter, stepDot, cli.Status(string(result.Status)), formatDuration(result.Duration))

	if result.Status == StepStatusFailed || result.Status == StepStatusError {
		if result.Message != "" {
			fmt.Fprintf(p.W, "               %s\n", cli.Dim(result.Message))
		}
		for _, d := range result.Details {
			if d.Status == StepStatusFailed || d.Status == StepStatusError {
				fmt.Fprintf(p.W, "               %s: %s\n", d.Device, cli.Dim(d.Message))
			}
		}
	}
}

func (p *ConsoleProgress) SuiteEnd(results []*ScenarioResult, duration time.Duration) {
	passed, failed, skipped, errored := 0, 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StepStatusPassed:
			passed++
		case StepStatusFailed:
			failed++
		case StepStatusSkipped:
			skipped++
		case StepStatusError:
			errored++
		}
	}

	fmt.Fprintf(p.W, "\n---\n")
	fmt.Fprintf(p.W, "vtyconform: %d scenarios", len(results))

	parts := []string{}
	if passed > 0 {
		parts = append(parts, cli.Green(fmt.Sprintf("%d passed", passed)))
	}
	if failed > 0 {
		parts = append(parts, cli.Red(fmt.Sprintf("%d failed", failed)))
	}
	if errored > 0 {
		parts = append(parts, cli.Red(fmt.Sprintf("%d errored", errored)))
	}
	if skipped > 0 {
		parts = append(parts, cli.Yellow(fmt.Sprintf("%d skipped", skipped)))
	}
	if len(parts) > 0 {
		fmt.Fprintf(p.W, ": %s", strings.Join(parts, ", "))
	}
	fmt.Fprintf(p.W, "  (%s)\n", formatDuration(duration))

	if failed+errored > 0 {
		fmt.Fprintf(p.W, "\n  FAILED:\n")
		for i, r := range results {
			if r.Status != StepStatusFailed && r.Status != StepStatusError {
				continue
			}
			fmt.Fprintf(p.W, "    [%d]  %s\n", i+1, r.Name)
			if r.ConnectError != nil {
				fmt.Fprintf(p.W, "         connect: %s\n", r.ConnectError)
				continue
			}
			for _, step := range r.Steps {
				if step.Status == StepStatusFailed || step.Status == StepStatusError {
					msg := step.Message
					if msg == "" {
						msg = string(step.Status)
					}
					fmt.Fprintf(p.W, "         step %q (%s): %s\n", step.Name, step.Action, msg)
				}
			}
		}
	}

	if skipped > 0 {
		fmt.Fprintf(p.W, "\n  SKIPPED:\n")
		for i, r := range results {
			if r.Status != StepStatusSkipped {
				continue
			}
			reason := r.SkipReason
			if reason == "" {
				reason = "skipped"
			}
			fmt.Fprintf(p.W, "    [%d]  %s %s\n", i+1, cli.DotPad(r.Name, p.dotWidth), reason)
		}
	}

	fmt.Fprintln(p.W)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// StateReporter wraps a ProgressReporter and persists run state after each
// step and scenario. This enables the status command and resume on pause.
type StateReporter struct {
	Inner ProgressReporter
	State *RunState

	scenarioIndex int
}

// save persists the state. A pause requested by another process since the
// last save is kept rather than overwritten.
func (r *StateReporter) save() {
	if disk, err := LoadRunState(r.State.Suite); err == nil && disk != nil &&
		disk.RunID == r.State.RunID && disk.Status == SuiteStatusPausing &&
		r.State.Status == SuiteStatusRunning {
		r.State.Status = SuiteStatusPausing
	}
	if err := SaveRunState(r.State); err != nil {
		util.Logger.Warnf("save run state: %v", err)
	}
}

func (r *StateReporter) SuiteStart(scenarios []*Scenario) {
	r.State.Scenarios = make([]ScenarioState, len(scenarios))
	for i, s := range scenarios {
		r.State.Scenarios[i] = ScenarioState{
			Name:        s.Name,
			Description: s.Description,
			TotalSteps:  len(s.Steps) * max(s.Repeat, 1),
			Requires:    s.Requires,
		}
	}
	r.save()
	r.Inner.SuiteStart(scenarios)
}

func (r *StateReporter) ScenarioStart(name string, index, total int) {
	r.scenarioIndex = index
	if index < len(r.State.Scenarios) {
		r.State.Scenarios[index].Status = "running"
		r.State.Scenarios[index].Steps = nil
	}
	r.save()
	r.Inner.ScenarioStart(name, index, total)
}

func (r *StateReporter) ScenarioEnd(result *ScenarioResult, index, total int) {
	if index < len(r.State.Scenarios) {
		sc := &r.State.Scenarios[index]
		sc.Status = string(result.Status)
		sc.Duration = result.Duration.Round(time.Second).String()
		sc.CurrentStep = ""
		sc.CurrentStepAction = ""
		sc.CurrentStepIndex = 0
		sc.SkipReason = result.SkipReason
	}
	r.save()
	r.Inner.ScenarioEnd(result, index, total)
}

func (r *StateReporter) StepStart(scenario string, step *Step, index, total int) {
	if r.scenarioIndex < len(r.State.Scenarios) {
		sc := &r.State.Scenarios[r.scenarioIndex]
		sc.CurrentStep = step.Name
		sc.CurrentStepAction = string(step.Action)
		sc.CurrentStepIndex = index
	}
	r.save()
	r.Inner.StepStart(scenario, step, index, total)
}

func (r *StateReporter) StepEnd(scenario string, result *StepResult, index, total int) {
	if r.scenarioIndex < len(r.State.Scenarios) {
		sc := &r.State.Scenarios[r.scenarioIndex]
		sc.Steps = append(sc.Steps, StepState{
			Name:     result.Name,
			Action:   string(result.Action),
			Status:   string(result.Status),
			Duration: formatDuration(result.Duration),
			Message:  result.Message,
		})
		r.save()
	}
	r.Inner.StepEnd(scenario, result, index, total)
}

func (r *StateReporter) SuiteEnd(results []*ScenarioResult, duration time.Duration) {
	r.save()
	r.Inner.SuiteEnd(results, duration)
}
