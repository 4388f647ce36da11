package vtytest

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vtyconform/vtyconform/pkg/audit"
	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// Runner is the top-level vtytest orchestrator.
type Runner struct {
	ScenariosDir  string
	TopologiesDir string
	Progress      ProgressReporter

	// Lab, when set before Run, is used for scenarios on its topology
	// instead of loading and dialing a new one.
	Lab *Lab

	// Dial opens device sessions; nil uses session.Dial.
	Dial Dialer

	// Audit receives every configure, unconfigure and exec sent to a device.
	Audit audit.Logger

	opts     RunOptions
	scenario *Scenario
}

// RunOptions controls Runner behavior from CLI flags.
type RunOptions struct {
	// Scenario selects scenarios by name or file name; doublestar patterns
	// are allowed. Empty runs every scenario in the directory.
	Scenario string

	// Topology overrides every scenario's topology.
	Topology string

	// Vars override scenario and device template variables.
	Vars map[string]string

	Verbose bool

	// Lifecycle fields; an empty Suite disables pause checks.
	Suite     string
	RunID     string
	Resume    bool
	Completed map[string]StepStatus // scenario → status from previous run (resume)
}

// NewRunner creates a new test runner.
func NewRunner(scenariosDir, topologiesDir string) *Runner {
	return &Runner{
		ScenariosDir:  scenariosDir,
		TopologiesDir: topologiesDir,
	}
}

// Run executes the selected scenarios and returns results.
// Scenarios are sorted by dependency order; a scenario whose requirement did
// not pass is skipped. When every scenario shares a topology it is connected
// once and the sessions are shared.
func (r *Runner) Run(ctx context.Context, opts RunOptions) ([]*ScenarioResult, error) {
	scenarios, err := r.Select(opts.Scenario)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	r.progress(func(p ProgressReporter) { p.SuiteStart(scenarios) })
	suiteStart := time.Now()

	var results []*ScenarioResult
	if topo := sharedTopology(scenarios, opts.Topology); topo != "" {
		results, err = r.runShared(ctx, scenarios, topo, opts)
	} else {
		results, err = r.runIndependent(ctx, scenarios, opts)
	}
	if err != nil {
		return results, err
	}

	r.progress(func(p ProgressReporter) { p.SuiteEnd(results, time.Since(suiteStart)) })
	return results, nil
}

// Select parses every scenario in ScenariosDir and returns those matching
// pattern, plus everything they transitively require, in dependency order.
func (r *Runner) Select(pattern string) ([]*Scenario, error) {
	all, err := ParseAllScenarios(r.ScenariosDir)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s: %w", r.ScenariosDir, util.ErrNotFound)
	}
	sorted, err := ValidateDependencyGraph(all)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return sorted, nil
	}

	byName := make(map[string]*Scenario, len(sorted))
	for _, s := range sorted {
		byName[s.Name] = s
	}
	want := make(map[string]bool)
	var add func(s *Scenario)
	add = func(s *Scenario) {
		if want[s.Name] {
			return
		}
		want[s.Name] = true
		for _, req := range s.Requires {
			add(byName[req])
		}
	}

	matched := false
	for _, s := range sorted {
		ok, err := matchScenario(pattern, s)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = true
			add(s)
		}
	}
	if !matched {
		return nil, fmt.Errorf("scenario %q not found in %s: %w", pattern, r.ScenariosDir, util.ErrNotFound)
	}

	var selected []*Scenario
	for _, s := range sorted {
		if want[s.Name] {
			selected = append(selected, s)
		}
	}
	return selected, nil
}

// matchScenario matches pattern against the scenario name and its file name
// without extension.
func matchScenario(pattern string, s *Scenario) (bool, error) {
	ok, err := doublestar.Match(pattern, s.Name)
	if err != nil {
		return false, fmt.Errorf("scenario pattern %q: %w", pattern, err)
	}
	if ok || s.Path == "" {
		return ok, nil
	}
	base := strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path))
	return doublestar.Match(pattern, base)
}

// scenarioRunner is a callback that executes a single scenario within the
// iteration loop. It receives the resolved topology name.
type scenarioRunner func(ctx context.Context, sc *Scenario, topology string) (*ScenarioResult, error)

// iterateScenarios encapsulates the common scenario iteration loop used by both
// runShared and runIndependent. It handles resume, pause, requires checks, and
// progress reporting. The run callback performs the actual per-scenario execution.
func (r *Runner) iterateScenarios(ctx context.Context, scenarios []*Scenario, opts RunOptions, run scenarioRunner) ([]*ScenarioResult, error) {
	scenarioStatus := make(map[string]StepStatus)
	var results []*ScenarioResult

	for name, st := range opts.Completed {
		scenarioStatus[name] = st
	}

	for i, sc := range scenarios {
		topo := opts.Topology
		if topo == "" {
			topo = sc.Topology
		}

		if opts.Resume {
			if prev, ok := opts.Completed[sc.Name]; ok && prev == StepStatusPassed {
				result := &ScenarioResult{
					Name:       sc.Name,
					Topology:   topo,
					Status:     StepStatusSkipped,
					SkipReason: "already passed (resumed)",
				}
				results = append(results, result)
				r.progress(func(p ProgressReporter) { p.ScenarioEnd(result, i, len(scenarios)) })
				continue
			}
		}

		if opts.Suite != "" && CheckPausing(opts.Suite) {
			return results, &PauseError{Completed: len(results)}
		}
		if err := ctx.Err(); err != nil {
			return results, &InfraError{Op: "run", Err: fmt.Errorf("interrupted: %w", err)}
		}

		if reason := checkRequires(sc, scenarioStatus); reason != "" {
			result := &ScenarioResult{
				Name:       sc.Name,
				Topology:   topo,
				Status:     StepStatusSkipped,
				SkipReason: reason,
			}
			results = append(results, result)
			scenarioStatus[sc.Name] = StepStatusSkipped
			r.progress(func(p ProgressReporter) { p.ScenarioEnd(result, i, len(scenarios)) })
			continue
		}

		r.progress(func(p ProgressReporter) { p.ScenarioStart(sc.Name, i, len(scenarios)) })

		result, err := run(ctx, sc, topo)
		if err != nil {
			return results, err
		}

		results = append(results, result)
		scenarioStatus[sc.Name] = result.Status
		r.progress(func(p ProgressReporter) { p.ScenarioEnd(result, i, len(scenarios)) })
	}

	return results, nil
}

// openLab returns a connected lab for the named topology. The returned
// cleanup closes labs the runner opened itself; a preset Lab is left open.
func (r *Runner) openLab(ctx context.Context, name string) (func(), error) {
	if r.Lab != nil && (name == "" || r.Lab.Topology.Name == name) {
		if err := r.Lab.Connect(ctx); err != nil {
			return nil, err
		}
		return func() {}, nil
	}

	topo, err := topology.LoadDir(filepath.Join(r.TopologiesDir, name))
	if err != nil {
		return nil, &InfraError{Op: "topology", Err: err}
	}
	lab := NewLab(topo, r.Dial)
	fmt.Fprintf(os.Stderr, "vtyconform: connecting to %d devices of %s...\n", len(topo.Devices), topo.Name)
	if err := lab.Connect(ctx); err != nil {
		lab.Close()
		return nil, err
	}

	prev := r.Lab
	r.Lab = lab
	return func() {
		if err := lab.Close(); err != nil {
			util.Logger.Warnf("closing lab %s: %v", topo.Name, err)
		}
		r.Lab = prev
	}, nil
}

// runShared connects once and runs all scenarios against the shared sessions.
func (r *Runner) runShared(ctx context.Context, scenarios []*Scenario, topo string, opts RunOptions) ([]*ScenarioResult, error) {
	cleanup, err := r.openLab(ctx, topo)
	if err != nil {
		var results []*ScenarioResult
		for i, sc := range scenarios {
			result := &ScenarioResult{
				Name:         sc.Name,
				Topology:     topo,
				Status:       StepStatusError,
				ConnectError: err,
			}
			results = append(results, result)
			r.progress(func(p ProgressReporter) { p.ScenarioEnd(result, i, len(scenarios)) })
		}
		return results, nil
	}
	defer cleanup()

	return r.iterateScenarios(ctx, scenarios, opts, func(ctx context.Context, sc *Scenario, _ string) (*ScenarioResult, error) {
		return r.runScenario(ctx, sc, topo, opts), nil
	})
}

// runIndependent connects each scenario's topology separately.
func (r *Runner) runIndependent(ctx context.Context, scenarios []*Scenario, opts RunOptions) ([]*ScenarioResult, error) {
	return r.iterateScenarios(ctx, scenarios, opts, func(ctx context.Context, sc *Scenario, topo string) (*ScenarioResult, error) {
		return r.RunScenario(ctx, sc, topo, opts), nil
	})
}

// RunScenario connects the scenario's topology and executes it end-to-end.
func (r *Runner) RunScenario(ctx context.Context, sc *Scenario, topo string, opts RunOptions) *ScenarioResult {
	start := time.Now()
	cleanup, err := r.openLab(ctx, topo)
	if err != nil {
		return &ScenarioResult{
			Name:         sc.Name,
			Topology:     topo,
			Status:       StepStatusError,
			ConnectError: err,
			Duration:     time.Since(start),
		}
	}
	defer cleanup()
	return r.runScenario(ctx, sc, topo, opts)
}

func (r *Runner) runScenario(ctx context.Context, sc *Scenario, topo string, opts RunOptions) *ScenarioResult {
	r.opts = opts
	r.scenario = sc

	result := &ScenarioResult{
		Name:     sc.Name,
		Topology: topo,
	}
	start := time.Now()
	r.runScenarioSteps(ctx, sc, result)
	result.Duration = time.Since(start)
	return result
}

// runScenarioSteps executes the steps of a scenario, appending results to result.
// When scenario.Repeat > 1, all steps are executed in a loop for the specified
// number of iterations. Execution stops on the first failed iteration.
func (r *Runner) runScenarioSteps(ctx context.Context, scenario *Scenario, result *ScenarioResult) {
	repeat := scenario.Repeat
	if repeat <= 1 {
		repeat = 1
	}
	result.Repeat = scenario.Repeat

	for iter := 1; iter <= repeat; iter++ {
		iterFailed := false
		for i := range scenario.Steps {
			step := &scenario.Steps[i]
			r.progress(func(p ProgressReporter) { p.StepStart(scenario.Name, step, i, len(scenario.Steps)) })

			output := r.executeStep(ctx, step)

			sr := *output.Result
			if repeat > 1 {
				sr.Iteration = iter
			}
			result.Steps = append(result.Steps, sr)

			r.progress(func(p ProgressReporter) { p.StepEnd(scenario.Name, &sr, i, len(scenario.Steps)) })

			// Fail-fast within iteration
			if sr.Status == StepStatusFailed || sr.Status == StepStatusError {
				iterFailed = true
				break
			}
		}

		if iterFailed {
			if repeat > 1 {
				result.FailedIteration = iter
			}
			break
		}
	}

	result.Status = computeOverallStatus(result.Steps)
}

// executeStep dispatches a step to its executor.
func (r *Runner) executeStep(ctx context.Context, step *Step) *StepOutput {
	log := util.WithStep(r.scenario.Name, step.Name)

	executor, ok := executors[step.Action]
	if !ok {
		err := &StepError{
			Step:   step.Name,
			Action: step.Action,
			Err:    fmt.Errorf("unknown action: %s", step.Action),
		}
		return &StepOutput{
			Result: &StepResult{
				Name:    step.Name,
				Action:  step.Action,
				Status:  StepStatusError,
				Message: err.Error(),
			},
		}
	}

	log.Debugf("executing %s", step.Action)
	start := time.Now()
	output := executor.Execute(ctx, r, step)
	output.Result.Duration = time.Since(start)
	output.Result.Name = step.Name
	output.Result.Action = step.Action

	// Aggregate per-device details into Message when executors only set Details
	if output.Result.Message == "" && len(output.Result.Details) > 0 {
		var msgs []string
		for _, d := range output.Result.Details {
			if (d.Status == StepStatusFailed || d.Status == StepStatusError) && d.Message != "" {
				msgs = append(msgs, d.Device+": "+d.Message)
			}
		}
		if len(msgs) > 0 {
			output.Result.Message = strings.Join(msgs, "; ")
		}
	}
	log.Debugf("%s: %s", output.Result.Status, output.Result.Message)

	return output
}

// renderFor renders step's templates for one device.
func (r *Runner) renderFor(step *Step, device string) (*Step, error) {
	var topo *topology.Topology
	if r.Lab != nil {
		topo = r.Lab.Topology
	}
	return renderStep(step, templateData(topo, r.scenario, r.opts.Vars, device))
}

// progress calls fn with the ProgressReporter if one is set.
func (r *Runner) progress(fn func(ProgressReporter)) {
	if r.Progress != nil {
		fn(r.Progress)
	}
}

// resolveDevices resolves step.Devices to concrete device names.
func (r *Runner) resolveDevices(step *Step) []string {
	return step.Devices.Resolve(r.Lab.Topology.DeviceNames())
}

// computeOverallStatus computes overall scenario status from step results.
func computeOverallStatus(steps []StepResult) StepStatus {
	hasError := false
	for _, s := range steps {
		if s.Status == StepStatusError {
			hasError = true
		}
		if s.Status == StepStatusFailed {
			return StepStatusFailed
		}
	}
	if hasError {
		return StepStatusError
	}
	return StepStatusPassed
}

// HasRequires returns true if any scenario declares dependencies.
func HasRequires(scenarios []*Scenario) bool {
	for _, s := range scenarios {
		if len(s.Requires) > 0 {
			return true
		}
	}
	return false
}

// sharedTopology returns the common topology if all scenarios use the same one,
// or the override if set. Returns "" if topologies are mixed.
func sharedTopology(scenarios []*Scenario, override string) string {
	if override != "" {
		return override
	}
	if len(scenarios) == 0 {
		return ""
	}
	topo := scenarios[0].Topology
	for _, s := range scenarios[1:] {
		if s.Topology != topo {
			return ""
		}
	}
	return topo
}

// checkRequires returns a skip reason if any required scenario did not pass,
// or "" if all requirements are satisfied. A required scenario that has not
// been run yet is treated as not passed.
func checkRequires(sc *Scenario, status map[string]StepStatus) string {
	for _, req := range sc.Requires {
		st, ok := status[req]
		if !ok {
			return fmt.Sprintf("requires '%s' which has not run yet", req)
		}
		if st != StepStatusPassed {
			return fmt.Sprintf("requires '%s' which %s", req, statusVerb(st))
		}
	}
	return ""
}

// Summarize counts results by status.
func Summarize(results []*ScenarioResult) map[StepStatus]int {
	counts := make(map[StepStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
