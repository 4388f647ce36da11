package vtytest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vtyconform/vtyconform/pkg/audit"
	"github.com/vtyconform/vtyconform/pkg/output"
	"github.com/vtyconform/vtyconform/pkg/session"
	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// stepExecutor executes a single step and returns output.
type stepExecutor interface {
	Execute(ctx context.Context, r *Runner, step *Step) *StepOutput
}

// StepOutput is the return value from every executor.
type StepOutput struct {
	Result *StepResult
}

// executors maps each StepAction to its executor implementation.
var executors = map[StepAction]stepExecutor{
	ActionConfigure:       &configureExecutor{},
	ActionUnconfigure:     &unconfigureExecutor{},
	ActionExec:            &execExecutor{},
	ActionVerifyShow:      &verifyShowExecutor{},
	ActionShell:           &shellExecutor{},
	ActionVerifyPing:      &verifyPingExecutor{},
	ActionVerifyReachable: &verifyReachableExecutor{},
	ActionVerifyBanner:    &verifyBannerExecutor{},
	ActionVerifySNMP:      &verifySNMPExecutor{},
	ActionVerifyRADIUS:    &verifyRADIUSExecutor{},
	ActionVerifyDB:        &verifyDBExecutor{},
	ActionWait:            &waitExecutor{},
}

// strParam extracts a string parameter from the step's Params map.
func strParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// intParam extracts an integer parameter from the step's Params map.
// Handles float64 and string representations.
func intParam(params map[string]any, key string) int {
	v, ok := params[key]
	if !ok {
		return 0
	}
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			util.Logger.Warnf("intParam: invalid integer value for %q: %q (using 0)", key, val)
		}
		return n
	default:
		return 0
	}
}

// boolParam extracts a boolean parameter from the step's Params map.
func boolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "1"
	default:
		return false
	}
}

// strSliceParam extracts a string slice parameter from the step's Params map.
// A scalar is returned as a one-element slice.
func strSliceParam(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			result = append(result, fmt.Sprintf("%v", item))
		}
		return result
	case []string:
		return val
	case string:
		return []string{val}
	default:
		return nil
	}
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// deviceScope says which resolved devices a step applies to.
type deviceScope int

const (
	// switchesOnly skips host devices: the action needs a switch CLI.
	switchesOnly deviceScope = iota
	anyDevice
)

// forEachDevice resolves the step's devices, renders the step for each one
// and collects fn's per-device results. Hosts are skipped for switchesOnly.
func (r *Runner) forEachDevice(step *Step, scope deviceScope, fn func(dev *topology.Device, step *Step) DeviceResult) *StepOutput {
	names := r.resolveDevices(step)
	if len(names) == 0 {
		return &StepOutput{Result: &StepResult{
			Status:  StepStatusError,
			Details: []DeviceResult{{Device: "(none)", Status: StepStatusError, Message: "no devices resolved"}},
		}}
	}

	details := make([]DeviceResult, 0, len(names))
	for _, name := range names {
		dev, err := r.Lab.Device(name)
		if err != nil {
			details = append(details, DeviceResult{Device: name, Status: StepStatusError, Message: err.Error()})
			continue
		}
		if scope == switchesOnly && dev.IsHost() {
			details = append(details, DeviceResult{Device: name, Status: StepStatusSkipped, Message: "host device (switch CLI not applicable)"})
			continue
		}
		rendered, err := r.renderFor(step, name)
		if err != nil {
			details = append(details, DeviceResult{Device: name, Status: StepStatusError, Message: err.Error()})
			continue
		}
		res := fn(dev, rendered)
		res.Device = name
		details = append(details, res)
	}

	return &StepOutput{Result: &StepResult{Status: aggregateStatus(details), Details: details}}
}

// aggregateStatus is FAIL if any device failed, else ERROR if any errored,
// else SKIP if every device was skipped, else PASS.
func aggregateStatus(details []DeviceResult) StepStatus {
	failed, errored, skipped := false, false, 0
	for _, d := range details {
		switch d.Status {
		case StepStatusFailed:
			failed = true
		case StepStatusError:
			errored = true
		case StepStatusSkipped:
			skipped++
		}
	}
	switch {
	case failed:
		return StepStatusFailed
	case errored:
		return StepStatusError
	case len(details) > 0 && skipped == len(details):
		return StepStatusSkipped
	default:
		return StepStatusPassed
	}
}

// checkForDevices calls fn once for each target device.
// Use for non-polling verification executors.
func (r *Runner) checkForDevices(step *Step, scope deviceScope, fn func(dev *topology.Device, step *Step) (StepStatus, string)) *StepOutput {
	return r.forEachDevice(step, scope, func(dev *topology.Device, step *Step) DeviceResult {
		status, msg := fn(dev, step)
		return DeviceResult{Status: status, Message: msg}
	})
}

// errPollTimeout is returned by pollUntil when the deadline passes.
var errPollTimeout = errors.New("poll timeout")

// pollUntil polls fn at the given interval until it returns true, the timeout
// expires, or ctx is cancelled.
func pollUntil(ctx context.Context, timeout, interval time.Duration, fn func() (done bool, err error)) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := fn()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Add(interval).Before(deadline) {
			return fmt.Errorf("timeout after %s: %w", timeout, errPollTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// pollForDevices calls fn for each device until it reports done or
// expect.timeout expires. Without a timeout fn is called once. On failure
// the last message is used as the detail.
func (r *Runner) pollForDevices(ctx context.Context, step *Step, scope deviceScope, fn func(dev *topology.Device, step *Step) (done bool, msg string, err error)) *StepOutput {
	var timeout, interval time.Duration
	if step.Expect != nil {
		timeout, interval = step.Expect.Timeout, step.Expect.PollInterval
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return r.forEachDevice(step, scope, func(dev *topology.Device, step *Step) DeviceResult {
		var matched bool
		var lastMsg string
		attempt := func() (bool, error) {
			done, msg, err := fn(dev, step)
			lastMsg = msg
			if err != nil {
				return false, err
			}
			matched = done
			return done, nil
		}

		var pollErr error
		if timeout <= 0 {
			_, pollErr = attempt()
		} else {
			pollErr = pollUntil(ctx, timeout, interval, attempt)
		}

		switch {
		case pollErr != nil && !errors.Is(pollErr, errPollTimeout):
			return DeviceResult{Status: StepStatusError, Message: pollErr.Error()}
		case matched:
			return DeviceResult{Status: StepStatusPassed, Message: lastMsg}
		}
		if timeout > 0 {
			lastMsg = fmt.Sprintf("%s (after %s)", lastMsg, timeout)
		}
		return DeviceResult{Status: StepStatusFailed, Message: lastMsg}
	})
}

// cliSession returns the open CLI session for dev.
func (r *Runner) cliSession(dev *topology.Device) (session.Session, error) {
	return r.Lab.Session(dev.Name)
}

// shellFor returns the raw shell of dev's session.
func (r *Runner) shellFor(dev *topology.Device) (session.Sheller, error) {
	sess, err := r.Lab.Session(dev.Name)
	if err != nil {
		return nil, err
	}
	sh, ok := sess.(session.Sheller)
	if !ok {
		return nil, fmt.Errorf("transport %s has no shell access: %w", dev.Transport, util.ErrInvalidConfig)
	}
	return sh, nil
}

// audit records commands sent to dev. Logging failures are warnings only.
func (r *Runner) audit(dev *topology.Device, step *Step, modeLines, commands []string, d output.Dump, runErr error, elapsed time.Duration) {
	if r.Audit == nil {
		return
	}
	var scenario string
	if r.scenario != nil {
		scenario = r.scenario.Name
	}
	ev := audit.NewEvent(scenario, step.Name, dev.Name, string(step.Action)).
		WithRun(r.opts.RunID, r.opts.Suite).
		WithCommands(modeLines, commands).
		WithDuration(elapsed)
	switch msg := rejection(d, runErr); {
	case hardError(runErr) != nil:
		ev.WithError(runErr)
	case msg != "":
		ev.WithRejection(msg)
	default:
		ev.WithSuccess()
	}
	if err := r.Audit.Log(ev); err != nil {
		util.WithDevice(dev.Name).Warnf("audit: %v", err)
	}
}

// cliOutcome checks a command's output for a CLI rejection against what the
// step expects. okMsg is reported when the command was accepted as expected.
func cliOutcome(device string, step *Step, d output.Dump, runErr error, okMsg string) (StepStatus, string) {
	rejected := rejection(d, runErr)
	ok, msg := checkCLIError(step.Expect, rejected)
	if !ok {
		if rejected != "" {
			return StepStatusFailed, (&util.CLIError{Device: device, Command: d.Command, Message: rejected}).Error()
		}
		return StepStatusFailed, msg
	}
	if msg != "" {
		return StepStatusPassed, msg
	}
	return StepStatusPassed, okMsg
}

// ============================================================================
// configureExecutor
// ============================================================================

type configureExecutor struct{}

func (e *configureExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, switchesOnly, func(dev *topology.Device, step *Step) (StepStatus, string) {
		return r.applyConfig(ctx, dev, step, step.Commands)
	})
}

// applyConfig enters configuration mode on dev, applies step.Context then
// commands, and checks the output for CLI rejections.
func (r *Runner) applyConfig(ctx context.Context, dev *topology.Device, step *Step, commands []string) (StepStatus, string) {
	sess, err := r.cliSession(dev)
	if err != nil {
		return StepStatusError, err.Error()
	}
	util.WithDevice(dev.Name).Debugf("configure %v: %v", step.Context, commands)

	start := time.Now()
	raw, err := sess.Configure(ctx, step.Context, commands)
	d := output.New(strings.Join(commands, "; "), raw)
	r.audit(dev, step, step.Context, commands, d, err, time.Since(start))
	if err := hardError(err); err != nil {
		return StepStatusError, err.Error()
	}
	return cliOutcome(dev.Name, step, d, err, fmt.Sprintf("%d commands applied", len(commands)))
}

// ============================================================================
// unconfigureExecutor
// ============================================================================

type unconfigureExecutor struct{}

func (e *unconfigureExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, switchesOnly, func(dev *topology.Device, step *Step) (StepStatus, string) {
		commands := step.Commands
		if len(commands) == 0 {
			commands = NegateCommands(strSliceParam(step.Params, "of"))
		}
		return r.applyConfig(ctx, dev, step, commands)
	})
}

// ============================================================================
// execExecutor
// ============================================================================

type execExecutor struct{}

func (e *execExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, switchesOnly, func(dev *topology.Device, step *Step) (StepStatus, string) {
		sess, err := r.cliSession(dev)
		if err != nil {
			return StepStatusError, err.Error()
		}
		util.WithDevice(dev.Name).Debugf("exec %q", step.Command)

		start := time.Now()
		raw, runErr := sess.Exec(ctx, step.Command)
		d := output.New(step.Command, raw)
		r.audit(dev, step, nil, []string{step.Command}, d, runErr, time.Since(start))
		if err := hardError(runErr); err != nil {
			return StepStatusError, err.Error()
		}

		status, msg := cliOutcome(dev.Name, step, d, runErr, fmt.Sprintf("%d lines", len(d.Lines())))
		if status != StepStatusPassed || step.Expect.expectsCLIError() || !step.Expect.hasOutputChecks() {
			return status, msg
		}
		return outputStatus(step.Expect, d)
	})
}

// outputStatus maps checkOutput's result onto a step status.
func outputStatus(e *ExpectBlock, d output.Dump) (StepStatus, string) {
	ok, msg, err := checkOutput(e, d)
	switch {
	case err != nil:
		return StepStatusError, err.Error()
	case ok:
		return StepStatusPassed, msg
	default:
		return StepStatusFailed, msg
	}
}

// ============================================================================
// verifyShowExecutor
// ============================================================================

type verifyShowExecutor struct{}

func (e *verifyShowExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.pollForDevices(ctx, step, switchesOnly, func(dev *topology.Device, step *Step) (bool, string, error) {
		sess, err := r.cliSession(dev)
		if err != nil {
			return false, "", err
		}
		raw, runErr := sess.Exec(ctx, step.Command)
		if err := hardError(runErr); err != nil {
			return false, "", err
		}
		d := output.New(step.Command, raw)
		if msg := rejection(d, runErr); msg != "" {
			return false, (&util.CLIError{Device: dev.Name, Command: step.Command, Message: msg}).Error(), nil
		}
		return checkOutput(step.Expect, d)
	})
}

// ============================================================================
// shellExecutor
// ============================================================================

type shellExecutor struct{}

func (e *shellExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, anyDevice, func(dev *topology.Device, step *Step) (StepStatus, string) {
		sh, err := r.shellFor(dev)
		if err != nil {
			return StepStatusError, err.Error()
		}
		util.WithDevice(dev.Name).Debugf("shell %q", step.Command)

		raw, runErr := sh.Shell(ctx, step.Command)
		if err := hardError(runErr); err != nil {
			return StepStatusError, err.Error()
		}
		d := output.New(step.Command, raw)

		if step.Expect != nil && step.Expect.SuccessRate != nil {
			return rateStatus(step.Command, parsePingSuccessRate(raw), *step.Expect.SuccessRate)
		}
		if step.Expect.hasOutputChecks() {
			return outputStatus(step.Expect, d)
		}
		if runErr != nil {
			return StepStatusFailed, runErr.Error()
		}
		return StepStatusPassed, "command succeeded"
	})
}

// ============================================================================
// verifyPingExecutor
// ============================================================================

type verifyPingExecutor struct{}

func (e *verifyPingExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, anyDevice, func(dev *topology.Device, step *Step) (StepStatus, string) {
		sh, err := r.shellFor(dev)
		if err != nil {
			return StepStatusError, err.Error()
		}

		// A target that is not an address names a topology device.
		target := step.Target
		if net.ParseIP(target) == nil {
			if td, ok := r.Lab.Topology.Devices[target]; ok {
				target = td.Address
			}
		}

		cmd := fmt.Sprintf("ping -c %d -W 2", step.Count)
		if src := strParam(step.Params, "source"); src != "" {
			cmd += " -I " + session.ShellQuote(src)
		}
		cmd += " " + session.ShellQuote(target)

		raw, err := sh.Shell(ctx, cmd)
		if err := hardError(err); err != nil && raw == "" {
			return StepStatusError, fmt.Sprintf("ping command failed: %s", err)
		}
		return rateStatus("ping "+target, parsePingSuccessRate(raw), *step.Expect.SuccessRate)
	})
}

func rateStatus(what string, got, want float64) (StepStatus, string) {
	if got >= want {
		return StepStatusPassed, fmt.Sprintf("%s: %.0f%% success", what, got*100)
	}
	return StepStatusFailed, fmt.Sprintf("%s: %.0f%% success (expected ≥ %.0f%%)", what, got*100, want*100)
}

var packetLossRe = regexp.MustCompile(`([\d.]+)% packet loss`)

func parsePingSuccessRate(output string) float64 {
	matches := packetLossRe.FindStringSubmatch(output)
	if len(matches) < 2 {
		return 0
	}
	loss, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0
	}
	return 1.0 - (loss / 100.0)
}

// ============================================================================
// waitExecutor
// ============================================================================

type waitExecutor struct{}

func (e *waitExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	select {
	case <-time.After(step.Duration):
	case <-ctx.Done():
		return &StepOutput{Result: &StepResult{
			Status: StepStatusError, Message: "interrupted",
		}}
	}
	return &StepOutput{Result: &StepResult{
		Status:  StepStatusPassed,
		Message: fmt.Sprintf("%s elapsed", step.Duration),
	}}
}
