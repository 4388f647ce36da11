// Package vtytest runs declarative CLI conformance scenarios against switches.
// A scenario is a YAML file of steps (configure, show, verify) and cases
// (configure, expect lines in show output, unconfigure, expect them gone),
// executed over CLI sessions to the devices of a topology.
package vtytest

import (
	"fmt"
	"sort"
	"time"
)

// Scenario is a parsed test scenario from a YAML file.
type Scenario struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Topology    string            `yaml:"topology"`
	Requires    []string          `yaml:"requires,omitempty"`
	Repeat      int               `yaml:"repeat,omitempty"`
	Vars        map[string]string `yaml:"vars,omitempty"`
	Steps       []Step            `yaml:"steps"`
	Cases       []Case            `yaml:"cases,omitempty"`

	// Path is the file the scenario was read from.
	Path string `yaml:"-"`
}

// Step is a single action within a scenario.
// Fields are action-specific; the parser checks the required ones.
type Step struct {
	Name    string         `yaml:"name"`
	Action  StepAction     `yaml:"action"`
	Devices deviceSelector `yaml:"devices,omitempty"`

	// wait
	Duration time.Duration `yaml:"duration,omitempty"`

	// configure, unconfigure
	Context  []string `yaml:"context,omitempty"`
	Commands []string `yaml:"commands,omitempty"`

	// exec, verify-show, shell
	Command string `yaml:"command,omitempty"`

	// verify-ping
	Target string `yaml:"target,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// verify-snmp, verify-radius, verify-db, unconfigure
	Params map[string]any `yaml:"params,omitempty"`

	Expect *ExpectBlock `yaml:"expect,omitempty"`
}

// Case is the declarative form of a configure/verify/unconfigure/verify
// round trip. The parser expands each case into four steps.
type Case struct {
	Name    string         `yaml:"name"`
	Devices deviceSelector `yaml:"devices"`

	Context   []string `yaml:"context,omitempty"`
	Configure []string `yaml:"configure"`

	// Show is the command whose output is checked, usually show running-config.
	Show    string   `yaml:"show"`
	Section string   `yaml:"section,omitempty"`
	Expect  []string `yaml:"expect"`

	// Unconfigure defaults to the negation of Configure in reverse order.
	Unconfigure []string `yaml:"unconfigure,omitempty"`

	// Absent defaults to Expect.
	Absent          []string `yaml:"absent,omitempty"`
	SkipUnconfigure bool     `yaml:"skip_unconfigure,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// StepAction identifies the type of step to execute.
type StepAction string

const (
	ActionConfigure       StepAction = "configure"
	ActionUnconfigure     StepAction = "unconfigure"
	ActionExec            StepAction = "exec"
	ActionVerifyShow      StepAction = "verify-show"
	ActionShell           StepAction = "shell"
	ActionVerifyPing      StepAction = "verify-ping"
	ActionVerifyReachable StepAction = "verify-reachable"
	ActionVerifyBanner    StepAction = "verify-banner"
	ActionVerifySNMP      StepAction = "verify-snmp"
	ActionVerifyRADIUS    StepAction = "verify-radius"
	ActionVerifyDB        StepAction = "verify-db"
	ActionWait            StepAction = "wait"
)

// validActions is the set of all recognized step actions, derived from the
// executors map in steps.go at init time.
var validActions map[StepAction]bool

func init() {
	validActions = make(map[StepAction]bool, len(executors))
	for action := range executors {
		validActions[action] = true
	}
}

// Actions returns all recognized step actions sorted by name.
func Actions() []StepAction {
	actions := make([]StepAction, 0, len(validActions))
	for a := range validActions {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// deviceSelector handles the two YAML forms for the "devices" field:
//
//	devices: all        → All: true
//	devices: [sw1, sw2] → Devices: ["sw1", "sw2"]
type deviceSelector struct {
	All     bool
	Devices []string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (ds *deviceSelector) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		if s == "all" {
			ds.All = true
			return nil
		}
		return fmt.Errorf("invalid device selector string: %q (expected \"all\")", s)
	}
	return unmarshal(&ds.Devices)
}

// Resolve returns the list of device names to target.
// If All is true, returns allDevices sorted for deterministic ordering.
func (ds *deviceSelector) Resolve(allDevices []string) []string {
	if ds.All {
		sorted := make([]string, len(allDevices))
		copy(sorted, allDevices)
		sort.Strings(sorted)
		return sorted
	}
	return ds.Devices
}

// Empty reports whether no devices were selected.
func (ds *deviceSelector) Empty() bool {
	return !ds.All && len(ds.Devices) == 0
}

// stringList accepts either a scalar or a sequence in YAML.
type stringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *stringList) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*l = stringList{s}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// ExpectBlock is a union of all action-specific expectation fields.
type ExpectBlock struct {
	// verify-show, exec, shell, verify-banner, verify-snmp
	Contains   stringList        `yaml:"contains,omitempty"`
	Absent     stringList        `yaml:"absent,omitempty"`
	Lines      stringList        `yaml:"lines,omitempty"`
	Matches    stringList        `yaml:"matches,omitempty"`
	NotMatches stringList        `yaml:"not_matches,omitempty"`
	Section    string            `yaml:"section,omitempty"`
	Count      map[string]int    `yaml:"count,omitempty"`
	JSON       map[string]string `yaml:"json,omitempty"`
	Empty      *bool             `yaml:"empty,omitempty"`

	// configure, unconfigure, exec: the CLI must reject the command.
	// CLIErrorContains additionally checks the error text.
	CLIError         *bool  `yaml:"cli_error,omitempty"`
	CLIErrorContains string `yaml:"cli_error_contains,omitempty"`

	// Polling
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// verify-ping, verify-reachable
	SuccessRate *float64 `yaml:"success_rate,omitempty"`

	// verify-radius: "accept" or "reject"
	Result string `yaml:"result,omitempty"`

	// verify-db
	Exists *bool             `yaml:"exists,omitempty"`
	Fields map[string]string `yaml:"fields,omitempty"`
}

// expectsCLIError reports whether the step expects the CLI to reject it.
func (e *ExpectBlock) expectsCLIError() bool {
	return e != nil && ((e.CLIError != nil && *e.CLIError) || e.CLIErrorContains != "")
}

// hasOutputChecks reports whether any output assertion is set.
func (e *ExpectBlock) hasOutputChecks() bool {
	if e == nil {
		return false
	}
	return len(e.Contains) > 0 || len(e.Absent) > 0 || len(e.Lines) > 0 ||
		len(e.Matches) > 0 || len(e.NotMatches) > 0 || len(e.Count) > 0 ||
		len(e.JSON) > 0 || e.Empty != nil
}
