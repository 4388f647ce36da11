package vtytest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vtyconform/vtyconform/pkg/util"
)

// Defaults applied by the parser.
const (
	defaultPollInterval = 2 * time.Second
	defaultPingCount    = 5
	defaultSNMPPort     = 161
	defaultRADIUSPort   = 1812
	defaultRedisAddr    = "127.0.0.1:6379"
)

// ParseScenario reads a YAML scenario file, expands its cases, applies
// defaults and validates every step.
func ParseScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}

	s, err := parseScenarioData(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

func parseScenarioData(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	if err := expandCases(&s); err != nil {
		return nil, err
	}
	applyDefaults(&s)
	if err := validateScenario(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseAllScenarios reads all .yaml files in dir, sorted by file name.
func ParseAllScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenarios dir %s: %w", dir, err)
	}

	var scenarios []*Scenario
	for _, e := range entries {
		if e.IsDir() || !isScenarioFile(e.Name()) {
			continue
		}
		s, err := ParseScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func isScenarioFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") && name != "topology.yaml"
}

// NegateCommand returns the command that undoes cmd: "no " is removed when
// present and prefixed otherwise.
func NegateCommand(cmd string) string {
	trimmed := strings.TrimSpace(cmd)
	if rest, ok := strings.CutPrefix(trimmed, "no "); ok {
		return strings.TrimSpace(rest)
	}
	return "no " + trimmed
}

// NegateCommands negates each command in reverse order, so the most recently
// applied configuration is removed first.
func NegateCommands(cmds []string) []string {
	out := make([]string, 0, len(cmds))
	for i := len(cmds) - 1; i >= 0; i-- {
		out = append(out, NegateCommand(cmds[i]))
	}
	return out
}

// expandCases appends the four-step round trip of every case to s.Steps.
func expandCases(s *Scenario) error {
	v := &util.ValidationBuilder{}
	for i, c := range s.Cases {
		prefix := fmt.Sprintf("scenario %s case %d (%s)", s.Name, i, c.Name)
		v.Add(c.Name != "", prefix+": name is required")
		v.Add(!c.Devices.Empty(), prefix+": devices is required")
		v.Add(len(c.Configure) > 0, prefix+": configure is required")
		v.Add(c.Show != "", prefix+": show is required")
		v.Add(len(c.Expect) > 0, prefix+": expect is required")
	}
	if err := v.Build(); err != nil {
		return err
	}

	for _, c := range s.Cases {
		unconfigure := c.Unconfigure
		if len(unconfigure) == 0 {
			unconfigure = NegateCommands(c.Configure)
		}
		absent := c.Absent
		if len(absent) == 0 {
			absent = c.Expect
		}

		s.Steps = append(s.Steps,
			Step{
				Name:     c.Name + ": configure",
				Action:   ActionConfigure,
				Devices:  c.Devices,
				Context:  c.Context,
				Commands: c.Configure,
			},
			Step{
				Name:    c.Name + ": verify",
				Action:  ActionVerifyShow,
				Devices: c.Devices,
				Command: c.Show,
				Expect:  &ExpectBlock{Section: c.Section, Contains: c.Expect, Timeout: c.Timeout},
			},
		)
		if c.SkipUnconfigure {
			continue
		}
		s.Steps = append(s.Steps,
			Step{
				Name:     c.Name + ": unconfigure",
				Action:   ActionUnconfigure,
				Devices:  c.Devices,
				Context:  c.Context,
				Commands: unconfigure,
			},
			Step{
				Name:    c.Name + ": verify absent",
				Action:  ActionVerifyShow,
				Devices: c.Devices,
				Command: c.Show,
				Expect:  &ExpectBlock{Section: c.Section, Absent: absent, Timeout: c.Timeout},
			},
		)
	}
	return nil
}

// requireParam checks that a required key exists in step.Params.
func requireParam(prefix string, params map[string]any, key string) error {
	if _, ok := params[key]; !ok {
		return fmt.Errorf("%s: params.%s is required", prefix, key)
	}
	return nil
}

// stepValidation declares what fields/params each action requires.
type stepValidation struct {
	needsDevices bool     // must have a device selector
	singleDevice bool     // exactly one device required (implies needsDevices)
	fields       []string // required step-level fields
	params       []string // required params map keys
	custom       func(prefix string, step *Step) error
}

// stepValidations is the declarative validation table for all step actions.
var stepValidations = map[StepAction]stepValidation{
	ActionWait: {custom: func(prefix string, step *Step) error {
		if step.Duration <= 0 {
			return fmt.Errorf("%s: duration is required", prefix)
		}
		return nil
	}},
	ActionConfigure: {needsDevices: true, custom: func(prefix string, step *Step) error {
		if len(step.Commands) == 0 {
			return fmt.Errorf("%s: commands is required", prefix)
		}
		return nil
	}},
	ActionUnconfigure: {needsDevices: true, custom: func(prefix string, step *Step) error {
		if len(step.Commands) == 0 && len(strSliceParam(step.Params, "of")) == 0 {
			return fmt.Errorf("%s: commands or params.of is required", prefix)
		}
		return nil
	}},
	ActionExec:  {needsDevices: true, fields: []string{"command"}},
	ActionShell: {needsDevices: true, fields: []string{"command"}},
	ActionVerifyShow: {needsDevices: true, fields: []string{"command"}, custom: func(prefix string, step *Step) error {
		if !step.Expect.hasOutputChecks() {
			return fmt.Errorf("%s: expect must have contains, absent, lines, matches, not_matches, count, json or empty", prefix)
		}
		return nil
	}},
	ActionVerifyPing:      {singleDevice: true, fields: []string{"target"}},
	ActionVerifyReachable: {needsDevices: true},
	ActionVerifyBanner: {needsDevices: true, custom: func(prefix string, step *Step) error {
		if step.Expect == nil || (len(step.Expect.Contains) == 0 && len(step.Expect.Absent) == 0) {
			return fmt.Errorf("%s: expect.contains or expect.absent is required", prefix)
		}
		return nil
	}},
	ActionVerifySNMP: {needsDevices: true, params: []string{"oid"}, custom: func(prefix string, step *Step) error {
		if !step.Expect.hasOutputChecks() {
			return fmt.Errorf("%s: expect is required", prefix)
		}
		return nil
	}},
	ActionVerifyRADIUS: {params: []string{"server", "user", "password", "secret"}, custom: func(prefix string, step *Step) error {
		if step.Expect == nil || (step.Expect.Result != "accept" && step.Expect.Result != "reject") {
			return fmt.Errorf("%s: expect.result must be accept or reject", prefix)
		}
		return nil
	}},
	ActionVerifyDB: {needsDevices: true, params: []string{"table", "key"}, custom: func(prefix string, step *Step) error {
		if step.Expect == nil || (step.Expect.Exists == nil && len(step.Expect.Fields) == 0) {
			return fmt.Errorf("%s: expect must have exists or fields", prefix)
		}
		return nil
	}},
}

// stepFieldGetter maps step-level field names to their accessor functions.
var stepFieldGetter = map[string]func(*Step) string{
	"command": func(s *Step) string { return s.Command },
	"target":  func(s *Step) string { return s.Target },
}

// validateScenario checks scenario-level fields, every step against the
// stepValidations table, and the template syntax of every string field.
func validateScenario(s *Scenario) error {
	v := &util.ValidationBuilder{}
	v.Add(s.Name != "", "name is required")
	v.Add(len(s.Steps) > 0, fmt.Sprintf("scenario %s: no steps or cases", s.Name))
	v.Add(s.Repeat >= 0, fmt.Sprintf("scenario %s: repeat must not be negative", s.Name))

	for i := range s.Steps {
		step := &s.Steps[i]
		if !validActions[step.Action] {
			v.AddErrorf("scenario %s step %d (%s): unknown action %q", s.Name, i, step.Name, step.Action)
			continue
		}
		v.Merge(validateStepFields(s.Name, i, step))
		v.Merge(validateTemplates(s.Name, i, step))
	}
	return v.Build()
}

// validateStepFields checks required fields per action type using the
// stepValidations table.
func validateStepFields(scenario string, index int, step *Step) error {
	prefix := fmt.Sprintf("scenario %s step %d (%s)", scenario, index, step.Name)

	v, ok := stepValidations[step.Action]
	if !ok {
		return nil
	}

	if v.singleDevice {
		if step.Devices.All || len(step.Devices.Devices) != 1 {
			return fmt.Errorf("%s: %s requires exactly one device", prefix, step.Action)
		}
	} else if v.needsDevices && step.Devices.Empty() {
		return fmt.Errorf("%s: devices is required", prefix)
	}

	for _, field := range v.fields {
		getter, exists := stepFieldGetter[field]
		if !exists {
			return fmt.Errorf("%s: unknown validation field %q (bug)", prefix, field)
		}
		if getter(step) == "" {
			return fmt.Errorf("%s: %s is required", prefix, field)
		}
	}

	for _, key := range v.params {
		if err := requireParam(prefix, step.Params, key); err != nil {
			return err
		}
	}

	if v.custom != nil {
		return v.custom(prefix, step)
	}
	return nil
}

func validateTemplates(scenario string, index int, step *Step) error {
	b := &util.ValidationBuilder{}
	for _, s := range stepStrings(step) {
		if !strings.Contains(s, "{{") {
			continue
		}
		if _, err := template.New("step").Funcs(funcMap()).Parse(s); err != nil {
			b.AddErrorf("scenario %s step %d (%s): template %q: %v", scenario, index, step.Name, s, err)
		}
	}
	return b.Build()
}

// ValidateDependencyGraph checks that all Requires references exist and there
// are no cycles. On success it returns scenarios in dependency order.
func ValidateDependencyGraph(scenarios []*Scenario) ([]*Scenario, error) {
	names := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		if names[s.Name] {
			return nil, fmt.Errorf("duplicate scenario name: %s", s.Name)
		}
		names[s.Name] = true
	}

	for _, s := range scenarios {
		for _, req := range s.Requires {
			if req == s.Name {
				return nil, fmt.Errorf("scenario %s requires itself", s.Name)
			}
			if !names[req] {
				return nil, fmt.Errorf("scenario %s requires unknown scenario %q", s.Name, req)
			}
		}
	}

	return topologicalSort(scenarios)
}

// topologicalSort returns scenarios in dependency order using Kahn's
// algorithm. Independent scenarios keep their input order.
func topologicalSort(scenarios []*Scenario) ([]*Scenario, error) {
	byName := make(map[string]*Scenario, len(scenarios))
	inDegree := make(map[string]int, len(scenarios))
	dependents := make(map[string][]string)

	for _, s := range scenarios {
		byName[s.Name] = s
		inDegree[s.Name] = len(s.Requires)
		for _, req := range s.Requires {
			dependents[req] = append(dependents[req], s.Name)
		}
	}

	var queue []string
	for _, s := range scenarios {
		if inDegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	sorted := make([]*Scenario, 0, len(scenarios))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byName[name])

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(scenarios) {
		var inCycle []string
		for name, deg := range inDegree {
			if deg > 0 {
				inCycle = append(inCycle, name)
			}
		}
		sort.Strings(inCycle)
		return nil, fmt.Errorf("dependency cycle involving: %s", strings.Join(inCycle, ", "))
	}

	return sorted, nil
}

// applyDefaults sets default values for steps.
func applyDefaults(s *Scenario) {
	for i := range s.Steps {
		step := &s.Steps[i]

		if step.Name == "" {
			step.Name = fmt.Sprintf("%s-%d", step.Action, i+1)
		}

		switch step.Action {
		case ActionVerifyPing, ActionVerifyReachable:
			if step.Count == 0 {
				step.Count = defaultPingCount
			}
			if step.Expect == nil {
				step.Expect = &ExpectBlock{}
			}
			if step.Expect.SuccessRate == nil {
				rate := 1.0
				step.Expect.SuccessRate = &rate
			}
		case ActionVerifySNMP:
			setDefaultParam(step, "port", defaultSNMPPort)
		case ActionVerifyRADIUS:
			setDefaultParam(step, "port", defaultRADIUSPort)
		case ActionVerifyDB:
			setDefaultParam(step, "addr", defaultRedisAddr)
			setDefaultParam(step, "separator", "|")
		}

		if step.Expect != nil && step.Expect.Timeout > 0 && step.Expect.PollInterval == 0 {
			step.Expect.PollInterval = defaultPollInterval
		}
	}
}

func setDefaultParam(step *Step, key string, value any) {
	if step.Params == nil {
		step.Params = make(map[string]any)
	}
	if _, ok := step.Params[key]; !ok {
		step.Params[key] = value
	}
}
