package vtytest

import (
	"fmt"
	"maps"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// funcMap returns sprig's text functions plus range helpers for interface
// and VLAN lists.
func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()

	extra := map[string]any{
		"expandRange": func(spec string) ([]int, error) {
			return util.ExpandRange(spec)
		},
		"compactRange": util.CompactRange,
		"portRange": func(spec string) ([]string, error) {
			return util.ExpandPortRange(spec)
		},
	}
	for name, fn := range extra {
		fm[name] = fn
	}
	return fm
}

// templateData builds the variables visible to a step on one device.
// Later sources win: scenario vars, device vars, command-line overrides.
func templateData(topo *topology.Topology, sc *Scenario, overrides map[string]string, device string) map[string]any {
	data := make(map[string]any)
	for k, v := range sc.Vars {
		data[k] = v
	}
	if topo != nil {
		if d, ok := topo.Devices[device]; ok {
			for k, v := range d.Vars {
				data[k] = v
			}
			data["address"] = d.Address
		}
		data["topology"] = topo.Vars()
	}
	for k, v := range overrides {
		data[k] = v
	}
	data["device"] = device
	data["scenario"] = sc.Name
	return data
}

// render executes s as a template against data. Strings without template
// actions are returned unchanged.
func render(s string, data map[string]any) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	t, err := template.New("step").Funcs(funcMap()).Option("missingkey=error").Parse(s)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// renderStep returns a copy of step with every string field rendered.
func renderStep(step *Step, data map[string]any) (*Step, error) {
	out := *step
	var firstErr error
	r := func(s string) string {
		if firstErr != nil {
			return s
		}
		v, err := render(s, data)
		if err != nil {
			firstErr = fmt.Errorf("rendering %q: %w", s, err)
			return s
		}
		return v
	}
	rs := func(list []string) []string {
		if list == nil {
			return nil
		}
		res := make([]string, len(list))
		for i, s := range list {
			res[i] = r(s)
		}
		return res
	}

	out.Context = rs(step.Context)
	out.Commands = rs(step.Commands)
	out.Command = r(step.Command)
	out.Target = r(step.Target)

	if step.Params != nil {
		out.Params = make(map[string]any, len(step.Params))
		for k, v := range step.Params {
			switch val := v.(type) {
			case string:
				out.Params[k] = r(val)
			case []any:
				list := make([]any, len(val))
				for i, item := range val {
					if s, ok := item.(string); ok {
						list[i] = r(s)
					} else {
						list[i] = item
					}
				}
				out.Params[k] = list
			default:
				out.Params[k] = v
			}
		}
	}

	if step.Expect != nil {
		e := *step.Expect
		e.Contains = rs(step.Expect.Contains)
		e.Absent = rs(step.Expect.Absent)
		e.Lines = rs(step.Expect.Lines)
		e.Matches = rs(step.Expect.Matches)
		e.NotMatches = rs(step.Expect.NotMatches)
		e.Section = r(step.Expect.Section)
		e.CLIErrorContains = r(step.Expect.CLIErrorContains)
		e.JSON = renderMap(step.Expect.JSON, r)
		e.Fields = renderMap(step.Expect.Fields, r)
		if step.Expect.Count != nil {
			e.Count = make(map[string]int, len(step.Expect.Count))
			for k, v := range step.Expect.Count {
				e.Count[r(k)] = v
			}
		}
		out.Expect = &e
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return &out, nil
}

func renderMap(m map[string]string, r func(string) string) map[string]string {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range m {
		out[k] = r(v)
	}
	return out
}

// stepStrings lists every templated string field of step.
func stepStrings(step *Step) []string {
	var out []string
	out = append(out, step.Context...)
	out = append(out, step.Commands...)
	out = append(out, step.Command, step.Target)
	for _, v := range step.Params {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if e := step.Expect; e != nil {
		out = append(out, e.Contains...)
		out = append(out, e.Absent...)
		out = append(out, e.Lines...)
		out = append(out, e.Matches...)
		out = append(out, e.NotMatches...)
		out = append(out, e.Section, e.CLIErrorContains)
		for _, v := range e.JSON {
			out = append(out, v)
		}
		for _, v := range e.Fields {
			out = append(out, v)
		}
		for k := range e.Count {
			out = append(out, k)
		}
	}
	return out
}
