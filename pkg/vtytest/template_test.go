package vtytest

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vtyconform/vtyconform/pkg/topology"
)

func testTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Parse([]byte(`
name: 2switch-host
defaults:
  transport: ssh
  vars: {asn: "65000"}
devices:
  sw1:
    address: 10.0.0.1
    vars: {asn: "65001", loopback: 1.1.1.1}
  sw2:
    address: 10.0.0.2
  h1:
    role: host
    address: 10.0.0.10
links:
  - [sw1:1, sw2:1]
  - [sw1:2, h1:eth0]
`))
	if err != nil {
		t.Fatalf("parse topology: %v", err)
	}
	return topo
}

func TestTemplateData_Precedence(t *testing.T) {
	topo := testTopology(t)
	sc := &Scenario{Name: "bgp", Vars: map[string]string{"asn": "1", "peer": "9.0.0.2", "vrf": "red"}}

	tests := []struct {
		name      string
		device    string
		overrides map[string]string
		want      map[string]string
	}{
		{
			name:   "device vars beat scenario vars",
			device: "sw1",
			want:   map[string]string{"asn": "65001", "peer": "9.0.0.2", "address": "10.0.0.1", "device": "sw1"},
		},
		{
			name:   "topology defaults reach devices without vars",
			device: "sw2",
			want:   map[string]string{"asn": "65000", "address": "10.0.0.2"},
		},
		{
			name:      "command line beats device vars",
			device:    "sw1",
			overrides: map[string]string{"asn": "7", "vrf": "blue"},
			want:      map[string]string{"asn": "7", "vrf": "blue", "scenario": "bgp"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := templateData(topo, sc, tt.overrides, tt.device)
			for k, want := range tt.want {
				if got := data[k]; got != want {
					t.Errorf("data[%q] = %v, want %q", k, got, want)
				}
			}
		})
	}
}

func TestRender(t *testing.T) {
	topo := testTopology(t)
	sc := &Scenario{Name: "s", Vars: map[string]string{"iface": "Ethernet4", "vlans": "10-12"}}
	data := templateData(topo, sc, nil, "sw1")

	tests := []struct {
		in   string
		want string
	}{
		{"show version", "show version"},
		{"interface {{ .iface }}", "interface Ethernet4"},
		{"hostname {{ .device | upper }}", "hostname SW1"},
		{"neighbor {{ .topology.devices.sw2.address }}", "neighbor 10.0.0.2"},
		{"interface {{ .topology.ports.sw1_to_h1 }}", "interface 2"},
		{"{{ range expandRange .vlans }}vlan {{ . }};{{ end }}", "vlan 10;vlan 11;vlan 12;"},
	}
	for _, tt := range tests {
		got, err := render(tt.in, data)
		if err != nil {
			t.Errorf("render(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("render(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender_MissingKey(t *testing.T) {
	_, err := render("router bgp {{ .asn }}", map[string]any{"device": "sw1"})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "asn") {
		t.Errorf("error %q should name the missing key", err)
	}
}

func TestRenderStep(t *testing.T) {
	topo := testTopology(t)
	sc := &Scenario{Name: "s", Vars: map[string]string{"peer": "9.0.0.2"}}
	step := &Step{
		Name:     "check",
		Action:   ActionVerifyShow,
		Context:  []string{"router bgp {{ .asn }}"},
		Commands: []string{"neighbor {{ .peer }} remote-as 2"},
		Command:  "show ip bgp neighbor {{ .peer }}",
		Params:   map[string]any{"key": "{{ .device }}", "of": []any{"a {{ .peer }}", 3}, "port": 161},
		Expect: &ExpectBlock{
			Contains: stringList{"{{ .peer }}"},
			Section:  "router bgp {{ .asn }}",
			Count:    map[string]int{"{{ .peer }}": 1},
			Fields:   map[string]string{"admin": "{{ .device }}"},
		},
	}

	got, err := renderStep(step, templateData(topo, sc, nil, "sw1"))
	if err != nil {
		t.Fatalf("renderStep: %v", err)
	}

	if diff := cmp.Diff([]string{"router bgp 65001"}, got.Context); diff != "" {
		t.Errorf("Context (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"neighbor 9.0.0.2 remote-as 2"}, got.Commands); diff != "" {
		t.Errorf("Commands (-want +got):\n%s", diff)
	}
	if got.Command != "show ip bgp neighbor 9.0.0.2" {
		t.Errorf("Command = %q", got.Command)
	}
	wantParams := map[string]any{"key": "sw1", "of": []any{"a 9.0.0.2", 3}, "port": 161}
	if diff := cmp.Diff(wantParams, got.Params); diff != "" {
		t.Errorf("Params (-want +got):\n%s", diff)
	}
	if got.Expect.Section != "router bgp 65001" || got.Expect.Contains[0] != "9.0.0.2" {
		t.Errorf("Expect = %+v", got.Expect)
	}
	if got.Expect.Count["9.0.0.2"] != 1 || got.Expect.Fields["admin"] != "sw1" {
		t.Errorf("Expect maps = %v %v", got.Expect.Count, got.Expect.Fields)
	}

	// The original step is untouched.
	if step.Command != "show ip bgp neighbor {{ .peer }}" || step.Expect.Fields["admin"] != "{{ .device }}" {
		t.Error("renderStep modified its input")
	}
}

func TestRenderStep_Error(t *testing.T) {
	step := &Step{Name: "x", Action: ActionExec, Command: "show {{ .nope }}"}
	if _, err := renderStep(step, map[string]any{}); err == nil {
		t.Fatal("expected error")
	}
}
