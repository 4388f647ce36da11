package vtytest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleResults() []*ScenarioResult {
	return []*ScenarioResult{
		{
			Name: "bgp-neighbor", Topology: "lab", Status: StepStatusPassed, Duration: 3 * time.Second,
			Steps: []StepResult{
				{Name: "description: configure", Action: ActionConfigure, Status: StepStatusPassed},
				{Name: "description: verify", Action: ActionVerifyShow, Status: StepStatusPassed},
			},
		},
		{
			Name: "vlan", Topology: "lab", Status: StepStatusFailed, Duration: 2 * time.Second,
			Steps: []StepResult{
				{Name: "create", Action: ActionConfigure, Status: StepStatusPassed},
				{
					Name: "check", Action: ActionVerifyShow, Status: StepStatusFailed,
					Message: `sw1: output does not contain "vlan 10"`,
					Details: []DeviceResult{{Device: "sw1", Status: StepStatusFailed, Message: `output does not contain "vlan 10"`}},
				},
			},
		},
		{Name: "vlan-members", Topology: "lab", Status: StepStatusSkipped, SkipReason: "requires 'vlan' which failed"},
		{
			Name: "flap", Topology: "lab", Status: StepStatusFailed, Repeat: 5, FailedIteration: 4,
			Steps: []StepResult{{Name: "up", Action: ActionVerifyShow, Status: StepStatusFailed, Iteration: 4, Message: "down"}},
		},
		{
			Name: "ospf", Topology: "lab2", Status: StepStatusError,
			ConnectError: &InfraError{Op: "connect", Device: "sw3", Err: errors.New("dial tcp: i/o timeout")},
		},
	}
}

func TestWriteMarkdown(t *testing.T) {
	var b bytes.Buffer
	g := &ReportGenerator{Results: sampleResults()}
	if err := g.writeMarkdown(&b); err != nil {
		t.Fatal(err)
	}
	out := b.String()

	for _, want := range []string{
		"# vtyconform report: ",
		"| Scenario | Topology | Result | Duration | Note |",
		"| bgp-neighbor | lab | PASS | 3s |  |",
		"| vlan-members | lab | SKIP | 0s | requires 'vlan' which failed |",
		"| flap | lab | FAIL | 0s | failed on iteration 4/5 |",
		"| ospf | lab2 | ERROR | 0s | connect: vtytest: connect sw3: dial tcp: i/o timeout |",
		"## Failures",
		"### vlan\nStep check (verify-show) FAIL: sw1: output does not contain \"vlan 10\"",
		`  sw1: output does not contain "vlan 10"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q\n%s", want, out)
		}
	}
}

func TestWriteJUnit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "junit.xml")
	g := &ReportGenerator{Results: sampleResults()}
	if err := g.WriteJUnit(path); err != nil {
		t.Fatalf("WriteJUnit: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte(xml.Header)) {
		t.Error("missing XML header")
	}

	var suites junitTestSuites
	if err := xml.Unmarshal(data, &suites); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(suites.Suites) != 5 {
		t.Fatalf("got %d suites, want 5", len(suites.Suites))
	}

	byName := map[string]junitTestSuite{}
	for _, s := range suites.Suites {
		byName[s.Name] = s
	}
	if s := byName["vlan"]; s.Tests != 2 || s.Failures != 1 || s.Cases[1].Failure == nil {
		t.Errorf("vlan suite = %+v", s)
	}
	if s := byName["vlan-members"]; s.Skipped != 1 || s.Cases[0].Skipped == nil {
		t.Errorf("skipped suite = %+v", s)
	}
	if s := byName["ospf"]; s.Errors != 1 || s.Cases[0].Name != "connect" {
		t.Errorf("connect suite = %+v", s)
	}
	if s := byName["flap"]; s.Cases[0].Name != "[iter 4] up" {
		t.Errorf("iteration case name = %q", s.Cases[0].Name)
	}
}

func TestWriteMarkdown_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	g := &ReportGenerator{Results: sampleResults()[:1]}
	if err := g.WriteMarkdown(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "## Failures") {
		t.Error("passing report should have no failures section")
	}
}

func TestStatusVerb(t *testing.T) {
	tests := map[StepStatus]string{
		StepStatusFailed:  "failed",
		StepStatusError:   "errored",
		StepStatusSkipped: "was skipped",
		StepStatusPassed:  "PASS",
	}
	for in, want := range tests {
		if got := statusVerb(in); got != want {
			t.Errorf("statusVerb(%s) = %q, want %q", in, got, want)
		}
	}
}
