package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vtyconform/vtyconform/pkg/audit"
	"github.com/vtyconform/vtyconform/pkg/cli"
	"github.com/vtyconform/vtyconform/pkg/session"
	"github.com/vtyconform/vtyconform/pkg/util"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func TestParseVars(t *testing.T) {
	got, err := parseVars([]string{"asn=65100", " peer =10.0.0.2", "banner=a=b", "empty="})
	if err != nil {
		t.Fatalf("parseVars: %v", err)
	}
	want := map[string]string{"asn": "65100", "peer": "10.0.0.2", "banner": "a=b", "empty": ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseVars([]string{bad}); err == nil {
			t.Errorf("parseVars(%q) should fail", bad)
		}
	}
	if got, err := parseVars(nil); got != nil || err != nil {
		t.Errorf("parseVars(nil) = %v, %v", got, err)
	}
}

func TestResolveSuiteName(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "openswitch"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VTYCONFORM_SUITES_BASE", base)

	tests := []struct {
		in, want string
	}{
		{"openswitch", filepath.Join(base, "openswitch")},
		{"missing", "missing"},
		{"./suites/custom", "./suites/custom"},
	}
	for _, tt := range tests {
		if got := resolveSuiteName(tt.in); got != tt.want {
			t.Errorf("resolveSuiteName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveTopologiesDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Setenv("VTYCONFORM_TOPOLOGIES", "")
	if got := resolveTopologiesDir(); got != "topologies" {
		t.Errorf("default = %q, want topologies", got)
	}
	t.Setenv("VTYCONFORM_TOPOLOGIES", "/labs")
	if got := resolveTopologiesDir(); got != "/labs" {
		t.Errorf("env = %q, want /labs", got)
	}
}

func TestResolveDir_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VTYCONFORM_SUITE", "/srv/suites/frr")

	cmd := newRunCmd()
	if got := resolveDir(cmd, ""); got != "/srv/suites/frr" {
		t.Errorf("resolveDir() = %q", got)
	}
	if got := resolveDir(cmd, "", "/explicit"); got != "/explicit" {
		t.Errorf("positional ignored: %q", got)
	}
}

func TestTopologiesOf(t *testing.T) {
	got := topologiesOf([]*vtytest.Scenario{
		{Name: "a", Topology: "2switch-host"},
		{Name: "b", Topology: "1switch"},
		{Name: "c", Topology: "2switch-host"},
	})
	if diff := cmp.Diff([]string{"2switch-host", "1switch"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestActionMetadata_CoversEveryAction(t *testing.T) {
	meta := actionMetadata()
	for _, a := range vtytest.Actions() {
		m, ok := meta[a]
		if !ok {
			t.Errorf("no metadata for action %s", a)
			continue
		}
		if m.ShortDesc == "" || m.Example == "" {
			t.Errorf("action %s: incomplete metadata", a)
		}
	}
	if len(meta) != len(vtytest.Actions()) {
		t.Errorf("metadata has %d entries, executors %d", len(meta), len(vtytest.Actions()))
	}
}

func TestColorScenarioStatus(t *testing.T) {
	cli.SetColor(false)
	if got := colorScenarioStatus(""); got != "—" {
		t.Errorf("pending = %q", got)
	}
	if got := colorScenarioStatus(vtytest.StepStatusFailed); got != "FAIL" {
		t.Errorf("FAIL = %q", got)
	}
}

func TestAuditResult(t *testing.T) {
	cli.SetColor(false)
	tests := []struct {
		event *audit.Event
		want  string
	}{
		{&audit.Event{Success: true}, "ok"},
		{&audit.Event{Rejected: "% Unknown command"}, "rejected"},
		{&audit.Event{Error: "connection reset", Rejected: "x"}, "error"},
	}
	for _, tt := range tests {
		if got := auditResult(tt.event); got != tt.want {
			t.Errorf("auditResult(%+v) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestAuditLogPath(t *testing.T) {
	root := t.TempDir()
	vtytest.SetStateRoot(root)
	defer vtytest.SetStateRoot("")

	if got := auditLogPath(); got != filepath.Join(root, "audit.jsonl") {
		t.Errorf("auditLogPath() = %q", got)
	}
}

func TestExecOutcome(t *testing.T) {
	tests := []struct {
		name         string
		out          string
		err          error
		wantRejected string
		wantErr      bool
	}{
		{"accepted", "FRRouting 9.1\n", nil, "", false},
		{"cli marker", "% Unknown command: frob\n", nil, "% Unknown command: frob", false},
		{"exit status", "", &session.ExitError{Device: "sw1", Command: "frob", Status: 1}, "exit status 1", false},
		{"exit status with marker", "% Invalid input detected\n", &session.ExitError{Device: "sw1", Command: "frob", Status: 1}, "% Invalid input detected", false},
		{"transport", "", fmt.Errorf("sw1: %w", util.ErrNotConnected), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rejected, err := execOutcome("frob", tt.out, tt.err)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if rejected != tt.wantRejected {
				t.Errorf("rejected = %q, want %q", rejected, tt.wantRejected)
			}
		})
	}
}
