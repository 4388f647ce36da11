package vtytest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vtyconform/vtyconform/pkg/output"
	"github.com/vtyconform/vtyconform/pkg/session"
)

const runningConfig = `Current configuration:
!
hostname sw1
!
router bgp 1
 bgp router-id 1.1.1.1
 neighbor 9.0.0.2 remote-as 2
 neighbor 9.0.0.2 description peer-1
!
interface 1
 no shutdown
!
end
`

func boolPtr(b bool) *bool { return &b }

func TestCheckOutput(t *testing.T) {
	d := output.New("show running-config", runningConfig)

	tests := []struct {
		name    string
		expect  *ExpectBlock
		wantOK  bool
		wantMsg string
		wantErr bool
	}{
		{"nil expect", nil, true, "no expectations", false},
		{"contains", &ExpectBlock{Contains: stringList{"router bgp 1", "peer-1"}}, true, "2 checks passed", false},
		{"contains missing", &ExpectBlock{Contains: stringList{"router ospf"}}, false, `output does not contain "router ospf"`, false},
		{"absent", &ExpectBlock{Absent: stringList{"router ospf"}}, true, "1 checks passed", false},
		{"absent present", &ExpectBlock{Absent: stringList{"peer-1"}}, false, `output still contains "peer-1"`, false},
		{"lines exact", &ExpectBlock{Lines: stringList{"neighbor 9.0.0.2 remote-as 2"}}, true, "", false},
		{"lines partial", &ExpectBlock{Lines: stringList{"neighbor 9.0.0.2"}}, false, "no line equal to", false},
		{"matches", &ExpectBlock{Matches: stringList{`^ bgp router-id \d+\.\d+\.\d+\.\d+$`}}, true, "", false},
		{"not matches", &ExpectBlock{NotMatches: stringList{`^ shutdown$`}}, true, "", false},
		{"not matches hit", &ExpectBlock{NotMatches: stringList{`shutdown`}}, false, "output matches /shutdown/", false},
		{"bad regexp", &ExpectBlock{Matches: stringList{`(`}}, false, "", true},
		{"count", &ExpectBlock{Count: map[string]int{"neighbor 9.0.0.2": 2}}, true, "", false},
		{"count wrong", &ExpectBlock{Count: map[string]int{"neighbor": 1}}, false, `"neighbor" appears on 2 lines, want 1`, false},
		{"empty false", &ExpectBlock{Empty: boolPtr(false)}, true, "", false},
		{"empty true", &ExpectBlock{Empty: boolPtr(true)}, false, "output not empty: Current configuration:", false},
		{
			"section scopes contains",
			&ExpectBlock{Section: "router bgp 1", Contains: stringList{"description peer-1"}, Absent: stringList{"no shutdown"}},
			true, "2 checks passed", false,
		},
		{
			"section missing",
			&ExpectBlock{Section: "router bgp 2", Contains: stringList{"neighbor"}},
			false, `section "router bgp 2" not found`, false,
		},
		{
			"absent in missing section passes",
			&ExpectBlock{Section: "router bgp 2", Absent: stringList{"neighbor"}},
			true, "", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg, err := checkOutput(tt.expect, d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v (msg %q)", ok, tt.wantOK, msg)
			}
			if tt.wantMsg != "" && !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("msg = %q, want containing %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestCheckOutput_JSON(t *testing.T) {
	d := output.New("show interface 1 json", `{"interface": {"name": "1", "admin_state": "up", "mtu": 1500}}`)

	ok, msg, _ := checkOutput(&ExpectBlock{JSON: map[string]string{"interface.admin_state": "up", "interface.mtu": "1500"}}, d)
	if !ok {
		t.Errorf("json match failed: %s", msg)
	}
	ok, msg, _ = checkOutput(&ExpectBlock{JSON: map[string]string{"interface.admin_state": "down"}}, d)
	if ok || msg != `json interface.admin_state = "up", want "down"` {
		t.Errorf("ok=%v msg=%q", ok, msg)
	}
	ok, msg, _ = checkOutput(&ExpectBlock{JSON: map[string]string{"interface.speed": "1000"}}, d)
	if ok || !strings.Contains(msg, "not found") {
		t.Errorf("ok=%v msg=%q", ok, msg)
	}
}

func TestCheckCLIError(t *testing.T) {
	rejected := "% Invalid input detected at '^' marker."

	tests := []struct {
		name     string
		expect   *ExpectBlock
		rejected string
		wantOK   bool
		wantMsg  string
	}{
		{"accepted, none expected", nil, "", true, ""},
		{"rejected, none expected", nil, rejected, false, rejected},
		{"rejected as expected", &ExpectBlock{CLIError: boolPtr(true)}, rejected, true, "rejected as expected"},
		{"accepted but error expected", &ExpectBlock{CLIError: boolPtr(true)}, "", false, "command accepted, expected CLI error"},
		{"error text matches", &ExpectBlock{CLIErrorContains: "Invalid input"}, rejected, true, ""},
		{"error text differs", &ExpectBlock{CLIErrorContains: "Unknown command"}, rejected, false, `does not contain "Unknown command"`},
		{"cli_error false", &ExpectBlock{CLIError: boolPtr(false)}, rejected, false, rejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := checkCLIError(tt.expect, tt.rejected)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v (msg %q)", ok, tt.wantOK, msg)
			}
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("msg = %q, want containing %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestRejection(t *testing.T) {
	exitErr := &session.ExitError{Device: "sw1", Command: "vtysh -c 'x'", Status: 1}

	tests := []struct {
		name  string
		raw   string
		err   error
		wantS string
	}{
		{"clean", "hostname sw1\n", nil, ""},
		{"marker", "  % Unknown command: frob\n", nil, "% Unknown command: frob"},
		{"marker wins over exit", "% Command incomplete.\n", exitErr, "% Command incomplete."},
		{"exit status only", "", exitErr, "exit status 1"},
		{"wrapped exit", "", fmt.Errorf("running: %w", exitErr), "exit status 1"},
		{"transport error", "", errors.New("connection reset"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rejection(output.New("x", tt.raw), tt.err); got != tt.wantS {
				t.Errorf("rejection() = %q, want %q", got, tt.wantS)
			}
		})
	}
}

func TestHardError(t *testing.T) {
	if err := hardError(&session.ExitError{Status: 2}); err != nil {
		t.Errorf("exit status should not be a hard error: %v", err)
	}
	reset := errors.New("connection reset")
	if err := hardError(reset); err != reset {
		t.Errorf("hardError(%v) = %v", reset, err)
	}
	if hardError(nil) != nil {
		t.Error("hardError(nil) should be nil")
	}
}
