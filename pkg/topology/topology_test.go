package topology

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vtyconform/vtyconform/pkg/util"
)

const twoSwitchHost = `
name: 2switch-host
defaults:
  transport: ssh
  username: admin
  password: ${SW_PASSWORD}
  shell: vtysh
  vars:
    asn: "1"
devices:
  sw1:
    address: 10.0.0.1
    vars:
      router_id: 9.0.0.1
  sw2:
    address: 10.0.0.2
    transport: telnet
    vars:
      asn: "2"
  h1:
    role: host
    address: 10.0.0.10
links:
  - [sw1:1, sw2:1]
  - [sw1:2, h1:eth1]
`

func TestParse_DefaultsAndEnv(t *testing.T) {
	t.Setenv("SW_PASSWORD", "s3cret")

	topo, err := Parse([]byte(twoSwitchHost))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sw1, _ := topo.Device("sw1")
	if sw1.Username != "admin" || sw1.Password != "s3cret" {
		t.Errorf("sw1 credentials = %q/%q, want admin/s3cret", sw1.Username, sw1.Password)
	}
	if sw1.Shell != "vtysh" {
		t.Errorf("sw1 shell = %q, want vtysh", sw1.Shell)
	}
	if diff := cmp.Diff(map[string]string{"asn": "1", "router_id": "9.0.0.1"}, sw1.Vars); diff != "" {
		t.Errorf("sw1 vars mismatch (-want +got):\n%s", diff)
	}
	if got := sw1.Addr(); got != "10.0.0.1:22" {
		t.Errorf("sw1 Addr() = %q, want 10.0.0.1:22", got)
	}

	sw2, _ := topo.Device("sw2")
	if sw2.Vars["asn"] != "2" {
		t.Errorf("sw2 asn = %q, device value should win over defaults", sw2.Vars["asn"])
	}
	if got := sw2.Addr(); got != "10.0.0.2:23" {
		t.Errorf("sw2 Addr() = %q, want telnet default port", got)
	}

	h1, _ := topo.Device("h1")
	if h1.Shell != "" {
		t.Errorf("host shell = %q, hosts should not inherit the switch CLI wrapper", h1.Shell)
	}
}

func TestRoles(t *testing.T) {
	topo, err := Parse([]byte(twoSwitchHost))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]string{"h1", "sw1", "sw2"}, topo.DeviceNames()); diff != "" {
		t.Errorf("DeviceNames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"sw1", "sw2"}, topo.Switches()); diff != "" {
		t.Errorf("Switches mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"h1"}, topo.Hosts()); diff != "" {
		t.Errorf("Hosts mismatch (-want +got):\n%s", diff)
	}
	if !topo.IsHost("h1") || topo.IsHost("sw1") || topo.IsHost("nope") {
		t.Error("IsHost returned wrong result")
	}
}

func TestLinks(t *testing.T) {
	topo, err := Parse([]byte(twoSwitchHost))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	peer, ok := topo.Peer("sw2", "1")
	if !ok || peer != (Endpoint{Device: "sw1", Port: "1"}) {
		t.Errorf("Peer(sw2, 1) = %v, %v", peer, ok)
	}
	if _, ok := topo.Peer("sw2", "9"); ok {
		t.Error("Peer on unwired port should report false")
	}

	vars := topo.Vars()
	ports := vars["ports"].(map[string]any)
	if ports["sw1_to_h1"] != "2" || ports["h1_to_sw1"] != "eth1" {
		t.Errorf("ports = %v", ports)
	}
}

func TestDevice_NotFound(t *testing.T) {
	topo, err := Parse([]byte(twoSwitchHost))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = topo.Device("sw9")
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Device(sw9) error = %v, want ErrNotFound", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no devices",
			yaml: "name: empty\n",
			want: "no devices",
		},
		{
			name: "missing address",
			yaml: "devices:\n  sw1: {}\n",
			want: "address is required",
		},
		{
			name: "exec without command",
			yaml: "devices:\n  sw1: {transport: exec}\n",
			want: "command is required",
		},
		{
			name: "unknown transport",
			yaml: "devices:\n  sw1: {transport: serial, address: x}\n",
			want: `unknown transport "serial"`,
		},
		{
			name: "unknown role",
			yaml: "devices:\n  sw1: {role: router, address: x}\n",
			want: `unknown role "router"`,
		},
		{
			name: "link to unknown device",
			yaml: "devices:\n  sw1: {address: x}\nlinks:\n  - [sw1:1, sw9:1]\n",
			want: `unknown device "sw9"`,
		},
		{
			name: "endpoint reused",
			yaml: "devices:\n  sw1: {address: x}\n  sw2: {address: y}\nlinks:\n  - [sw1:1, sw2:1]\n  - [sw1:1, sw2:2]\n",
			want: "already linked",
		},
		{
			name: "malformed endpoint",
			yaml: "devices:\n  sw1: {address: x}\nlinks:\n  - [sw1, sw2:1]\n",
			want: "malformed link endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("devices:\n  sw1: {adress: 10.0.0.1}\n"))
	if err == nil || !strings.Contains(err.Error(), "adress") {
		t.Errorf("error = %v, want unknown field adress", err)
	}
}

func TestParse_LinkErrorsAreValidationErrors(t *testing.T) {
	yaml := `
devices:
  sw1: {address: x}
  sw2: {address: y}
links:
  - [sw1, sw2:1]
  - [sw1:1]
  - [sw1:2, sw9:1]
`
	_, err := Parse([]byte(yaml))
	var ve *util.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v (%T), want *util.ValidationError", err, err)
	}
	if !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("error does not wrap ErrValidationFailed: %v", err)
	}
	want := []string{
		`link [sw1 - sw2:1]: malformed link endpoint "sw1" (want device:port)`,
		"link [sw1:1]: must have exactly two endpoints, got 1",
		`link [sw1:2 - sw9:1]: unknown device "sw9"`,
	}
	if diff := cmp.Diff(want, ve.Errors); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
}

func TestLoadDir_NameFromDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "1switch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data := "devices:\n  sw1:\n    transport: exec\n    command: [docker, exec, -i, sw1, vtysh]\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	topo, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if topo.Name != "1switch" {
		t.Errorf("Name = %q, want 1switch", topo.Name)
	}
	sw1, _ := topo.Device("sw1")
	if diff := cmp.Diff([]string{"docker", "exec", "-i", "sw1", "vtysh"}, sw1.Command); diff != "" {
		t.Errorf("Command mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file should fail")
	}
}
