// Package topology loads the YAML description of the devices a suite runs
// against: which nodes exist, how to reach their CLI, and how they are wired.
package topology

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vtyconform/vtyconform/pkg/util"
)

// FileName is the topology file looked up inside a topology directory.
const FileName = "topology.yaml"

// Role distinguishes the switch under test from auxiliary hosts.
type Role string

const (
	RoleSwitch Role = "switch"
	RoleHost   Role = "host"
)

// Transport selects how a device's CLI is reached.
type Transport string

const (
	TransportSSH      Transport = "ssh"       // one exec channel per command
	TransportSSHShell Transport = "ssh-shell" // interactive PTY, prompt driven
	TransportTelnet   Transport = "telnet"
	TransportExec     Transport = "exec" // local process, e.g. docker exec
)

var defaultPorts = map[Transport]int{
	TransportSSH:      22,
	TransportSSHShell: 22,
	TransportTelnet:   23,
}

// Device is one node of the topology with its access parameters resolved.
type Device struct {
	Name      string    `yaml:"-"`
	Role      Role      `yaml:"role,omitempty"`
	Transport Transport `yaml:"transport,omitempty"`
	Address   string    `yaml:"address,omitempty"`
	Port      int       `yaml:"port,omitempty"`
	Username  string    `yaml:"username,omitempty"`
	Password  string    `yaml:"password,omitempty"`
	KeyFile   string    `yaml:"key_file,omitempty"`

	// Shell is the CLI wrapper on the device ("vtysh"); empty runs commands raw.
	Shell string `yaml:"shell,omitempty"`

	// Command is the local argv for the exec transport.
	Command []string `yaml:"command,omitempty"`

	// Prompt overrides the prompt regular expression for shell transports.
	Prompt string `yaml:"prompt,omitempty"`

	// Enable password for devices that start in user EXEC mode.
	Enable string `yaml:"enable,omitempty"`

	// SNMP community for verify-snmp.
	Community string `yaml:"community,omitempty"`

	Vars map[string]string `yaml:"vars,omitempty"`
}

// Addr returns host:port for network transports.
func (d *Device) Addr() string {
	port := d.Port
	if port == 0 {
		port = defaultPorts[d.Transport]
	}
	return fmt.Sprintf("%s:%d", d.Address, port)
}

// IsHost reports whether the device is an auxiliary host rather than a switch.
func (d *Device) IsHost() bool {
	return d.Role == RoleHost
}

// Endpoint is one side of a link, written "device:port" in YAML.
type Endpoint struct {
	Device string
	Port   string
}

func (e Endpoint) String() string {
	return e.Device + ":" + e.Port
}

// Link connects two endpoints.
type Link [2]Endpoint

func (l Link) String() string {
	return l[0].String() + " - " + l[1].String()
}

// parseLinks converts "device:port" pairs into links. Malformed entries are
// reported to v and dropped.
func parseLinks(raw [][]string, v *util.ValidationBuilder) []Link {
	var links []Link
	for _, pair := range raw {
		name := strings.Join(pair, " - ")
		if len(pair) != 2 {
			v.AddErrorf("link [%s]: must have exactly two endpoints, got %d", name, len(pair))
			continue
		}
		var l Link
		ok := true
		for j, s := range pair {
			dev, port, found := strings.Cut(s, ":")
			if !found || dev == "" || port == "" {
				v.AddErrorf("link [%s]: malformed link endpoint %q (want device:port)", name, s)
				ok = false
				continue
			}
			l[j] = Endpoint{Device: dev, Port: port}
		}
		if ok {
			links = append(links, l)
		}
	}
	return links
}

// Topology is a parsed topology file.
type Topology struct {
	Name     string             `yaml:"name"`
	Defaults Device             `yaml:"defaults,omitempty"`
	Devices  map[string]*Device `yaml:"devices"`
	Links    []Link             `yaml:"-"`
}

// topologyFile is the on-disk shape; links stay raw until validated.
type topologyFile struct {
	Name     string             `yaml:"name"`
	Defaults Device             `yaml:"defaults,omitempty"`
	Devices  map[string]*Device `yaml:"devices"`
	Links    [][]string         `yaml:"links,omitempty"`
}

// Load reads, defaults, expands and validates a topology file.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("topology %s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = filepath.Base(filepath.Dir(path))
	}
	return t, nil
}

// LoadDir loads topology.yaml from dir.
func LoadDir(dir string) (*Topology, error) {
	return Load(filepath.Join(dir, FileName))
}

// Parse decodes topology YAML, merges defaults into devices, expands
// ${VAR} references from the environment and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Topology, error) {
	var f topologyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	v := &util.ValidationBuilder{}
	t := Topology{
		Name:     f.Name,
		Defaults: f.Defaults,
		Devices:  f.Devices,
		Links:    parseLinks(f.Links, v),
	}
	for name, d := range t.Devices {
		if d == nil {
			d = &Device{}
			t.Devices[name] = d
		}
		d.Name = name
		applyDefaults(d, &t.Defaults)
		expandEnv(d)
	}
	if err := v.Merge(t.Validate()).Build(); err != nil {
		return nil, err
	}
	return &t, nil
}

func applyDefaults(d, def *Device) {
	if d.Role == "" {
		d.Role = def.Role
	}
	if d.Role == "" {
		d.Role = RoleSwitch
	}
	if d.Transport == "" {
		d.Transport = def.Transport
	}
	if d.Transport == "" {
		d.Transport = TransportSSH
	}
	if d.Port == 0 {
		d.Port = def.Port
	}
	if d.Username == "" {
		d.Username = def.Username
	}
	if d.Password == "" {
		d.Password = def.Password
	}
	if d.KeyFile == "" {
		d.KeyFile = def.KeyFile
	}
	if d.Shell == "" && d.Role == RoleSwitch {
		d.Shell = def.Shell
	}
	if d.Prompt == "" {
		d.Prompt = def.Prompt
	}
	if d.Enable == "" {
		d.Enable = def.Enable
	}
	if d.Community == "" {
		d.Community = def.Community
	}
	if len(d.Vars) == 0 && len(def.Vars) > 0 {
		d.Vars = make(map[string]string, len(def.Vars))
	}
	for k, v := range def.Vars {
		if _, ok := d.Vars[k]; !ok {
			d.Vars[k] = v
		}
	}
}

func expandEnv(d *Device) {
	d.Address = os.ExpandEnv(d.Address)
	d.Username = os.ExpandEnv(d.Username)
	d.Password = os.ExpandEnv(d.Password)
	d.KeyFile = os.ExpandEnv(d.KeyFile)
	d.Enable = os.ExpandEnv(d.Enable)
	d.Community = os.ExpandEnv(d.Community)
	for i, arg := range d.Command {
		d.Command[i] = os.ExpandEnv(arg)
	}
}

// Validate checks roles, transports, addresses and link endpoints.
func (t *Topology) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(len(t.Devices) > 0, "topology has no devices")

	for _, name := range t.DeviceNames() {
		d := t.Devices[name]
		switch d.Role {
		case RoleSwitch, RoleHost:
		default:
			v.AddErrorf("device %s: unknown role %q", name, d.Role)
		}
		switch d.Transport {
		case TransportSSH, TransportSSHShell, TransportTelnet:
			v.Add(d.Address != "", fmt.Sprintf("device %s: address is required for %s", name, d.Transport))
		case TransportExec:
			v.Add(len(d.Command) > 0, fmt.Sprintf("device %s: command is required for exec transport", name))
		default:
			v.AddErrorf("device %s: unknown transport %q", name, d.Transport)
		}
		if d.Port < 0 || d.Port > 65535 {
			v.AddErrorf("device %s: port %d out of range", name, d.Port)
		}
	}

	seen := make(map[string]bool)
	for _, l := range t.Links {
		for _, ep := range l {
			if _, ok := t.Devices[ep.Device]; !ok {
				v.AddErrorf("link [%s]: unknown device %q", l, ep.Device)
			}
			if seen[ep.String()] {
				v.AddErrorf("link [%s]: endpoint %s already linked", l, ep)
			}
			seen[ep.String()] = true
		}
	}
	return v.Build()
}

// DeviceNames returns all device names sorted.
func (t *Topology) DeviceNames() []string {
	names := make([]string, 0, len(t.Devices))
	for name := range t.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Device returns the named device.
func (t *Topology) Device(name string) (*Device, error) {
	d, ok := t.Devices[name]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", name, util.ErrNotFound)
	}
	return d, nil
}

// Switches returns the sorted names of switch devices.
func (t *Topology) Switches() []string {
	return t.namesWithRole(RoleSwitch)
}

// Hosts returns the sorted names of host devices.
func (t *Topology) Hosts() []string {
	return t.namesWithRole(RoleHost)
}

// IsHost reports whether name is a host device. Unknown names are not hosts.
func (t *Topology) IsHost(name string) bool {
	d, ok := t.Devices[name]
	return ok && d.IsHost()
}

// Peer returns the endpoint wired to dev:port, if any.
func (t *Topology) Peer(dev, port string) (Endpoint, bool) {
	for _, l := range t.Links {
		switch {
		case l[0].Device == dev && l[0].Port == port:
			return l[1], true
		case l[1].Device == dev && l[1].Port == port:
			return l[0], true
		}
	}
	return Endpoint{}, false
}

// Vars returns template variables describing the topology: per-device
// address and vars, plus link ports keyed "<dev>_to_<peer>".
func (t *Topology) Vars() map[string]any {
	devices := make(map[string]any, len(t.Devices))
	for name, d := range t.Devices {
		dv := map[string]any{
			"address": d.Address,
			"role":    string(d.Role),
		}
		for k, v := range d.Vars {
			dv[k] = v
		}
		devices[name] = dv
	}
	ports := make(map[string]any)
	for _, l := range t.Links {
		ports[l[0].Device+"_to_"+l[1].Device] = l[0].Port
		ports[l[1].Device+"_to_"+l[0].Device] = l[1].Port
	}
	return map[string]any{
		"name":    t.Name,
		"devices": devices,
		"ports":   ports,
	}
}

func (t *Topology) namesWithRole(role Role) []string {
	var names []string
	for _, name := range t.DeviceNames() {
		if t.Devices[name].Role == role {
			names = append(names, name)
		}
	}
	return names
}
