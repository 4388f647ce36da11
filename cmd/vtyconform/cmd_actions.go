package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/cli"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions [action]",
		Short: "List available step actions or show action details",
		Long: `List all available scenario step actions or show details for one.

Examples:
  vtyconform actions                  # list all actions
  vtyconform actions verify-show      # show verify-show details`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listActions()
			}
			return showActionDetails(args[0])
		},
	}
}

var categoryOrder = []string{"Configuration", "Verification", "Host", "Utility"}

func listActions() error {
	meta := actionMetadata()

	byCategory := make(map[string][]vtytest.StepAction)
	for _, a := range vtytest.Actions() {
		m, ok := meta[a]
		if !ok {
			m = ActionMetadata{Category: "Utility"}
		}
		byCategory[m.Category] = append(byCategory[m.Category], a)
	}

	fmt.Println("Available step actions:")
	fmt.Println()
	for _, cat := range categoryOrder {
		acts := byCategory[cat]
		if len(acts) == 0 {
			continue
		}
		fmt.Printf("%s:\n", cli.Bold(cat))
		for _, a := range acts {
			fmt.Printf("  %s %s\n", cli.Green(fmt.Sprintf("%-18s", a)), meta[a].ShortDesc)
		}
		fmt.Println()
	}
	fmt.Println(cli.Dim("Use 'vtyconform actions <action>' for details about a specific action."))
	return nil
}

func showActionDetails(name string) error {
	meta, ok := actionMetadata()[vtytest.StepAction(name)]
	if !ok {
		return fmt.Errorf("unknown action: %s\n\nUse 'vtyconform actions' to see available actions", name)
	}

	fmt.Printf("%s %s\n", cli.Bold("Action:"), name)
	fmt.Printf("%s %s\n", cli.Bold("Category:"), meta.Category)
	fmt.Printf("Description: %s\n", meta.LongDesc)

	if len(meta.RequiredParams) > 0 {
		fmt.Printf("\n%s\n", cli.Red("Required:"))
		for _, p := range meta.RequiredParams {
			fmt.Printf("  %-22s %s\n", p.Name, p.Desc)
		}
	}
	if len(meta.OptionalParams) > 0 {
		fmt.Printf("\n%s\n", cli.Yellow("Optional:"))
		for _, p := range meta.OptionalParams {
			fmt.Printf("  %-22s %s\n", p.Name, p.Desc)
		}
	}
	if meta.Devices != "" {
		fmt.Printf("\n%s %s\n", cli.Bold("Devices:"), meta.Devices)
	}
	if meta.Example != "" {
		fmt.Printf("\n%s\n%s\n", cli.Bold("Example:"), meta.Example)
	}
	return nil
}

type ActionMetadata struct {
	Category       string
	ShortDesc      string
	LongDesc       string
	RequiredParams []ParamInfo
	OptionalParams []ParamInfo
	Devices        string
	Example        string
}

type ParamInfo struct {
	Name string
	Desc string
}

// actionMetadata describes every step action for the actions command. Keep
// in sync with the executors in pkg/vtytest.
func actionMetadata() map[vtytest.StepAction]ActionMetadata {
	pollParams := []ParamInfo{
		{"expect.timeout", "keep re-running until the checks pass or this elapses"},
		{"expect.poll_interval", "delay between attempts (default: 2s)"},
	}
	outputChecks := ParamInfo{"expect.*", "contains, absent, lines, matches, not_matches, count, json, empty, section"}

	return map[vtytest.StepAction]ActionMetadata{
		vtytest.ActionConfigure: {
			Category:  "Configuration",
			ShortDesc: "Apply commands in configuration mode",
			LongDesc:  "Enters configure terminal, applies context lines then commands, and fails if the CLI rejects any line",
			RequiredParams: []ParamInfo{
				{"commands", "configuration commands"},
			},
			OptionalParams: []ParamInfo{
				{"context", "mode lines entered first, e.g. 'router bgp {{.asn}}'"},
				{"expect.cli_error", "the CLI must reject the commands"},
				{"expect.cli_error_contains", "text the rejection must contain"},
			},
			Devices: "required",
			Example: `- name: enable-lldp
  action: configure
  devices: all
  commands: [lldp enable]`,
		},
		vtytest.ActionUnconfigure: {
			Category:  "Configuration",
			ShortDesc: "Apply the negated form of commands",
			LongDesc:  "Applies commands as given, or negates params.of by adding or stripping the 'no' prefix, in reverse order",
			RequiredParams: []ParamInfo{
				{"commands | params.of", "explicit removal commands, or commands to negate"},
			},
			OptionalParams: []ParamInfo{{"context", "mode lines entered first"}},
			Devices:        "required",
			Example: `- name: disable-lldp
  action: unconfigure
  devices: all
  params:
    of: [lldp enable]`,
		},
		vtytest.ActionExec: {
			Category:  "Configuration",
			ShortDesc: "Run an exec-mode command",
			LongDesc:  "Runs one exec-mode command and optionally checks its output",
			RequiredParams: []ParamInfo{
				{"command", "exec-mode command"},
			},
			OptionalParams: []ParamInfo{outputChecks, {"expect.cli_error", "the CLI must reject the command"}},
			Devices:        "required",
			Example: `- name: clear-counters
  action: exec
  devices: [sw1]
  command: clear interface counters`,
		},
		vtytest.ActionVerifyShow: {
			Category:  "Verification",
			ShortDesc: "Check show-command output",
			LongDesc:  "Runs a show command and checks its output, optionally scoped to a section of running-config",
			RequiredParams: []ParamInfo{
				{"command", "show command"},
				outputChecks,
			},
			OptionalParams: pollParams,
			Devices:        "required",
			Example: `- name: lldp-on
  action: verify-show
  devices: all
  command: show running-config
  expect:
    contains: [lldp enable]`,
		},
		vtytest.ActionVerifyBanner: {
			Category:  "Verification",
			ShortDesc: "Check the login banner",
			LongDesc:  "Opens a fresh connection and checks the banner text presented before authentication",
			RequiredParams: []ParamInfo{
				{"expect.contains | expect.absent", "banner text checks"},
			},
			Devices: "required",
			Example: `- name: banner-shown
  action: verify-banner
  devices: [sw1]
  expect:
    contains: ["Authorized access only"]`,
		},
		vtytest.ActionVerifySNMP: {
			Category:  "Verification",
			ShortDesc: "Query an OID over SNMP",
			LongDesc:  "Performs an SNMP GET against each device and checks the value",
			RequiredParams: []ParamInfo{
				{"params.oid", "object identifier"},
				outputChecks,
			},
			OptionalParams: []ParamInfo{
				{"params.community", "community string (default: device community or public)"},
				{"params.version", "1 or 2c (default: 2c)"},
				{"params.port", "UDP port (default: 161)"},
			},
			Devices: "required",
			Example: `- name: sysname
  action: verify-snmp
  devices: [sw1]
  params: {oid: 1.3.6.1.2.1.1.5.0}
  expect:
    contains: [sw1]`,
		},
		vtytest.ActionVerifyRADIUS: {
			Category:  "Verification",
			ShortDesc: "Authenticate against a RADIUS server",
			LongDesc:  "Sends an Access-Request and checks for Access-Accept or Access-Reject",
			RequiredParams: []ParamInfo{
				{"params.server", "server address or device name"},
				{"params.user", "user name"},
				{"params.password", "user password"},
				{"params.secret", "shared secret"},
				{"expect.result", "accept or reject"},
			},
			OptionalParams: []ParamInfo{{"params.port", "UDP port (default: 1812)"}},
			Example: `- name: admin-accepted
  action: verify-radius
  params: {server: radius, user: admin, password: s3cret, secret: testing123}
  expect: {result: accept}`,
		},
		vtytest.ActionVerifyDB: {
			Category:  "Verification",
			ShortDesc: "Check a Redis database entry",
			LongDesc:  "Reads table|key from the device's Redis database, tunnelled over SSH unless params.direct is set",
			RequiredParams: []ParamInfo{
				{"params.table", "table name"},
				{"params.key", "entry key"},
				{"expect.exists | expect.fields", "presence or field values"},
			},
			OptionalParams: []ParamInfo{
				{"params.addr", "Redis address as seen from the device (default: 127.0.0.1:6379)"},
				{"params.db", "database number (default: 0)"},
				{"params.separator", "table/key separator (default: |)"},
				{"params.direct", "connect from this host instead of through SSH"},
			},
			Devices: "required",
			Example: `- name: port-up
  action: verify-db
  devices: [sw1]
  params: {table: PORT, key: Ethernet0}
  expect:
    fields: {admin_status: up}`,
		},
		vtytest.ActionVerifyPing: {
			Category:  "Host",
			ShortDesc: "Ping from a device and check the success rate",
			LongDesc:  "Runs ping on one device's shell and parses the packet loss",
			RequiredParams: []ParamInfo{
				{"target", "address or device name"},
			},
			OptionalParams: []ParamInfo{
				{"count", "number of packets (default: 5)"},
				{"params.source", "source address or interface"},
				{"expect.success_rate", "minimum success rate (default: 1.0)"},
			},
			Devices: "required (single device)",
			Example: `- name: h1-reaches-sw1
  action: verify-ping
  devices: [h1]
  target: sw1
  expect: {success_rate: 0.8}`,
		},
		vtytest.ActionVerifyReachable: {
			Category:  "Host",
			ShortDesc: "Ping devices from this host",
			LongDesc:  "Sends ICMP echo requests from the runner host to each device's address",
			OptionalParams: []ParamInfo{
				{"count", "number of packets (default: 5)"},
				{"params.privileged", "use raw sockets instead of unprivileged ICMP"},
				{"expect.success_rate", "minimum success rate (default: 1.0)"},
			},
			Devices: "required",
			Example: `- name: mgmt-up
  action: verify-reachable
  devices: all`,
		},
		vtytest.ActionShell: {
			Category:  "Host",
			ShortDesc: "Run a Linux shell command",
			LongDesc:  "Runs a command in the device's shell, outside the switch CLI; a non-zero exit fails the step",
			RequiredParams: []ParamInfo{
				{"command", "shell command"},
			},
			OptionalParams: []ParamInfo{outputChecks},
			Devices:        "required",
			Example: `- name: address-set
  action: shell
  devices: [h1]
  command: ip -4 addr show eth0
  expect:
    contains: ["10.1.1.2/24"]`,
		},
		vtytest.ActionWait: {
			Category:  "Utility",
			ShortDesc: "Sleep for a fixed duration",
			LongDesc:  "Pauses the scenario; cancelled promptly on interrupt",
			RequiredParams: []ParamInfo{
				{"duration", "e.g. 5s"},
			},
			Example: `- name: settle
  action: wait
  duration: 5s`,
		},
	}
}
