package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/audit"
	"github.com/vtyconform/vtyconform/pkg/cli"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

// auditLogPath is the shared audit log, kept beside the per-suite state
// directories so 'clean' does not remove it.
func auditLogPath() string {
	return filepath.Join(vtytest.StateRoot(), "audit.jsonl")
}

func newAuditCmd() *cobra.Command {
	var (
		filter     audit.Filter
		last       string
		limit      int
		jsonOutput bool
		replay     bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show commands sent to devices",
		Long: `Lists configure, unconfigure and exec commands sent to devices by past
runs, newest last. Rejected commands and transport errors are marked.

  vtyconform audit --suite openswitch --failures
  vtyconform audit --run <run-id> --device sw1 --replay   # commands as a vtysh script
  vtyconform audit --last 2h --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if last != "" {
				d, err := time.ParseDuration(last)
				if err != nil {
					return fmt.Errorf("invalid duration: %s", last)
				}
				filter.StartTime = time.Now().Add(-d)
			}

			events, err := audit.ReadFile(auditLogPath(), filter)
			if err != nil {
				return fmt.Errorf("querying audit log: %w", err)
			}
			if limit > 0 && len(events) > limit {
				events = events[len(events)-limit:]
			}

			switch {
			case jsonOutput:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			case replay:
				printReplay(events)
				return nil
			}

			if len(events) == 0 {
				fmt.Println("No audit events found")
				return nil
			}

			t := cli.NewTable("TIME", "SCENARIO", "STEP", "DEVICE", "ACTION", "RESULT", "COMMANDS")
			for _, e := range events {
				t.Row(
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Scenario,
					e.Step,
					e.Device,
					e.Action,
					auditResult(e),
					cli.Truncate(strings.Join(e.Commands, "; "), 60),
				)
			}
			t.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Suite, "suite", "", "filter by suite")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "filter by run ID")
	cmd.Flags().StringVar(&filter.Scenario, "scenario", "", "filter by scenario")
	cmd.Flags().StringVar(&filter.Device, "device", "", "filter by device")
	cmd.Flags().StringVar(&filter.Action, "action", "", "filter by action")
	cmd.Flags().BoolVar(&filter.FailureOnly, "failures", false, "show only rejected or failed commands")
	cmd.Flags().StringVar(&last, "last", "", "show events from the last duration (e.g. 30m, 24h)")
	cmd.Flags().IntVar(&limit, "limit", 100, "show at most this many of the newest events (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	cmd.Flags().BoolVar(&replay, "replay", false, "print the commands as a script per device")

	return cmd
}

func auditResult(e *audit.Event) string {
	switch {
	case e.Error != "":
		return cli.Red("error")
	case e.Rejected != "":
		return cli.Yellow("rejected")
	default:
		return cli.Green("ok")
	}
}

// printReplay prints each event's commands in the order sent, wrapping
// configuration batches in configure terminal / end.
func printReplay(events []*audit.Event) {
	device := ""
	for _, e := range events {
		if e.Device != device {
			device = e.Device
			fmt.Printf("! device %s\n", device)
		}
		fmt.Printf("! %s / %s\n", e.Scenario, e.Step)
		if e.Action == string(vtytest.ActionExec) {
			for _, c := range e.Commands {
				fmt.Println(c)
			}
			continue
		}
		fmt.Println("configure terminal")
		for _, c := range e.Context {
			fmt.Println(c)
		}
		for _, c := range e.Commands {
			fmt.Println(c)
		}
		fmt.Println("end")
	}
}
