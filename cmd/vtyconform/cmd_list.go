package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/cli"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [suite]",
		Short: "List available suites, or scenarios in a suite",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listSuites()
			}
			return listScenarios(resolveSuiteName(args[0]))
		},
	}
}

func listSuites() error {
	base := suitesBaseDir()
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("no suites directory at %s\n", base)
			return nil
		}
		return err
	}

	t := cli.NewTable("SUITE", "SCENARIOS", "TOPOLOGY")
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		scenarios, err := vtytest.ParseAllScenarios(filepath.Join(base, e.Name()))
		if err != nil {
			t.Row(e.Name(), "-", cli.Red("invalid"))
			n++
			continue
		}
		if len(scenarios) == 0 {
			continue
		}
		t.Row(e.Name(), fmt.Sprintf("%d", len(scenarios)), strings.Join(topologiesOf(scenarios), ", "))
		n++
	}
	if n == 0 {
		fmt.Printf("no suites found in %s\n", base)
		return nil
	}
	t.Flush()
	return nil
}

func listScenarios(dir string) error {
	scenarios, err := vtytest.ParseAllScenarios(dir)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		fmt.Printf("No scenarios found in %s\n", dir)
		return nil
	}
	sorted, err := vtytest.ValidateDependencyGraph(scenarios)
	if err != nil {
		return err
	}

	t := cli.NewTable("#", "SCENARIO", "STEPS", "TOPOLOGY", "REQUIRES", "DESCRIPTION")
	for i, s := range sorted {
		requires := "—"
		if len(s.Requires) > 0 {
			requires = strings.Join(s.Requires, ", ")
		}
		desc, _, _ := strings.Cut(strings.TrimSpace(s.Description), "\n")
		t.Row(fmt.Sprintf("%d", i+1), s.Name, fmt.Sprintf("%d", len(s.Steps)), s.Topology, requires, cli.Truncate(desc, 60))
	}
	t.Flush()
	return nil
}

// topologiesOf returns the distinct topologies referenced by scenarios, in
// first-seen order.
func topologiesOf(scenarios []*vtytest.Scenario) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range scenarios {
		if !seen[s.Topology] {
			seen[s.Topology] = true
			out = append(out, s.Topology)
		}
	}
	return out
}
