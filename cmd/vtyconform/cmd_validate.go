package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/cli"
	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func newValidateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate [suite]",
		Short: "Parse and check a suite without connecting to devices",
		Long: `Parses every scenario in the suite, checks each step against its action's
required fields and template syntax, verifies the requires graph has no
missing or circular references, and loads each referenced topology.

  vtyconform validate openswitch
  vtyconform validate ./suites/openswitch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setLogLevel()

			var positional string
			if len(args) > 0 {
				positional = args[0]
			}
			dir = resolveDir(cmd, dir, positional)

			scenarios, err := vtytest.ParseAllScenarios(dir)
			if err != nil {
				return err
			}
			if len(scenarios) == 0 {
				return fmt.Errorf("no scenarios found in %s", dir)
			}
			sorted, err := vtytest.ValidateDependencyGraph(scenarios)
			if err != nil {
				return err
			}

			topologiesDir := resolveTopologiesDir()
			checked := make(map[string]error)
			failed := false
			for _, sc := range sorted {
				if _, ok := checked[sc.Topology]; !ok {
					_, err := topology.LoadDir(filepath.Join(topologiesDir, sc.Topology))
					checked[sc.Topology] = err
				}
				if err := checked[sc.Topology]; err != nil {
					failed = true
					fmt.Printf("  %s %s\n", cli.Red("✗"), cli.DotPad(sc.Name, 32))
					fmt.Fprintf(os.Stderr, "      %v\n", err)
					continue
				}
				fmt.Printf("  %s %s %d steps\n", cli.Green("✓"), cli.DotPad(sc.Name, 32), len(sc.Steps))
			}

			if failed {
				return fmt.Errorf("suite %s: topology errors", vtytest.SuiteName(dir))
			}
			fmt.Printf("\n%d scenarios valid\n", len(sorted))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory containing scenario YAML files")

	return cmd
}
