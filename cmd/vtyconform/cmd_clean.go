package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func newCleanCmd() *cobra.Command {
	var (
		dir string
		all bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove suite run state",
		Long: `Removes persisted run state so the next run starts fresh.
Refuses to remove state of a suite with a live runner; use 'vtyconform pause' first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var suites []string
			if all {
				names, err := vtytest.ListSuiteStates()
				if err != nil {
					return err
				}
				suites = names
			} else {
				suite, err := resolveSuite(cmd, dir, nil)
				if err != nil {
					return err
				}
				suites = []string{suite}
			}

			var failed []string
			for _, suite := range suites {
				if err := vtytest.RemoveRunState(suite); err != nil {
					fmt.Printf("  %s: %v\n", suite, err)
					failed = append(failed, suite)
					continue
				}
				fmt.Printf("suite %s cleaned up\n", suite)
			}
			if len(failed) > 0 {
				return fmt.Errorf("could not clean %v", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "suite directory (auto-detected if omitted)")
	cmd.Flags().BoolVar(&all, "all", false, "remove state of every suite")

	return cmd
}
