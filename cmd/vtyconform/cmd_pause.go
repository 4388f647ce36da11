package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

func newPauseCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause a running suite after the current scenario",
		Long: `Signals a running suite to stop before its next scenario.
Resume with 'vtyconform run <suite>'; passed scenarios are not repeated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := resolveSuite(cmd, dir, func(s vtytest.SuiteStatus) bool {
				return s == vtytest.SuiteStatusRunning || s == vtytest.SuiteStatusPausing
			})
			if err != nil {
				return err
			}

			if !vtytest.IsLocked(suite) {
				return fmt.Errorf("suite %s has no live runner", suite)
			}
			if err := vtytest.RequestPause(suite); err != nil {
				return err
			}

			state, _ := vtytest.LoadRunState(suite)
			pid := 0
			if state != nil {
				pid = state.PID
			}
			fmt.Printf("pausing suite %s (pid %d); will stop after current scenario\n", suite, pid)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "suite directory (auto-detected if omitted)")

	return cmd
}
