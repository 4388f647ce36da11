//go:build integration

package vtytest

import (
	"os"
	"testing"

	"github.com/vtyconform/vtyconform/internal/testutil"
)

// TestShippedSuite_Live runs one bundled scenario against the switch named by
// VTYCONFORM_SW1. VTYCONFORM_SCENARIO picks another scenario.
func TestShippedSuite_Live(t *testing.T) {
	if os.Getenv("VTYCONFORM_SW1") == "" {
		t.Skip("no switch under test: set VTYCONFORM_SW1, VTYCONFORM_USER and VTYCONFORM_PASSWORD")
	}
	testutil.MustEnv(t, "VTYCONFORM_USER")

	scenario := os.Getenv("VTYCONFORM_SCENARIO")
	if scenario == "" {
		scenario = "lldp"
	}

	r := NewRunner(testutil.SuitesPath("openswitch"), testutil.TopologiesPath())
	r.Progress = NewConsoleProgress(testing.Verbose())

	results, err := r.Run(testutil.Context(t), RunOptions{Scenario: scenario})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, res := range results {
		if res.Status != StepStatusPassed {
			t.Errorf("%s: %s", res.Name, res.Status)
			for _, s := range res.Steps {
				if s.Status != StepStatusPassed {
					t.Logf("  %s (%s): %s", s.Name, s.Action, s.Message)
				}
			}
		}
	}
}
