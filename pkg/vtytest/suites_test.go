package vtytest

import (
	"path/filepath"
	"testing"

	"github.com/vtyconform/vtyconform/pkg/topology"
)

// The shipped suites must parse, validate, reference loadable topologies and
// render against them.
func TestShippedSuites(t *testing.T) {
	for _, v := range []string{"VTYCONFORM_SW1", "VTYCONFORM_SW2", "VTYCONFORM_H1", "VTYCONFORM_H2"} {
		t.Setenv(v, "192.0.2.1")
	}

	suites, err := filepath.Glob(filepath.Join("..", "..", "suites", "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(suites) == 0 {
		t.Fatal("no suites found")
	}

	for _, dir := range suites {
		t.Run(filepath.Base(dir), func(t *testing.T) {
			scenarios, err := ParseAllScenarios(dir)
			if err != nil {
				t.Fatalf("ParseAllScenarios: %v", err)
			}
			if len(scenarios) == 0 {
				t.Fatal("suite has no scenarios")
			}
			if _, err := ValidateDependencyGraph(scenarios); err != nil {
				t.Fatalf("ValidateDependencyGraph: %v", err)
			}

			for _, sc := range scenarios {
				topo, err := topology.LoadDir(filepath.Join("..", "..", "topologies", sc.Topology))
				if err != nil {
					t.Errorf("%s: topology: %v", sc.Name, err)
					continue
				}
				for i := range sc.Steps {
					step := &sc.Steps[i]
					for _, dev := range step.Devices.Devices {
						if _, ok := topo.Devices[dev]; !ok {
							t.Errorf("%s step %q: device %s not in topology %s", sc.Name, step.Name, dev, topo.Name)
						}
					}

					// Steps without devices render once with no device.
					targets := step.Devices.Resolve(topo.DeviceNames())
					if len(targets) == 0 {
						targets = []string{""}
					}
					for _, dev := range targets {
						if _, err := renderStep(step, templateData(topo, sc, nil, dev)); err != nil {
							t.Errorf("%s step %q on %q: %v", sc.Name, step.Name, dev, err)
						}
					}
				}
			}
		})
	}
}
