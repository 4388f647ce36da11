package vtytest

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DateTimeFormat is used for report headers and status output.
const DateTimeFormat = "2006-01-02 15:04:05"

// StepStatus represents the outcome of a step or scenario.
type StepStatus string

const (
	StepStatusPassed  StepStatus = "PASS"
	StepStatusFailed  StepStatus = "FAIL"
	StepStatusSkipped StepStatus = "SKIP"
	StepStatusError   StepStatus = "ERROR"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name         string
	Topology     string
	Status       StepStatus
	Duration     time.Duration
	Steps        []StepResult
	ConnectError error
	SkipReason   string // set when Status==StepStatusSkipped

	Repeat          int // total iterations requested (0 = no repeat)
	FailedIteration int // which iteration failed (0 = none; only set when Repeat > 1)
}

// StepResult holds the result of a single step execution.
type StepResult struct {
	Name      string
	Action    StepAction
	Status    StepStatus
	Duration  time.Duration
	Message   string
	Device    string
	Details   []DeviceResult
	Iteration int // 1-based iteration number (0 = no repeat)
}

// DeviceResult holds the result for a single device within a multi-device step.
type DeviceResult struct {
	Device  string
	Status  StepStatus
	Message string
}

// ReportGenerator produces test reports from scenario results.
type ReportGenerator struct {
	Results []*ScenarioResult
}

// WriteMarkdown writes a markdown report to the given path.
func (g *ReportGenerator) WriteMarkdown(path string) error {
	return writeFile(path, g.writeMarkdown)
}

func (g *ReportGenerator) writeMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "# vtyconform report: %s\n\n", time.Now().Format(DateTimeFormat))

	fmt.Fprintln(w, "| Scenario | Topology | Result | Duration | Note |")
	fmt.Fprintln(w, "|----------|----------|--------|----------|------|")
	for _, r := range g.Results {
		note := r.SkipReason
		if r.Repeat > 1 && r.FailedIteration > 0 {
			note = fmt.Sprintf("failed on iteration %d/%d", r.FailedIteration, r.Repeat)
		} else if r.Repeat > 1 {
			note = fmt.Sprintf("%d iterations", r.Repeat)
		}
		if r.ConnectError != nil {
			note = "connect: " + firstErrLine(r.ConnectError)
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			r.Name, r.Topology, r.Status, r.Duration.Round(time.Second), mdEscape(note))
	}

	hasFailures := false
	for _, r := range g.Results {
		for _, s := range r.Steps {
			if s.Status != StepStatusFailed && s.Status != StepStatusError {
				continue
			}
			if !hasFailures {
				fmt.Fprintf(w, "\n## Failures\n\n")
				hasFailures = true
			}
			fmt.Fprintf(w, "### %s\n", r.Name)
			fmt.Fprintf(w, "Step %s (%s) %s: %s\n\n", s.Name, s.Action, s.Status, s.Message)
			for _, d := range s.Details {
				if d.Status == StepStatusFailed || d.Status == StepStatusError {
					fmt.Fprintf(w, "  %s: %s\n", d.Device, d.Message)
				}
			}
		}
	}
	return nil
}

// WriteJUnit writes a JUnit XML report for CI integration.
func (g *ReportGenerator) WriteJUnit(path string) error {
	return writeFile(path, g.writeJUnit)
}

func (g *ReportGenerator) writeJUnit(w io.Writer) error {
	suites := junitTestSuites{}

	for _, r := range g.Results {
		suite := junitTestSuite{
			Name: r.Name,
			Time: r.Duration.Seconds(),
		}

		// Scenario-level skip: emit a single skipped test case
		if r.Status == StepStatusSkipped && r.SkipReason != "" {
			suite.Tests = 1
			suite.Skipped = 1
			suite.Cases = append(suite.Cases, junitTestCase{
				Name:      r.Name,
				ClassName: r.Name,
				Skipped:   &junitSkipped{Message: r.SkipReason},
			})
			suites.Suites = append(suites.Suites, suite)
			continue
		}

		// Connect failure: no steps ran
		if r.ConnectError != nil {
			suite.Tests = 1
			suite.Errors = 1
			suite.Cases = append(suite.Cases, junitTestCase{
				Name:      "connect",
				ClassName: r.Name,
				Error:     &junitError{Message: r.ConnectError.Error(), Type: "connect"},
			})
			suites.Suites = append(suites.Suites, suite)
			continue
		}

		for _, s := range r.Steps {
			suite.Tests++
			stepName := s.Name
			if s.Iteration > 0 {
				stepName = fmt.Sprintf("[iter %d] %s", s.Iteration, s.Name)
			}
			tc := junitTestCase{
				Name:      stepName,
				ClassName: r.Name,
				Time:      s.Duration.Seconds(),
			}

			switch s.Status {
			case StepStatusFailed:
				suite.Failures++
				tc.Failure = &junitFailure{
					Message: s.Message,
					Type:    string(s.Action),
				}
			case StepStatusSkipped:
				suite.Skipped++
				tc.Skipped = &junitSkipped{
					Message: s.Message,
				}
			case StepStatusError:
				suite.Errors++
				tc.Error = &junitError{
					Message: s.Message,
					Type:    string(s.Action),
				}
			}

			suite.Cases = append(suite.Cases, tc)
		}

		suites.Suites = append(suites.Suites, suite)
	}

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append([]byte(xml.Header), data...))
	return err
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func firstErrLine(err error) string {
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}

// statusVerb returns a past-tense verb for a status, used in skip reasons.
func statusVerb(s StepStatus) string {
	switch s {
	case StepStatusFailed:
		return "failed"
	case StepStatusError:
		return "errored"
	case StepStatusSkipped:
		return "was skipped"
	default:
		return string(s)
	}
}

// JUnit XML types

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	Error     *junitError   `xml:"error,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}
