// Package audit records every command pushed to a device during a
// conformance run so a failed scenario can be replayed by hand.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one batch of commands sent to one device by one step.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id,omitempty"`
	Suite     string        `json:"suite,omitempty"`
	Scenario  string        `json:"scenario"`
	Step      string        `json:"step"`
	Device    string        `json:"device"`
	Action    string        `json:"action"`
	Context   []string      `json:"context,omitempty"`
	Commands  []string      `json:"commands"`
	Success   bool          `json:"success"`
	Rejected  string        `json:"rejected,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	RunID       string
	Suite       string
	Scenario    string
	Device      string
	Action      string
	StartTime   time.Time
	EndTime     time.Time
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(scenario, step, device, action string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Scenario:  scenario,
		Step:      step,
		Device:    device,
		Action:    action,
	}
}

// WithRun sets the run and suite the event belongs to.
func (e *Event) WithRun(runID, suite string) *Event {
	e.RunID = runID
	e.Suite = suite
	return e
}

// WithCommands sets the mode lines and commands sent.
func (e *Event) WithCommands(context, commands []string) *Event {
	e.Context = context
	e.Commands = commands
	return e
}

// WithSuccess marks the event as accepted by the device.
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithRejection records the CLI's error text. A rejection is not a success
// even when the step expected it.
func (e *Event) WithRejection(msg string) *Event {
	e.Success = false
	e.Rejected = msg
	return e
}

// WithError records a transport failure.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets how long the device took to answer.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
