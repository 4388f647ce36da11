package vtytest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/vtyconform/vtyconform/pkg/settings"
)

// SuiteStatus is the lifecycle state of a suite run.
type SuiteStatus string

const (
	SuiteStatusRunning  SuiteStatus = "running"
	SuiteStatusPausing  SuiteStatus = "pausing"
	SuiteStatusPaused   SuiteStatus = "paused"
	SuiteStatusComplete SuiteStatus = "complete"
	SuiteStatusAborted  SuiteStatus = "aborted"
	SuiteStatusFailed   SuiteStatus = "failed"
)

// RunState is persisted to <state dir>/<suite>/state.json.
type RunState struct {
	RunID     string          `json:"run_id"`
	Suite     string          `json:"suite"`
	SuiteDir  string          `json:"suite_dir"`
	Topology  string          `json:"topology"`
	PID       int             `json:"pid"`
	Status    SuiteStatus     `json:"status"`
	Started   time.Time       `json:"started"`
	Updated   time.Time       `json:"updated"`
	Finished  time.Time       `json:"finished,omitempty"`
	Scenarios []ScenarioState `json:"scenarios"`
}

// ScenarioState tracks the outcome of a single scenario within a suite run.
type ScenarioState struct {
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	Status            string      `json:"status"`   // "PASS","FAIL","SKIP","ERROR","running","" (pending)
	Duration          string      `json:"duration"` // e.g. "2s", "15s"
	CurrentStep       string      `json:"current_step,omitempty"`
	CurrentStepAction string      `json:"current_step_action,omitempty"`
	CurrentStepIndex  int         `json:"current_step_index,omitempty"`
	TotalSteps        int         `json:"total_steps,omitempty"`
	Requires          []string    `json:"requires,omitempty"`
	SkipReason        string      `json:"skip_reason,omitempty"`
	Steps             []StepState `json:"steps,omitempty"`
}

// StepState tracks the outcome of a single step within a scenario.
type StepState struct {
	Name     string `json:"name"`
	Action   string `json:"action"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Message  string `json:"message,omitempty"`
}

var (
	stateRootMu sync.Mutex
	stateRoot   string
)

// SetStateRoot overrides the directory that holds per-suite state. An empty
// dir restores the settings default.
func SetStateRoot(dir string) {
	stateRootMu.Lock()
	defer stateRootMu.Unlock()
	stateRoot = dir
}

// StateRoot returns the directory that holds per-suite state.
func StateRoot() string {
	stateRootMu.Lock()
	root := stateRoot
	stateRootMu.Unlock()
	if root != "" {
		return root
	}
	if s, err := settings.Load(); err == nil {
		return s.GetStateDir()
	}
	return filepath.Join(settings.BaseDir(), "runs")
}

// StateDir returns the state directory path for a suite name.
func StateDir(suite string) string {
	return filepath.Join(StateRoot(), suite)
}

// SuiteName extracts the suite name from a directory path.
func SuiteName(dir string) string {
	return filepath.Base(filepath.Clean(dir))
}

// NewRunState returns a fresh running state with a new run ID.
func NewRunState(suite, suiteDir, topology string) *RunState {
	now := time.Now()
	return &RunState{
		RunID:    uuid.NewString(),
		Suite:    suite,
		SuiteDir: suiteDir,
		Topology: topology,
		Status:   SuiteStatusRunning,
		Started:  now,
		Updated:  now,
	}
}

// SaveRunState writes run state to state.json in the suite state directory.
// The file is replaced atomically so concurrent readers never see a partial
// write.
func SaveRunState(state *RunState) error {
	state.Updated = time.Now()
	dir := StateDir(state.Suite)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("vtytest: create state dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return fmt.Errorf("vtytest: marshal state: %w", err)
	}

	path := filepath.Join(dir, "state.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("vtytest: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vtytest: write state: %w", err)
	}
	return nil
}

// LoadRunState reads run state from state.json. Returns nil, nil if not found.
func LoadRunState(suite string) (*RunState, error) {
	path := filepath.Join(StateDir(suite), "state.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vtytest: read state: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("vtytest: parse state.json: %w", err)
	}
	return &state, nil
}

// RemoveRunState deletes the entire suite state directory. It refuses while
// a runner holds the suite lock.
func RemoveRunState(suite string) error {
	if IsLocked(suite) {
		return fmt.Errorf("vtytest: suite %s is running", suite)
	}
	return os.RemoveAll(StateDir(suite))
}

// ListSuiteStates returns names of all suites with state directories.
func ListSuiteStates() ([]string, error) {
	entries, err := os.ReadDir(StateRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vtytest: list suites: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func lockPath(suite string) string {
	return filepath.Join(StateDir(suite), "lock")
}

// AcquireLock takes the suite's exclusive lock file and records this process
// in the state. It fails if another process holds the lock.
func AcquireLock(state *RunState) (*flock.Flock, error) {
	if err := os.MkdirAll(StateDir(state.Suite), 0755); err != nil {
		return nil, fmt.Errorf("vtytest: create state dir: %w", err)
	}
	lock := flock.New(lockPath(state.Suite))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("vtytest: lock %s: %w", lock.Path(), err)
	}
	if !locked {
		pid := 0
		if existing, _ := LoadRunState(state.Suite); existing != nil {
			pid = existing.PID
		}
		return nil, fmt.Errorf("suite %s already running (pid %d)", state.Suite, pid)
	}

	state.PID = os.Getpid()
	if err := SaveRunState(state); err != nil {
		lock.Unlock()
		return nil, err
	}
	return lock, nil
}

// ReleaseLock clears the PID, saves state and releases the lock file.
func ReleaseLock(state *RunState, lock *flock.Flock) error {
	state.PID = 0
	err := SaveRunState(state)
	if lock != nil {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

// IsLocked reports whether some process holds the suite lock.
func IsLocked(suite string) bool {
	path := lockPath(suite)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return false
	}
	if locked {
		lock.Unlock()
		return false
	}
	return true
}

// CheckPausing returns true if the suite's status is "pausing".
func CheckPausing(suite string) bool {
	state, err := LoadRunState(suite)
	if err != nil || state == nil {
		return false
	}
	return state.Status == SuiteStatusPausing
}

// RequestPause asks the running suite to stop before its next scenario.
func RequestPause(suite string) error {
	state, err := LoadRunState(suite)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no run state for suite %s", suite)
	}
	if state.Status != SuiteStatusRunning {
		return fmt.Errorf("suite %s is %s, not running", suite, state.Status)
	}
	state.Status = SuiteStatusPausing
	return SaveRunState(state)
}

// CompletedScenarios returns the status of each finished scenario in state,
// used to seed a resumed run.
func CompletedScenarios(state *RunState) map[string]StepStatus {
	done := make(map[string]StepStatus)
	if state == nil {
		return done
	}
	for _, sc := range state.Scenarios {
		switch StepStatus(sc.Status) {
		case StepStatusPassed, StepStatusFailed, StepStatusSkipped, StepStatusError:
			done[sc.Name] = StepStatus(sc.Status)
		}
	}
	return done
}
