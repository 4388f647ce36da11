// Package settings manages persistent user settings for the vtyconform CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultSuite is the suite run when no suite argument or --dir is given
	DefaultSuite string `json:"default_suite,omitempty"`

	// SuitesBase is the directory bare suite names resolve under
	SuitesBase string `json:"suites_base,omitempty"`

	// TopologiesDir is the base directory for topology definitions
	TopologiesDir string `json:"topologies_dir,omitempty"`

	// Username is the login used when a topology leaves it unset
	Username string `json:"username,omitempty"`

	// StateDir overrides where run state is persisted
	StateDir string `json:"state_dir,omitempty"`
}

// BaseDir returns ~/.vtyconform, or the working directory when HOME is unset.
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vtyconform"
	}
	return filepath.Join(home, ".vtyconform")
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	return filepath.Join(BaseDir(), "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetSuitesBase returns the suites base directory (with fallback)
func (s *Settings) GetSuitesBase() string {
	if s.SuitesBase != "" {
		return s.SuitesBase
	}
	return "suites"
}

// GetTopologiesDir returns the topologies directory (with fallback)
func (s *Settings) GetTopologiesDir() string {
	if s.TopologiesDir != "" {
		return s.TopologiesDir
	}
	return "topologies"
}

// GetStateDir returns where run state lives (with fallback)
func (s *Settings) GetStateDir() string {
	if s.StateDir != "" {
		return s.StateDir
	}
	return filepath.Join(BaseDir(), "runs")
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
