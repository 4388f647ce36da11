package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vtyconform/vtyconform/pkg/settings"
	"github.com/vtyconform/vtyconform/pkg/util"
	"github.com/vtyconform/vtyconform/pkg/vtytest"
)

// setLogLevel maps the global -v flag onto the shared logger.
func setLogLevel() {
	if verboseFlag {
		_ = util.SetLogLevel("debug")
	} else {
		_ = util.SetLogLevel("warn")
	}
}

// loadSettings returns user settings, or empty settings when the file is
// unreadable.
func loadSettings() *settings.Settings {
	s, err := settings.Load()
	if err != nil {
		util.Logger.Warnf("loading settings: %v", err)
		return &settings.Settings{}
	}
	return s
}

// resolveDir resolves the suite directory from: positional arg > flag > env > settings > default.
// A bare name like "openswitch" is resolved under the suites base directory.
func resolveDir(cmd *cobra.Command, flagVal string, args ...string) string {
	if len(args) > 0 && args[0] != "" {
		return resolveSuiteName(args[0])
	}
	if cmd.Flags().Lookup("dir") != nil && cmd.Flags().Changed("dir") {
		return flagVal
	}
	if v := os.Getenv("VTYCONFORM_SUITE"); v != "" {
		return resolveSuiteName(v)
	}
	if s := loadSettings(); s.DefaultSuite != "" {
		return resolveSuiteName(s.DefaultSuite)
	}
	return filepath.Join(suitesBaseDir(), "openswitch")
}

// resolveSuiteName resolves a suite name to a directory path.
// If name is already a path (contains /), use it directly.
// Otherwise, look under <suites base>/<name>.
func resolveSuiteName(name string) string {
	if strings.Contains(name, string(filepath.Separator)) {
		return name
	}
	candidate := filepath.Join(suitesBaseDir(), name)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}
	// Fall through: return as-is and let downstream report the error
	return name
}

// suitesBaseDir returns the base directory for suites: env > settings > default.
func suitesBaseDir() string {
	if v := os.Getenv("VTYCONFORM_SUITES_BASE"); v != "" {
		return v
	}
	return loadSettings().GetSuitesBase()
}

// resolveTopologiesDir resolves the topologies base directory from: env > settings > default.
func resolveTopologiesDir() string {
	if v := os.Getenv("VTYCONFORM_TOPOLOGIES"); v != "" {
		return v
	}
	return loadSettings().GetTopologiesDir()
}

// resolveSuite resolves a suite name from --dir flag or auto-detection.
// The filter function controls which suites are considered: return true for
// suites that should be included. Pass nil to accept any suite with state.
func resolveSuite(cmd *cobra.Command, dir string, filter func(vtytest.SuiteStatus) bool) (string, error) {
	if cmd.Flags().Changed("dir") {
		return vtytest.SuiteName(dir), nil
	}

	suites, err := vtytest.ListSuiteStates()
	if err != nil {
		return "", err
	}

	var matched []string
	for _, s := range suites {
		if filter == nil {
			matched = append(matched, s)
			continue
		}
		state, err := vtytest.LoadRunState(s)
		if err != nil || state == nil {
			continue
		}
		if filter(state.Status) {
			matched = append(matched, s)
		}
	}

	if len(matched) == 0 {
		return "", fmt.Errorf("no active suite found; use --dir to specify")
	}
	if len(matched) > 1 {
		return "", fmt.Errorf("multiple active suites: %v; use --dir to specify", matched)
	}
	return matched[0], nil
}

// parseVars turns repeated --var key=value flags into a map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--var %q: expected key=value: %w", p, util.ErrInvalidConfig)
		}
		vars[strings.TrimSpace(k)] = v
	}
	return vars, nil
}
