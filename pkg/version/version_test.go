package version

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	if Version != "dev" {
		t.Errorf("default Version = %q, want %q", Version, "dev")
	}
	if GitCommit != "unknown" {
		t.Errorf("default GitCommit = %q, want %q", GitCommit, "unknown")
	}
	if !IsDev() {
		t.Error("IsDev() = false for default build")
	}
}

func TestInfo(t *testing.T) {
	if got := Info("vtyconform"); !strings.HasPrefix(got, "vtyconform dev build") {
		t.Errorf("Info() dev = %q", got)
	}

	orig := Version
	Version = "v1.2.3"
	defer func() { Version = orig }()

	got := Info("vtyconform")
	if !strings.Contains(got, "v1.2.3") || !strings.Contains(got, GitCommit) {
		t.Errorf("Info() = %q", got)
	}
}
