package version

import (
	"strings"
	"testing"
)

func TestBuildMetadataInitialized(t *testing.T) {
	// Unlinked values fall back to "unknown" so status output never prints
	// empty fields.
	for name, value := range map[string]string{
		"Version":   Version,
		"BuildTime": BuildTime,
		"GitCommit": GitCommit,
	} {
		if value == "" {
			t.Errorf("%s is empty, want at least the unknown placeholder", name)
		}
	}
}

func TestStringIncludesAllFields(t *testing.T) {
	s := String()
	for _, want := range []string{"hywoma", Version, GitCommit, BuildTime} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
