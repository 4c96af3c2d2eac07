package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestGetShortVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{"release with commit", "v1.2.0", "0123456789abcdef", "v1.2.0 (0123456)"},
		{"dev with commit", "dev", "0123456789abcdef", "dev-0123456"},
		{"short commit ignored", "v1.2.0", "abc", "v1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildVars(t, tt.version, tt.commit, "unknown")
			assert.Equal(t, tt.want, GetShortVersion())
		})
	}
}

func TestIsRelease(t *testing.T) {
	withBuildVars(t, "v1.2.0", "unknown", "unknown")
	assert.True(t, IsRelease())
}

func TestParseBuildTime(t *testing.T) {
	want := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	assert.True(t, parseBuildTime("2025-03-14T09:30:00Z").Equal(want))
	assert.True(t, parseBuildTime("2025-03-14 09:30:00").Equal(want))
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
}

func TestGetDetailedVersion(t *testing.T) {
	withBuildVars(t, "v1.2.0", "0123456789abcdef", "2025-03-14T09:30:00Z")

	out := GetDetailedVersion()
	assert.True(t, strings.HasPrefix(out, "brokerage v1.2.0\n"))
	assert.Contains(t, out, "Commit: 0123456789abcdef")
	assert.Contains(t, out, "Built: 2025-03-14T09:30:00Z")
	assert.Contains(t, out, "Platform: ")
}

func TestGetBuildInfo(t *testing.T) {
	withBuildVars(t, "v1.2.0", "0123456789abcdef", "unknown")

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.True(t, info.BuildTime.IsZero())
	assert.NotEmpty(t, info.GoVersion)
}
