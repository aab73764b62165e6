package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.24.1",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1a2b3c4d5e6f7a8b"},
			{Key: "vcs.time", Value: "2024-01-01T00:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	info := fromBuildInfo(Info{Version: "v1.2.0", BuildTime: "unknown"}, bi)
	assert.Equal(t, "go1.24.1", info.GoVersion)
	assert.Equal(t, "1a2b3c4d5e6f7a8b", info.VCSRevision)
	assert.True(t, info.VCSModified)
	assert.Equal(t, "tally v1.2.0 (go1.24.1, commit 1a2b3c4d+dirty)", info.String())
	assert.Equal(t, "binary built from a modified source tree", info.Check())
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want bool
	}{
		{"clean release", Info{Version: "v1.0.0", VCSRevision: "abc"}, false},
		{"release without vcs", Info{Version: "v1.0.0"}, false},
		{"dev without vcs", Info{Version: "dev"}, true},
		{"modified tree", Info{Version: "v1.0.0", VCSRevision: "abc", VCSModified: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Check() != "")
		})
	}
}

func TestStringMinimal(t *testing.T) {
	assert.Equal(t, "tally dev", Info{Version: "dev", BuildTime: "unknown"}.String())
	assert.Equal(t, "tally dev (built 2024-05-01)", Info{Version: "dev", BuildTime: "2024-05-01"}.String())
}
