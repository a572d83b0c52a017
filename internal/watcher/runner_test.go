package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/logging"
)

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    bool
	}{
		{"empty pattern", "/workspace/demo/a.go", "", false},
		{"directory prefix", "/workspace/demo/src/a.go", "/workspace/demo/", true},
		{"directory prefix on the dir itself", "/workspace/demo", "/workspace/demo/", true},
		{"directory prefix miss", "/workspace/other/a.go", "/workspace/demo/", false},
		{"glob on basename", "/workspace/demo/main.go", "*.go", true},
		{"glob miss", "/workspace/demo/main.rs", "*.go", false},
		{"substring", "/workspace/demo/src/deep/a.go", "src", true},
		{"substring miss", "/workspace/demo/a.go", "vendor", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesPattern(tt.path, tt.pattern))
		})
	}
}

func TestRunnerWantedAndIgnored(t *testing.T) {
	r, err := NewRunner(RunnerOptions{
		Location:     "/workspace/demo",
		ProjectID:    "p1",
		WatchedFiles: []string{"*.go"},
		IgnoredFiles: []string{"*.tmp", "/workspace/demo/node_modules/"},
		PortalPort:   9090,
	}, logging.NewNop())
	require.NoError(t, err)
	defer r.watcher.Close()

	assert.True(t, r.wanted("/workspace/demo/main.go"))
	assert.False(t, r.wanted("/workspace/demo/readme.md"))
	assert.False(t, r.wanted("/workspace/demo/scratch.tmp"))
	assert.False(t, r.wanted("/workspace/demo/node_modules/pkg/index.go"))
}

func TestRunnerEmptyWatchListPassesEverything(t *testing.T) {
	r, err := NewRunner(RunnerOptions{
		Location:   "/workspace/demo",
		ProjectID:  "p1",
		PortalPort: 9090,
	}, logging.NewNop())
	require.NoError(t, err)
	defer r.watcher.Close()

	assert.True(t, r.wanted("/workspace/demo/anything.xyz"))
}
