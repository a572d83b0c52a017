package settings

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/types"
)

// defaultsHandler is a Handler stub that only answers the default
// queries Merge consults.
type defaultsHandler struct {
	appPorts     []string
	debugPort    string
	ignoredPaths []string
}

func (h *defaultsHandler) SupportedType() string                            { return "stub" }
func (h *defaultsHandler) Create(ctx context.Context, op *types.Operation)  {}
func (h *defaultsHandler) DeleteContainer(ctx context.Context, info *types.ProjectInfo) error {
	return nil
}
func (h *defaultsHandler) Capabilities() project.Capabilities { return project.Capabilities{} }
func (h *defaultsHandler) RequiredFiles() []string            { return nil }
func (h *defaultsHandler) DefaultAppPorts() []string          { return h.appPorts }
func (h *defaultsHandler) DefaultDebugPort() string           { return h.debugPort }
func (h *defaultsHandler) DefaultIgnoredPaths() []string      { return h.ignoredPaths }
func (h *defaultsHandler) LogFiles(ctx context.Context, info *types.ProjectInfo, kind project.LogKind) ([]string, error) {
	return nil, nil
}

func strptr(s string) *string { return &s }

func TestMergeDefaultsOnly(t *testing.T) {
	h := &defaultsHandler{
		appPorts:     []string{"8080"},
		debugPort:    "5005",
		ignoredPaths: []string{"*/target/*"},
	}
	info := &types.ProjectInfo{ProjectID: "p1"}

	Merge(info, h, nil, logging.NewNop())

	assert.Equal(t, []string{"8080"}, info.AppPorts)
	assert.Equal(t, "5005", info.DebugPort)
	assert.Equal(t, []string{"*/target/*"}, info.IgnoredPaths)
}

func TestMergeSettingsWinOverDefaults(t *testing.T) {
	h := &defaultsHandler{appPorts: []string{"8080"}, debugPort: "5005"}
	info := &types.ProjectInfo{ProjectID: "p1"}
	s := &types.ProjectSettings{
		InternalPort:      "3000",
		InternalDebugPort: "7777",
		ContextRoot:       strptr("//api/v1/"),
		HealthCheck:       strptr("health/"),
	}

	Merge(info, h, s, logging.NewNop())

	assert.Equal(t, []string{"3000"}, info.AppPorts)
	assert.Equal(t, "7777", info.DebugPort)
	assert.Equal(t, "/api/v1", info.ContextRoot)
	assert.Equal(t, "/health", info.HealthCheck)
}

func TestMergeAppPortsNeverExceedOne(t *testing.T) {
	h := &defaultsHandler{appPorts: []string{"8080"}}
	info := &types.ProjectInfo{ProjectID: "p1", AppPorts: []string{"9000"}}

	Merge(info, h, &types.ProjectSettings{InternalPort: "3000"}, logging.NewNop())
	assert.Equal(t, []string{"3000"}, info.AppPorts)

	// Prior port survives when the setting is absent.
	info2 := &types.ProjectInfo{ProjectID: "p2", AppPorts: []string{"9000"}}
	Merge(info2, h, &types.ProjectSettings{}, logging.NewNop())
	assert.Equal(t, []string{"9000"}, info2.AppPorts)
}

func TestMergeRejectsSequenceWithEmptyElement(t *testing.T) {
	h := &defaultsHandler{}
	info := &types.ProjectInfo{ProjectID: "p1", MavenProfiles: []string{"prior"}}
	s := &types.ProjectSettings{
		MavenProfiles:   []string{"dev", "  "},
		MavenProperties: []string{" key=value "},
		WatchedFiles: &types.WatchedFilesSetting{
			IncludeFiles: []string{"src", ""},
			ExcludeFiles: []string{"*.class"},
		},
	}

	Merge(info, h, s, logging.NewNop())

	// The profile list held an empty element, so the whole setting is
	// rejected and the prior value survives.
	assert.Equal(t, []string{"prior"}, info.MavenProfiles)
	assert.Equal(t, []string{"key=value"}, info.MavenProperties)
	assert.Nil(t, info.WatchedFiles)
	assert.Equal(t, []string{"*.class"}, info.IgnoredFiles)
}

func TestMergeIgnoredPathsDropEmpty(t *testing.T) {
	h := &defaultsHandler{ignoredPaths: []string{"*/default/*"}}

	info := &types.ProjectInfo{ProjectID: "p1"}
	Merge(info, h, &types.ProjectSettings{IgnoredPaths: []string{"target", " ", "build"}}, logging.NewNop())
	assert.Equal(t, []string{"target", "build"}, info.IgnoredPaths)

	// All elements empty: the setting contributes nothing and the
	// default applies.
	info2 := &types.ProjectInfo{ProjectID: "p2"}
	Merge(info2, h, &types.ProjectSettings{IgnoredPaths: []string{"", " "}}, logging.NewNop())
	assert.Equal(t, []string{"*/default/*"}, info2.IgnoredPaths)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"   ", "/"},
		{"/", "/"},
		{"///", "/"},
		{"api", "/api"},
		{"/api", "/api"},
		{"//api/v1/", "/api/v1"},
		{" health/ ", "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}

func TestNormalizePathProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("one leading slash, no trailing slash", prop.ForAll(
		func(p string) bool {
			out := NormalizePath(p)
			if !strings.HasPrefix(out, "/") || strings.HasPrefix(out, "//") {
				return false
			}
			return out == "/" || !strings.HasSuffix(out, "/")
		},
		gen.AnyString(),
	))

	properties.Property("idempotent", prop.ForAll(
		func(p string) bool {
			out := NormalizePath(p)
			return NormalizePath(out) == out
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
