// Package types holds the canonical data model for workspace projects:
// the per-project info record persisted to disk, the settings document
// read from .cw-settings, and the lifecycle operations that flow through
// the build scheduler.
package types

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProjectInfo is the canonical per-project record. One JSON document per
// project is persisted under the projects data directory.
type ProjectInfo struct {
	ProjectID   string `json:"projectID"`
	ProjectType string `json:"projectType"`
	Location    string `json:"location"`
	ExtensionID string `json:"extensionID,omitempty"`

	AutoBuildEnabled bool   `json:"autoBuildEnabled"`
	StartMode        string `json:"startMode,omitempty"`

	// AppPorts holds at most one element, the status-ping port.
	AppPorts  []string `json:"appPorts,omitempty"`
	DebugPort string   `json:"debugPort,omitempty"`

	ContextRoot string `json:"contextRoot,omitempty"`
	HealthCheck string `json:"healthCheck,omitempty"`

	WatchedFiles []string `json:"watchedFiles,omitempty"`
	IgnoredFiles []string `json:"ignoredFiles,omitempty"`
	IgnoredPaths []string `json:"ignoredPaths,omitempty"`

	MavenProfiles   []string `json:"mavenProfiles,omitempty"`
	MavenProperties []string `json:"mavenProperties,omitempty"`
}

// Clone returns a deep copy so cached records cannot be mutated through
// a returned pointer.
func (p *ProjectInfo) Clone() *ProjectInfo {
	if p == nil {
		return nil
	}
	c := *p
	c.AppPorts = cloneSlice(p.AppPorts)
	c.WatchedFiles = cloneSlice(p.WatchedFiles)
	c.IgnoredFiles = cloneSlice(p.IgnoredFiles)
	c.IgnoredPaths = cloneSlice(p.IgnoredPaths)
	c.MavenProfiles = cloneSlice(p.MavenProfiles)
	c.MavenProperties = cloneSlice(p.MavenProperties)
	return &c
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}

// Name returns the project name, derived from the location basename.
func (p *ProjectInfo) Name() string {
	return filepath.Base(p.Location)
}

// ImageID returns the deterministic image identifier used by build
// handlers: projectID-projectType-sha1hex(location).
func (p *ProjectInfo) ImageID() string {
	sum := sha1.Sum([]byte(p.Location))
	return p.ProjectID + "-" + p.ProjectType + "-" + hex.EncodeToString(sum[:])
}

// OperationKind tags a lifecycle operation.
type OperationKind string

const (
	OpCreate               OperationKind = "create"
	OpDelete               OperationKind = "delete"
	OpUpdate               OperationKind = "update"
	OpValidate             OperationKind = "validate"
	OpBuild                OperationKind = "build"
	OpEnableAutoBuild      OperationKind = "enableAutoBuild"
	OpDisableAutoBuild     OperationKind = "disableAutoBuild"
	OpReconfigWatchedFiles OperationKind = "reconfigWatchedFiles"
)

// Operation is one lifecycle action. It is created at request admission,
// consumed by a handler, and referenced in status and log emissions. It
// is never persisted.
type Operation struct {
	OperationID string
	Kind        OperationKind
	ProjectInfo *ProjectInfo
	CreatedAt   time.Time
}

// NewOperation mints an operation with a fresh opaque id.
func NewOperation(kind OperationKind, info *ProjectInfo) *Operation {
	return &Operation{
		OperationID: uuid.NewString(),
		Kind:        kind,
		ProjectInfo: info,
		CreatedAt:   time.Now(),
	}
}

// ProjectMetadata locates a project's on-disk artifacts, derived from the
// project id and the fixed data and logs roots.
type ProjectMetadata struct {
	Dir      string
	InfoFile string
	LogDir   string
}

// NewProjectMetadata derives the metadata paths for a project.
func NewProjectMetadata(dataRoot, logsRoot, projectID, projectName string) ProjectMetadata {
	dir := filepath.Join(dataRoot, projectID)
	return ProjectMetadata{
		Dir:      dir,
		InfoFile: filepath.Join(dir, projectID+".json"),
		LogDir:   filepath.Join(logsRoot, LogDirName(projectID, projectName)),
	}
}

// LogDirName is the per-project log directory name.
func LogDirName(projectID, projectName string) string {
	return projectName + "-" + projectID
}

// DockerBuildLogName is the fixed file name of the docker build log
// inside a project's log directory.
const DockerBuildLogName = "docker.build.log"

// SettingsFileName is the optional per-project override file read from
// the project location at create time.
const SettingsFileName = ".cw-settings"

// FlexString unmarshals from either a JSON string or a JSON number.
// Port fields in .cw-settings are written both ways in the wild.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value %s is neither string nor number", s)
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the coerced string form.
func (f FlexString) String() string { return string(f) }

// WatchedFilesSetting is the watchedFiles block of .cw-settings.
type WatchedFilesSetting struct {
	IncludeFiles []string `json:"includeFiles,omitempty"`
	ExcludeFiles []string `json:"excludeFiles,omitempty"`
}

// ProjectSettings is the parsed .cw-settings document. All fields are
// optional; absent fields leave the corresponding ProjectInfo field at
// its handler default.
type ProjectSettings struct {
	InternalPort      FlexString           `json:"internalPort,omitempty"`
	InternalDebugPort FlexString           `json:"internalDebugPort,omitempty"`
	ContextRoot       *string              `json:"contextRoot,omitempty"`
	HealthCheck       *string              `json:"healthCheck,omitempty"`
	IgnoredPaths      []string             `json:"ignoredPaths,omitempty"`
	MavenProfiles     []string             `json:"mavenProfiles,omitempty"`
	MavenProperties   []string             `json:"mavenProperties,omitempty"`
	WatchedFiles      *WatchedFilesSetting `json:"watchedFiles,omitempty"`
}
