// Package project defines the per-project-type handler contract and the
// registry that resolves projects to handlers.
package project

import (
	"context"
	"os"
	"path/filepath"

	"github.com/codewatch/codewatch/internal/errors"
	"github.com/codewatch/codewatch/internal/types"
)

// LogKind selects between application and build log files.
type LogKind string

const (
	LogKindApp   LogKind = "app"
	LogKindBuild LogKind = "build"
)

// LogBundle is the handler-reported log file listing for a project.
type LogBundle struct {
	App   []string `json:"app,omitempty"`
	Build []string `json:"build,omitempty"`
}

// Capabilities advertises what a handler supports.
type Capabilities struct {
	StartModes []string
}

// SupportsStartMode reports whether mode is one of the advertised modes.
func (c Capabilities) SupportsStartMode(mode string) bool {
	for _, m := range c.StartModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Handler builds, deletes, and describes projects of one type. Create is
// fire-and-forget: the handler reports a terminal build state through
// the status controller when it finishes.
type Handler interface {
	SupportedType() string
	Create(ctx context.Context, op *types.Operation)
	DeleteContainer(ctx context.Context, info *types.ProjectInfo) error
	Capabilities() Capabilities

	// RequiredFiles lists paths relative to the project location that
	// must exist before a build can start. Empty means no validation.
	RequiredFiles() []string

	DefaultAppPorts() []string
	DefaultDebugPort() string
	DefaultIgnoredPaths() []string

	// LogFiles reports the current log files of the given kind.
	LogFiles(ctx context.Context, info *types.ProjectInfo, kind LogKind) ([]string, error)
}

// FirstMissingRequiredFile returns the first required path that does not
// exist under the project location, or "" when all are present.
func FirstMissingRequiredFile(info *types.ProjectInfo, required []string) string {
	for _, rel := range required {
		if _, err := os.Stat(filepath.Join(info.Location, rel)); err != nil {
			return rel
		}
	}
	return ""
}

// ValidateRequiredFiles checks the handler's required files under the
// project location. The first missing path is returned in the error.
func ValidateRequiredFiles(info *types.ProjectInfo, required []string) error {
	if missing := FirstMissingRequiredFile(info, required); missing != "" {
		return errors.NewValidationError(errors.ErrCodeRequiredFile, "required file missing: "+missing)
	}
	return nil
}
