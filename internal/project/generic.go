package project

import (
	"context"
	"os"
	"path/filepath"

	"github.com/codewatch/codewatch/internal/locale"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/status"
	"github.com/codewatch/codewatch/internal/types"
)

// GenericHandler is the built-in handler for container-type projects
// with no dedicated plug-in. It performs no real build: Create reports
// success immediately and DeleteContainer only removes log files, so a
// workspace remains operable before any extension handlers are loaded.
type GenericHandler struct {
	status status.Controller
	locale locale.Translator
	log    logging.Logger

	// LogsDir mirrors the workspace logs root so LogFiles can report
	// the docker build log the scheduler path creates.
	LogsDir string
}

// NewGenericHandler creates the built-in generic handler.
func NewGenericHandler(ctrl status.Controller, tr locale.Translator, logsDir string, log logging.Logger) *GenericHandler {
	return &GenericHandler{
		status:  ctrl,
		locale:  tr,
		log:     log.WithComponent("generic-handler"),
		LogsDir: logsDir,
	}
}

// SupportedType implements Handler.
func (h *GenericHandler) SupportedType() string { return "generic" }

// Capabilities implements Handler.
func (h *GenericHandler) Capabilities() Capabilities {
	return Capabilities{StartModes: []string{"run"}}
}

// Create implements Handler. The generic handler has nothing to build,
// so it writes the build log marker and reports a terminal state at once.
func (h *GenericHandler) Create(ctx context.Context, op *types.Operation) {
	info := op.ProjectInfo
	logDir := filepath.Join(h.LogsDir, types.LogDirName(info.ProjectID, info.Name()))
	logFile := filepath.Join(logDir, types.DockerBuildLogName)
	if err := os.MkdirAll(logDir, 0o755); err == nil {
		if err := os.WriteFile(logFile, []byte("image "+info.ImageID()+"\n"), 0o644); err != nil {
			h.log.Warn(ctx, err, "could not write build log", "projectID", info.ProjectID)
		}
	}
	h.status.UpdateProjectStatus(status.TypeBuildState, info.ProjectID, status.StateSuccess,
		locale.KeyBuildSuccess, h.locale.Translation(locale.KeyBuildSuccess))
}

// DeleteContainer implements Handler.
func (h *GenericHandler) DeleteContainer(ctx context.Context, info *types.ProjectInfo) error {
	return nil
}

// RequiredFiles implements Handler.
func (h *GenericHandler) RequiredFiles() []string { return nil }

// DefaultAppPorts implements Handler.
func (h *GenericHandler) DefaultAppPorts() []string { return nil }

// DefaultDebugPort implements Handler.
func (h *GenericHandler) DefaultDebugPort() string { return "" }

// DefaultIgnoredPaths implements Handler.
func (h *GenericHandler) DefaultIgnoredPaths() []string {
	return []string{"*/.git/*", "*/node_modules/*"}
}

// LogFiles implements Handler.
func (h *GenericHandler) LogFiles(ctx context.Context, info *types.ProjectInfo, kind LogKind) ([]string, error) {
	if kind != LogKindBuild {
		return nil, nil
	}
	logFile := filepath.Join(h.LogsDir, types.LogDirName(info.ProjectID, info.Name()), types.DockerBuildLogName)
	if _, err := os.Stat(logFile); err != nil {
		return nil, nil
	}
	return []string{logFile}, nil
}
