// Package lifecycle implements the top-level project operations: create,
// delete, action, specification, logs, and shutdown. The coordinator
// validates requests, materialises ProjectInfo records, and drives the
// info store, watcher supervisor, and build scheduler.
package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/errors"
	"github.com/codewatch/codewatch/internal/events"
	"github.com/codewatch/codewatch/internal/locale"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/scheduler"
	"github.com/codewatch/codewatch/internal/settings"
	"github.com/codewatch/codewatch/internal/status"
	"github.com/codewatch/codewatch/internal/store"
	"github.com/codewatch/codewatch/internal/types"
	"github.com/codewatch/codewatch/internal/watcher"
)

// Result is the structured outcome of a lifecycle operation. Status
// carries the dispatcher status code directly.
type Result struct {
	Status      int                `json:"statusCode"`
	OperationID string             `json:"operationId,omitempty"`
	Error       string             `json:"error,omitempty"`
	LogFile     string             `json:"logFile,omitempty"`
	Logs        *project.LogBundle `json:"logs,omitempty"`
}

func errorResult(err error) Result {
	return Result{Status: errors.StatusFor(err), Error: err.Error()}
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	ProjectID   string `json:"projectID"`
	ProjectType string `json:"projectType"`
	Location    string `json:"location"`
	StartMode   string `json:"startMode,omitempty"`
	ExtensionID string `json:"extensionID,omitempty"`
}

// Coordinator drives the project lifecycle.
type Coordinator struct {
	cfg        *config.Config
	store      *store.Store
	registry   *project.Registry
	status     status.Controller
	sched      *scheduler.Scheduler
	supervisor *watcher.Supervisor
	bus        events.Bus
	translator locale.Translator
	log        logging.Logger

	mu       sync.Mutex
	projects map[string]*types.ProjectInfo
	logLists map[string]map[project.LogKind][]string
	deletes  sync.WaitGroup
}

// New wires a coordinator and installs its teardown hook on the
// scheduler.
func New(cfg *config.Config, st *store.Store, reg *project.Registry, ctrl status.Controller,
	sched *scheduler.Scheduler, sup *watcher.Supervisor, bus events.Bus,
	tr locale.Translator, log logging.Logger) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		store:      st,
		registry:   reg,
		status:     ctrl,
		sched:      sched,
		supervisor: sup,
		bus:        bus,
		translator: tr,
		log:        log.WithComponent("lifecycle"),
		projects:   make(map[string]*types.ProjectInfo),
		logLists:   make(map[string]map[project.LogKind][]string),
	}
	sched.SetStopAll(c.stopAllProjects)
	return c
}

// Create admits a project into the workspace: it merges settings,
// persists the info record, registers the project, and enqueues the
// initial build. It returns 202 with the operation id and the
// deterministic docker-build log path.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) Result {
	switch {
	case req.ProjectID == "":
		return errorResult(errors.ErrMissingField("projectID"))
	case req.ProjectType == "":
		return errorResult(errors.ErrMissingField("projectType"))
	case req.Location == "":
		return errorResult(errors.ErrMissingField("location"))
	}

	cwSettings := c.readSettings(ctx, req.Location)

	projectName := filepath.Base(req.Location)
	logDirName := types.LogDirName(req.ProjectID, projectName)
	logDir := filepath.Join(c.cfg.Workspace.LogsDir, logDirName)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return errorResult(errors.NewIOError(errors.ErrCodeInternalError, "creating log directory", err))
	}

	if prior := c.store.LoadByID(req.ProjectID, true); prior != nil {
		if prior.ProjectType != req.ProjectType || prior.Location != req.Location {
			return errorResult(errors.ErrProjectExists(req.ProjectID))
		}
		// Re-creation of the same project: the old watcher dies before
		// the new build starts.
		c.supervisor.Stop(ctx, prior)
	}

	if _, err := os.Stat(req.Location); err != nil {
		return errorResult(errors.ErrFileNotExist(req.Location))
	}

	handler, err := c.registry.HandlerByType(req.ProjectType)
	if err != nil {
		return errorResult(err)
	}

	info := &types.ProjectInfo{
		ProjectID:        req.ProjectID,
		ProjectType:      req.ProjectType,
		Location:         req.Location,
		ExtensionID:      req.ExtensionID,
		AutoBuildEnabled: true,
	}
	settings.Merge(info, handler, cwSettings, c.log)

	if req.StartMode != "" {
		if !handler.Capabilities().SupportsStartMode(req.StartMode) {
			return errorResult(errors.NewValidationError(errors.ErrCodeInvalidOption,
				"start mode not supported: "+req.StartMode))
		}
		info.StartMode = req.StartMode
	}

	if err := os.MkdirAll(c.store.ProjectDir(req.ProjectID), 0o755); err != nil && !os.IsExist(err) {
		return errorResult(errors.NewIOError(errors.ErrCodeMetadataFailed, "creating metadata directory", err))
	}

	c.store.Save(req.ProjectID, info, true)
	c.status.AddProject(req.ProjectID)

	c.mu.Lock()
	c.projects[req.ProjectID] = info.Clone()
	c.mu.Unlock()

	op := types.NewOperation(types.OpCreate, info)
	c.sched.Enqueue(&scheduler.Entry{Op: op, Handler: handler})

	return Result{
		Status:      http.StatusAccepted,
		OperationID: op.OperationID,
		LogFile:     filepath.Join(req.Location, "..", ".logs", logDirName, types.DockerBuildLogName),
	}
}

// readSettings parses <location>/.cw-settings if present. A missing or
// malformed file yields nil settings; parse failures are logged.
func (c *Coordinator) readSettings(ctx context.Context, location string) *types.ProjectSettings {
	path := filepath.Join(location, types.SettingsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var s types.ProjectSettings
	if err := json.Unmarshal(data, &s); err != nil {
		c.log.Warn(ctx, err, "settings file not parseable, ignoring", "path", path)
		return nil
	}
	return &s
}

// Delete removes a project. The queue and running set drop the project
// synchronously; the remaining teardown runs asynchronously and reports
// through the projectDeletion event.
func (c *Coordinator) Delete(ctx context.Context, projectID string) Result {
	if projectID == "" {
		return errorResult(errors.ErrMissingField("projectID"))
	}
	info := c.store.LoadByID(projectID, true)
	if info == nil {
		return errorResult(errors.ErrFileNotExist(c.store.InfoFile(projectID)))
	}

	op := types.NewOperation(types.OpDelete, info)

	c.sched.RemoveFromQueue(projectID)
	c.sched.RemoveRunning(projectID)

	c.deletes.Add(1)
	go func() {
		defer c.deletes.Done()
		c.runDeletion(context.WithoutCancel(ctx), op)
	}()

	return Result{Status: http.StatusAccepted, OperationID: op.OperationID}
}

// runDeletion performs the asynchronous part of Delete and emits the
// projectDeletion event with the outcome.
func (c *Coordinator) runDeletion(ctx context.Context, op *types.Operation) {
	info := op.ProjectInfo
	projectID := info.ProjectID

	c.status.DeleteProject(projectID)

	c.mu.Lock()
	delete(c.projects, projectID)
	delete(c.logLists, projectID)
	c.mu.Unlock()

	// In cluster mode only the in-memory entry is dropped; there is no
	// child process to kill.
	c.supervisor.Stop(ctx, info)

	var deleteErr error
	if handler, err := c.registry.ProjectHandler(info); err == nil {
		if err := handler.DeleteContainer(ctx, info); err != nil {
			deleteErr = errors.NewHandlerError(errors.ErrCodeDeleteFailed, "deleting container", err)
		}
	}

	metaDir := c.store.ProjectDir(projectID)
	if filepath.Clean(metaDir) == string(filepath.Separator) {
		c.log.Error(ctx, nil, "refusing to remove filesystem root", "projectID", projectID)
	} else if err := os.RemoveAll(metaDir); err != nil && deleteErr == nil {
		deleteErr = errors.NewIOError(errors.ErrCodeDeleteFailed, "removing metadata directory", err)
	}

	c.store.Evict(c.store.InfoFile(projectID))

	logDir := filepath.Join(c.cfg.Workspace.LogsDir, types.LogDirName(projectID, info.Name()))
	if err := os.RemoveAll(logDir); err != nil {
		c.log.Warn(ctx, err, "removing log directory failed", "projectID", projectID)
	}

	payload := map[string]interface{}{
		"operationId": op.OperationID,
		"projectID":   projectID,
		"status":      "success",
	}
	if deleteErr != nil {
		payload["status"] = "failed"
		payload["error"] = deleteErr.Error()
		c.log.Error(ctx, deleteErr, "project deletion failed", "projectID", projectID)
	} else {
		c.log.Info(ctx, "project deleted", "projectID", projectID)
	}
	c.bus.EmitOnListener(events.EventProjectDeletion, payload)
}

// WaitDeletions blocks until in-flight asynchronous deletions finish.
func (c *Coordinator) WaitDeletions() {
	c.deletes.Wait()
}

// KnownProject returns the in-memory record for a project id.
func (c *Coordinator) KnownProject(projectID string) (*types.ProjectInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.projects[projectID]
	if !ok {
		return nil, false
	}
	return info.Clone(), true
}

// stopAllProjects tears down the watcher of every known project. Used by
// the scheduler's shutdown path.
func (c *Coordinator) stopAllProjects(ctx context.Context) error {
	c.mu.Lock()
	infos := make([]*types.ProjectInfo, 0, len(c.projects))
	for _, info := range c.projects {
		infos = append(infos, info.Clone())
	}
	c.mu.Unlock()

	for _, info := range infos {
		c.supervisor.Stop(ctx, info)
	}
	return nil
}

// Shutdown truncates the scheduler's collections and stops every known
// project.
func (c *Coordinator) Shutdown(ctx context.Context) Result {
	if err := c.sched.Shutdown(ctx); err != nil {
		return errorResult(errors.NewInternalError(errors.ErrCodeInternalError, "shutdown failed", err))
	}
	return Result{Status: http.StatusAccepted}
}
