package lifecycle

import (
	"context"
	"net/http"

	"github.com/codewatch/codewatch/internal/errors"
	"github.com/codewatch/codewatch/internal/locale"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/scheduler"
	"github.com/codewatch/codewatch/internal/settings"
	"github.com/codewatch/codewatch/internal/status"
	"github.com/codewatch/codewatch/internal/store"
	"github.com/codewatch/codewatch/internal/types"
	"github.com/codewatch/codewatch/internal/watcher"
)

// ActionRequest is the input to Action.
type ActionRequest struct {
	Action    string `json:"action"`
	ProjectID string `json:"projectID"`
}

// Action names accepted by the coordinator.
const (
	ActionBuild                = "build"
	ActionEnableAutoBuild      = "enableautobuild"
	ActionDisableAutoBuild     = "disableautobuild"
	ActionValidate             = "validate"
	ActionReconfigWatchedFiles = "reconfigWatchedFiles"
)

type actionEntry struct {
	// synchronous actions complete before the result is returned and
	// answer 200; the rest answer 202.
	synchronous bool
	run         func(c *Coordinator, ctx context.Context, op *types.Operation) error
}

var actionMap = map[string]actionEntry{
	ActionBuild:                {run: (*Coordinator).actionBuild},
	ActionEnableAutoBuild:      {run: (*Coordinator).actionEnableAutoBuild},
	ActionDisableAutoBuild:     {synchronous: true, run: (*Coordinator).actionDisableAutoBuild},
	ActionValidate:             {run: (*Coordinator).actionValidate},
	ActionReconfigWatchedFiles: {synchronous: true, run: (*Coordinator).actionReconfigWatchedFiles},
}

var actionKinds = map[string]types.OperationKind{
	ActionBuild:                types.OpBuild,
	ActionEnableAutoBuild:      types.OpEnableAutoBuild,
	ActionDisableAutoBuild:     types.OpDisableAutoBuild,
	ActionValidate:             types.OpValidate,
	ActionReconfigWatchedFiles: types.OpReconfigWatchedFiles,
}

// Action dispatches a named project action. Unknown names answer 400;
// synchronous actions answer 200, the rest 202. Errors are mapped by
// their semantic kind.
func (c *Coordinator) Action(ctx context.Context, req ActionRequest) Result {
	entry, ok := actionMap[req.Action]
	if !ok {
		return errorResult(errors.NewValidationError(errors.ErrCodeUnknownAction,
			"unknown action: "+req.Action))
	}
	if req.ProjectID == "" {
		return errorResult(errors.ErrMissingField("projectID"))
	}

	info := c.store.LoadByID(req.ProjectID, true)
	if info == nil {
		return errorResult(errors.ErrFileNotExist(c.store.InfoFile(req.ProjectID)))
	}

	op := types.NewOperation(actionKinds[req.Action], info)
	if err := entry.run(c, ctx, op); err != nil {
		return errorResult(err)
	}

	statusCode := http.StatusAccepted
	if entry.synchronous {
		statusCode = http.StatusOK
	}
	return Result{Status: statusCode, OperationID: op.OperationID}
}

func (c *Coordinator) actionBuild(ctx context.Context, op *types.Operation) error {
	handler, err := c.registry.ProjectHandler(op.ProjectInfo)
	if err != nil {
		return err
	}
	c.status.AddProject(op.ProjectInfo.ProjectID)
	c.sched.Enqueue(&scheduler.Entry{Op: op, Handler: handler})
	return nil
}

func (c *Coordinator) actionEnableAutoBuild(ctx context.Context, op *types.Operation) error {
	return c.store.Update(op.ProjectInfo.ProjectID, store.AutoBuildUpdate{Enabled: true})
}

func (c *Coordinator) actionDisableAutoBuild(ctx context.Context, op *types.Operation) error {
	return c.store.Update(op.ProjectInfo.ProjectID, store.AutoBuildUpdate{Enabled: false})
}

func (c *Coordinator) actionValidate(ctx context.Context, op *types.Operation) error {
	handler, err := c.registry.ProjectHandler(op.ProjectInfo)
	if err != nil {
		return err
	}
	if missing := project.FirstMissingRequiredFile(op.ProjectInfo, handler.RequiredFiles()); missing != "" {
		c.status.UpdateProjectStatus(status.TypeBuildState, op.ProjectInfo.ProjectID,
			status.StateFailed, locale.KeyBuildFailMissing,
			c.translator.Translation(locale.KeyBuildFailMissing, missing))
	}
	return nil
}

// actionReconfigWatchedFiles re-reads .cw-settings, applies the watch
// lists, persists, and restarts the project watcher so the new lists
// take effect.
func (c *Coordinator) actionReconfigWatchedFiles(ctx context.Context, op *types.Operation) error {
	info := op.ProjectInfo
	if s := c.readSettings(ctx, info.Location); s != nil && s.WatchedFiles != nil {
		handler, err := c.registry.ProjectHandler(info)
		if err != nil {
			return err
		}
		settings.Merge(info, handler, &types.ProjectSettings{WatchedFiles: s.WatchedFiles}, c.log)
		c.store.Save(info.ProjectID, info, true)
	}
	return c.supervisor.Start(ctx, info)
}

// Specification reconfigures a live project from a settings document and
// returns 202 with the operation id.
func (c *Coordinator) Specification(ctx context.Context, projectID string, s *types.ProjectSettings) Result {
	if projectID == "" {
		return errorResult(errors.ErrMissingField("projectID"))
	}
	info := c.store.LoadByID(projectID, true)
	if info == nil {
		return errorResult(errors.ErrFileNotExist(c.store.InfoFile(projectID)))
	}
	handler, err := c.registry.ProjectHandler(info)
	if err != nil {
		return errorResult(err)
	}

	settings.Merge(info, handler, s, c.log)
	c.store.Save(projectID, info, true)

	c.mu.Lock()
	c.projects[projectID] = info.Clone()
	c.mu.Unlock()

	// Watch lists may have changed; restart the watcher on the new
	// record.
	if err := c.supervisor.Start(ctx, info); err != nil {
		c.log.Warn(ctx, err, "watcher restart failed", "projectID", projectID)
	}

	op := types.NewOperation(types.OpUpdate, info)
	return Result{Status: http.StatusAccepted, OperationID: op.OperationID}
}

// FileChanges reacts to a change batch posted by a project's watcher
// child: when automatic builds are enabled the project is re-enqueued.
func (c *Coordinator) FileChanges(ctx context.Context, projectID string, batch watcher.ChangeBatch) Result {
	if projectID == "" {
		return errorResult(errors.ErrMissingField("projectID"))
	}
	info := c.store.LoadByID(projectID, true)
	if info == nil {
		return errorResult(errors.ErrFileNotExist(c.store.InfoFile(projectID)))
	}
	if !info.AutoBuildEnabled {
		return Result{Status: http.StatusOK}
	}
	return c.Action(ctx, ActionRequest{Action: ActionBuild, ProjectID: projectID})
}
