package lifecycle

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/codewatch/codewatch/internal/errors"
	"github.com/codewatch/codewatch/internal/events"
	"github.com/codewatch/codewatch/internal/project"
)

// Bounds for CheckNewLogFile polling. The handler is expected to report
// files eventually; the cap keeps a broken handler from pinning a
// goroutine forever.
const (
	maxLogPolls  = 30
	logPollDelay = 500 * time.Millisecond
)

// Logs returns the handler-reported app and build log bundle for a
// project.
func (c *Coordinator) Logs(ctx context.Context, projectID string) Result {
	if projectID == "" {
		return errorResult(errors.ErrMissingField("projectID"))
	}
	info := c.store.LoadByID(projectID, true)
	if info == nil {
		return errorResult(errors.ErrFileNotExist(c.store.InfoFile(projectID)))
	}
	if _, err := os.Stat(info.Location); err != nil {
		return errorResult(errors.ErrFileNotExist(info.Location))
	}
	handler, err := c.registry.ProjectHandler(info)
	if err != nil {
		return errorResult(err)
	}

	bundle := &project.LogBundle{}
	if files, err := handler.LogFiles(ctx, info, project.LogKindApp); err == nil {
		bundle.App = files
	}
	if files, err := handler.LogFiles(ctx, info, project.LogKindBuild); err == nil {
		bundle.Build = files
	}
	return Result{Status: http.StatusOK, Logs: bundle}
}

// CheckNewLogFile polls the handler for log files of one kind and keeps
// the per-project log-file-list cache in sync, emitting
// projectLogsListChanged whenever the cached list changes. Polling is a
// bounded retry with backoff; exhausting the budget with no files
// reported answers 404.
func (c *Coordinator) CheckNewLogFile(ctx context.Context, projectID string, kind project.LogKind) Result {
	if projectID == "" {
		return errorResult(errors.ErrMissingField("projectID"))
	}
	if kind != project.LogKindApp && kind != project.LogKindBuild {
		return errorResult(errors.NewValidationError(errors.ErrCodeInvalidOption,
			"log type must be app or build"))
	}
	info := c.store.LoadByID(projectID, true)
	if info == nil {
		return errorResult(errors.ErrFileNotExist(c.store.InfoFile(projectID)))
	}
	handler, err := c.registry.ProjectHandler(info)
	if err != nil {
		return errorResult(err)
	}

	var files []string
	for attempt := 0; attempt < maxLogPolls; attempt++ {
		current, err := handler.LogFiles(ctx, info, kind)
		if err != nil {
			return errorResult(err)
		}
		if len(current) > 0 {
			files = current
			break
		}
		select {
		case <-ctx.Done():
			return errorResult(ctx.Err())
		case <-time.After(logPollDelay):
		}
	}
	if len(files) == 0 {
		return errorResult(errors.NewNotFoundError(errors.ErrCodeFileNotExist,
			"no "+string(kind)+" log files reported for project "+projectID))
	}

	c.mu.Lock()
	lists, known := c.logLists[projectID]
	if !known {
		lists = make(map[project.LogKind][]string)
		c.logLists[projectID] = lists
	}
	cached, kindKnown := lists[kind]
	if known && kindKnown && sameSet(cached, files) {
		c.mu.Unlock()
		// Same list modulo ordering: nothing changed, no payload.
		return Result{Status: http.StatusOK}
	}
	lists[kind] = append([]string(nil), files...)
	c.mu.Unlock()

	c.bus.EmitOnListener(events.EventProjectLogsListChanged, map[string]interface{}{
		"projectID": projectID,
		"type":      string(kind),
		"files":     files,
	})

	bundle := &project.LogBundle{}
	if kind == project.LogKindApp {
		bundle.App = files
	} else {
		bundle.Build = files
	}
	return Result{Status: http.StatusOK, Logs: bundle}
}

// sameSet reports whether two lists hold the same elements ignoring
// order (mutual subset check).
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}
