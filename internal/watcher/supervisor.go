// Package watcher manages the long-lived file-watcher child process each
// project gets, and implements the child side itself on fsnotify.
//
// The supervisor tracks the PIDs it spawned and kills them directly on
// delete or re-create. The process-table scan with the exact-location
// matcher is the crash-recovery path: it finds watchers left behind by a
// previous run that the PID table no longer covers.
package watcher

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/types"
)

// inotifyCommand identifies third-party inotify watchers in the process
// table.
const inotifyCommand = "inotifywait"

// Supervisor starts and stops per-project watcher children. In a
// cluster-managed environment every method is a no-op.
type Supervisor struct {
	inCluster       bool
	portalPort      int
	workspaceOrigin string
	// watcherCommand is the executable spawned for each project,
	// invoked as `<watcherCommand> watch <argv...>`.
	watcherCommand string
	pm             ProcessManager
	log            logging.Logger

	mu      sync.Mutex
	spawned map[string]int // projectID -> pid
}

// NewSupervisor creates a supervisor from the service configuration.
// When watcherCommand is empty the running executable is used.
func NewSupervisor(cfg *config.Config, pm ProcessManager, watcherCommand string, log logging.Logger) *Supervisor {
	if watcherCommand == "" {
		if exe, err := os.Executable(); err == nil {
			watcherCommand = exe
		} else {
			watcherCommand = "codewatch"
		}
	}
	return &Supervisor{
		inCluster:       cfg.InCluster,
		portalPort:      cfg.PortalPort(),
		workspaceOrigin: cfg.Workspace.Origin,
		watcherCommand:  watcherCommand,
		pm:              pm,
		log:             log.WithComponent("watcher"),
		spawned:         make(map[string]int),
	}
}

// MatchesProject reports whether a process command line belongs to the
// watcher of the project at location. The location is suffixed with a
// separator before matching so projects whose names share a prefix never
// collide.
func MatchesProject(command, scriptPath, location string) bool {
	if strings.Contains(command, scriptPath+" "+location+" ") {
		return true
	}
	if strings.Contains(command, inotifyCommand) && strings.Contains(command, location+"/") {
		return true
	}
	return false
}

// Start reaps any lingering watcher for the project and spawns a fresh
// detached child.
func (s *Supervisor) Start(ctx context.Context, info *types.ProjectInfo) error {
	if s.inCluster {
		return nil
	}

	s.Reap(ctx, info)

	watched := strings.Join(info.WatchedFiles, ",")
	if watched == "" && info.ProjectType == "generic" {
		// Container-type projects with no explicit watch list watch the
		// whole project tree.
		watched = info.Location + "/"
	}
	ignored := strings.Join(info.IgnoredFiles, ",")

	args := []string{
		"watch",
		info.Location,
		s.workspaceOrigin,
		info.ProjectID,
		"localhost",
		watched,
		ignored,
		"",
		strconv.Itoa(s.portalPort),
	}

	pid, err := s.pm.SpawnDetached(s.watcherCommand, args...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.spawned[info.ProjectID] = pid
	s.mu.Unlock()

	s.log.Info(ctx, "watcher started", "projectID", info.ProjectID, "pid", pid)
	return nil
}

// Stop kills the project's watcher. The tracked PID is used when
// available; otherwise the process table is scanned.
func (s *Supervisor) Stop(ctx context.Context, info *types.ProjectInfo) {
	if s.inCluster {
		return
	}

	s.mu.Lock()
	pid, tracked := s.spawned[info.ProjectID]
	delete(s.spawned, info.ProjectID)
	s.mu.Unlock()

	if tracked {
		if err := s.pm.Kill(pid); err != nil {
			s.log.Warn(ctx, err, "killing tracked watcher failed",
				"projectID", info.ProjectID, "pid", pid)
		}
		return
	}

	s.Reap(ctx, info)
}

// Reap scans the process table for watcher processes referencing the
// project location and kills them. Per-PID kill errors are logged and
// swallowed.
func (s *Supervisor) Reap(ctx context.Context, info *types.ProjectInfo) {
	if s.inCluster {
		return
	}

	procs, err := s.pm.Processes()
	if err != nil {
		s.log.Warn(ctx, err, "process table scan failed", "projectID", info.ProjectID)
		return
	}

	script := s.watcherCommand + " watch"
	for _, p := range procs {
		if !MatchesProject(p.Command, script, info.Location) {
			continue
		}
		if err := s.pm.Kill(p.PID); err != nil {
			s.log.Warn(ctx, err, "killing stale watcher failed",
				"projectID", info.ProjectID, "pid", p.PID)
			continue
		}
		s.log.Info(ctx, "stale watcher killed", "projectID", info.ProjectID, "pid", p.PID)
	}
}

// TrackedPID returns the spawned pid for a project, if any.
func (s *Supervisor) TrackedPID(projectID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.spawned[projectID]
	return pid, ok
}
