// Package scheduler serialises project builds under a global concurrency
// cap. Pending builds wait in a FIFO queue; a periodic reconciliation
// tick reaps finished builds by polling the status controller and admits
// queued ones. Queue composition changes broadcast every queued
// project's rank.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/codewatch/codewatch/internal/events"
	"github.com/codewatch/codewatch/internal/locale"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/status"
	"github.com/codewatch/codewatch/internal/types"
	"github.com/codewatch/codewatch/internal/watcher"
)

// TickInterval is the reconciliation period.
const TickInterval = 5 * time.Second

// Entry pairs an operation with the handler that will execute it. An
// entry lives in the FIFO queue or the running set, never both.
type Entry struct {
	Op      *types.Operation
	Handler project.Handler
}

// ProjectID returns the entry's project id.
func (e *Entry) ProjectID() string { return e.Op.ProjectInfo.ProjectID }

// Scheduler is the bounded build scheduler.
type Scheduler struct {
	mu      sync.Mutex
	queue   []*Entry
	running map[string]*Entry

	maxBuilds  int
	status     status.Controller
	bus        events.Bus
	supervisor *watcher.Supervisor
	translator locale.Translator
	log        logging.Logger

	// stopAll tears down every known project at shutdown. Installed by
	// the lifecycle coordinator.
	stopAll func(ctx context.Context) error

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler with the given concurrency cap.
func New(maxBuilds int, ctrl status.Controller, bus events.Bus, sup *watcher.Supervisor,
	tr locale.Translator, log logging.Logger) *Scheduler {
	if maxBuilds <= 0 {
		maxBuilds = 1
	}
	return &Scheduler{
		queue:      make([]*Entry, 0, 16),
		running:    make(map[string]*Entry),
		maxBuilds:  maxBuilds,
		status:     ctrl,
		bus:        bus,
		supervisor: sup,
		translator: tr,
		log:        log.WithComponent("scheduler"),
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// SetStopAll installs the shutdown teardown hook.
func (s *Scheduler) SetStopAll(fn func(ctx context.Context) error) {
	s.stopAll = fn
}

// MaxBuilds returns the concurrency cap.
func (s *Scheduler) MaxBuilds() int { return s.maxBuilds }

// Start runs the reconciliation loop until the context is cancelled.
// Manual kicks arriving while a tick runs coalesce into at most one
// additional tick.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			case <-s.kick:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Kick requests an immediate reconciliation tick. Kicks are coalesced.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Enqueue appends an entry to the build queue. Enqueue is idempotent by
// project id: an id already queued or running leaves the queue unchanged
// and returns false. Ranks are re-broadcast on success.
func (s *Scheduler) Enqueue(e *Entry) bool {
	id := e.ProjectID()

	s.mu.Lock()
	if _, ok := s.running[id]; ok {
		s.mu.Unlock()
		return false
	}
	for _, queued := range s.queue {
		if queued != nil && queued.ProjectID() == id {
			s.mu.Unlock()
			return false
		}
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	s.EmitRanks()
	s.Kick()
	return true
}

// RemoveFromQueue removes a project's pending entry. Exactly one entry
// can match; ranks are re-broadcast when a removal happened.
func (s *Scheduler) RemoveFromQueue(projectID string) bool {
	s.mu.Lock()
	removed := 0
	kept := s.queue[:0]
	for _, e := range s.queue {
		if e != nil && e.ProjectID() == projectID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.queue = kept
	s.mu.Unlock()

	if removed > 1 {
		s.log.Error(context.Background(), nil, "queue held duplicate entries for project",
			"projectID", projectID, "removed", removed)
	}
	if removed > 0 {
		s.EmitRanks()
		return true
	}
	return false
}

// RemoveRunning removes a project's in-flight entry, if any. The
// underlying handler invocation is allowed to complete; its terminal
// state becomes irrelevant once the project is gone.
func (s *Scheduler) RemoveRunning(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[projectID]; !ok {
		return false
	}
	delete(s.running, projectID)
	return true
}

// InQueue reports whether a project has a pending entry.
func (s *Scheduler) InQueue(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.queue {
		if e != nil && e.ProjectID() == projectID {
			return true
		}
	}
	return false
}

// Running reports whether a project has an in-flight entry.
func (s *Scheduler) Running(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[projectID]
	return ok
}

// QueueLen returns the number of pending entries.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.queue {
		if e != nil {
			n++
		}
	}
	return n
}

// RunningLen returns the number of in-flight entries.
func (s *Scheduler) RunningLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Tick is one reconciliation pass: reap finished builds, admit queued
// ones under the cap, and re-broadcast ranks when the queue changed.
func (s *Scheduler) Tick(ctx context.Context) {
	changed := false

	// Reap: drop running entries whose build state is terminal. An
	// entry that never reached inProgress but reports a terminal state
	// is reaped the same way.
	s.mu.Lock()
	for id := range s.running {
		state, _ := s.status.BuildState(id)
		if state.Terminal() {
			delete(s.running, id)
			s.log.Info(ctx, "build finished", "projectID", id, "state", string(state))
		}
	}

	// Admit: start queued builds while capacity remains.
	var started []*Entry
	for len(s.queue) > 0 && len(s.running) < s.maxBuilds {
		head := s.queue[0]
		s.queue = s.queue[1:]
		if head == nil {
			continue
		}
		changed = true

		if missing := s.requiredFileMissing(head); missing != "" {
			// The entry never enters the running set: it fails at
			// admission and the failed state is its terminal state.
			s.failMissingFile(head, missing)
			continue
		}

		s.running[head.ProjectID()] = head
		started = append(started, head)
	}
	if len(s.running) > s.maxBuilds {
		s.log.Error(ctx, nil, "running builds exceed cap",
			"running", len(s.running), "maxBuilds", s.maxBuilds)
	}
	s.mu.Unlock()

	// Handler invocation, watcher spawn, and event emission happen
	// outside the scheduler critical section.
	for _, e := range started {
		s.triggerBuild(ctx, e)
	}

	if changed {
		s.EmitRanks()
	}
}

// requiredFileMissing returns the first missing required file, or "".
func (s *Scheduler) requiredFileMissing(e *Entry) string {
	required := e.Handler.RequiredFiles()
	if len(required) == 0 {
		return ""
	}
	return project.FirstMissingRequiredFile(e.Op.ProjectInfo, required)
}

func (s *Scheduler) failMissingFile(e *Entry, missing string) {
	id := e.ProjectID()
	s.status.UpdateProjectStatus(status.TypeBuildState, id, status.StateFailed,
		locale.KeyBuildFailMissing, s.translator.Translation(locale.KeyBuildFailMissing, missing))
	s.log.Warn(context.Background(), nil, "build rejected, required file missing",
		"projectID", id, "file", missing)
}

// triggerBuild marks the build started, fires the handler, starts the
// project watcher, and announces the project.
func (s *Scheduler) triggerBuild(ctx context.Context, e *Entry) {
	info := e.Op.ProjectInfo
	id := info.ProjectID

	s.status.UpdateProjectStatus(status.TypeBuildState, id, status.StateInProgress,
		locale.KeyBuildStarted, s.translator.Translation(locale.KeyBuildStarted))

	// Fire-and-forget: the handler reports a terminal state through the
	// status controller when it finishes, and the next tick reaps it.
	go e.Handler.Create(ctx, e.Op)

	if err := s.supervisor.Start(ctx, info); err != nil {
		s.log.Warn(ctx, err, "watcher start failed", "projectID", id)
	}

	s.bus.EmitOnListener(events.EventNewProjectAdded, map[string]interface{}{
		"projectID":    id,
		"ignoredPaths": info.IgnoredPaths,
	})
}

// EmitRanks compacts the queue and reports every queued project's
// 1-indexed rank through the status controller.
func (s *Scheduler) EmitRanks() {
	s.mu.Lock()
	kept := s.queue[:0]
	for _, e := range s.queue {
		if e != nil {
			kept = append(kept, e)
		}
	}
	s.queue = kept
	ids := make([]string, len(s.queue))
	for i, e := range s.queue {
		ids[i] = e.ProjectID()
	}
	s.mu.Unlock()

	total := len(ids)
	for i, id := range ids {
		s.status.UpdateProjectStatus(status.TypeBuildState, id, status.StateQueued,
			locale.KeyBuildRank, s.translator.Translation(locale.KeyBuildRank, i+1, total))
	}
}

// Shutdown truncates both collections in place and tears down every
// known project through the installed hook.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.queue = s.queue[:0]
	for id := range s.running {
		delete(s.running, id)
	}
	s.mu.Unlock()

	if s.stopAll != nil {
		return s.stopAll(ctx)
	}
	return nil
}
