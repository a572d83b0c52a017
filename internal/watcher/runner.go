package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codewatch/codewatch/internal/logging"
)

// ChangeEvent is one file change observed by a runner.
type ChangeEvent struct {
	Type    string    `json:"type"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"modTime,omitempty"`
}

// ChangeBatch is the payload a runner posts to the portal.
type ChangeBatch struct {
	ProjectID string        `json:"projectID"`
	Changes   []ChangeEvent `json:"changes"`
}

// RunnerOptions configures a child-side watcher.
type RunnerOptions struct {
	Location        string
	WorkspaceOrigin string
	ProjectID       string
	Host            string
	WatchedFiles    []string
	IgnoredFiles    []string
	PortalPort      int
	DebounceDelay   time.Duration
}

// Runner is the child side of the watcher supervisor: it watches one
// project location recursively and posts debounced change batches to
// the portal.
type Runner struct {
	opts    RunnerOptions
	watcher *fsnotify.Watcher
	client  *http.Client
	log     logging.Logger

	mu      sync.Mutex
	pending []ChangeEvent
	timer   *time.Timer
	flushed chan []ChangeEvent
}

// NewRunner creates a runner for one project location.
func NewRunner(opts RunnerOptions, log logging.Logger) (*Runner, error) {
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = 200 * time.Millisecond
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Runner{
		opts:    opts,
		watcher: w,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.WithComponent("watcher-runner"),
		flushed: make(chan []ChangeEvent, 10),
	}, nil
}

// Run watches until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer r.watcher.Close()

	if err := r.addRecursive(r.opts.Location); err != nil {
		return fmt.Errorf("watching %s: %w", r.opts.Location, err)
	}

	go r.postLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(event)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn(ctx, err, "watch error", "projectID", r.opts.ProjectID)
		}
	}
}

func (r *Runner) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if r.ignored(path + "/") {
				return filepath.SkipDir
			}
			return r.watcher.Add(path)
		}
		return nil
	})
}

func (r *Runner) handleEvent(event fsnotify.Event) {
	if !r.wanted(event.Name) {
		return
	}

	// New directories join the watch set so nested creates are seen.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = r.watcher.Add(event.Name)
		}
	}

	change := ChangeEvent{Path: event.Name}
	switch {
	case event.Op&fsnotify.Create != 0:
		change.Type = "created"
	case event.Op&fsnotify.Write != 0:
		change.Type = "modified"
	case event.Op&fsnotify.Remove != 0:
		change.Type = "deleted"
	case event.Op&fsnotify.Rename != 0:
		change.Type = "renamed"
	default:
		change.Type = "modified"
	}
	if info, err := os.Stat(event.Name); err == nil {
		change.ModTime = info.ModTime()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, change)
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.opts.DebounceDelay, r.flush)
}

// flush deduplicates pending events by path and hands the batch to the
// post loop.
func (r *Runner) flush() {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	byPath := make(map[string]ChangeEvent, len(r.pending))
	order := make([]string, 0, len(r.pending))
	for _, e := range r.pending {
		if _, seen := byPath[e.Path]; !seen {
			order = append(order, e.Path)
		}
		byPath[e.Path] = e
	}
	batch := make([]ChangeEvent, 0, len(order))
	for _, p := range order {
		batch = append(batch, byPath[p])
	}
	r.pending = r.pending[:0]
	r.mu.Unlock()

	select {
	case r.flushed <- batch:
	default:
		// Post loop is behind; drop the batch rather than block fsnotify.
	}
}

func (r *Runner) postLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-r.flushed:
			r.post(ctx, batch)
		}
	}
}

func (r *Runner) post(ctx context.Context, changes []ChangeEvent) {
	payload, err := json.Marshal(ChangeBatch{ProjectID: r.opts.ProjectID, Changes: changes})
	if err != nil {
		r.log.Error(ctx, err, "encoding change batch failed")
		return
	}
	url := fmt.Sprintf("http://%s:%d/api/v1/projects/%s/file-changes",
		r.opts.Host, r.opts.PortalPort, r.opts.ProjectID)
	resp, err := r.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		r.log.Warn(ctx, err, "posting change batch failed", "projectID", r.opts.ProjectID)
		return
	}
	_ = resp.Body.Close()
}

// wanted applies the watched and ignored pattern lists. With no watched
// patterns everything under the location passes; a watched pattern that
// is the location itself (trailing slash) also passes everything.
func (r *Runner) wanted(path string) bool {
	if r.ignored(path) {
		return false
	}
	if len(r.opts.WatchedFiles) == 0 {
		return true
	}
	for _, pattern := range r.opts.WatchedFiles {
		if matchesPattern(path, pattern) {
			return true
		}
	}
	return false
}

func (r *Runner) ignored(path string) bool {
	for _, pattern := range r.opts.IgnoredFiles {
		if matchesPattern(path, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern matches a path against one watch pattern: a directory
// prefix (trailing slash), a glob against the basename, or a plain
// substring.
func matchesPattern(path, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "/") {
		return strings.HasPrefix(path, pattern) || strings.HasPrefix(path+"/", pattern)
	}
	if ok, err := filepath.Match(pattern, filepath.Base(path)); err == nil && ok {
		return true
	}
	return strings.Contains(path, pattern)
}
