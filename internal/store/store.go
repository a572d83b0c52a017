// Package store persists per-project metadata as one JSON document per
// project, with a write-through in-memory cache keyed by info-file path.
// The cache is authoritative: disk writes are asynchronous best-effort,
// and disk read failures are treated as "not found".
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/codewatch/codewatch/internal/errors"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/types"
)

// Store is the project info store.
type Store struct {
	mu      sync.RWMutex
	cache   map[string]*types.ProjectInfo
	dataDir string
	log     logging.Logger
	writes  sync.WaitGroup
}

// New creates a store rooted at the projects data directory.
func New(dataDir string, log logging.Logger) *Store {
	return &Store{
		cache:   make(map[string]*types.ProjectInfo),
		dataDir: dataDir,
		log:     log.WithComponent("store"),
	}
}

// DataDir returns the projects data root.
func (s *Store) DataDir() string { return s.dataDir }

// InfoFile returns the info-file path for a project id.
func (s *Store) InfoFile(projectID string) string {
	return filepath.Join(s.dataDir, projectID, projectID+".json")
}

// ProjectDir returns the metadata directory for a project id.
func (s *Store) ProjectDir(projectID string) string {
	return filepath.Join(s.dataDir, projectID)
}

// Save updates the cache and, when persist is set, writes the JSON
// document to disk asynchronously. Write errors are logged, not raised:
// the cache remains authoritative.
func (s *Store) Save(projectID string, info *types.ProjectInfo, persist bool) {
	infoFile := s.InfoFile(projectID)

	s.mu.Lock()
	s.cache[infoFile] = info.Clone()
	s.mu.Unlock()

	if !persist {
		return
	}

	snapshot := info.Clone()
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		if err := s.writeFile(infoFile, snapshot); err != nil {
			s.log.Error(context.Background(), err, "persisting project info failed",
				"projectID", projectID, "infoFile", infoFile)
		}
	}()
}

func (s *Store) writeFile(infoFile string, info *types.ProjectInfo) error {
	if err := os.MkdirAll(filepath.Dir(infoFile), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(infoFile, data, 0o644)
}

// Load returns the project info for an info-file path. A cache hit
// returns a clone; a miss reads from disk, caches, and returns. Read
// failures return nil; they are logged unless quiet is set.
func (s *Store) Load(infoFile string, quiet bool) *types.ProjectInfo {
	s.mu.RLock()
	cached, ok := s.cache[infoFile]
	s.mu.RUnlock()
	if ok {
		return cached.Clone()
	}

	data, err := os.ReadFile(infoFile)
	if err != nil {
		if !quiet {
			s.log.Warn(context.Background(), err, "project info not readable", "infoFile", infoFile)
		}
		return nil
	}
	var info types.ProjectInfo
	if err := json.Unmarshal(data, &info); err != nil {
		if !quiet {
			s.log.Warn(context.Background(), err, "project info not parseable", "infoFile", infoFile)
		}
		return nil
	}

	s.mu.Lock()
	s.cache[infoFile] = info.Clone()
	s.mu.Unlock()
	return &info
}

// LoadByID is Load keyed by project id.
func (s *Store) LoadByID(projectID string, quiet bool) *types.ProjectInfo {
	return s.Load(s.InfoFile(projectID), quiet)
}

// FieldUpdate is one typed mutation of a ProjectInfo field. The sum of
// variants replaces a schema-less key/value update so each field's
// invariants hold by construction.
type FieldUpdate interface {
	apply(info *types.ProjectInfo)
}

// AppPortUpdate replaces the single app-port slot.
type AppPortUpdate struct{ Port string }

func (u AppPortUpdate) apply(info *types.ProjectInfo) {
	// Pop then push: appPorts never exceeds one element.
	info.AppPorts = info.AppPorts[:0]
	info.AppPorts = append(info.AppPorts, u.Port)
}

// AutoBuildUpdate toggles automatic builds.
type AutoBuildUpdate struct{ Enabled bool }

func (u AutoBuildUpdate) apply(info *types.ProjectInfo) { info.AutoBuildEnabled = u.Enabled }

// StartModeUpdate changes the start mode.
type StartModeUpdate struct{ Mode string }

func (u StartModeUpdate) apply(info *types.ProjectInfo) { info.StartMode = u.Mode }

// DebugPortUpdate changes the debug port.
type DebugPortUpdate struct{ Port string }

func (u DebugPortUpdate) apply(info *types.ProjectInfo) { info.DebugPort = u.Port }

// WatchedFilesUpdate replaces the watched file patterns.
type WatchedFilesUpdate struct{ Files []string }

func (u WatchedFilesUpdate) apply(info *types.ProjectInfo) { info.WatchedFiles = u.Files }

// IgnoredPathsUpdate replaces the ignored path patterns.
type IgnoredPathsUpdate struct{ Paths []string }

func (u IgnoredPathsUpdate) apply(info *types.ProjectInfo) { info.IgnoredPaths = u.Paths }

// Update reads the current record, applies one field update, and writes
// it back (persisted).
func (s *Store) Update(projectID string, update FieldUpdate) error {
	info := s.LoadByID(projectID, true)
	if info == nil {
		return errors.ErrFileNotExist(s.InfoFile(projectID))
	}
	update.apply(info)
	s.Save(projectID, info, true)
	return nil
}

// Evict removes the cache entry for an info-file path.
func (s *Store) Evict(infoFile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, infoFile)
}

// Cached reports whether an info-file path has a cache entry.
func (s *Store) Cached(infoFile string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[infoFile]
	return ok
}

// CachedIDs returns the project ids currently cached.
func (s *Store) CachedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.cache))
	for _, info := range s.cache {
		out = append(out, info.ProjectID)
	}
	return out
}

// Flush blocks until pending asynchronous writes complete.
func (s *Store) Flush() {
	s.writes.Wait()
}
