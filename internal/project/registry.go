package project

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/codewatch/codewatch/internal/errors"
	"github.com/codewatch/codewatch/internal/types"
)

// Registry resolves project types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler keyed by its supported type. A later handler
// for the same type replaces the earlier one.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.SupportedType()] = h
}

// AllProjectTypes returns every registered project type.
func (r *Registry) AllProjectTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// HandlerByType returns the handler for a project type, or a not-found
// error.
func (r *Registry) HandlerByType(projectType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[projectType]
	if !ok {
		return nil, errors.ErrUnknownProjectType(projectType)
	}
	return h, nil
}

// ProjectHandler resolves the handler for a registered project. The
// handler's supported type must match the recorded project type.
func (r *Registry) ProjectHandler(info *types.ProjectInfo) (Handler, error) {
	h, err := r.HandlerByType(info.ProjectType)
	if err != nil {
		return nil, err
	}
	if h.SupportedType() != info.ProjectType {
		return nil, errors.ErrUnknownProjectType(info.ProjectType)
	}
	return h, nil
}

// Capabilities returns the handler's advertised capabilities.
func (r *Registry) Capabilities(h Handler) Capabilities {
	return h.Capabilities()
}

// Markers checked by DetermineProjectType, in priority order.
var typeMarkers = []struct {
	file        string
	projectType string
}{
	{"pom.xml", "maven"},
	{"package.json", "nodejs"},
	{"Dockerfile", "docker"},
}

// DetermineProjectType inspects a location and guesses the project type
// from well-known marker files. A missing location yields FILE_NOT_EXIST.
func (r *Registry) DetermineProjectType(location string) (string, error) {
	if _, err := os.Stat(location); err != nil {
		return "", errors.ErrFileNotExist(location)
	}
	for _, m := range typeMarkers {
		if _, err := os.Stat(filepath.Join(location, m.file)); err == nil {
			return m.projectType, nil
		}
	}
	return "generic", nil
}
