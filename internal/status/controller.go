// Package status defines the status controller contract the lifecycle
// core reports through, plus the in-memory reference implementation used
// by the server and by tests.
package status

import (
	"sync"
	"time"
)

// BuildState is a project's build state as tracked by the controller.
type BuildState string

const (
	StateQueued     BuildState = "queued"
	StateInProgress BuildState = "inProgress"
	StateSuccess    BuildState = "success"
	StateFailed     BuildState = "failed"
)

// Terminal reports whether the state ends a build.
func (s BuildState) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// StateType selects which state machine an update targets.
type StateType string

const (
	TypeBuildState StateType = "buildState"
	TypeAppState   StateType = "appState"
)

// Controller tracks build and app state per project and records state
// transitions. Handlers signal build progress through it; the scheduler
// polls it to reap finished builds.
type Controller interface {
	AddProject(projectID string)
	DeleteProject(projectID string)
	UpdateProjectStatus(stateType StateType, projectID string, state BuildState, key, message string)
	BuildState(projectID string) (BuildState, bool)
}

// Transition is one recorded state change.
type Transition struct {
	Type      StateType
	State     BuildState
	Key       string
	Message   string
	Timestamp time.Time
}

type projectStatus struct {
	build       BuildState
	app         BuildState
	transitions []Transition
}

// InMemoryController is the reference Controller.
type InMemoryController struct {
	mu       sync.RWMutex
	projects map[string]*projectStatus
}

// NewInMemoryController creates an empty controller.
func NewInMemoryController() *InMemoryController {
	return &InMemoryController{projects: make(map[string]*projectStatus)}
}

// AddProject registers a project. Re-adding resets nothing.
func (c *InMemoryController) AddProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.projects[projectID]; !ok {
		c.projects[projectID] = &projectStatus{}
	}
}

// DeleteProject deregisters a project.
func (c *InMemoryController) DeleteProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.projects, projectID)
}

// UpdateProjectStatus records a state transition. Updates for unknown
// projects are dropped; a deleted project's late handler reports must
// not resurrect it.
func (c *InMemoryController) UpdateProjectStatus(stateType StateType, projectID string, state BuildState, key, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.projects[projectID]
	if !ok {
		return
	}
	switch stateType {
	case TypeAppState:
		p.app = state
	default:
		p.build = state
	}
	p.transitions = append(p.transitions, Transition{
		Type:      stateType,
		State:     state,
		Key:       key,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// BuildState returns the current build state. The second return is
// false for unregistered projects.
func (c *InMemoryController) BuildState(projectID string) (BuildState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[projectID]
	if !ok || p.build == "" {
		return "", ok
	}
	return p.build, true
}

// Transitions returns a copy of a project's recorded transitions.
func (c *InMemoryController) Transitions(projectID string) []Transition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[projectID]
	if !ok {
		return nil
	}
	out := make([]Transition, len(p.transitions))
	copy(out, p.transitions)
	return out
}

// Known reports whether a project is registered.
func (c *InMemoryController) Known(projectID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.projects[projectID]
	return ok
}
