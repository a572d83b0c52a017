package lifecycle

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/events"
	"github.com/codewatch/codewatch/internal/locale"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/scheduler"
	"github.com/codewatch/codewatch/internal/status"
	"github.com/codewatch/codewatch/internal/store"
	"github.com/codewatch/codewatch/internal/types"
	"github.com/codewatch/codewatch/internal/watcher"
)

type fixture struct {
	cfg   *config.Config
	coord *Coordinator
	sched *scheduler.Scheduler
	store *store.Store
	ctrl  *status.InMemoryController
	bus   *events.MemoryBus
}

// newFixture wires a coordinator over temp directories with the
// supervisor in cluster mode so no child processes spawn.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 9092},
		Workspace: config.WorkspaceConfig{
			Dir:     ws,
			DataDir: filepath.Join(ws, ".projects"),
			LogsDir: filepath.Join(ws, ".logs"),
			Origin:  ws,
		},
		MaxBuilds: 3,
		InCluster: true,
	}
	log := logging.NewNop()
	ctrl := status.NewInMemoryController()
	bus := events.NewMemoryBus()
	translator := locale.NewCatalog()
	st := store.New(cfg.Workspace.DataDir, log)

	registry := project.NewRegistry()
	registry.Register(project.NewGenericHandler(ctrl, translator, cfg.Workspace.LogsDir, log))

	sup := watcher.NewSupervisor(cfg, nil, "codewatch", log)
	sched := scheduler.New(cfg.MaxBuilds, ctrl, bus, sup, translator, log)
	coord := New(cfg, st, registry, ctrl, sched, sup, bus, translator, log)

	return &fixture{cfg: cfg, coord: coord, sched: sched, store: st, ctrl: ctrl, bus: bus}
}

// newLocation creates a project directory inside the workspace,
// optionally seeded with a .cw-settings document.
func (f *fixture) newLocation(t *testing.T, name, cwSettings string) string {
	t.Helper()
	location := filepath.Join(f.cfg.Workspace.Dir, name)
	require.NoError(t, os.MkdirAll(location, 0o755))
	if cwSettings != "" {
		require.NoError(t, os.WriteFile(filepath.Join(location, types.SettingsFileName),
			[]byte(cwSettings), 0o644))
	}
	return location
}

func TestCreateHappyPath(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", `{
		"internalPort": 3000,
		"contextRoot": "//api/v1/"
	}`)

	result := f.coord.Create(context.Background(), CreateRequest{
		ProjectID:   "p1",
		ProjectType: "generic",
		Location:    location,
	})

	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.NotEmpty(t, result.OperationID)
	assert.Equal(t,
		filepath.Join(location, "..", ".logs", "demo-p1", types.DockerBuildLogName),
		result.LogFile)

	info := f.store.LoadByID("p1", false)
	require.NotNil(t, info)
	assert.True(t, info.AutoBuildEnabled)
	assert.Equal(t, []string{"3000"}, info.AppPorts)
	assert.Equal(t, "/api/v1", info.ContextRoot)

	assert.True(t, f.sched.InQueue("p1"))
	assert.True(t, f.ctrl.Known("p1"))
	f.store.Flush()
}

func TestCreateMissingFields(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"no projectID", CreateRequest{ProjectType: "generic", Location: "/x"}},
		{"no projectType", CreateRequest{ProjectID: "p1", Location: "/x"}},
		{"no location", CreateRequest{ProjectID: "p1", ProjectType: "generic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.coord.Create(context.Background(), tt.req)
			assert.Equal(t, http.StatusBadRequest, result.Status)
			assert.NotEmpty(t, result.Error)
		})
	}
}

func TestCreateMissingLocation(t *testing.T) {
	f := newFixture(t)
	result := f.coord.Create(context.Background(), CreateRequest{
		ProjectID:   "p1",
		ProjectType: "generic",
		Location:    filepath.Join(f.cfg.Workspace.Dir, "missing"),
	})
	assert.Equal(t, http.StatusNotFound, result.Status)
}

func TestCreateUnknownType(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	result := f.coord.Create(context.Background(), CreateRequest{
		ProjectID:   "p1",
		ProjectType: "swift",
		Location:    location,
	})
	assert.Equal(t, http.StatusNotFound, result.Status)
}

func TestCreateConflict(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	first := f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: location,
	})
	require.Equal(t, http.StatusAccepted, first.Status)

	// Same id with a different location is a conflict.
	other := f.newLocation(t, "other", "")
	second := f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: other,
	})
	assert.Equal(t, http.StatusBadRequest, second.Status)
	assert.Contains(t, second.Error, "already exists")
	f.store.Flush()
}

func TestCreateSameProjectAgain(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	req := CreateRequest{ProjectID: "p1", ProjectType: "generic", Location: location}

	require.Equal(t, http.StatusAccepted, f.coord.Create(context.Background(), req).Status)
	again := f.coord.Create(context.Background(), req)
	assert.Equal(t, http.StatusAccepted, again.Status)
	f.store.Flush()
}

func TestCreateUnsupportedStartMode(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	result := f.coord.Create(context.Background(), CreateRequest{
		ProjectID:   "p1",
		ProjectType: "generic",
		Location:    location,
		StartMode:   "profile",
	})
	assert.Equal(t, http.StatusBadRequest, result.Status)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	require.Equal(t, http.StatusAccepted, f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: location,
	}).Status)
	f.store.Flush()

	result := f.coord.Delete(context.Background(), "p1")
	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.NotEmpty(t, result.OperationID)

	f.coord.WaitDeletions()

	assert.False(t, f.sched.InQueue("p1"))
	assert.False(t, f.ctrl.Known("p1"))
	assert.Nil(t, f.store.LoadByID("p1", true))

	_, err := os.Stat(f.store.ProjectDir("p1"))
	assert.True(t, os.IsNotExist(err))

	emissions := f.bus.Named(events.EventProjectDeletion)
	require.Len(t, emissions, 1)
	payload := emissions[0].Payload.(map[string]interface{})
	assert.Equal(t, "p1", payload["projectID"])
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, result.OperationID, payload["operationId"])
}

func TestDeleteUnknownProject(t *testing.T) {
	f := newFixture(t)
	result := f.coord.Delete(context.Background(), "ghost")
	assert.Equal(t, http.StatusNotFound, result.Status)

	result = f.coord.Delete(context.Background(), "")
	assert.Equal(t, http.StatusBadRequest, result.Status)
}

func TestActionUnknown(t *testing.T) {
	f := newFixture(t)
	result := f.coord.Action(context.Background(), ActionRequest{Action: "explode", ProjectID: "p1"})
	assert.Equal(t, http.StatusBadRequest, result.Status)
	assert.Contains(t, result.Error, "explode")
}

func TestActionOnUnknownProject(t *testing.T) {
	f := newFixture(t)
	result := f.coord.Action(context.Background(), ActionRequest{Action: ActionBuild, ProjectID: "ghost"})
	assert.Equal(t, http.StatusNotFound, result.Status)
}

func TestActionAutoBuildToggle(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	require.Equal(t, http.StatusAccepted, f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: location,
	}).Status)

	result := f.coord.Action(context.Background(), ActionRequest{
		Action: ActionDisableAutoBuild, ProjectID: "p1",
	})
	assert.Equal(t, http.StatusOK, result.Status)
	assert.False(t, f.store.LoadByID("p1", true).AutoBuildEnabled)

	result = f.coord.Action(context.Background(), ActionRequest{
		Action: ActionEnableAutoBuild, ProjectID: "p1",
	})
	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.True(t, f.store.LoadByID("p1", true).AutoBuildEnabled)
	f.store.Flush()
}

func TestActionBuildEnqueues(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	require.Equal(t, http.StatusAccepted, f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: location,
	}).Status)

	// Drain the create build so the action enqueues fresh.
	f.sched.RemoveFromQueue("p1")

	result := f.coord.Action(context.Background(), ActionRequest{
		Action: ActionBuild, ProjectID: "p1",
	})
	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.True(t, f.sched.InQueue("p1"))
	f.store.Flush()
}

func TestSpecification(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	require.Equal(t, http.StatusAccepted, f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: location,
	}).Status)

	root := "//shop/"
	result := f.coord.Specification(context.Background(), "p1", &types.ProjectSettings{
		InternalPort: "4000",
		ContextRoot:  &root,
	})
	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.NotEmpty(t, result.OperationID)

	info := f.store.LoadByID("p1", true)
	assert.Equal(t, []string{"4000"}, info.AppPorts)
	assert.Equal(t, "/shop", info.ContextRoot)

	cached, ok := f.coord.KnownProject("p1")
	require.True(t, ok)
	assert.Equal(t, "/shop", cached.ContextRoot)
	f.store.Flush()
}

func TestSpecificationUnknownProject(t *testing.T) {
	f := newFixture(t)
	result := f.coord.Specification(context.Background(), "ghost", &types.ProjectSettings{})
	assert.Equal(t, http.StatusNotFound, result.Status)
}

func TestFileChanges(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	require.Equal(t, http.StatusAccepted, f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: location,
	}).Status)
	f.sched.RemoveFromQueue("p1")

	batch := watcher.ChangeBatch{ProjectID: "p1", Changes: []watcher.ChangeEvent{
		{Type: "modified", Path: filepath.Join(location, "main.go")},
	}}

	result := f.coord.FileChanges(context.Background(), "p1", batch)
	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.True(t, f.sched.InQueue("p1"))

	// With automatic builds disabled the batch is acknowledged and
	// dropped.
	f.sched.RemoveFromQueue("p1")
	require.NoError(t, f.store.Update("p1", store.AutoBuildUpdate{Enabled: false}))
	result = f.coord.FileChanges(context.Background(), "p1", batch)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.False(t, f.sched.InQueue("p1"))

	result = f.coord.FileChanges(context.Background(), "ghost", batch)
	assert.Equal(t, http.StatusNotFound, result.Status)
	f.store.Flush()
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	location := f.newLocation(t, "demo", "")
	require.Equal(t, http.StatusAccepted, f.coord.Create(context.Background(), CreateRequest{
		ProjectID: "p1", ProjectType: "generic", Location: location,
	}).Status)

	result := f.coord.Shutdown(context.Background())
	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.Equal(t, 0, f.sched.QueueLen())
	assert.Equal(t, 0, f.sched.RunningLen())
	f.store.Flush()
}
