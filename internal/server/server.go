// Package server exposes the lifecycle coordinator over HTTP. It is a
// pure translation layer: it decodes requests, calls the coordinator,
// and writes the result's status code and JSON body.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codewatch/codewatch/internal/lifecycle"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/types"
	"github.com/codewatch/codewatch/internal/watcher"
)

// Server is the HTTP front-end of the lifecycle core.
type Server struct {
	coordinator *lifecycle.Coordinator
	log         logging.Logger
	httpServer  *http.Server
}

// New creates a server bound to host:port.
func New(host string, port int, c *lifecycle.Coordinator, log logging.Logger) *Server {
	s := &Server{
		coordinator: c,
		log:         log.WithComponent("server"),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/projects", s.handleCreate)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/v1/projects/{id}/action", s.handleAction)
	mux.HandleFunc("PUT /api/v1/projects/{id}/specification", s.handleSpecification)
	mux.HandleFunc("GET /api/v1/projects/{id}/logs", s.handleLogs)
	mux.HandleFunc("GET /api/v1/projects/{id}/logs/{kind}", s.handleCheckNewLogFile)
	mux.HandleFunc("POST /api/v1/projects/{id}/file-changes", s.handleFileChanges)
	mux.HandleFunc("POST /api/v1/shutdown", s.handleShutdown)
	return mux
}

// Handler returns the routing handler. Exposed for tests.
func (s *Server) Handler() http.Handler { return s.routes() }

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeResult(w http.ResponseWriter, result lifecycle.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.log.Warn(context.Background(), err, "encoding response failed")
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResult(w, lifecycle.Result{Status: http.StatusBadRequest, Error: "malformed request body"})
		return
	}
	s.writeResult(w, s.coordinator.Create(r.Context(), req))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.coordinator.Delete(r.Context(), r.PathValue("id")))
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResult(w, lifecycle.Result{Status: http.StatusBadRequest, Error: "malformed request body"})
		return
	}
	req.ProjectID = r.PathValue("id")
	s.writeResult(w, s.coordinator.Action(r.Context(), req))
}

func (s *Server) handleSpecification(w http.ResponseWriter, r *http.Request) {
	var settings types.ProjectSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeResult(w, lifecycle.Result{Status: http.StatusBadRequest, Error: "malformed request body"})
		return
	}
	s.writeResult(w, s.coordinator.Specification(r.Context(), r.PathValue("id"), &settings))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.coordinator.Logs(r.Context(), r.PathValue("id")))
}

func (s *Server) handleCheckNewLogFile(w http.ResponseWriter, r *http.Request) {
	kind := project.LogKind(r.PathValue("kind"))
	s.writeResult(w, s.coordinator.CheckNewLogFile(r.Context(), r.PathValue("id"), kind))
}

func (s *Server) handleFileChanges(w http.ResponseWriter, r *http.Request) {
	var batch watcher.ChangeBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		s.writeResult(w, lifecycle.Result{Status: http.StatusBadRequest, Error: "malformed request body"})
		return
	}
	s.writeResult(w, s.coordinator.FileChanges(r.Context(), r.PathValue("id"), batch))
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.coordinator.Shutdown(r.Context()))
}
