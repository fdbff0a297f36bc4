package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/vk/flowgridgo/internal/background"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/graphstore"
	"github.com/vk/flowgridgo/internal/run"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/schema"
)

// runRequest is the payload for both the synchronous and background run
// endpoints.
type runRequest struct {
	GraphID      string         `json:"graph_id"`
	InitialState map[string]any `json:"initial_state"`
}

// runResponse is the synchronous run reply.
type runResponse struct {
	RunID        string         `json:"run_id"`
	FinalState   map[string]any `json:"final_state"`
	ExecutionLog []run.LogEntry `json:"execution_log"`
	Status       run.Status     `json:"status"`
}

// stateResponse is the run-record projection served to pollers.
type stateResponse struct {
	RunID        string         `json:"run_id"`
	Status       run.Status     `json:"status"`
	CurrentNode  string         `json:"current_node,omitempty"`
	State        map[string]any `json:"state"`
	ExecutionLog []run.LogEntry `json:"execution_log"`
}

func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	ctx := ctxlog.WithLogger(r.Context(), s.logger)

	var def schema.GraphDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid graph definition: %v", err))
		return
	}

	// Conditions are parsed once, here, not per evaluation.
	def.Compile(ctx)

	graphID, err := s.engine.Graphs().Create(ctx, &def)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("📋 Graph created", "graphID", graphID, "name", def.Name, "nodes", def.Nodes.Len())

	s.writeJSON(w, http.StatusOK, map[string]string{
		"graph_id": graphID,
		"message":  "Graph created successfully",
	})
}

func (s *Server) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	ctx := ctxlog.WithLogger(r.Context(), s.logger)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run request: %v", err))
		return
	}

	rec, err := s.engine.Run(ctx, req.GraphID, req.InitialState, nil)
	if err != nil {
		var notFound *graphstore.NotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, runResponse{
		RunID:        rec.RunID,
		FinalState:   rec.State,
		ExecutionLog: rec.ExecutionLog,
		Status:       rec.Status,
	})
}

func (s *Server) handleRunBackground(w http.ResponseWriter, r *http.Request) {
	ctx := ctxlog.WithLogger(r.Context(), s.logger)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run request: %v", err))
		return
	}

	runID, err := s.manager.Start(ctx, req.GraphID, req.InitialState)
	if err != nil {
		var notFound *graphstore.NotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"run_id":          runID,
		"message":         "Workflow started in background",
		"status_endpoint": "/graph/state/" + runID,
	})
}

func (s *Server) handleRunState(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	rec, err := s.engine.Runs().Get(r.Context(), runID)
	if err != nil {
		var notFound *runstore.NotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, stateResponse{
		RunID:        rec.RunID,
		Status:       rec.Status,
		CurrentNode:  rec.CurrentNode,
		State:        rec.State,
		ExecutionLog: rec.ExecutionLog,
	})
}

func (s *Server) handleBackgroundStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	report := s.manager.Status(runID)
	if report.State == background.StateNotFound {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("background task %q not found", runID))
		return
	}

	resp := map[string]any{
		"run_id":      runID,
		"task_status": string(report.State),
	}

	// The task signal and the run record are two views of the same
	// completion event; they are reported together but never promised to be
	// atomic with one another.
	if rec, err := s.engine.Runs().Get(r.Context(), runID); err == nil {
		resp["workflow_status"] = rec.Status
		if rec.CurrentNode != "" {
			resp["current_node"] = rec.CurrentNode
		}
	}
	if report.Error != "" {
		resp["error"] = report.Error
	}

	s.writeJSON(w, http.StatusOK, resp)
}
