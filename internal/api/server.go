// Package api exposes the runtime over HTTP and WebSocket. It is a thin
// request/response mapping: all execution semantics live in the engine and
// the background manager.
package api

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/vk/flowgridgo/internal/background"
	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/engine"
)

// Server maps transport requests onto the engine.
type Server struct {
	logger   *slog.Logger
	engine   *engine.Engine
	manager  *background.Manager
	caps     *capability.Registry
	upgrader websocket.Upgrader
}

// NewServer wires a Server from its collaborators.
func NewServer(logger *slog.Logger, eng *engine.Engine, manager *background.Manager, caps *capability.Registry) *Server {
	return &Server{
		logger:  logger,
		engine:  eng,
		manager: manager,
		caps:    caps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The runtime serves trusted tooling clients; origin policy is
			// left to a fronting proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the route table for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graph/create", s.handleCreateGraph)
	mux.HandleFunc("POST /graph/run", s.handleRunGraph)
	mux.HandleFunc("POST /graph/run/background", s.handleRunBackground)
	mux.HandleFunc("GET /graph/state/{run_id}", s.handleRunState)
	mux.HandleFunc("GET /graph/background/{run_id}/status", s.handleBackgroundStatus)
	mux.HandleFunc("GET /ws/graph/run/{graph_id}", s.handleStreamRun)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Detail string `json:"detail"`
}

// writeJSON encodes v onto w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response body.", "error", err)
	}
}

// writeError encodes a {detail} error reply.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "flowgridgo workflow engine",
		"features": []string{
			"Graph creation and execution",
			"WebSocket streaming",
			"Background task execution",
			"Conditional branching",
			"Looping support",
		},
		"capabilities": s.caps.List(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"features": map[string]bool{
			"websocket_streaming":   true,
			"background_tasks":      true,
			"conditional_branching": true,
			"looping":               true,
		},
	})
}
