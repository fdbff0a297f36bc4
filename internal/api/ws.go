package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/events"
)

// streamRequest is the single inbound message on a run stream.
type streamRequest struct {
	InitialState map[string]any `json:"initial_state"`
}

// handleStreamRun executes a graph while streaming its progress events over
// a WebSocket. The event sequence is strictly ordered and delivered on the
// traversal's own execution path; a disconnected observer terminates the
// stream but never disturbs run state already committed.
func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	logger := s.logger.With("graphID", graphID)
	ctx := ctxlog.WithLogger(r.Context(), logger)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed.", "error", err)
		return
	}
	defer conn.Close()

	send := func(ev events.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		logger.Debug("Stream closed before the initial message.", "error", err)
		return
	}

	var req streamRequest
	if err := json.Unmarshal(message, &req); err != nil {
		_ = send(events.New(events.TypeError, map[string]any{
			"error":   "invalid JSON format",
			"message": "send a JSON object with an 'initial_state' field",
		}))
		return
	}

	if err := send(events.Connected(graphID)); err != nil {
		logger.Debug("Stream closed during handshake.", "error", err)
		return
	}

	logger.Info("🔌 Streaming run started")
	rec, runErr := s.engine.Run(ctx, graphID, req.InitialState, send)
	if runErr != nil {
		_ = send(events.New(events.TypeError, map[string]any{
			"error":   runErr.Error(),
			"message": "workflow execution failed",
		}))
		return
	}

	if err := send(events.Complete(rec)); err != nil {
		logger.Debug("Observer disconnected before the final message.", "error", err)
	}
}
