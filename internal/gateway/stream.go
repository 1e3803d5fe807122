// ABOUTME: Server-sent event stream of a session's progress snapshots
// ABOUTME: Emits status_update and step_update frames until the run reaches a terminal status

package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/taskstream/internal/agent"
	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/sse"
	"github.com/2389/taskstream/internal/store"
)

// handleStream streams snapshots of one session. The SSE id of every frame
// is the snapshot sequence number, which only grows within a session.
//
// The stream ends when a terminal snapshot has been written, the client
// disconnects or the gateway shuts down.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	sess, err := g.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Sessions persisted by an earlier process have no live snapshot yet
	if _, ok := g.hub.Latest(sessionID); !ok {
		g.hub.Publish(snapshotFromSession(sess))
	}

	snapshots, _ := g.hub.Subscribe(r.Context(), sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := g.logger.With("session_id", sessionID)
	logger.Debug("stream opened")

	keepAlive := time.NewTicker(g.config.Server.KeepAlive)
	defer keepAlive.Stop()

	var last *agent.Snapshot
	for {
		select {
		case <-r.Context().Done():
			logger.Debug("client disconnected")
			return

		case <-g.shutdown:
			logger.Debug("stream closed by shutdown")
			return

		case <-keepAlive.C:
			if err := sse.WriteComment(w, "keep-alive"); err != nil {
				return
			}
			flusher.Flush()

		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			frame := frameFor(last, snap)
			if err := sse.WriteJSON(w, strconv.FormatUint(snap.Seq, 10), frame); err != nil {
				logger.Debug("failed to write frame", "error", err)
				return
			}
			flusher.Flush()
			last = &snap

			if snap.Terminal() {
				logger.Debug("stream completed", "status", snap.Status)
				return
			}
		}
	}
}

// frameFor picks the frame for snap given the previously sent snapshot.
// Changes to status or content need a status_update; progress that only
// moved steps goes out as a step_update.
func frameFor(last *agent.Snapshot, snap agent.Snapshot) api.StreamFrame {
	frame := api.StreamFrame{
		SessionID: snap.SessionID,
		Steps:     api.StepsToWire(snap.Steps),
		Timestamp: snap.UpdatedAt,
	}

	if last != nil && last.Status == snap.Status && last.Content == snap.Content {
		frame.Type = api.FrameStepUpdate
		return frame
	}

	frame.Type = api.FrameStatusUpdate
	frame.Status = string(snap.Status)
	frame.Content = snap.Content
	return frame
}

func snapshotFromSession(s *store.Session) agent.Snapshot {
	return agent.Snapshot{
		SessionID:   s.ID,
		Status:      s.Status,
		Content:     s.Content,
		Steps:       s.Steps,
		CurrentStep: s.CurrentStep,
		UpdatedAt:   s.UpdatedAt,
	}
}
