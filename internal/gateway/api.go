// ABOUTME: JSON HTTP handlers for chat submission, session listing and health
// ABOUTME: Every error reply is a JSON body of the form {"error": "..."}

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/taskstream/internal/agent"
	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/store"
)

// maxRequestBody bounds POST bodies.
const maxRequestBody = 1 << 20

// SeedMessage is the message of every seed response.
const SeedMessage = "Analyzing your request and preparing the task..."

// handleChat records a request against a new or existing session, starts
// the agent on it and replies with the seed response.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := g.now().UTC()
	plan := agent.NewPlan(req.Message)
	sess := &store.Session{
		ID:        sessionID,
		Request:   req.Message,
		Status:    chat.StatusThinking,
		Steps:     plan.Skeleton(now),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := g.recordSession(r, sess); err != nil {
		g.logger.Error("failed to record session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := g.runner.Start(sess, plan); err != nil {
		if errors.Is(err, agent.ErrRunnerStopped) {
			g.sendJSONError(w, http.StatusServiceUnavailable, "server shutting down")
			return
		}
		g.logger.Error("failed to start run", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("chat request accepted",
		"session_id", sessionID,
		"kind", plan.Kind,
		"steps", len(plan.Steps))

	g.sendJSON(w, http.StatusOK, api.ChatResponse{
		SessionID: sessionID,
		Message:   SeedMessage,
		Status:    string(chat.StatusThinking),
		Steps:     api.StepsToWire(sess.Steps),
		Timestamp: now,
	})
}

// recordSession creates the session or resets an existing one for a new turn.
func (g *Gateway) recordSession(r *http.Request, sess *store.Session) error {
	err := g.store.CreateSession(r.Context(), sess)
	if !errors.Is(err, store.ErrDuplicateSession) {
		return err
	}

	existing, err := g.store.GetSession(r.Context(), sess.ID)
	if err != nil {
		return err
	}
	sess.CreatedAt = existing.CreatedAt
	return g.store.UpdateSession(r.Context(), sess)
}

// parseChatRequest decodes and validates a ChatRequest.
func parseChatRequest(body io.Reader) (*api.ChatRequest, error) {
	var req api.ChatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}

// handleListSessions returns session summaries, newest activity first.
// An optional limit query parameter bounds the result.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := g.store.ListSessions(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := api.SessionsResponse{Sessions: make([]api.SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, api.SessionSummary{
			ID:          s.ID,
			CreatedAt:   s.CreatedAt,
			UpdatedAt:   s.UpdatedAt,
			Status:      string(s.Status),
			CurrentStep: s.CurrentStep,
			TotalSteps:  len(s.Steps),
		})
	}
	resp.Total = len(resp.Sessions)

	g.sendJSON(w, http.StatusOK, resp)
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, api.HealthResponse{
		Status:    "ok",
		Service:   ServiceName,
		Version:   Version,
		Timestamp: g.now().Unix(),
	})
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, api.ErrorResponse{Error: message})
}
