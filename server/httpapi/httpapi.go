// Package httpapi wires the streaming and non-streaming chat endpoints,
// session management, and health checks onto a gorilla/mux router.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/trpc-group/compliance-rag/frame"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/orchestrator"
	"github.com/trpc-group/compliance-rag/session"
)

// Orchestrator is the subset of orchestrator.Orchestrator the HTTP layer
// depends on.
type Orchestrator interface {
	Run(ctx context.Context, req orchestrator.Request) (<-chan frame.Frame, error)
}

// HealthCheck is one named backend readiness probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server holds the dependencies the HTTP layer dispatches to.
type Server struct {
	orchestrator Orchestrator
	sessions     session.Service
	checks       []HealthCheck
}

// New builds a Server.
func New(orch Orchestrator, sessions session.Service, checks ...HealthCheck) *Server {
	return &Server{orchestrator: orch, sessions: sessions, checks: checks}
}

// Router builds the mux.Router with CORS applied, ready to be served.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/chat/stream", s.handleChatStream).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/", s.handleChat).Methods(http.MethodPost)

	r.HandleFunc("/api/sessions/", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{session_id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{session_id}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/api/sessions/{session_id}/rename", s.handleRenameSession).Methods(http.MethodPatch)
	r.HandleFunc("/api/sessions/{session_id}/messages", s.handleDeleteMessages).Methods(http.MethodDelete)

	r.HandleFunc("/api/health/", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/health/detailed", s.handleHealthDetailed).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

func sceneToMode(sceneID int) orchestrator.Mode {
	switch sceneID {
	case 2:
		return orchestrator.ModeGraphOnly
	case 3:
		return orchestrator.ModeTextOnly
	default:
		return orchestrator.ModeHybrid
	}
}

func questionFrom(body map[string]any) string {
	if v, ok := body["content"].(string); ok && v != "" {
		return v
	}
	if v, ok := body["query"].(string); ok {
		return v
	}
	return ""
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	userID := r.URL.Query().Get("user_id")
	sceneID, _ := strconv.Atoi(r.URL.Query().Get("scene_id"))

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := questionFrom(body)

	history, err := s.sessions.GetMessages(r.Context(), userID, sessionID)
	if err != nil {
		log.Warnf("httpapi: loading history failed for %s/%s: %v", userID, sessionID, err)
	}

	frames, err := s.orchestrator.Run(r.Context(), orchestrator.Request{
		UserID: userID, SessionID: sessionID, Question: question,
		Mode: sceneToMode(sceneID), History: history,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, canFlush := w.(http.Flusher)

	for f := range frames {
		encoded, err := frame.Encode(f)
		if err != nil {
			log.Errorf("httpapi: encoding frame failed: %v", err)
			continue
		}
		if _, err := w.Write(encoded); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID      string `json:"session_id"`
		UserID         string `json:"user_id"`
		Query          string `json:"query"`
		EnableKnowledge bool   `json:"enable_knowledge"`
		TopK           int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	history, err := s.sessions.GetMessages(r.Context(), body.UserID, body.SessionID)
	if err != nil {
		log.Warnf("httpapi: loading history failed for %s/%s: %v", body.UserID, body.SessionID, err)
	}

	frames, err := s.orchestrator.Run(r.Context(), orchestrator.Request{
		UserID: body.UserID, SessionID: body.SessionID, Question: body.Query,
		Mode: orchestrator.ModeHybrid, History: history,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var answer strings.Builder
	for f := range frames {
		if f.Type == frame.Data {
			answer.WriteString(f.Content)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": answer.String()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.sessions.CreateSession(r.Context(), body.UserID, body.Name)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	sessions, err := s.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	userID := r.URL.Query().Get("user_id")
	includeMessages := r.URL.Query().Get("include_messages") == "true"

	sess, ok, err := s.sessions.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	resp := map[string]any{"session": sess}
	if includeMessages {
		messages, err := s.sessions.GetMessages(r.Context(), userID, sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["messages"] = messages
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	userID := r.URL.Query().Get("user_id")
	if err := s.sessions.DeleteSession(r.Context(), userID, sessionID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	var body struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.sessions.RenameSession(r.Context(), body.UserID, sessionID, body.Name); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"renamed": true})
}

func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	userID := r.URL.Query().Get("user_id")
	if err := s.sessions.DeleteMessages(r.Context(), userID, sessionID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	result := map[string]string{}
	healthy := true
	for _, c := range s.checks {
		if err := c.Check(r.Context()); err != nil {
			result[c.Name] = "down: " + err.Error()
			healthy = false
			continue
		}
		result[c.Name] = "ok"
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"backends": result})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("httpapi: encoding response failed: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
