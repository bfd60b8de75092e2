package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trpc-group/compliance-rag/frame"
	"github.com/trpc-group/compliance-rag/orchestrator"
	"github.com/trpc-group/compliance-rag/server/httpapi"
	"github.com/trpc-group/compliance-rag/session"
)

type fakeOrchestrator struct {
	frames []frame.Frame
	err    error
	lastReq orchestrator.Request
}

func (f *fakeOrchestrator) Run(ctx context.Context, req orchestrator.Request) (<-chan frame.Frame, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan frame.Frame, len(f.frames))
	for _, fr := range f.frames {
		ch <- fr
	}
	close(ch)
	return ch, nil
}

type fakeSessions struct {
	sessions map[string]session.Session
	messages map[string][]session.Message
	createErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]session.Session{}, messages: map[string][]session.Message{}}
}

func (f *fakeSessions) CreateSession(ctx context.Context, userID, name string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "sess-1"
	f.sessions[id] = session.Session{SessionID: id, UserID: userID, Name: name, Active: true}
	return id, nil
}

func (f *fakeSessions) ListSessions(ctx context.Context, userID string) ([]session.Session, error) {
	var out []session.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) GetSession(ctx context.Context, userID, sessionID string) (session.Session, bool, error) {
	s, ok := f.sessions[sessionID]
	return s, ok, nil
}

func (f *fakeSessions) RenameSession(ctx context.Context, userID, sessionID, name string) error {
	s := f.sessions[sessionID]
	s.Name = name
	f.sessions[sessionID] = s
	return nil
}

func (f *fakeSessions) DeleteSession(ctx context.Context, userID, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessions) AppendMessage(ctx context.Context, userID, sessionID string, role session.Role, content string) error {
	f.messages[sessionID] = append(f.messages[sessionID], session.Message{SessionID: sessionID, UserID: userID, Role: role, Content: content})
	return nil
}

func (f *fakeSessions) GetMessages(ctx context.Context, userID, sessionID string) ([]session.Message, error) {
	return f.messages[sessionID], nil
}

func (f *fakeSessions) DeleteMessages(ctx context.Context, userID, sessionID string) error {
	delete(f.messages, sessionID)
	return nil
}

func TestChatStream_EncodesFramesAsSSE(t *testing.T) {
	orch := &fakeOrchestrator{frames: []frame.Frame{frame.Think("t"), frame.Data("d")}}
	sessions := newFakeSessions()
	srv := httpapi.New(orch, sessions)

	body := bytes.NewBufferString(`{"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream?session_id=s1&user_id=u1&scene_id=3", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"message_type":1`)
	require.Contains(t, w.Body.String(), `"message_type":2`)
	require.Equal(t, orchestrator.ModeTextOnly, orch.lastReq.Mode)
}

func TestChat_ReturnsAssembledResponse(t *testing.T) {
	orch := &fakeOrchestrator{frames: []frame.Frame{frame.Think("reasoning"), frame.Data("hello "), frame.Data("world")}}
	sessions := newFakeSessions()
	srv := httpapi.New(orch, sessions)

	body := bytes.NewBufferString(`{"session_id":"s1","user_id":"u1","query":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "hello world", resp["response"])
}

func TestCreateSession_ReturnsSessionID(t *testing.T) {
	sessions := newFakeSessions()
	srv := httpapi.New(&fakeOrchestrator{}, sessions)

	body := bytes.NewBufferString(`{"user_id":"u1","name":"chat"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "sess-1", resp["session_id"])
}

func TestGetSession_NotFound(t *testing.T) {
	sessions := newFakeSessions()
	srv := httpapi.New(&fakeOrchestrator{}, sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing?user_id=u1", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSession_IncludesMessagesWhenRequested(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["s1"] = session.Session{SessionID: "s1", UserID: "u1"}
	sessions.messages["s1"] = []session.Message{{SessionID: "s1", UserID: "u1", Content: "hi"}}
	srv := httpapi.New(&fakeOrchestrator{}, sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1?user_id=u1&include_messages=true", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp, "messages")
}

func TestRenameSession(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["s1"] = session.Session{SessionID: "s1", UserID: "u1", Name: "old"}
	srv := httpapi.New(&fakeOrchestrator{}, sessions)

	body := bytes.NewBufferString(`{"user_id":"u1","name":"new"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/sessions/s1/rename", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "new", sessions.sessions["s1"].Name)
}

func TestDeleteSession(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["s1"] = session.Session{SessionID: "s1", UserID: "u1"}
	srv := httpapi.New(&fakeOrchestrator{}, sessions)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/s1?user_id=u1", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	_, ok := sessions.sessions["s1"]
	require.False(t, ok)
}

func TestDeleteMessages(t *testing.T) {
	sessions := newFakeSessions()
	sessions.messages["s1"] = []session.Message{{SessionID: "s1"}}
	srv := httpapi.New(&fakeOrchestrator{}, sessions)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/s1/messages", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, sessions.messages["s1"])
}

func TestHealth_Liveness(t *testing.T) {
	srv := httpapi.New(&fakeOrchestrator{}, newFakeSessions())
	req := httptest.NewRequest(http.MethodGet, "/api/health/", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthDetailed_ReportsPerBackendStatus(t *testing.T) {
	checks := []httpapi.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error { return nil }},
		{Name: "neo4j", Check: func(ctx context.Context) error { return errors.New("down") }},
	}
	srv := httpapi.New(&fakeOrchestrator{}, newFakeSessions(), checks...)
	req := httptest.NewRequest(http.MethodGet, "/api/health/detailed", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["backends"]["redis"])
	require.Contains(t, resp["backends"]["neo4j"], "down")
}

func TestSceneIDMapping(t *testing.T) {
	cases := map[string]orchestrator.Mode{
		"1": orchestrator.ModeHybrid,
		"2": orchestrator.ModeGraphOnly,
		"3": orchestrator.ModeTextOnly,
	}
	sessions := newFakeSessions()
	for sceneID, want := range cases {
		orch := &fakeOrchestrator{}
		srv := httpapi.New(orch, sessions)
		body := bytes.NewBufferString(`{"content":"q"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/chat/stream?session_id=s1&user_id=u1&scene_id="+sceneID, body)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		require.Equal(t, want, orch.lastReq.Mode)
	}
}
