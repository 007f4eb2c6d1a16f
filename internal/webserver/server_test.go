package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/agusx1211/swarmix/internal/events"
	"github.com/agusx1211/swarmix/internal/registry"
	"github.com/agusx1211/swarmix/internal/session"
	"github.com/agusx1211/swarmix/internal/store"
	"github.com/agusx1211/swarmix/internal/usage"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	repoDir := t.TempDir()
	s, err := store.New(repoDir)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	if err := s.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}

	return New(s, repoDir, Options{}), s
}

func performRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func performJSONRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func appendRound(t *testing.T, s *store.Store, rec *store.RoundRecord) *store.RoundRecord {
	t.Helper()
	if err := s.AppendRound(rec); err != nil {
		t.Fatalf("AppendRound: %v", err)
	}
	return rec
}

func TestStatusEndpointNoActiveRun(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := performRequest(t, srv, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if contentType := rec.Header().Get("Content-Type"); !strings.HasPrefix(contentType, "application/json") {
		t.Fatalf("content-type = %q, want application/json", contentType)
	}

	got := decodeResponse[statusResponse](t, rec)
	if len(got.Active) != 0 {
		t.Fatalf("active runs = %d, want 0", len(got.Active))
	}
}

func TestStatusAndCancelWithControlServer(t *testing.T) {
	srv, s := newTestServer(t)

	reg := registry.New()
	guard, err := reg.Register("sess-web", "runweb")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer guard.Release()

	ctrl := session.NewControlServer(reg, s.Root())
	if err := ctrl.Start(); err != nil {
		t.Fatalf("ControlServer.Start: %v", err)
	}
	defer ctrl.Close()

	rec := performRequest(t, srv, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := decodeResponse[statusResponse](t, rec)
	if len(got.Active) != 1 || got.Active[0].RunID != "runweb" {
		t.Fatalf("active = %+v, want runweb", got.Active)
	}

	cancelRec := performJSONRequest(t, srv, http.MethodPost, "/api/cancel", `{"session_id":"sess-web"}`)
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want %d, body %s", cancelRec.Code, http.StatusOK, cancelRec.Body.String())
	}
	cancelled := decodeResponse[cancelResponse](t, cancelRec)
	if len(cancelled.Cancelled) != 1 || cancelled.Cancelled[0].SessionID != "sess-web" {
		t.Fatalf("cancelled = %+v", cancelled.Cancelled)
	}
	if !guard.Token().Cancelled() {
		t.Fatal("token should be signalled after cancel")
	}
}

func TestCancelWithoutActiveRun(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := performJSONRequest(t, srv, http.MethodPost, "/api/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	resp := decodeResponse[errorResponse](t, rec)
	if resp.Error != "no active run" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestRoundsEndpoints(t *testing.T) {
	srv, s := newTestServer(t)

	first := appendRound(t, s, &store.RoundRecord{
		RunID:         "run-old",
		ParentSession: "sess-1",
		Task:          "first task",
		Agents:        []store.AgentOutcome{{AgentID: "01", SessionID: "s1", Branch: "b1", CommitHash: "c1"}},
	})
	second := appendRound(t, s, &store.RoundRecord{
		RunID:         "run-new",
		ParentSession: "sess-1",
		Task:          "second task",
		Failures:      []store.AgentFailureRecord{{AgentID: "02", Stage: "execute", Error: "boom"}},
	})

	rec := performRequest(t, srv, http.MethodGet, "/api/rounds")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	rounds := decodeResponse[[]store.RoundRecord](t, rec)
	if len(rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(rounds))
	}
	if rounds[0].RunID != "run-new" {
		t.Fatalf("rounds[0] = %q, want newest first", rounds[0].RunID)
	}

	byID := performRequest(t, srv, http.MethodGet, "/api/rounds/"+first.RecordID)
	if byID.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", byID.Code, http.StatusOK)
	}
	got := decodeResponse[store.RoundRecord](t, byID)
	if got.RunID != "run-old" || len(got.Agents) != 1 {
		t.Fatalf("round = %+v", got)
	}

	byRunID := performRequest(t, srv, http.MethodGet, "/api/rounds/"+second.RunID)
	if byRunID.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", byRunID.Code, http.StatusOK)
	}

	missing := performRequest(t, srv, http.MethodGet, "/api/rounds/nope")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", missing.Code, http.StatusNotFound)
	}
}

func TestRoundUsageEndpoint(t *testing.T) {
	srv, s := newTestServer(t)

	rollout := filepath.Join(t.TempDir(), "rollout.jsonl")
	lines := strings.Join([]string{
		`{"type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":100,"cached_input_tokens":20,"output_tokens":30,"total_tokens":130}}}}`,
	}, "\n")
	if err := os.WriteFile(rollout, []byte(lines), 0644); err != nil {
		t.Fatalf("write rollout: %v", err)
	}

	round := appendRound(t, s, &store.RoundRecord{
		RunID: "run-usage",
		Agents: []store.AgentOutcome{
			{AgentID: "01", SessionID: "s1", RolloutPath: rollout, Branch: "b", CommitHash: "c"},
		},
	})

	rec := performRequest(t, srv, http.MethodGet, "/api/rounds/"+round.RecordID+"/usage")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	report := decodeResponse[usage.RoundUsage](t, rec)
	if report.Totals.TotalTokens != 130 {
		t.Fatalf("total tokens = %d, want 130", report.Totals.TotalTokens)
	}
	if len(report.Agents) != 1 || report.Agents[0].AgentID != "01" {
		t.Fatalf("agents = %+v", report.Agents)
	}
}

func TestLiveSessionsEndpoint(t *testing.T) {
	srv, s := newTestServer(t)

	if err := s.UpdateLiveSession("run-live", store.SessionEntry{
		AgentID:   "01",
		SessionID: "sess-xyz",
		StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("UpdateLiveSession: %v", err)
	}

	rec := performRequest(t, srv, http.MethodGet, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	live := decodeResponse[store.LiveSessions](t, rec)
	if live.RunID != "run-live" {
		t.Fatalf("run id = %q", live.RunID)
	}
	if live.Agents["01"].SessionID != "sess-xyz" {
		t.Fatalf("agents = %+v", live.Agents)
	}
}

func TestUnknownAPIRouteReturnsJSON404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := performRequest(t, srv, http.MethodGet, "/api/unknown")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	resp := decodeResponse[errorResponse](t, rec)
	if resp.Error != "not found" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestIndexServed(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := performRequest(t, srv, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "swarmix") {
		t.Fatal("index page missing banner")
	}
}

func TestEventsWebSocketReplaysAndGoesLive(t *testing.T) {
	srv, s := newTestServer(t)

	reg := registry.New()
	ctrl := session.NewControlServer(reg, s.Root())
	if err := ctrl.Start(); err != nil {
		t.Fatalf("ControlServer.Start: %v", err)
	}
	defer ctrl.Close()

	ctrl.Publish(events.RunStartedMsg{RunID: "runws", ParentSession: "sess-ws", Task: "do"})
	ctrl.Publish(events.AgentStartedMsg{RunID: "runws", AgentID: "01"})

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "test finished")

	seen := map[string]bool{}
	for !(seen[session.MsgRunStarted] && seen[session.MsgAgentStarted] && seen[session.MsgLive]) {
		_, data, err := ws.Read(ctx)
		if err != nil {
			t.Fatalf("ws.Read: %v (seen=%v)", err, seen)
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		seen[env.Type] = true
	}
}

func TestTerminalWorkDirResolution(t *testing.T) {
	srv, _ := newTestServer(t)

	dir, err := srv.terminalWorkDir("", "")
	if err != nil {
		t.Fatalf("terminalWorkDir: %v", err)
	}
	if dir != srv.repoRoot {
		t.Fatalf("dir = %q, want repo root %q", dir, srv.repoRoot)
	}

	if _, err := srv.terminalWorkDir("runx", ""); err == nil {
		t.Fatal("half-specified target should fail")
	}
	if _, err := srv.terminalWorkDir("runx", "01"); err == nil {
		t.Fatal("missing worktree should fail")
	}

	wt := filepath.Join(srv.repoRoot, ".swarmix", "worktrees", "runx", "agent-01")
	if err := os.MkdirAll(wt, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dir, err = srv.terminalWorkDir("runx", "01")
	if err != nil {
		t.Fatalf("terminalWorkDir: %v", err)
	}
	if dir != wt {
		t.Fatalf("dir = %q, want %q", dir, wt)
	}

	if _, err := srv.terminalWorkDir("../escape", "01"); err == nil {
		t.Fatal("traversal attempt should fail")
	}
}
