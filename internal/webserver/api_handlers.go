package webserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/internal/registry"
	"github.com/agusx1211/swarmix/internal/session"
	"github.com/agusx1211/swarmix/internal/store"
	"github.com/agusx1211/swarmix/internal/usage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		debug.LogKV("webserver", "encoding response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type statusResponse struct {
	Active []registry.RunDescriptor `json:"active"`
}

// handleStatus reports the runs currently in flight, learned over the
// control socket of the run process. No socket means no active run.
func (srv *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	client := session.NewClient(srv.runRoot)
	runs, err := client.Status(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrNoActiveRun) {
			writeJSON(w, http.StatusOK, statusResponse{Active: []registry.RunDescriptor{}})
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if runs == nil {
		runs = []registry.RunDescriptor{}
	}
	writeJSON(w, http.StatusOK, statusResponse{Active: runs})
}

type cancelRequest struct {
	SessionID string `json:"session_id"`
}

type cancelResponse struct {
	Cancelled []registry.RunDescriptor `json:"cancelled"`
}

// handleCancel signals cancellation for one session's run, or every run
// when the body is empty or names no session.
func (srv *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req cancelRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	client := session.NewClient(srv.runRoot)
	if req.SessionID != "" {
		desc, err := client.Cancel(r.Context(), req.SessionID)
		if err != nil {
			writeCancelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cancelResponse{Cancelled: []registry.RunDescriptor{desc}})
		return
	}

	cancelled, err := client.CancelAll(r.Context())
	if err != nil {
		writeCancelError(w, err)
		return
	}
	if cancelled == nil {
		cancelled = []registry.RunDescriptor{}
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled})
}

func writeCancelError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNoActiveRun) {
		writeError(w, http.StatusConflict, "no active run")
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

// handleRounds returns the full round history, newest first.
func (srv *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := srv.store.ListRounds()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}
	if rounds == nil {
		rounds = []store.RoundRecord{}
	}
	// Newest first for display.
	for i, j := 0, len(rounds)-1; i < j; i, j = i+1, j-1 {
		rounds[i], rounds[j] = rounds[j], rounds[i]
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (srv *Server) handleRoundByID(w http.ResponseWriter, r *http.Request) {
	rec, ok := srv.lookupRound(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRoundUsage aggregates token usage from the rollout files the round's
// agents left behind.
func (srv *Server) handleRoundUsage(w http.ResponseWriter, r *http.Request) {
	rec, ok := srv.lookupRound(w, r)
	if !ok {
		return
	}
	report := usage.CollectRound(usage.DefaultProvider(), rec)
	writeJSON(w, http.StatusOK, report)
}

func (srv *Server) lookupRound(w http.ResponseWriter, r *http.Request) (*store.RoundRecord, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusNotFound, "round not found")
		return nil, false
	}
	rec, err := srv.store.GetRound(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "round not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load round")
		return nil, false
	}
	return rec, true
}

// handleLiveSessions returns the session pointers of the run in flight.
func (srv *Server) handleLiveSessions(w http.ResponseWriter, r *http.Request) {
	live, err := srv.store.LoadLiveSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load live sessions")
		return
	}
	if live == nil {
		live = &store.LiveSessions{Agents: map[string]store.SessionEntry{}}
	}
	writeJSON(w, http.StatusOK, live)
}
