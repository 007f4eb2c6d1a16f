// Package session exposes a running round over a Unix domain socket so a
// second process (CLI, web server) can inspect it, cancel it, or watch its
// event stream live. Every message is a single JSON line.
package session

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/agusx1211/swarmix/internal/events"
	"github.com/agusx1211/swarmix/internal/registry"
)

// SocketName is the control socket file inside the run root.
const SocketName = "run.sock"

// SocketPath returns the control socket path for a run root directory.
func SocketPath(runRoot string) string {
	return filepath.Join(runRoot, SocketName)
}

// Client-to-server operations.
const (
	OpStatus    = "status"
	OpCancel    = "cancel"
	OpCancelAll = "cancel_all"
	OpWatch     = "watch"
)

// Request is the single line a client sends after connecting.
type Request struct {
	Op        string `json:"op"`
	SessionID string `json:"session_id,omitempty"`
}

// Response is the server's reply. For watch it acknowledges the
// subscription; the event stream follows as WireMsg lines.
type Response struct {
	OK        bool                     `json:"ok"`
	Error     string                   `json:"error,omitempty"`
	Runs      []registry.RunDescriptor `json:"runs,omitempty"`
	Cancelled []registry.RunDescriptor `json:"cancelled,omitempty"`
}

// Wire message types streamed to watch subscribers.
const (
	MsgRunStarted    = "run_started"
	MsgPlanReady     = "plan_ready"
	MsgWorktreeReady = "worktree_ready"
	MsgAgentStarted  = "agent_started"
	MsgAgentSession  = "agent_session"
	MsgAgentFinished = "agent_finished"
	MsgAgentFailed   = "agent_failed"
	MsgAgentSkipped  = "agent_skipped"
	MsgRunFinished   = "run_finished"
	MsgProgress      = "progress"
	MsgLive          = "live" // marker: replay done, stream is live
)

// WireMsg is the envelope for every streamed message.
type WireMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WireAgentInfo mirrors events.AgentInfo on the wire.
type WireAgentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// WireRunStarted mirrors events.RunStartedMsg.
type WireRunStarted struct {
	RunID         string    `json:"run_id"`
	ParentSession string    `json:"parent_session"`
	Task          string    `json:"task"`
	StartedAt     time.Time `json:"started_at"`
}

// WirePlanReady mirrors events.PlanReadyMsg.
type WirePlanReady struct {
	RunID  string          `json:"run_id"`
	Agents []WireAgentInfo `json:"agents"`
}

// WireWorktreeReady mirrors events.WorktreeReadyMsg.
type WireWorktreeReady struct {
	RunID   string `json:"run_id"`
	AgentID string `json:"agent_id"`
	Branch  string `json:"branch"`
	Path    string `json:"path"`
}

// WireAgentStarted mirrors events.AgentStartedMsg.
type WireAgentStarted struct {
	RunID   string `json:"run_id"`
	AgentID string `json:"agent_id"`
}

// WireAgentSession mirrors events.AgentSessionMsg.
type WireAgentSession struct {
	RunID       string `json:"run_id"`
	AgentID     string `json:"agent_id"`
	SessionID   string `json:"session_id"`
	RolloutPath string `json:"rollout_path,omitempty"`
}

// WireAgentFinished mirrors events.AgentFinishedMsg.
type WireAgentFinished struct {
	RunID      string `json:"run_id"`
	AgentID    string `json:"agent_id"`
	SessionID  string `json:"session_id"`
	CommitHash string `json:"commit_hash"`
	Branch     string `json:"branch"`
}

// WireAgentFailed mirrors events.AgentFailedMsg.
type WireAgentFailed struct {
	RunID   string `json:"run_id"`
	AgentID string `json:"agent_id"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// WireAgentSkipped mirrors events.AgentSkippedMsg.
type WireAgentSkipped struct {
	RunID   string `json:"run_id"`
	AgentID string `json:"agent_id"`
}

// WireRunFinished mirrors events.RunFinishedMsg.
type WireRunFinished struct {
	RunID     string `json:"run_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WireProgress mirrors events.ProgressMsg.
type WireProgress struct {
	RunID string `json:"run_id"`
	Line  string `json:"line"`
}

// EncodeMsg creates a newline-terminated JSON line from a message type and
// payload.
func EncodeMsg(msgType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	line, err := json.Marshal(WireMsg{Type: msgType, Data: data})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// DecodeMsg parses one JSON line into a WireMsg.
func DecodeMsg(line []byte) (*WireMsg, error) {
	var msg WireMsg
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeData unmarshals a WireMsg payload into the target type.
func DecodeData[T any](msg *WireMsg) (*T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// WireFromEvent converts an orchestrator event to its wire form. It returns
// false for types that do not travel over the socket.
func WireFromEvent(ev any) (string, any, bool) {
	switch m := ev.(type) {
	case events.RunStartedMsg:
		return MsgRunStarted, WireRunStarted{
			RunID:         m.RunID,
			ParentSession: m.ParentSession,
			Task:          m.Task,
			StartedAt:     m.StartedAt,
		}, true
	case events.PlanReadyMsg:
		agents := make([]WireAgentInfo, len(m.Agents))
		for i, a := range m.Agents {
			agents[i] = WireAgentInfo{ID: a.ID, Name: a.Name, Role: a.Role}
		}
		return MsgPlanReady, WirePlanReady{RunID: m.RunID, Agents: agents}, true
	case events.WorktreeReadyMsg:
		return MsgWorktreeReady, WireWorktreeReady{
			RunID:   m.RunID,
			AgentID: m.AgentID,
			Branch:  m.Branch,
			Path:    m.Path,
		}, true
	case events.AgentStartedMsg:
		return MsgAgentStarted, WireAgentStarted{RunID: m.RunID, AgentID: m.AgentID}, true
	case events.AgentSessionMsg:
		return MsgAgentSession, WireAgentSession{
			RunID:       m.RunID,
			AgentID:     m.AgentID,
			SessionID:   m.SessionID,
			RolloutPath: m.RolloutPath,
		}, true
	case events.AgentFinishedMsg:
		return MsgAgentFinished, WireAgentFinished{
			RunID:      m.RunID,
			AgentID:    m.AgentID,
			SessionID:  m.SessionID,
			CommitHash: m.CommitHash,
			Branch:     m.Branch,
		}, true
	case events.AgentFailedMsg:
		errText := ""
		if m.Err != nil {
			errText = m.Err.Error()
		}
		return MsgAgentFailed, WireAgentFailed{
			RunID:   m.RunID,
			AgentID: m.AgentID,
			Stage:   m.Stage,
			Error:   errText,
		}, true
	case events.AgentSkippedMsg:
		return MsgAgentSkipped, WireAgentSkipped{RunID: m.RunID, AgentID: m.AgentID}, true
	case events.RunFinishedMsg:
		errText := ""
		if m.Err != nil {
			errText = m.Err.Error()
		}
		return MsgRunFinished, WireRunFinished{
			RunID:     m.RunID,
			Succeeded: m.Succeeded,
			Failed:    m.Failed,
			Skipped:   m.Skipped,
			Cancelled: m.Cancelled,
			Error:     errText,
		}, true
	case events.ProgressMsg:
		return MsgProgress, WireProgress{RunID: m.RunID, Line: m.Line}, true
	default:
		return "", nil, false
	}
}

// EventFromWire converts a wire message back to its events type. The live
// marker and unknown types return (nil, nil).
func EventFromWire(msg *WireMsg) (any, error) {
	switch msg.Type {
	case MsgRunStarted:
		w, err := DecodeData[WireRunStarted](msg)
		if err != nil {
			return nil, err
		}
		return events.RunStartedMsg{
			RunID:         w.RunID,
			ParentSession: w.ParentSession,
			Task:          w.Task,
			StartedAt:     w.StartedAt,
		}, nil
	case MsgPlanReady:
		w, err := DecodeData[WirePlanReady](msg)
		if err != nil {
			return nil, err
		}
		agents := make([]events.AgentInfo, len(w.Agents))
		for i, a := range w.Agents {
			agents[i] = events.AgentInfo{ID: a.ID, Name: a.Name, Role: a.Role}
		}
		return events.PlanReadyMsg{RunID: w.RunID, Agents: agents}, nil
	case MsgWorktreeReady:
		w, err := DecodeData[WireWorktreeReady](msg)
		if err != nil {
			return nil, err
		}
		return events.WorktreeReadyMsg{
			RunID:   w.RunID,
			AgentID: w.AgentID,
			Branch:  w.Branch,
			Path:    w.Path,
		}, nil
	case MsgAgentStarted:
		w, err := DecodeData[WireAgentStarted](msg)
		if err != nil {
			return nil, err
		}
		return events.AgentStartedMsg{RunID: w.RunID, AgentID: w.AgentID}, nil
	case MsgAgentSession:
		w, err := DecodeData[WireAgentSession](msg)
		if err != nil {
			return nil, err
		}
		return events.AgentSessionMsg{
			RunID:       w.RunID,
			AgentID:     w.AgentID,
			SessionID:   w.SessionID,
			RolloutPath: w.RolloutPath,
		}, nil
	case MsgAgentFinished:
		w, err := DecodeData[WireAgentFinished](msg)
		if err != nil {
			return nil, err
		}
		return events.AgentFinishedMsg{
			RunID:      w.RunID,
			AgentID:    w.AgentID,
			SessionID:  w.SessionID,
			CommitHash: w.CommitHash,
			Branch:     w.Branch,
		}, nil
	case MsgAgentFailed:
		w, err := DecodeData[WireAgentFailed](msg)
		if err != nil {
			return nil, err
		}
		var failErr error
		if w.Error != "" {
			failErr = errors.New(w.Error)
		}
		return events.AgentFailedMsg{
			RunID:   w.RunID,
			AgentID: w.AgentID,
			Stage:   w.Stage,
			Err:     failErr,
		}, nil
	case MsgAgentSkipped:
		w, err := DecodeData[WireAgentSkipped](msg)
		if err != nil {
			return nil, err
		}
		return events.AgentSkippedMsg{RunID: w.RunID, AgentID: w.AgentID}, nil
	case MsgRunFinished:
		w, err := DecodeData[WireRunFinished](msg)
		if err != nil {
			return nil, err
		}
		var runErr error
		if w.Error != "" {
			runErr = errors.New(w.Error)
		}
		return events.RunFinishedMsg{
			RunID:     w.RunID,
			Succeeded: w.Succeeded,
			Failed:    w.Failed,
			Skipped:   w.Skipped,
			Cancelled: w.Cancelled,
			Err:       runErr,
		}, nil
	case MsgProgress:
		w, err := DecodeData[WireProgress](msg)
		if err != nil {
			return nil, err
		}
		return events.ProgressMsg{RunID: w.RunID, Line: w.Line}, nil
	default:
		return nil, nil
	}
}
