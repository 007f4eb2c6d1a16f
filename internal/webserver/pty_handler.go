package webserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/coder/websocket"
	"github.com/creack/pty"

	"github.com/agusx1211/swarmix/internal/worktree"
)

// Frame types exchanged over /ws/terminal. Byte payloads ride base64 in the
// Data field so arbitrary terminal output survives JSON.
const (
	termFrameInput  = "input"
	termFrameOutput = "output"
	termFrameResize = "resize"
	termFrameExit   = "exit"
)

const (
	termDefaultRows = 24
	termDefaultCols = 80
	termReadBufLen  = 4096
)

type terminalWSMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
	Code int    `json:"code,omitempty"`
}

// terminalSession is one interactive shell bridged onto a WebSocket.
type terminalSession struct {
	ws   *websocket.Conn
	ctx  context.Context
	cmd  *exec.Cmd
	ptmx *os.File

	writeMu sync.Mutex
	once    sync.Once
}

// handleTerminalWebSocket opens a shell over the WebSocket. run and agent
// query parameters start it inside that agent's worktree; without them it
// starts in the repository root.
func (srv *Server) handleTerminalWebSocket(w http.ResponseWriter, r *http.Request) {
	workDir, err := srv.terminalWorkDir(r.URL.Query().Get("run"), r.URL.Query().Get("agent"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	ws, err := acceptWS(w, r)
	if err != nil {
		return
	}
	defer ws.CloseNow()

	shell := strings.TrimSpace(os.Getenv("SHELL"))
	if shell == "" {
		shell = "/bin/sh"
	}
	attrs := &syscall.SysProcAttr{Setpgid: true}
	cmd := exec.Command(shell)
	cmd.Dir = workDir
	cmd.SysProcAttr = attrs

	sess := &terminalSession{ws: ws, ctx: r.Context(), cmd: cmd}

	sess.ptmx, err = pty.StartWithAttrs(cmd, nil, attrs)
	if err != nil {
		_ = sess.send(terminalWSMessage{Type: termFrameExit, Code: 1})
		ws.Close(websocket.StatusInternalError, "pty start failed")
		return
	}
	_ = pty.Setsize(sess.ptmx, &pty.Winsize{Rows: termDefaultRows, Cols: termDefaultCols})
	defer sess.stop()

	go sess.pumpOutput()
	go sess.awaitExit()
	sess.readFrames()
}

func (s *terminalSession) send(msg terminalWSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(s.ctx, wsWriteTimeout)
	defer cancel()
	return s.ws.Write(ctx, websocket.MessageText, data)
}

// stop tears the shell down: pty closed, process group killed.
func (s *terminalSession) stop() {
	s.once.Do(func() {
		_ = s.ptmx.Close()
		if p := s.cmd.Process; p != nil && p.Pid > 0 {
			_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
		}
	})
}

// pumpOutput forwards pty output to the socket as base64 frames.
func (s *terminalSession) pumpOutput() {
	buf := make([]byte, termReadBufLen)
	for {
		n, readErr := s.ptmx.Read(buf)
		if n > 0 {
			frame := terminalWSMessage{
				Type: termFrameOutput,
				Data: base64.StdEncoding.EncodeToString(buf[:n]),
			}
			if err := s.send(frame); err != nil {
				s.stop()
				s.ws.CloseNow()
				return
			}
		}
		if readErr != nil {
			return
		}
	}
}

// awaitExit reports the shell's exit code and closes the socket.
func (s *terminalSession) awaitExit() {
	err := s.cmd.Wait()
	_ = s.send(terminalWSMessage{Type: termFrameExit, Code: exitCode(err)})
	s.stop()
	s.ws.Close(websocket.StatusNormalClosure, "process exited")
}

// readFrames feeds client input and resize requests to the pty until the
// socket drops.
func (s *terminalSession) readFrames() {
	for {
		_, data, err := s.ws.Read(s.ctx)
		if err != nil {
			s.stop()
			return
		}

		var msg terminalWSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case termFrameInput:
			raw, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil || len(raw) == 0 {
				continue
			}
			if _, err := s.ptmx.Write(raw); err != nil {
				s.stop()
				return
			}

		case termFrameResize:
			if msg.Cols <= 0 || msg.Rows <= 0 {
				continue
			}
			_ = pty.Setsize(s.ptmx, &pty.Winsize{
				Rows: clampToUint16(msg.Rows),
				Cols: clampToUint16(msg.Cols),
			})
		}
	}
}

// terminalWorkDir resolves the shell's starting directory. Both ids come
// straight from the request, so the worktree must exist on disk before a
// shell starts in it.
func (srv *Server) terminalWorkDir(runID, agentID string) (string, error) {
	runID, agentID = strings.TrimSpace(runID), strings.TrimSpace(agentID)
	switch {
	case runID == "" && agentID == "":
		if root := strings.TrimSpace(srv.repoRoot); root != "" {
			return root, nil
		}
		if cwd, err := os.Getwd(); err == nil && strings.TrimSpace(cwd) != "" {
			return cwd, nil
		}
		return ".", nil
	case runID == "" || agentID == "":
		return "", errors.New("terminal requires both run and agent")
	}

	path := worktree.PathFor(srv.repoRoot, runID, agentID)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return "", errors.New("agent worktree not found")
	}
	return path, nil
}

func clampToUint16(v int) uint16 {
	switch {
	case v < 1:
		return 1
	case v > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
