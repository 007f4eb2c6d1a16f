package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/internal/registry"
)

// replayLimit bounds how many event lines a new watcher gets replayed.
const replayLimit = 1024

// ControlServer serves run control requests over a Unix domain socket and
// streams round events to watch subscribers. One server runs per run root;
// it lives for the lifetime of the owning process.
type ControlServer struct {
	registry *registry.Registry
	sockPath string
	listener net.Listener

	mu       sync.Mutex
	buffered [][]byte
	watchers []*watcherConn
	closed   bool
}

type watcherConn struct {
	conn   net.Conn
	writer *bufio.Writer
	mu     sync.Mutex
}

func (w *watcherConn) writeLine(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	return w.writer.Flush()
}

// NewControlServer builds a server over the given registry. Start must be
// called before it accepts connections.
func NewControlServer(reg *registry.Registry, runRoot string) *ControlServer {
	return &ControlServer{
		registry: reg,
		sockPath: SocketPath(runRoot),
	}
}

// SocketPath returns the socket file this server listens on.
func (s *ControlServer) SocketPath() string { return s.sockPath }

// Start binds the socket and begins accepting connections. A stale socket
// file from a dead process is removed first.
func (s *ControlServer) Start() error {
	os.Remove(s.sockPath)
	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("control socket %s: %w", s.sockPath, err)
	}
	s.listener = ln
	go s.acceptLoop()
	debug.LogKV("session", "control socket listening", "path", s.sockPath)
	return nil
}

// Close stops the listener, disconnects watchers, and removes the socket.
func (s *ControlServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watchers := make([]*watcherConn, len(s.watchers))
	copy(watchers, s.watchers)
	s.watchers = nil
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for _, w := range watchers {
		w.conn.Close()
	}
	os.Remove(s.sockPath)
	return err
}

// Publish forwards one round event to every watcher and keeps it for
// replay. Events that have no wire form are ignored.
func (s *ControlServer) Publish(ev any) {
	msgType, payload, ok := WireFromEvent(ev)
	if !ok {
		return
	}
	line, err := EncodeMsg(msgType, payload)
	if err != nil {
		debug.LogKV("session", "encode event failed", "type", msgType, "error", err.Error())
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.buffered) >= replayLimit {
		s.buffered = s.buffered[1:]
	}
	s.buffered = append(s.buffered, line)
	watchers := make([]*watcherConn, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, w := range watchers {
		if err := w.writeLine(line); err != nil {
			s.removeWatcher(w)
			w.conn.Close()
		}
	}
}

func (s *ControlServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		go s.handleConn(conn)
	}
}

func (s *ControlServer) handleConn(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		conn.Close()
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		s.reply(conn, Response{OK: false, Error: "malformed request"})
		conn.Close()
		return
	}

	switch req.Op {
	case OpStatus:
		s.reply(conn, Response{OK: true, Runs: s.registry.Active()})
		conn.Close()

	case OpCancel:
		desc, ok := s.registry.CancelSession(req.SessionID)
		if !ok {
			s.reply(conn, Response{OK: false, Error: fmt.Sprintf("no active run for session %s", req.SessionID)})
		} else {
			s.reply(conn, Response{OK: true, Cancelled: []registry.RunDescriptor{desc}})
		}
		conn.Close()

	case OpCancelAll:
		s.reply(conn, Response{OK: true, Cancelled: s.registry.CancelAll()})
		conn.Close()

	case OpWatch:
		s.handleWatch(conn, scanner)

	default:
		s.reply(conn, Response{OK: false, Error: fmt.Sprintf("unknown op %q", req.Op)})
		conn.Close()
	}
}

func (s *ControlServer) reply(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	conn.Write(append(data, '\n'))
}

// handleWatch acknowledges the subscription, replays buffered events, sends
// the live marker, and then streams until the client hangs up.
func (s *ControlServer) handleWatch(conn net.Conn, scanner *bufio.Scanner) {
	w := &watcherConn{conn: conn, writer: bufio.NewWriter(conn)}

	ack, err := json.Marshal(Response{OK: true})
	if err != nil {
		conn.Close()
		return
	}
	if err := w.writeLine(append(ack, '\n')); err != nil {
		conn.Close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	replay := make([][]byte, len(s.buffered))
	copy(replay, s.buffered)
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	for _, line := range replay {
		if err := w.writeLine(line); err != nil {
			s.removeWatcher(w)
			conn.Close()
			return
		}
	}
	liveLine, _ := EncodeMsg(MsgLive, nil)
	if err := w.writeLine(liveLine); err != nil {
		s.removeWatcher(w)
		conn.Close()
		return
	}

	// Block until the client disconnects; watchers never send again.
	for scanner.Scan() {
	}
	s.removeWatcher(w)
	conn.Close()
}

func (s *ControlServer) removeWatcher(w *watcherConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.watchers {
		if c == w {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			return
		}
	}
}
