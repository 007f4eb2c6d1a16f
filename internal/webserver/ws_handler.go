package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agusx1211/swarmix/internal/session"
)

// wsWriteTimeout bounds each outbound frame; a stalled reader drops the
// connection instead of wedging the handler.
const wsWriteTimeout = 15 * time.Second

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// acceptWS upgrades to a WebSocket, skipping origin checks for the embedded
// browser client.
func acceptWS(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
}

// wsSender serializes frame writes. The live-marker callback fires on the
// watch goroutine while the event loop writes from its own, so every frame
// goes through one mutex.
type wsSender struct {
	ws  *websocket.Conn
	ctx context.Context
	mu  sync.Mutex
}

func (s *wsSender) send(msgType string, data any) error {
	raw, err := json.Marshal(wsEnvelope{Type: msgType, Data: data})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(s.ctx, wsWriteTimeout)
	defer cancel()
	return s.ws.Write(ctx, websocket.MessageText, raw)
}

// handleEventsWebSocket bridges the control socket's event stream onto a
// WebSocket: buffered replay first, then the live marker, then live events.
func (srv *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := acceptWS(w, r)
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()
	out := &wsSender{ws: ws, ctx: ctx}

	eventCh := make(chan any, 256)
	errCh := make(chan error, 1)
	go func() {
		errCh <- session.NewClient(srv.runRoot).Watch(ctx, eventCh, func() {
			_ = out.send(session.MsgLive, nil)
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				if streamErr := <-errCh; streamErr != nil && !errors.Is(streamErr, context.Canceled) {
					_ = out.send("error", errorResponse{Error: streamErr.Error()})
				}
				ws.Close(websocket.StatusNormalClosure, "stream ended")
				return
			}
			msgType, payload, ok := session.WireFromEvent(event)
			if !ok {
				continue
			}
			if err := out.send(msgType, payload); err != nil {
				return
			}
		}
	}
}
