package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/agusx1211/swarmix/internal/registry"
)

// ErrNoActiveRun means nothing is listening on the control socket: either
// the file does not exist or a stale socket refused the connection.
var ErrNoActiveRun = errors.New("no active run")

const (
	dialTimeout = 2 * time.Second

	clientScannerInitialBuffer = 64 * 1024
	clientScannerMaxBuffer     = 1024 * 1024
)

// Client talks to a ControlServer over its Unix socket.
type Client struct {
	sockPath string
}

// NewClient returns a client for the run root's control socket.
func NewClient(runRoot string) *Client {
	return &Client{sockPath: SocketPath(runRoot)}
}

// Status returns the descriptors of all active runs.
func (c *Client) Status(ctx context.Context) ([]registry.RunDescriptor, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpStatus})
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Cancel signals the active run for sessionID and returns its descriptor.
func (c *Client) Cancel(ctx context.Context, sessionID string) (registry.RunDescriptor, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpCancel, SessionID: sessionID})
	if err != nil {
		return registry.RunDescriptor{}, err
	}
	if len(resp.Cancelled) == 0 {
		return registry.RunDescriptor{}, fmt.Errorf("cancel reply carried no run")
	}
	return resp.Cancelled[0], nil
}

// CancelAll signals every active run and returns their descriptors.
func (c *Client) CancelAll(ctx context.Context) ([]registry.RunDescriptor, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpCancelAll})
	if err != nil {
		return nil, err
	}
	return resp.Cancelled, nil
}

// Watch subscribes to the event stream and forwards decoded events on
// eventCh until the server closes the connection or ctx is cancelled.
// onLive, when non-nil, fires once the replay is done and the stream is
// live. The channel is closed when Watch returns.
func (c *Client) Watch(ctx context.Context, eventCh chan<- any, onLive func()) error {
	defer close(eventCh)

	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the read loop when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := writeRequest(conn, Request{Op: OpWatch}); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, clientScannerInitialBuffer), clientScannerMaxBuffer)

	// First line is the subscription ack.
	if !scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading watch ack: %w", err)
		}
		return fmt.Errorf("connection closed before watch ack")
	}
	var ack Response
	if err := json.Unmarshal(scanner.Bytes(), &ack); err != nil {
		return fmt.Errorf("decoding watch ack: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("watch rejected: %s", ack.Error)
	}

	for scanner.Scan() {
		msg, err := DecodeMsg(scanner.Bytes())
		if err != nil {
			continue
		}
		if msg.Type == MsgLive {
			if onLive != nil {
				onLive()
			}
			continue
		}
		ev, err := EventFromWire(msg)
		if err != nil || ev == nil {
			continue
		}
		select {
		case eventCh <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := writeRequest(conn, req); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, clientScannerInitialBuffer), clientScannerMaxBuffer)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading reply: %w", err)
		}
		return nil, fmt.Errorf("connection closed before reply")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	return &resp, nil
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.sockPath, dialTimeout)
	if err != nil {
		if isNoServer(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoActiveRun, c.sockPath)
		}
		return nil, fmt.Errorf("connecting to control socket: %w", err)
	}
	return conn, nil
}

func writeRequest(conn net.Conn, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	return nil
}

// isNoServer distinguishes "nothing is serving" from real socket trouble.
func isNoServer(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
