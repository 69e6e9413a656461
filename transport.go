package blario

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrNotConnected is returned by a transport send when no socket is open.
// Callers queue the frame instead of surfacing this to the user.
var ErrNotConnected = errors.New("transport: not connected")

var errTransportClosed = errors.New("transport: closed")

// transportHooks receive raw socket events, uninterpreted. Hooks fire from
// the transport's read goroutine.
type transportHooks struct {
	onOpen    func()
	onMessage func(data []byte)
	onClose   func(code int, clean bool, err error)
}

// transport owns exactly one socket connection attempt. A transport is used
// for a single open/close cycle; reconnection builds a fresh one.
type transport interface {
	// open dials and, on success, fires onOpen and starts delivering
	// inbound frames to onMessage. A dial failure is returned to the
	// caller and fires no hooks.
	open(ctx context.Context) error

	// send transmits one text frame, fire-and-forget.
	send(data []byte) error

	// close shuts the socket down cleanly and suppresses the onClose
	// hook for this closure.
	close() error
}

// transportFactory builds a transport for one connection attempt.
type transportFactory func(url string, hooks transportHooks) transport

// wsTransport is the production transport on gobwas/ws.
type wsTransport struct {
	url   string
	hooks transportHooks

	mu          sync.Mutex
	conn        net.Conn
	intentional bool
}

func newWSTransport(url string, hooks transportHooks) transport {
	return &wsTransport{url: url, hooks: hooks}
}

func (t *wsTransport) open(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, t.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	if t.intentional {
		t.mu.Unlock()
		conn.Close()
		return errTransportClosed
	}
	t.conn = conn
	t.mu.Unlock()

	t.hooks.onOpen()
	go t.readLoop(conn)
	return nil
}

func (t *wsTransport) send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	return wsutil.WriteClientText(t.conn, data)
}

func (t *wsTransport) close() error {
	t.mu.Lock()
	if t.intentional {
		t.mu.Unlock()
		return nil
	}
	t.intentional = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	wsutil.WriteClientMessage(conn, ws.OpClose, body)
	return conn.Close()
}

func (t *wsTransport) readLoop(conn net.Conn) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			t.mu.Lock()
			intentional := t.intentional
			t.conn = nil
			t.mu.Unlock()
			if intentional {
				return
			}

			var ce wsutil.ClosedError
			if errors.As(err, &ce) {
				clean := ce.Code == ws.StatusNormalClosure
				t.hooks.onClose(int(ce.Code), clean, err)
			} else {
				t.hooks.onClose(0, false, err)
			}
			return
		}
		t.hooks.onMessage(data)
	}
}
