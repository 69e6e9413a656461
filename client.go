// Package blario provides a Go client for the Blario support-chat backend.
// It maintains a reconnecting WebSocket session, reassembles streaming agent
// replies into chat messages, and exposes the conversation to host
// applications through snapshots and event subscriptions.
package blario

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/blario/blario-go-sdk/wire"
)

// typingClearDelay bounds how long the typing indicator can stay on without
// a fresh signal; recovers from a lost stop frame.
var typingClearDelay = 10 * time.Second

// Option configures a Client at construction.
type Option func(*Client)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithStore sets the history store. Defaults to an in-memory store.
func WithStore(s Store) Option {
	return func(c *Client) { c.store = s }
}

// WithQueueLimit bounds the outbound queue used while disconnected. When
// full, the oldest queued message is dropped with a warning.
func WithQueueLimit(n int) Option {
	return func(c *Client) { c.queue = newSendQueue(n) }
}

// withTransportFactory swaps the socket implementation. Test seam.
func withTransportFactory(f transportFactory) Option {
	return func(c *Client) { c.newTransport = f }
}

// Client is one support-chat session: one room, one connection at a time.
// Host applications own the Client and read the conversation through
// Messages, ConnectionState and Subscribe; they never mutate it directly.
// All methods are safe for concurrent use.
type Client struct {
	cfg          Config
	log          *slog.Logger
	store        Store
	bus          *eventBus
	newTransport transportFactory

	mu             sync.Mutex
	state          ConnectionState
	tr             transport
	gen            int // connection generation; stale socket events are dropped
	recon          *reconnector
	queue          *sendQueue
	transcript     transcript
	typing         bool
	typingTimer    *time.Timer
	reconnectTimer *time.Timer
	ctx            context.Context // dial context, set by Connect
}

// New builds a Client for one chat room. The configuration is fixed for the
// life of the Client; retrying after a failed session means building a new
// one. Stored history for the room is loaded immediately.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:          cfg,
		bus:          newEventBus(),
		newTransport: newWSTransport,
		state:        StateDisconnected,
		recon:        newReconnector(cfg.ReconnectDelay, cfg.MaxReconnectDelay, cfg.MaxReconnectAttempts),
		queue:        newSendQueue(DefaultQueueLimit),
		ctx:          context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}

	if msgs, err := c.store.Messages(); err != nil {
		c.log.Warn("failed to load chat history", "error", err)
	} else {
		c.transcript.restore(msgs)
	}

	sess, err := c.store.Session()
	if err != nil {
		c.log.Warn("failed to load chat session", "error", err)
	}
	if sess == nil {
		now := time.Now().UnixMilli()
		if err := c.store.SaveSession(Session{
			SessionID: cfg.RoomID,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			c.log.Warn("failed to save chat session", "error", err)
		}
	}

	return c, nil
}

// RoomID returns the identifier scoping this conversation.
func (c *Client) RoomID() string { return c.cfg.RoomID }

// ConnectionState returns the current state. Subscribing to EventState is
// preferred; this snapshot exists for polling-style consumers.
func (c *Client) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the visible conversation. If an agent reply is
// streaming, its record carries ID StreamingID and is the last element.
func (c *Client) Messages() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.snapshot()
}

// IsTyping reports whether the agent-typing indicator is on.
func (c *Client) IsTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function. Handlers for a type run in subscription order;
// calling the returned function more than once is harmless.
func (c *Client) Subscribe(t EventType, fn Handler) func() {
	return c.bus.subscribe(t, fn)
}

// Connect opens the WebSocket connection. A warning is logged and nothing
// happens if a connection is already open or being opened. The context is
// used for this dial and for automatic reconnect dials.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		c.log.Warn("already connected")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	st := StateConnecting
	if c.recon.retrying() {
		st = StateReconnecting
	}
	evs := c.setStateLocked(st)
	c.mu.Unlock()
	// Emit before dialing so the connecting transition is observed ahead of
	// whatever the socket reports.
	c.emit(evs)

	c.mu.Lock()
	if c.state == st {
		c.dialLocked()
	}
	c.mu.Unlock()
}

// Disconnect shuts the session down: it closes the socket cleanly, cancels
// any pending reconnect attempt and the typing auto-clear timer, and moves
// the state to disconnected. Idempotent. Socket events from the closed
// connection are ignored, so a racing unclean close cannot revive the
// session.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++ // everything in flight is now stale
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopTypingLocked()
	if c.tr != nil {
		if err := c.tr.close(); err != nil {
			c.log.Warn("error closing socket", "error", err)
		}
		c.tr = nil
	}
	evs := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	c.emit(evs)
}

// Send creates the user's message optimistically, persists it, and either
// transmits it immediately or queues it until the connection is back. It
// never fails from the caller's perspective; the returned message is the
// record appended to the conversation.
func (c *Client) Send(content string, attachments ...Attachment) ChatMessage {
	c.mu.Lock()
	m := newMessage(MessageUser, content)
	m.Attachments = attachments
	c.transcript.append(m)
	c.persistLocked()

	frame, err := wire.EncodeChatMessage(content, c.cfg.UserID)
	if err != nil {
		c.log.Warn("failed to encode chat message", "error", err)
	} else {
		c.enqueueOrSendLocked(frame)
	}
	c.mu.Unlock()

	c.emit([]Event{{Type: EventMessage, Message: &m}})
	return m
}

// ClearHistory wipes the conversation and its stored copy.
func (c *Client) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.clear()
	if err := c.store.Clear(); err != nil {
		c.log.Warn("failed to clear chat history", "error", err)
	}
}

// --- Connection management ---

// dialLocked starts a connection attempt on a fresh transport. Socket events
// carry the generation they belong to; anything from an older generation is
// discarded.
func (c *Client) dialLocked() {
	c.gen++
	gen := c.gen
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	url, err := c.cfg.socketURL()
	if err != nil {
		c.log.Warn("cannot build socket URL", "error", err)
		go c.connectFailed(gen, err)
		return
	}

	tr := c.newTransport(url, transportHooks{
		onOpen:    func() { c.handleOpen(gen) },
		onMessage: func(data []byte) { c.handleFrame(gen, data) },
		onClose:   func(code int, clean bool, err error) { c.handleClose(gen, code, clean, err) },
	})
	c.tr = tr
	ctx := c.ctx

	go func() {
		if err := tr.open(ctx); err != nil {
			c.connectFailed(gen, err)
		}
	}()
}

// connectFailed treats a dial failure like an unclean close: it feeds the
// reconnection policy instead of surfacing an error to the caller.
func (c *Client) connectFailed(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.log.Warn("connection attempt failed", "error", err)
	c.tr = nil
	evs := []Event{{Type: EventError, Err: err}}
	evs = append(evs, c.scheduleReconnectLocked()...)
	c.mu.Unlock()
	c.emit(evs)
}

func (c *Client) handleOpen(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.recon.reset()
	evs := c.setStateLocked(StateConnected)
	c.log.Info("connected", "room_id", c.cfg.RoomID)

	// Flush messages queued while offline, in submission order. A send
	// failing mid-flush is logged and skipped; the close event that
	// follows will drive recovery.
	for _, frame := range c.queue.drain() {
		if err := c.tr.send(frame); err != nil {
			c.log.Warn("failed to flush queued message", "error", err)
		}
	}
	c.mu.Unlock()

	evs = append(evs, Event{Type: EventOpen, State: StateConnected})
	c.emit(evs)
}

func (c *Client) handleClose(gen, code int, clean bool, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.tr = nil
	c.log.Info("connection closed", "code", code, "clean", clean)

	evs := []Event{{Type: EventClose, Code: code, Clean: clean, State: c.state}}
	if clean {
		evs = append(evs, c.setStateLocked(StateDisconnected)...)
	} else {
		if err != nil {
			evs = append(evs, Event{Type: EventError, Err: err})
		}
		evs = append(evs, c.scheduleReconnectLocked()...)
	}
	c.mu.Unlock()
	c.emit(evs)
}

// scheduleReconnectLocked applies the backoff policy after an unclean close
// or failed dial: either arms the reconnect timer or, once attempts are
// exhausted, fails the session for good.
func (c *Client) scheduleReconnectLocked() []Event {
	if c.recon.exhausted() {
		c.log.Error("reconnect attempts exhausted",
			"attempts", c.cfg.MaxReconnectAttempts)
		return c.setStateLocked(StateFailed)
	}

	delay := c.recon.nextDelay()
	gen := c.gen
	c.log.Info("reconnecting",
		"delay", delay,
		"attempt", c.recon.attempt,
		"max_attempts", c.cfg.MaxReconnectAttempts)

	evs := c.setStateLocked(StateReconnecting)
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, func() { c.redial(gen) })
	return evs
}

func (c *Client) redial(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.dialLocked()
	c.mu.Unlock()
}

// setStateLocked transitions the connection state, returning the state event
// to emit once the lock is released. No-op transitions emit nothing.
func (c *Client) setStateLocked(s ConnectionState) []Event {
	if c.state == s {
		return nil
	}
	c.state = s
	return []Event{{Type: EventState, State: s}}
}

// --- Outbound path ---

// enqueueOrSendLocked transmits immediately when connected, otherwise
// buffers. Never fails from the caller's perspective.
func (c *Client) enqueueOrSendLocked(frame []byte) {
	if c.state == StateConnected && c.tr != nil {
		err := c.tr.send(frame)
		if err == nil {
			return
		}
		c.log.Warn("send failed, queueing message", "error", err)
	} else {
		c.log.Warn("not connected, message queued", "state", c.state.String())
	}
	if c.queue.push(frame) {
		c.log.Warn("outbound queue full, dropped oldest message",
			"limit", c.queue.limit)
	}
}

// --- Inbound path ---

// handleFrame classifies one raw server frame and updates the conversation.
// Unparseable frames are dropped with a warning; nothing a server sends can
// kill the session.
func (c *Client) handleFrame(gen int, data []byte) {
	f, err := wire.DecodeInbound(data)
	if err != nil {
		c.log.Warn("dropping malformed frame", "error", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	var evs []Event
	switch f.Type {
	case wire.TypeInfo:
		// Transient system message; visible but never persisted.
		m := newMessage(MessageSystem, f.Message)
		c.transcript.append(m)
		evs = append(evs, Event{Type: EventMessage, Message: &m})

	case wire.TypeUserEcho:
		// The optimistic copy is already displayed.
		c.log.Debug("message acknowledged by server", "message", f.Message)

	case wire.TypeAgentTyping:
		if f.IsTyping {
			c.typing = true
			if c.typingTimer != nil {
				c.typingTimer.Stop()
			}
			c.typingTimer = time.AfterFunc(typingClearDelay, c.typingExpired)
		} else {
			c.stopTypingLocked()
		}

	case wire.TypeAgentChunk:
		c.transcript.appendChunk(f.ChunkText())
		snap := c.transcript.snapshot()
		m := snap[len(snap)-1]
		evs = append(evs, Event{Type: EventMessage, Message: &m})

	case wire.TypeAgentComplete:
		// The server's final text is authoritative; the accumulator is
		// discarded in its favor.
		m := c.transcript.finalize(f.Message)
		c.stopTypingLocked()
		c.persistLocked()
		evs = append(evs, Event{Type: EventMessage, Message: &m})

	case wire.TypeError:
		errText := f.ErrorText()
		m := newMessage(MessageSystem, "Error: "+errText)
		c.transcript.append(m)
		c.persistLocked()
		evs = append(evs,
			Event{Type: EventError, Err: errors.New(errText)},
			Event{Type: EventMessage, Message: &m})

	default:
		c.log.Warn("dropping frame of unknown type", "type", f.Type)
	}
	c.mu.Unlock()
	c.emit(evs)
}

func (c *Client) typingExpired() {
	c.mu.Lock()
	c.typing = false
	c.typingTimer = nil
	c.mu.Unlock()
}

// stopTypingLocked clears the typing flag and cancels the auto-clear timer.
func (c *Client) stopTypingLocked() {
	c.typing = false
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
}

// persistLocked writes the durable part of the conversation and bumps the
// session's update time. Storage failures are logged, never propagated.
func (c *Client) persistLocked() {
	if err := c.store.SaveMessages(c.transcript.persistable()); err != nil {
		c.log.Warn("failed to persist chat history", "error", err)
	}
	sess, err := c.store.Session()
	if err != nil || sess == nil {
		return
	}
	sess.UpdatedAt = time.Now().UnixMilli()
	if err := c.store.SaveSession(*sess); err != nil {
		c.log.Warn("failed to persist chat session", "error", err)
	}
}

// emit delivers staged events outside the client lock, in order.
func (c *Client) emit(evs []Event) {
	for _, ev := range evs {
		c.bus.emit(ev)
	}
}
