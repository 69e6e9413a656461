package blario

import "sync"

// EventType selects which session events a handler receives.
type EventType string

const (
	// EventOpen fires when the socket reaches the connected state.
	EventOpen EventType = "open"
	// EventClose fires when the socket closes, cleanly or not.
	EventClose EventType = "close"
	// EventError fires on transport errors and server error frames.
	EventError EventType = "error"
	// EventMessage fires for every visible chat message mutation: new
	// system/user messages, streaming updates, and finalized replies.
	EventMessage EventType = "message"
	// EventState fires on every ConnectionState transition. Prefer this
	// over polling ConnectionState.
	EventState EventType = "state"
)

// Event is delivered to subscribed handlers. Fields beyond Type are
// populated per event type.
type Event struct {
	Type    EventType
	State   ConnectionState // EventState, EventOpen, EventClose
	Message *ChatMessage    // EventMessage
	Err     error           // EventError
	Code    int             // EventClose: close status code, 0 if unknown
	Clean   bool            // EventClose: protocol-level clean close
}

// Handler receives session events. Handlers run on the session's dispatch
// goroutine and must not block.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// eventBus fans events out to subscribers. Handlers for one event type run
// in subscription order, all of them, no short-circuiting. Unsubscribe is
// idempotent.
type eventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[EventType][]subscription
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[EventType][]subscription)}
}

// subscribe registers a handler and returns its unsubscribe function.
func (b *eventBus) subscribe(t EventType, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// emit invokes all handlers for the event's type, in order, outside the
// bus lock.
func (b *eventBus) emit(ev Event) {
	b.mu.Lock()
	list := b.subs[ev.Type]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.fn
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
