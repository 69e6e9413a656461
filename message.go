package blario

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies who a chat message belongs to.
type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageAgent  MessageType = "agent"
	MessageSystem MessageType = "system"
)

// StreamingID is the reserved message ID of the in-progress agent reply.
// Snapshots carry at most one message with this ID and it is always last.
const StreamingID = "streaming"

// Attachment references a file attached to a user message.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Mime string `json:"mime"`
}

// ChatMessage is one entry in the visible conversation. User messages are
// immutable from creation; agent messages start as a streaming record that is
// replaced by a finalized one; system messages are transient and never
// survive a restart.
type ChatMessage struct {
	ID          string       `json:"id"`
	Type        MessageType  `json:"type"`
	Content     string       `json:"content"`
	Timestamp   int64        `json:"timestamp"` // ms epoch
	Attachments []Attachment `json:"attachments,omitempty"`
	AgentID     string       `json:"agentId,omitempty"`
	AgentName   string       `json:"agentName,omitempty"`
}

// newMessage builds a finalized message with a fresh ID and current time.
func newMessage(typ MessageType, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Type:      typ,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Session is the persisted shape of one conversation.
type Session struct {
	SessionID string        `json:"sessionId"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

// transcript holds the conversation. Finalized messages live in msgs; the
// in-progress agent reply lives apart in the streaming accumulator, so the
// list can never hold two streaming records and the streaming record is
// always last in a snapshot. Not safe for concurrent use; the Client
// serialises access under its mutex.
type transcript struct {
	msgs      []ChatMessage
	streaming strings.Builder
	live      bool // streaming accumulator holds an open reply
}

// append adds a finalized message at the tail, before any streaming record.
func (t *transcript) append(m ChatMessage) {
	t.msgs = append(t.msgs, m)
}

// appendChunk feeds one chunk of the in-progress agent reply.
func (t *transcript) appendChunk(text string) {
	t.streaming.WriteString(text)
	t.live = true
}

// finalize closes the streaming reply, discarding the accumulator in favor of
// the authoritative final text, and returns the finalized message.
func (t *transcript) finalize(finalText string) ChatMessage {
	t.streaming.Reset()
	t.live = false
	m := newMessage(MessageAgent, finalText)
	t.msgs = append(t.msgs, m)
	return m
}

// discardStreaming drops any open reply without finalizing it.
func (t *transcript) discardStreaming() {
	t.streaming.Reset()
	t.live = false
}

// snapshot returns a copy of the visible list: finalized messages plus, last,
// the streaming record if a reply is open.
func (t *transcript) snapshot() []ChatMessage {
	n := len(t.msgs)
	if t.live {
		n++
	}
	out := make([]ChatMessage, 0, n)
	out = append(out, t.msgs...)
	if t.live {
		out = append(out, ChatMessage{
			ID:        StreamingID,
			Type:      MessageAgent,
			Content:   t.streaming.String(),
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return out
}

// persistable returns the messages worth writing to storage: everything
// finalized except transient system entries. The open streaming reply is
// never persisted.
func (t *transcript) persistable() []ChatMessage {
	out := make([]ChatMessage, 0, len(t.msgs))
	for _, m := range t.msgs {
		if m.Type == MessageSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// restore seeds the transcript from stored history. System messages are
// transient and dropped on load.
func (t *transcript) restore(msgs []ChatMessage) {
	t.msgs = t.msgs[:0]
	for _, m := range msgs {
		if m.Type == MessageSystem || m.ID == StreamingID {
			continue
		}
		t.msgs = append(t.msgs, m)
	}
}

// clear wipes the conversation.
func (t *transcript) clear() {
	t.msgs = nil
	t.discardStreaming()
}
