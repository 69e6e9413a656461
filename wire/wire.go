// Package wire defines the JSON frame types for the Blario support-chat
// WebSocket protocol. Both directions share the "type" discriminator; the
// client only ever sends chat_message frames, the server sends the rest.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frame type discriminators.
const (
	TypeInfo          = "info"
	TypeUserEcho      = "user_message"
	TypeAgentTyping   = "agent_typing"
	TypeAgentChunk    = "agent_message_chunk"
	TypeAgentComplete = "agent_message_complete"
	TypeError         = "error"

	TypeChatMessage = "chat_message" // client -> server
)

// ErrEmptyType is returned when an inbound frame has no "type" field.
var ErrEmptyType = errors.New("wire: frame missing type")

// TextPart is one element of an agent_message_chunk content array.
type TextPart struct {
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Annotations []json.RawMessage `json:"annotations,omitempty"`
}

// Inbound is a decoded server frame. Which fields are meaningful depends on
// Type:
//
//	info                   Message
//	user_message           Message, UserID
//	agent_typing           IsTyping
//	agent_message_chunk    Content
//	agent_message_complete Message
//	error                  Message, Details
type Inbound struct {
	Type     string     `json:"type"`
	Message  string     `json:"message,omitempty"`
	UserID   string     `json:"user_id,omitempty"`
	IsTyping bool       `json:"is_typing,omitempty"`
	Content  []TextPart `json:"content,omitempty"`
	Details  string     `json:"details,omitempty"`
}

// ChunkText concatenates the text of all content parts in array order.
func (f Inbound) ChunkText() string {
	var b strings.Builder
	for _, p := range f.Content {
		b.WriteString(p.Text)
	}
	return b.String()
}

// ErrorText joins Message and Details for error frames.
func (f Inbound) ErrorText() string {
	if f.Details != "" {
		return f.Message + ": " + f.Details
	}
	return f.Message
}

// DecodeInbound parses one raw text frame. Callers drop frames that fail to
// decode; the transport must never die on a malformed payload.
func DecodeInbound(data []byte) (Inbound, error) {
	var f Inbound
	if err := json.Unmarshal(data, &f); err != nil {
		return Inbound{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	if f.Type == "" {
		return Inbound{}, ErrEmptyType
	}
	return f, nil
}

// Outbound is a client frame. The only variant today is chat_message.
type Outbound struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// EncodeChatMessage serialises a chat_message frame.
func EncodeChatMessage(message, userID string) ([]byte, error) {
	return json.Marshal(Outbound{
		Type:    TypeChatMessage,
		Message: message,
		UserID:  userID,
	})
}
