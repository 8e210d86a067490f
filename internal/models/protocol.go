package models

import "encoding/json"

// MessageType defines the kinds of messages in the collaboration protocol
type MessageType string

const (
	// Editing messages
	MessageTypeCommand MessageType = "command" // An edit command (both directions)
	MessageTypeAck     MessageType = "ack"     // Hub confirms a local command was sequenced
	MessageTypeUndo    MessageType = "undo"    // Revert the command at a content version
	MessageTypeRedo    MessageType = "redo"    // Restore the command at a content version

	// Presence messages
	MessageTypeJoin      MessageType = "join"      // User joined
	MessageTypeLeave     MessageType = "leave"     // User left
	MessageTypeSelection MessageType = "selection" // User moved their selection

	MessageTypeError MessageType = "error" // Error message
)

// Message is the envelope for all WebSocket traffic in an editing session
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage wraps a payload struct in an envelope
func NewMessage(t MessageType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Payload: raw}, nil
}

// CommandPayload carries one edit command.
//
// Client → hub: ContentVersion is the version the command was generated
// against and CommandID is the client-local sequence number echoed in
// the ack. Hub → client: ContentVersion is the version the hub assigned
// when it sequenced the command.
type CommandPayload struct {
	CommandID      int64           `json:"command_id,omitempty"`
	ContentVersion int64           `json:"content_version"`
	AuthorID       string          `json:"author_id,omitempty"`
	Kind           string          `json:"kind"`
	Command        json.RawMessage `json:"command"`
}

// AckPayload confirms that a specific local command has been sequenced
type AckPayload struct {
	CommandID      int64 `json:"command_id"`
	ContentVersion int64 `json:"content_version"`
}

// VersionPayload identifies a sequenced command by content version
// (undo and redo requests/notifications)
type VersionPayload struct {
	ContentVersion int64 `json:"content_version"`
}

// SelectionPayload broadcasts a user's current selection.
// Selection nil means "no selection", not "unknown".
type SelectionPayload struct {
	UserID    string  `json:"user_id,omitempty"`
	Selection *string `json:"selection"`
}

// JoinPayload announces a collaborator entering the session
type JoinPayload struct {
	UserID     string            `json:"user_id"`
	UserName   string            `json:"user_name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Selection  *string           `json:"selection,omitempty"`
}

// LeavePayload announces a collaborator leaving the session
type LeavePayload struct {
	UserID string `json:"user_id"`
}

// ErrorPayload reports a protocol-level error to the client
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
