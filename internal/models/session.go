package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Session represents an active WebSocket connection to a design
type Session struct {
	ID           string    `json:"id"`
	DesignID     string    `json:"design_id"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ApiEditorUser represents a collaborator in an editing session.
// This is ephemeral presence state, separate from the design content.
type ApiEditorUser struct {
	UserID     string            `json:"user_id"`
	UserName   string            `json:"user_name"`
	Attributes map[string]string `json:"attributes,omitempty"` // includes assigned "color"
	// Selection is the node path the user currently has selected.
	// Empty means no selection; see SelectionPayload for the wire form.
	Selection string `json:"selection,omitempty"`
}

// Color returns the display color assigned to the user, if any.
func (u *ApiEditorUser) Color() string {
	if u.Attributes == nil {
		return ""
	}
	return u.Attributes["color"]
}

func NewSession(designID, userID, userName string) *Session {
	return &Session{
		ID:           ksuid.New().String(),
		DesignID:     designID,
		UserID:       userID,
		UserName:     userName,
		ConnectedAt:  time.Now(),
		LastActiveAt: time.Now(),
	}
}
