package models

import (
	"time"

	"github.com/google/uuid"
)

// NotesConversationName is the display name for a single-participant
// conversation (a user's private notes).
const NotesConversationName = "Notes"

// Conversation groups messages between one or more participants.
// LastMessage/LastMessageAt cache the most recent message and are
// recomputable from the message collection.
type Conversation struct {
	ID            uuid.UUID   `json:"id"`
	Participants  []uuid.UUID `json:"participants"`
	Name          string      `json:"name,omitempty"`
	LastMessage   string      `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time  `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// DisplayName returns the name shown for the conversation: the explicit
// name if set, "Notes" for a single-participant conversation, empty
// otherwise (callers fall back to listing participant names).
func (c *Conversation) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if len(c.Participants) == 1 {
		return NotesConversationName
	}
	return ""
}

// HasParticipant reports whether uid belongs to the conversation.
func (c *Conversation) HasParticipant(uid uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}
