package models

import (
	"time"

	"github.com/google/uuid"
)

// Message belongs to exactly one conversation.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	SenderID       uuid.UUID  `json:"senderId"`
	Content        string     `json:"content"`
	Censored       bool       `json:"censored"`
	CensorReason   string     `json:"censorReason,omitempty"`
	EditedByAdmin  *uuid.UUID `json:"editedByAdmin,omitempty"`
	ShadowContent  string     `json:"shadowContent,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	IsRead         bool       `json:"isRead"`
}
