package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread is a top-level discussion. CommentCount is a cached value; the
// authoritative count is the size of the thread's comment collection.
type Thread struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	AuthorID     *uuid.UUID `json:"authorId,omitempty"` // nil means system-authored
	Category     string     `json:"category"`
	Tags         []string   `json:"tags"`
	CommentCount int        `json:"commentCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Censored     bool       `json:"censored"`
	CensorReason string     `json:"censorReason,omitempty"`
	EditedBy     *uuid.UUID `json:"editedBy,omitempty"`

	// Shadow fields hold the pre-censorship title/body for audit tooling.
	// They are persisted but must never appear in rendered output.
	ShadowTitle string `json:"shadowTitle,omitempty"`
	ShadowBody  string `json:"shadowBody,omitempty"`
}
