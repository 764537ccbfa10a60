package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment belongs to exactly one thread. ParentID, when set, references
// another comment in the same thread created no later than this one.
type Comment struct {
	ID            uuid.UUID       `json:"id"`
	ThreadID      uuid.UUID       `json:"threadId"`
	ParentID      *uuid.UUID      `json:"parentCommentId,omitempty"` // nil for top-level comments
	Content       string          `json:"content"`
	AuthorID      uuid.UUID       `json:"authorId"`
	Reactions     map[string]bool `json:"reactions,omitempty"` // "<symbol>_<uid>" -> true
	Censored      bool            `json:"censored"`
	CensorReason  string          `json:"censorReason,omitempty"`
	EditedByAdmin *uuid.UUID      `json:"editedByAdmin,omitempty"`
	ShadowContent string          `json:"shadowContent,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
