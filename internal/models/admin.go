package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminGrant records membership in the admin whitelist collection. The
// existence of this document for a uid is the authoritative admin
// predicate; the token claim and the profile flag are derived caches.
type AdminGrant struct {
	UID       uuid.UUID `json:"uid"`
	GrantedAt time.Time `json:"grantedAt"`
	GrantedBy uuid.UUID `json:"grantedBy"`
}

// Profile is the denormalized user record. IsAdmin here is display-only
// and must never be consulted for authorization.
type Profile struct {
	UID       uuid.UUID `json:"uid"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusResponse is a generic success/failure payload for mutations.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
