// Package authority reconciles the three admin predicates (whitelist
// document, token claim, profile flag) and drives the censorship
// cascade. The whitelist collection is ground truth; the token claim is a
// trigger-synchronized cache for fast checks; the profile flag is
// display-only and never consulted for authorization.
package authority

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bayou/internal/auth"
	"bayou/internal/models"
	"bayou/internal/moderation"
	"bayou/internal/store"
	"bayou/internal/trigger"
	"bayou/internal/utils"
)

// Ledger owns admin grant/revoke and the trigger handlers that keep the
// derived predicates in line. Handlers run under at-least-once delivery
// and are individually idempotent.
type Ledger struct {
	store   store.Store
	claims  auth.ClaimStore
	rootUID uuid.UUID
	log     *slog.Logger
}

func NewLedger(st store.Store, claims auth.ClaimStore, rootUID uuid.UUID, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{store: st, claims: claims, rootUID: rootUID, log: log}
}

// Register wires the ledger's trigger handlers.
func (l *Ledger) Register(reg *trigger.Registry) {
	reg.OnCreate(store.WhitelistCollection+"/{uid}", l.handleWhitelistCreate)
	reg.OnDelete(store.WhitelistCollection+"/{uid}", l.handleWhitelistDelete)
	reg.OnUpdate(store.ThreadsCollection+"/{id}", l.handleThreadUpdate)
	reg.OnCreate(store.ProfilesCollection+"/{uid}", l.handleProfileWrite)
	reg.OnUpdate(store.ProfilesCollection+"/{uid}", l.handleProfileWrite)
}

// IsAdmin answers the authoritative admin predicate: the hardcoded root
// identity, then the whitelist document, then the claim cache. The
// profile flag is deliberately not consulted.
func (l *Ledger) IsAdmin(ctx context.Context, uid uuid.UUID) (bool, error) {
	if uid == l.rootUID && uid != uuid.Nil {
		return true, nil
	}

	var grant models.AdminGrant
	err := l.store.Get(ctx, store.WhitelistPath(uid), &grant)
	if err == nil {
		return true, nil
	}
	if !utils.IsErrorCode(err, utils.ErrNotFound) {
		// Whitelist unreachable; fall back to the claim cache rather
		// than failing closed on a transient error.
		return l.claims.AdminClaim(ctx, uid)
	}
	return false, nil
}

// Grant inserts target into the whitelist. When the whitelist is empty
// only the root identity may grant (bootstrap); otherwise any admin may.
// The claim is set by the whitelist-create trigger, and the caller's
// client must force a token refresh to observe its own change.
func (l *Ledger) Grant(ctx context.Context, caller, target uuid.UUID) error {
	if err := l.authorize(ctx, caller); err != nil {
		return err
	}

	err := l.store.Get(ctx, store.WhitelistPath(target), &models.AdminGrant{})
	if err == nil {
		return nil // already granted; idempotent
	}
	if !utils.IsErrorCode(err, utils.ErrNotFound) {
		return err
	}

	grant := models.AdminGrant{
		UID:       target,
		GrantedAt: time.Now().UTC(),
		GrantedBy: caller,
	}
	return l.store.Put(ctx, store.WhitelistPath(target), grant)
}

// Revoke removes target from the whitelist; the delete trigger clears the
// claim. Revoking the root identity has no effect on its authority.
func (l *Ledger) Revoke(ctx context.Context, caller, target uuid.UUID) error {
	if err := l.authorize(ctx, caller); err != nil {
		return err
	}
	return l.store.Delete(ctx, store.WhitelistPath(target))
}

func (l *Ledger) authorize(ctx context.Context, caller uuid.UUID) error {
	if caller == l.rootUID && caller != uuid.Nil {
		return nil
	}

	whitelist, err := l.store.Query(ctx, store.Query{Collection: store.WhitelistCollection})
	if err != nil {
		return utils.NewTransientStoreError("authorize", err)
	}
	if len(whitelist) == 0 {
		return utils.NewAppError(utils.ErrForbidden, "Only the root identity may bootstrap admins", nil)
	}

	admin, err := l.IsAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !admin {
		return utils.NewAppError(utils.ErrForbidden, "Caller is not an admin", nil)
	}
	return nil
}

// handleWhitelistCreate sets the admin claim for the granted uid. Setting
// an already-set claim is a no-op, so duplicate delivery is harmless.
func (l *Ledger) handleWhitelistCreate(ctx context.Context, inv trigger.Invocation) error {
	uid, err := uuid.Parse(inv.Params["uid"])
	if err != nil {
		l.log.Warn("whitelist create with malformed uid", "path", inv.Event.Path)
		return nil
	}
	l.log.Info("admin granted", "uid", uid)
	return l.claims.SetAdminClaim(ctx, uid, true)
}

// handleWhitelistDelete clears the admin claim for the revoked uid.
func (l *Ledger) handleWhitelistDelete(ctx context.Context, inv trigger.Invocation) error {
	uid, err := uuid.Parse(inv.Params["uid"])
	if err != nil {
		l.log.Warn("whitelist delete with malformed uid", "path", inv.Event.Path)
		return nil
	}
	l.log.Info("admin revoked", "uid", uid)
	return l.claims.SetAdminClaim(ctx, uid, false)
}

// handleThreadUpdate runs the censorship cascade when a thread's censored
// flag transitions false→true: the public title/body are overwritten with
// the redaction marker and the originals preserved in shadow fields. The
// cascade is one-way and idempotent: an already-cascaded thread is left
// alone, including under duplicate delivery and the self-inflicted update
// event the cascade's own patch produces.
func (l *Ledger) handleThreadUpdate(ctx context.Context, inv trigger.Invocation) error {
	var after models.Thread
	if err := json.Unmarshal(inv.Event.After, &after); err != nil {
		return nil
	}
	if !after.Censored {
		return nil
	}

	threadID, err := uuid.Parse(inv.Params["id"])
	if err != nil {
		return nil
	}

	// Re-read rather than trusting the event payload: the decision to
	// cascade must be made against current state to stay idempotent.
	var current models.Thread
	path := store.ThreadPath(threadID)
	if err := l.store.Get(ctx, path, &current); err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return nil
		}
		return err
	}
	if !current.Censored || current.ShadowTitle != "" || current.Title == moderation.RedactionPlaceholder {
		return nil
	}

	l.log.Info("censorship cascade", "thread", threadID, "reason", current.CensorReason)
	return l.store.Patch(ctx, path, map[string]any{
		"shadowTitle": current.Title,
		"shadowBody":  current.Body,
		"title":       moderation.RedactionPlaceholder,
		"body":        moderation.RedactionPlaceholder,
		"updatedAt":   store.ServerTimestamp(),
	})
}

// handleProfileWrite lazily syncs the display-only isAdmin flag on the
// profile record with the whitelist. The patch it issues produces another
// profile-update event, which then observes agreement and stops.
func (l *Ledger) handleProfileWrite(ctx context.Context, inv trigger.Invocation) error {
	uid, err := uuid.Parse(inv.Params["uid"])
	if err != nil {
		return nil
	}

	var profile models.Profile
	if err := json.Unmarshal(inv.Event.After, &profile); err != nil {
		return nil
	}

	admin, err := l.IsAdmin(ctx, uid)
	if err != nil {
		return err
	}
	if profile.IsAdmin == admin {
		return nil
	}
	return l.store.Patch(ctx, store.ProfilePath(uid), map[string]any{
		"isAdmin":   admin,
		"updatedAt": store.ServerTimestamp(),
	})
}
