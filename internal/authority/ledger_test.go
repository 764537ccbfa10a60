package authority

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayou/internal/auth"
	"bayou/internal/models"
	"bayou/internal/moderation"
	"bayou/internal/store"
	"bayou/internal/trigger"
	"bayou/internal/utils"
)

type fixture struct {
	store    *store.MemoryStore
	issuer   *auth.LocalIssuer
	registry *trigger.Registry
	ledger   *Ledger
	root     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	issuer := auth.NewLocalIssuer("test-secret")
	registry := trigger.NewRegistry(nil)
	registry.Synchronous()

	root := uuid.New()
	ledger := NewLedger(st, issuer, root, nil)
	ledger.Register(registry)
	st.SetEventSink(registry.Sink())

	return &fixture{store: st, issuer: issuer, registry: registry, ledger: ledger, root: root}
}

func TestRootAlwaysAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.ledger.IsAdmin(ctx, f.root)
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = f.ledger.IsAdmin(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestBootstrapRequiresRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := uuid.New()
	target := uuid.New()

	// Empty whitelist: only the root identity may grant.
	err := f.ledger.Grant(ctx, outsider, target)
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrForbidden))

	require.NoError(t, f.ledger.Grant(ctx, f.root, target))

	admin, err := f.ledger.IsAdmin(ctx, target)
	require.NoError(t, err)
	assert.True(t, admin)

	// The whitelist-create trigger synced the claim cache.
	claim, err := f.issuer.AdminClaim(ctx, target)
	require.NoError(t, err)
	assert.True(t, claim)
}

func TestGrantedAdminCanGrantOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, f.ledger.Grant(ctx, f.root, first))
	require.NoError(t, f.ledger.Grant(ctx, first, second))

	admin, err := f.ledger.IsAdmin(ctx, second)
	require.NoError(t, err)
	assert.True(t, admin)

	// A plain user still cannot.
	err = f.ledger.Grant(ctx, uuid.New(), uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrForbidden))
}

func TestGrantIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := uuid.New()

	require.NoError(t, f.ledger.Grant(ctx, f.root, target))
	var before models.AdminGrant
	require.NoError(t, f.store.Get(ctx, store.WhitelistPath(target), &before))

	require.NoError(t, f.ledger.Grant(ctx, f.root, target))
	var after models.AdminGrant
	require.NoError(t, f.store.Get(ctx, store.WhitelistPath(target), &after))
	assert.Equal(t, before.GrantedAt, after.GrantedAt)
}

func TestRevokeClearsClaimAndAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := uuid.New()

	require.NoError(t, f.ledger.Grant(ctx, f.root, target))
	require.NoError(t, f.ledger.Revoke(ctx, f.root, target))

	admin, err := f.ledger.IsAdmin(ctx, target)
	require.NoError(t, err)
	assert.False(t, admin)

	claim, err := f.issuer.AdminClaim(ctx, target)
	require.NoError(t, err)
	assert.False(t, claim)
}

func TestCensorshipCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := uuid.New()
	threadID := uuid.New()
	require.NoError(t, f.store.Put(ctx, store.ThreadPath(threadID), &models.Thread{
		ID:        threadID,
		Title:     "hot take",
		Body:      "inflammatory",
		AuthorID:  &author,
		CreatedAt: time.Now().UTC(),
	}))

	// The censor write flips the flag; the trigger does the redaction.
	require.NoError(t, f.store.Patch(ctx, store.ThreadPath(threadID), map[string]any{
		"censored":     true,
		"censorReason": "flame war",
	}))

	var th models.Thread
	require.NoError(t, f.store.Get(ctx, store.ThreadPath(threadID), &th))
	assert.Equal(t, moderation.RedactionPlaceholder, th.Title)
	assert.Equal(t, moderation.RedactionPlaceholder, th.Body)
	assert.Equal(t, "hot take", th.ShadowTitle)
	assert.Equal(t, "inflammatory", th.ShadowBody)
	assert.True(t, th.Censored)
}

func TestCensorshipCascadeIdempotentUnderRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	threadID := uuid.New()
	require.NoError(t, f.store.Put(ctx, store.ThreadPath(threadID), &models.Thread{
		ID:    threadID,
		Title: "original",
		Body:  "text",
	}))
	require.NoError(t, f.store.Patch(ctx, store.ThreadPath(threadID), map[string]any{
		"censored": true,
	}))

	var once models.Thread
	require.NoError(t, f.store.Get(ctx, store.ThreadPath(threadID), &once))

	// Redeliver the same event; at-least-once delivery must not
	// overwrite the shadow copy with the redaction marker.
	f.registry.Dispatch(ctx, store.Event{
		Type:  store.EventUpdate,
		Path:  store.ThreadPath(threadID),
		After: mustJSON(t, &once),
	})

	var twice models.Thread
	require.NoError(t, f.store.Get(ctx, store.ThreadPath(threadID), &twice))
	assert.Equal(t, "original", twice.ShadowTitle)
	assert.Equal(t, once.ShadowTitle, twice.ShadowTitle)
	assert.Equal(t, once.Title, twice.Title)
}

func TestProfileFlagSyncsLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := uuid.New()

	require.NoError(t, f.ledger.Grant(ctx, f.root, target))

	// Profile written with a stale flag; the profile trigger corrects it.
	require.NoError(t, f.store.Put(ctx, store.ProfilePath(target), &models.Profile{
		UID:      target,
		Username: "latecomer",
		IsAdmin:  false,
	}))

	var profile models.Profile
	require.NoError(t, f.store.Get(ctx, store.ProfilePath(target), &profile))
	assert.True(t, profile.IsAdmin)
}

// failingWhitelistStore simulates a whitelist outage for reads.
type failingWhitelistStore struct {
	store.Store
}

func (f *failingWhitelistStore) Get(ctx context.Context, path string, dest any) error {
	if store.ParentCollection(path) == store.WhitelistCollection {
		return errors.New("whitelist unavailable")
	}
	return f.Store.Get(ctx, path, dest)
}

func TestIsAdminFallsBackToClaimOnOutage(t *testing.T) {
	ctx := context.Background()
	issuer := auth.NewLocalIssuer("test-secret")
	uid := uuid.New()
	require.NoError(t, issuer.SetAdminClaim(ctx, uid, true))

	ledger := NewLedger(&failingWhitelistStore{Store: store.NewMemoryStore()}, issuer, uuid.New(), nil)

	admin, err := ledger.IsAdmin(ctx, uid)
	require.NoError(t, err)
	assert.True(t, admin, "transient whitelist failure falls back to the claim cache")

	admin, err = ledger.IsAdmin(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, admin)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
