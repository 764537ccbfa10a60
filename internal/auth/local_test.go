package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayou/internal/utils"
)

func TestRegisterAndSignIn(t *testing.T) {
	issuer := NewLocalIssuer("secret")

	uid, err := issuer.Register("gator@swamp.example", "hunter2hunter2")
	require.NoError(t, err)

	// Duplicate registration is rejected.
	_, err = issuer.Register("gator@swamp.example", "other")
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicate))

	// Wrong password.
	_, err = issuer.SignIn("gator@swamp.example", "wrong")
	require.Error(t, err)

	session, err := issuer.SignIn("gator@swamp.example", "hunter2hunter2")
	require.NoError(t, err)
	identity := session.CurrentIdentity()
	assert.Equal(t, uid, identity.UID)
	assert.False(t, identity.Admin)
}

func TestTokenCarriesClaims(t *testing.T) {
	ctx := context.Background()
	issuer := NewLocalIssuer("secret")
	uid, err := issuer.Register("a@b.example", "passwordpassword")
	require.NoError(t, err)
	require.NoError(t, issuer.SetAdminClaim(ctx, uid, true))

	session := issuer.SessionFor(uid, "a@b.example")
	token, err := session.GetToken(ctx, false)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uid, claims.UserID)
	assert.True(t, claims.Admin)

	// Wrong secret fails validation.
	_, err = ValidateToken("other", token)
	assert.Error(t, err)
}

func TestForceRefreshObservesClaimChange(t *testing.T) {
	ctx := context.Background()
	issuer := NewLocalIssuer("secret")
	uid, err := issuer.Register("a@b.example", "passwordpassword")
	require.NoError(t, err)

	session := issuer.SessionFor(uid, "a@b.example")
	token, err := session.GetToken(ctx, false)
	require.NoError(t, err)
	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.False(t, claims.Admin)

	// Grant lands after the token was minted.
	require.NoError(t, issuer.SetAdminClaim(ctx, uid, true))

	// The cached token stays claim-stale by contract.
	stale, err := session.GetToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, token, stale)

	var observed []bool
	session.OnIdentityChange(func(id *Identity) { observed = append(observed, id.Admin) })

	// A forced refresh re-reads the claim and notifies listeners.
	fresh, err := session.GetToken(ctx, true)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
	claims, err = ValidateToken("secret", fresh)
	require.NoError(t, err)
	assert.True(t, claims.Admin)
	assert.Equal(t, []bool{true}, observed)
	assert.True(t, session.CurrentIdentity().Admin)
}

func TestForceRefreshWithoutChangeIsQuiet(t *testing.T) {
	ctx := context.Background()
	issuer := NewLocalIssuer("secret")
	uid, err := issuer.Register("a@b.example", "passwordpassword")
	require.NoError(t, err)

	session := issuer.SessionFor(uid, "a@b.example")
	_, err = session.GetToken(ctx, false)
	require.NoError(t, err)

	var notified int
	session.OnIdentityChange(func(*Identity) { notified++ })
	_, err = session.GetToken(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, notified)
}
