package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bayou/internal/utils"
)

// Identity is the authenticated principal as seen by the engine.
type Identity struct {
	UID   uuid.UUID
	Email string
	Admin bool
}

// ClaimStore is the server-side claim surface the AuthorityLedger writes
// through. Claim changes take effect on the next minted token, not on
// tokens already held by clients; that staleness window is part of the
// contract.
type ClaimStore interface {
	SetAdminClaim(ctx context.Context, uid uuid.UUID, admin bool) error
	AdminClaim(ctx context.Context, uid uuid.UUID) (bool, error)
}

// Provider is the client-side authentication capability.
type Provider interface {
	CurrentIdentity() *Identity
	OnIdentityChange(fn func(*Identity)) (cancel func())
	// GetToken returns the session token. forceRefresh mints a fresh
	// token carrying current claims; without it a cached (possibly
	// claim-stale) token may be returned.
	GetToken(ctx context.Context, forceRefresh bool) (string, error)
}

type account struct {
	uid          uuid.UUID
	email        string
	passwordHash []byte
}

// LocalIssuer implements both sides of the capability in-process: account
// storage with bcrypt-verified credentials, claim storage, and token
// minting. Production deployments swap this for the hosted provider.
type LocalIssuer struct {
	secret string

	mu       sync.RWMutex
	accounts map[string]*account // keyed by email
	claims   map[uuid.UUID]bool  // uid -> admin claim
}

func NewLocalIssuer(secret string) *LocalIssuer {
	return &LocalIssuer{
		secret:   secret,
		accounts: make(map[string]*account),
		claims:   make(map[uuid.UUID]bool),
	}
}

// Register creates an account and returns its uid.
func (i *LocalIssuer) Register(email, password string) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.accounts[email]; exists {
		return uuid.Nil, utils.NewAppError(utils.ErrDuplicate, "Account already exists: "+email, nil)
	}
	uid := uuid.New()
	i.accounts[email] = &account{uid: uid, email: email, passwordHash: hash}
	return uid, nil
}

// SignIn verifies credentials and opens a session.
func (i *LocalIssuer) SignIn(email, password string) (*Session, error) {
	i.mu.RLock()
	acct, ok := i.accounts[email]
	i.mu.RUnlock()
	if !ok {
		return nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid credentials", nil)
	}
	return i.SessionFor(acct.uid, acct.email), nil
}

// SessionFor opens a session for a known uid without credential checks.
// Tests and trigger handlers use it.
func (i *LocalIssuer) SessionFor(uid uuid.UUID, email string) *Session {
	s := &Session{issuer: i}
	s.identity = &Identity{UID: uid, Email: email, Admin: i.adminClaim(uid)}
	return s
}

func (i *LocalIssuer) SetAdminClaim(ctx context.Context, uid uuid.UUID, admin bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if admin {
		i.claims[uid] = true
	} else {
		delete(i.claims, uid)
	}
	return nil
}

func (i *LocalIssuer) AdminClaim(ctx context.Context, uid uuid.UUID) (bool, error) {
	return i.adminClaim(uid), nil
}

func (i *LocalIssuer) adminClaim(uid uuid.UUID) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.claims[uid]
}

// Session is the per-client provider instance.
type Session struct {
	issuer *LocalIssuer

	mu        sync.Mutex
	identity  *Identity
	token     string
	listeners []func(*Identity)
}

func (s *Session) CurrentIdentity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	copied := *s.identity
	return &copied
}

func (s *Session) OnIdentityChange(fn func(*Identity)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.listeners)
	s.listeners = append(s.listeners, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
	}
}

// GetToken returns the cached token, or mints a fresh one when forced or
// when no token exists yet. A forced refresh re-reads the admin claim, so
// a grant or revoke the client just initiated becomes visible here.
func (s *Session) GetToken(ctx context.Context, forceRefresh bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return "", utils.NewUnauthorizedError("no identity")
	}
	if s.token != "" && !forceRefresh {
		return s.token, nil
	}

	admin := s.issuer.adminClaim(s.identity.UID)
	token, err := GenerateToken(s.issuer.secret, s.identity.UID, admin)
	if err != nil {
		return "", err
	}
	s.token = token

	if s.identity.Admin != admin {
		s.identity.Admin = admin
		identity := *s.identity
		for _, fn := range s.listeners {
			if fn != nil {
				fn(&identity)
			}
		}
	}
	return token, nil
}
