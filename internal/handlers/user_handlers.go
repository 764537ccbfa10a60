package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bayou/internal/middleware"
	"bayou/internal/models"
	"bayou/internal/store"
	"bayou/internal/utils"
)

// RegisterRequest represents a new account registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest represents a login attempt
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a minted session token
type TokenResponse struct {
	UserID uuid.UUID `json:"userId"`
	Token  string    `json:"token"`
}

// HandleRegister creates an account and its profile document
func (s *Server) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}
		if req.Email == "" || req.Username == "" || req.Password == "" {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "email, username and password are required", nil))
			return
		}

		uid, err := s.Issuer.Register(req.Email, req.Password)
		if err != nil {
			s.respondError(w, err)
			return
		}

		profile := &models.Profile{
			UID:       uid,
			Username:  req.Username,
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.Store.Put(r.Context(), store.ProfilePath(uid), profile); err != nil {
			s.respondError(w, utils.NewTransientStoreError("create profile", err))
			return
		}

		session := s.Issuer.SessionFor(uid, req.Email)
		token, err := session.GetToken(r.Context(), false)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, TokenResponse{UserID: uid, Token: token})
	}
}

// HandleLogin verifies credentials and returns a session token
func (s *Server) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}

		session, err := s.Issuer.SignIn(req.Email, req.Password)
		if err != nil {
			s.respondError(w, err)
			return
		}
		token, err := session.GetToken(r.Context(), false)
		if err != nil {
			s.respondError(w, err)
			return
		}
		identity := session.CurrentIdentity()
		s.respondJSON(w, http.StatusOK, TokenResponse{UserID: identity.UID, Token: token})
	}
}

// HandleRefreshToken force-mints a token carrying the caller's current
// claims. Clients call this after being told a grant or revoke has
// landed; their old token stays claim-stale until it expires.
func (s *Server) HandleRefreshToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			s.respondError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}
		session := s.Issuer.SessionFor(identity.UID, identity.Email)
		token, err := session.GetToken(r.Context(), true)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, TokenResponse{UserID: identity.UID, Token: token})
	}
}

// HandleProfile returns a user's profile document
func (s *Server) HandleProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw := r.URL.Query().Get("id")
		var uid uuid.UUID
		if raw == "" {
			identity, ok := middleware.GetIdentityFromContext(r.Context())
			if !ok {
				s.respondError(w, utils.NewUnauthorizedError("missing identity"))
				return
			}
			uid = identity.UID
		} else {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid user ID", err))
				return
			}
			uid = parsed
		}

		profile, err := s.Sync.Cache().Get(r.Context(), uid)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, profile)
	}
}
