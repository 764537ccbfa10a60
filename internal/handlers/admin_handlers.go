package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"bayou/internal/authority"
	"bayou/internal/middleware"
	"bayou/internal/models"
	"bayou/internal/store"
	enginesync "bayou/internal/sync"
	"bayou/internal/trigger"
	"bayou/internal/utils"
)

// adminTargetPayload is the body of grant/revoke callables
type adminTargetPayload struct {
	UID string `json:"uid"`
}

// reconcilePayload is the body of the reconcile callable
type reconcilePayload struct {
	ThreadID       string `json:"threadId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// grantResponse tells the client whether the affected user must refresh
// their token before the change is visible in their claims.
type grantResponse struct {
	Success      bool `json:"success"`
	TokenRefresh bool `json:"tokenRefreshRequired"`
}

// RegisterAdminCallables wires the privileged RPC entry points:
// grant/revoke run through the authority ledger, reconcile repairs a
// cached counter or preview on demand, sweep drains the dirty set.
func RegisterAdminCallables(reg *trigger.Registry, ledger *authority.Ledger, sc *enginesync.Controller) {
	reg.RegisterCallable("grantAdmin", func(ctx context.Context, cc trigger.CallableContext, payload json.RawMessage) (any, error) {
		var p adminTargetPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid payload", err)
		}
		target, err := uuid.Parse(p.UID)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid target uid", err)
		}
		if err := ledger.Grant(ctx, cc.CallerUID, target); err != nil {
			return nil, err
		}
		return grantResponse{Success: true, TokenRefresh: true}, nil
	})

	reg.RegisterCallable("revokeAdmin", func(ctx context.Context, cc trigger.CallableContext, payload json.RawMessage) (any, error) {
		var p adminTargetPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid payload", err)
		}
		target, err := uuid.Parse(p.UID)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid target uid", err)
		}
		if err := ledger.Revoke(ctx, cc.CallerUID, target); err != nil {
			return nil, err
		}
		return grantResponse{Success: true, TokenRefresh: true}, nil
	})

	reg.RegisterCallable("reconcile", func(ctx context.Context, cc trigger.CallableContext, payload json.RawMessage) (any, error) {
		admin, err := ledger.IsAdmin(ctx, cc.CallerUID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, utils.NewUnauthorizedError("reconcile requires admin")
		}

		var p reconcilePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid payload", err)
		}
		switch {
		case p.ThreadID != "":
			threadID, err := uuid.Parse(p.ThreadID)
			if err != nil {
				return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid thread ID", err)
			}
			count, err := sc.ReconcileCount(ctx, enginesync.ReconcileTarget{
				ParentPath:      store.ThreadPath(threadID),
				ChildCollection: store.ThreadCommentsCollection(threadID),
				Field:           "commentCount",
			})
			if err != nil {
				return nil, err
			}
			return map[string]int{"commentCount": count}, nil

		case p.ConversationID != "":
			conversationID, err := uuid.Parse(p.ConversationID)
			if err != nil {
				return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid conversation ID", err)
			}
			if err := sc.ReconcilePreview(ctx, conversationID); err != nil {
				return nil, err
			}
			return &models.StatusResponse{Success: true}, nil
		}
		return nil, utils.NewAppError(utils.ErrInvalidInput, "nothing to reconcile", nil)
	})

	reg.RegisterCallable("sweep", func(ctx context.Context, cc trigger.CallableContext, payload json.RawMessage) (any, error) {
		admin, err := ledger.IsAdmin(ctx, cc.CallerUID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, utils.NewUnauthorizedError("sweep requires admin")
		}
		sc.Sweep(ctx)
		return &models.StatusResponse{Success: true}, nil
	})
}

// HandleCallable dispatches POST /callable/<name> to the registered
// callable, passing the authenticated caller through.
func (s *Server) HandleCallable() http.HandlerFunc {
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

		name := strings.TrimPrefix(r.URL.Path, "/callable/")
		if name == "" || strings.Contains(name, "/") {
			s.respondError(w, utils.NewNotFoundError("callable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "unreadable payload", err))
			return
		}
		if len(payload) == 0 {
			payload = []byte("{}")
		}

		cc := trigger.CallableContext{
			CallerUID: identity.UID,
			Claims:    map[string]any{"admin": identity.Admin},
		}
		result, err := s.Triggers.Call(r.Context(), name, cc, payload)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}
