package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"bayou/internal/auth"
	"bayou/internal/authority"
	"bayou/internal/engine"
	"bayou/internal/store"
	enginesync "bayou/internal/sync"
	"bayou/internal/trigger"
	"bayou/internal/utils"
	"bayou/internal/websocket"
)

// Server holds all server dependencies, including the actor system and engine
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Engine         *engine.Engine
	Store          store.Store
	Authority      *authority.Ledger
	Sync           *enginesync.Controller
	Triggers       *trigger.Registry
	Issuer         *auth.LocalIssuer
	Hub            *websocket.Hub
	RequestTimeout time.Duration
	Log            *slog.Logger
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	eng *engine.Engine,
	st store.Store,
	al *authority.Ledger,
	sc *enginesync.Controller,
	reg *trigger.Registry,
	issuer *auth.LocalIssuer,
	hub *websocket.Hub,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		System:         system,
		Context:        system.Root,
		Engine:         eng,
		Store:          st,
		Authority:      al,
		Sync:           sc,
		Triggers:       reg,
		Issuer:         issuer,
		Hub:            hub,
		RequestTimeout: 5 * time.Second, // Default timeout for actor requests
		Log:            log,
	}
}

// ask sends msg to pid and waits for the reply, converting actor error
// replies and timeouts to AppErrors.
func (s *Server) ask(pid *actor.PID, msg any) (any, error) {
	future := s.Context.RequestFuture(pid, msg, s.RequestTimeout)
	result, err := future.Result()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrActorTimeout, "engine did not respond", err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("response encoding failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*utils.AppError); ok {
		switch {
		case utils.IsAuthError(err):
			// Routine rejections, not server faults.
			s.Log.Debug("request rejected", "code", appErr.Code)
		case utils.AppErrorToHTTPStatus(appErr.Code) >= http.StatusInternalServerError:
			s.Log.Error("request failed", "code", appErr.Code, "error", appErr)
		}
		s.respondJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), map[string]string{
			"code":  appErr.Code,
			"error": appErr.Message,
		})
		return
	}
	s.respondJSON(w, http.StatusInternalServerError, map[string]string{
		"code":  "INTERNAL",
		"error": err.Error(),
	})
}
