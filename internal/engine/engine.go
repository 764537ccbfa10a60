package engine

import (
	"log/slog"

	"github.com/asynkron/protoactor-go/actor"

	"bayou/internal/authority"
	"bayou/internal/engine/actors"
	"bayou/internal/store"
	enginesync "bayou/internal/sync"
)

// Engine coordinates communication between actors
type Engine struct {
	threadActor       *actor.PID
	conversationActor *actor.PID
}

func NewEngine(system *actor.ActorSystem, st store.Store, sc *enginesync.Controller, al *authority.Ledger, maxCommentDepth int, log *slog.Logger) *Engine {
	context := system.Root

	// Spawn thread actor
	threadProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewThreadActor(st, sc, al, maxCommentDepth, log)
	})
	threadPID := context.Spawn(threadProps)

	// Spawn conversation actor
	conversationProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewConversationActor(st, sc, al, log)
	})
	conversationPID := context.Spawn(conversationProps)

	return &Engine{
		threadActor:       threadPID,
		conversationActor: conversationPID,
	}
}

// GetThreadActor returns the PID of the thread actor
func (e *Engine) GetThreadActor() *actor.PID {
	return e.threadActor
}

// GetConversationActor returns the PID of the conversation actor
func (e *Engine) GetConversationActor() *actor.PID {
	return e.conversationActor
}
