// Package trigger is the serverless-trigger capability: handlers register
// against document path patterns and run on create/update/delete events
// from the store. Delivery is at-least-once: handlers are invoked
// concurrently, may see duplicates, and must be independently idempotent.
package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"bayou/internal/store"
	"bayou/internal/utils"
)

// Invocation is one delivery to a handler. Params hold the values bound
// by pattern placeholders ("admin_whitelist/{uid}" → Params["uid"]).
type Invocation struct {
	Event  store.Event
	Params map[string]string
}

// Handler processes one invocation. A returned error causes exactly one
// redelivery; beyond that the event is logged and dropped, with the
// reconciliation sweep as the recovery path.
type Handler func(ctx context.Context, inv Invocation) error

// CallableContext carries the authenticated caller of a callable RPC.
type CallableContext struct {
	CallerUID uuid.UUID
	Claims    map[string]any
}

// Callable is a privileged RPC entry point invoked with an authenticated
// caller context.
type Callable func(ctx context.Context, cc CallableContext, payload json.RawMessage) (any, error)

type registration struct {
	eventType store.EventType
	pattern   []string
	handler   Handler
}

// Registry routes store events to handlers and names to callables.
type Registry struct {
	mu        sync.RWMutex
	handlers  []registration
	callables map[string]Callable
	log       *slog.Logger
	inline    bool
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		callables: make(map[string]Callable),
		log:       log,
	}
}

func (r *Registry) OnCreate(pattern string, h Handler) { r.register(store.EventCreate, pattern, h) }
func (r *Registry) OnUpdate(pattern string, h Handler) { r.register(store.EventUpdate, pattern, h) }
func (r *Registry) OnDelete(pattern string, h Handler) { r.register(store.EventDelete, pattern, h) }

func (r *Registry) register(t store.EventType, pattern string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, registration{
		eventType: t,
		pattern:   strings.Split(pattern, "/"),
		handler:   h,
	})
}

// RegisterCallable exposes a named privileged RPC.
func (r *Registry) RegisterCallable(name string, c Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callables[name] = c
}

// Call invokes a registered callable with the caller's identity.
func (r *Registry) Call(ctx context.Context, name string, cc CallableContext, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	c, ok := r.callables[name]
	r.mu.RUnlock()
	if !ok {
		return nil, utils.NewNotFoundError("callable " + name)
	}
	return c(ctx, cc, payload)
}

// Sink adapts the registry to the store's event sink. Each matching
// handler runs on its own goroutine; the store write that produced the
// event never waits on handler completion.
func (r *Registry) Sink() store.EventSink {
	return func(ev store.Event) {
		r.Dispatch(context.Background(), ev)
	}
}

// Dispatch delivers ev to every matching handler. A failed handler is
// retried once; persistent failure is logged and surrendered to the
// reconciliation sweep.
func (r *Registry) Dispatch(ctx context.Context, ev store.Event) {
	segments := strings.Split(ev.Path, "/")

	r.mu.RLock()
	matched := make([]registration, 0, 2)
	for _, reg := range r.handlers {
		if reg.eventType != ev.Type {
			continue
		}
		if _, ok := match(reg.pattern, segments); ok {
			matched = append(matched, reg)
		}
	}
	r.mu.RUnlock()

	for _, reg := range matched {
		params, _ := match(reg.pattern, segments)
		inv := Invocation{Event: ev, Params: params}
		handler := reg.handler
		run := func() {
			err := handler(ctx, inv)
			if err == nil {
				utils.TriggerDeliveries.WithLabelValues(string(ev.Type), "ok").Inc()
				return
			}
			// One redelivery; handlers are idempotent by contract.
			if err = handler(ctx, inv); err == nil {
				utils.TriggerDeliveries.WithLabelValues(string(ev.Type), "retried").Inc()
				return
			}
			utils.TriggerDeliveries.WithLabelValues(string(ev.Type), "failed").Inc()
			r.log.Error("trigger handler failed",
				"event", string(ev.Type),
				"path", ev.Path,
				"error", err,
			)
		}
		if r.inline {
			run()
		} else {
			go run()
		}
	}
}

// Synchronous makes Dispatch run handlers inline instead of on their own
// goroutines. Tests use it for deterministic ordering.
func (r *Registry) Synchronous() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inline = true
}

// match binds pattern segments against path segments. "{name}" segments
// match anything and bind; literal segments must match exactly.
func match(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			params[p[1:len(p)-1]] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, false
		}
	}
	return params, true
}
