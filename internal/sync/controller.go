// Package sync keeps live views and denormalized summaries consistent
// with their authoritative child collections. Summary counters and
// conversation previews are caches updated by independent writes; the
// reconcile operations here are the recovery path when one of those
// writes is lost.
package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bayou/internal/models"
	"bayou/internal/moderation"
	"bayou/internal/store"
	"bayou/internal/utils"
)

// ReconcileTarget names one cached counter to recompute.
type ReconcileTarget struct {
	ParentPath      string
	ChildCollection string
	Field           string
}

// Controller owns live subscriptions and summary reconciliation. One
// controller serves one client surface; watches are keyed so switching
// the viewed thread/conversation tears down the previous stream before
// the new one starts.
type Controller struct {
	store store.Store
	cache *ProfileCache
	log   *slog.Logger

	mu      sync.Mutex
	watches map[string]store.CancelFunc
	dirty   map[string]ReconcileTarget
}

func NewController(st store.Store, cache *ProfileCache, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		store:   st,
		cache:   cache,
		log:     log,
		watches: make(map[string]store.CancelFunc),
		dirty:   make(map[string]ReconcileTarget),
	}
}

// Cache exposes the profile cache owned by this controller.
func (c *Controller) Cache() *ProfileCache {
	return c.cache
}

// Watch opens a live snapshot stream for q under viewKey, cancelling any
// stream previously registered under the same key so a stale view never
// receives crossed deliveries. Every delivery is a full reordered
// snapshot of the watched collection.
func (c *Controller) Watch(ctx context.Context, viewKey string, q store.Query, onSnapshot func([]store.Snapshot)) error {
	c.Unwatch(viewKey)

	wrapped := func(snaps []store.Snapshot) {
		started := time.Now()
		onSnapshot(snaps)
		utils.SnapshotFanout.Observe(time.Since(started).Seconds())
	}
	onError := func(err error) {
		// Transient by contract: surface a notice, keep the stream.
		c.log.Warn("subscription delivery failure", "view", viewKey, "error", err)
	}

	cancel, err := c.store.Subscribe(ctx, q, wrapped, onError)
	if err != nil {
		return utils.NewTransientStoreError("watch "+viewKey, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prior, ok := c.watches[viewKey]; ok {
		// Lost a race with a concurrent Watch on the same key.
		prior()
	}
	c.watches[viewKey] = cancel
	return nil
}

// Unwatch cancels the stream registered under viewKey, if any.
func (c *Controller) Unwatch(viewKey string) {
	c.mu.Lock()
	cancel, ok := c.watches[viewKey]
	delete(c.watches, viewKey)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown cancels every live stream.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	watches := c.watches
	c.watches = make(map[string]store.CancelFunc)
	c.mu.Unlock()
	for _, cancel := range watches {
		cancel()
	}
}

// BumpCounter adjusts a cached summary counter with an independent
// increment write, deliberately outside any transaction with the child
// write it follows. On failure the write is logged and NOT retried;
// retrying could double-count if the store applied it before failing.
// The target is marked dirty and the reconciliation sweep recovers.
func (c *Controller) BumpCounter(ctx context.Context, target ReconcileTarget, delta int64) {
	err := c.store.Patch(ctx, target.ParentPath, map[string]any{
		target.Field: store.Increment(delta),
	})
	if err == nil {
		return
	}
	utils.CounterWriteFailures.WithLabelValues(store.ParentCollection(target.ParentPath)).Inc()
	c.log.Warn("summary counter write failed; scheduling reconcile",
		"parent", target.ParentPath, "field", target.Field, "error", err)
	c.markDirty(target)
}

// ReconcileCount recomputes target's counter from the authoritative child
// collection and writes the absolute value. Idempotent: running it any
// number of times converges on count(children).
func (c *Controller) ReconcileCount(ctx context.Context, target ReconcileTarget) (int, error) {
	children, err := c.store.Query(ctx, store.Query{Collection: target.ChildCollection})
	if err != nil {
		utils.ReconcileRuns.WithLabelValues("error").Inc()
		return 0, utils.NewTransientStoreError("reconcile "+target.ParentPath, err)
	}
	actual := len(children)

	var parent map[string]any
	if err := c.store.Get(ctx, target.ParentPath, &parent); err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			// Parent deleted; nothing to reconcile.
			c.clearDirty(target)
			utils.ReconcileRuns.WithLabelValues("orphaned").Inc()
			return actual, nil
		}
		utils.ReconcileRuns.WithLabelValues("error").Inc()
		return 0, utils.NewTransientStoreError("reconcile "+target.ParentPath, err)
	}

	cached := 0
	if f, ok := parent[target.Field].(float64); ok {
		cached = int(f)
	}
	drift := cached - actual
	if drift < 0 {
		drift = -drift
	}
	utils.ReconcileDrift.Observe(float64(drift))

	if cached != actual {
		c.log.Info("reconciled drifted counter",
			"parent", target.ParentPath, "field", target.Field,
			"cached", cached, "actual", actual)
		if err := c.store.Patch(ctx, target.ParentPath, map[string]any{target.Field: actual}); err != nil {
			utils.ReconcileRuns.WithLabelValues("error").Inc()
			// Drift detected but the corrective write failed: the counter
			// is known wrong until the next reconcile succeeds.
			driftErr := utils.NewDriftError(target.ParentPath, cached, actual)
			driftErr.Origin = err
			return 0, driftErr
		}
	}
	c.clearDirty(target)
	utils.ReconcileRuns.WithLabelValues("ok").Inc()
	return actual, nil
}

// SetPreview opportunistically caches a conversation's latest message.
// Called on send; failures follow the same log-don't-retry policy as
// counters, with ReconcilePreview as recovery.
func (c *Controller) SetPreview(ctx context.Context, conversationID uuid.UUID, msg *models.Message) {
	view := moderation.RenderMessage(msg)
	err := c.store.Patch(ctx, store.ConversationPath(conversationID), map[string]any{
		"lastMessage":   view.DisplayContent,
		"lastMessageAt": msg.CreatedAt,
	})
	if err != nil {
		utils.CounterWriteFailures.WithLabelValues(store.ConversationsCollection).Inc()
		c.log.Warn("preview write failed", "conversation", conversationID, "error", err)
	}
}

// ReconcilePreview recomputes lastMessage/lastMessageAt from the most
// recent message by createdAt, or clears them when no messages remain.
// Invoked after a delete invalidates the cached preview, and by the sweep.
func (c *Controller) ReconcilePreview(ctx context.Context, conversationID uuid.UUID) error {
	snaps, err := c.store.Query(ctx, store.Query{
		Collection: store.ConversationMessagesCollection(conversationID),
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      1,
	})
	if err != nil {
		return utils.NewTransientStoreError("reconcile preview", err)
	}

	fields := map[string]any{
		"lastMessage":   "",
		"lastMessageAt": nil,
	}
	if len(snaps) > 0 {
		var latest models.Message
		if err := snaps[0].Decode(&latest); err != nil {
			return err
		}
		view := moderation.RenderMessage(&latest)
		fields["lastMessage"] = view.DisplayContent
		fields["lastMessageAt"] = latest.CreatedAt
	}
	return c.store.Patch(ctx, store.ConversationPath(conversationID), fields)
}

// Sweep reconciles every counter marked dirty by a failed write. Run
// periodically; also safe to call ad hoc.
func (c *Controller) Sweep(ctx context.Context) {
	c.mu.Lock()
	targets := make([]ReconcileTarget, 0, len(c.dirty))
	for _, t := range c.dirty {
		targets = append(targets, t)
	}
	c.mu.Unlock()

	for _, target := range targets {
		if _, err := c.ReconcileCount(ctx, target); err != nil {
			c.log.Warn("sweep reconcile failed", "parent", target.ParentPath, "error", err)
		}
	}
}

// Run drives the periodic reconciliation sweep until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// DirtyCount reports how many counters await reconciliation.
func (c *Controller) DirtyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

func (c *Controller) markDirty(target ReconcileTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[target.ParentPath+"#"+target.Field] = target
}

func (c *Controller) clearDirty(target ReconcileTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dirty, target.ParentPath+"#"+target.Field)
}
