package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayou/internal/models"
	"bayou/internal/moderation"
	"bayou/internal/store"
	"bayou/internal/utils"
)

// flakyStore wraps a memory store and fails Patch while tripped.
type flakyStore struct {
	store.Store
	failPatch bool
}

func (f *flakyStore) Patch(ctx context.Context, path string, fields map[string]any) error {
	if f.failPatch {
		return errors.New("simulated store outage")
	}
	return f.Store.Patch(ctx, path, fields)
}

func seedThread(t *testing.T, st store.Store, commentCount int) (uuid.UUID, ReconcileTarget) {
	t.Helper()
	ctx := context.Background()
	threadID := uuid.New()
	require.NoError(t, st.Put(ctx, store.ThreadPath(threadID), &models.Thread{
		ID:           threadID,
		Title:        "t",
		Body:         "b",
		CommentCount: commentCount,
		CreatedAt:    time.Now().UTC(),
	}))
	return threadID, ReconcileTarget{
		ParentPath:      store.ThreadPath(threadID),
		ChildCollection: store.ThreadCommentsCollection(threadID),
		Field:           "commentCount",
	}
}

func putComment(t *testing.T, st store.Store, threadID uuid.UUID, createdAt time.Time) {
	t.Helper()
	id := uuid.New()
	require.NoError(t, st.Put(context.Background(), store.CommentPath(threadID, id), &models.Comment{
		ID:        id,
		ThreadID:  threadID,
		Content:   "c",
		AuthorID:  uuid.New(),
		CreatedAt: createdAt,
	}))
}

func TestBumpCounter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewController(st, nil, nil)
	threadID, target := seedThread(t, st, 0)

	c.BumpCounter(ctx, target, 1)
	c.BumpCounter(ctx, target, 1)
	c.BumpCounter(ctx, target, -1)

	var th models.Thread
	require.NoError(t, st.Get(ctx, store.ThreadPath(threadID), &th))
	assert.Equal(t, 1, th.CommentCount)
	assert.Zero(t, c.DirtyCount())
}

func TestReconcileCountConvergesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewController(st, nil, nil)

	// Cached counter drifted to 7; only two comments actually exist.
	threadID, target := seedThread(t, st, 7)
	putComment(t, st, threadID, time.Now().UTC())
	putComment(t, st, threadID, time.Now().UTC())

	for i := 0; i < 3; i++ {
		actual, err := c.ReconcileCount(ctx, target)
		require.NoError(t, err)
		assert.Equal(t, 2, actual)
	}

	var th models.Thread
	require.NoError(t, st.Get(ctx, store.ThreadPath(threadID), &th))
	assert.Equal(t, 2, th.CommentCount)
}

func TestReconcileCountParentDeleted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewController(st, nil, nil)
	threadID, target := seedThread(t, st, 1)
	require.NoError(t, st.Delete(ctx, store.ThreadPath(threadID)))

	_, err := c.ReconcileCount(ctx, target)
	assert.NoError(t, err)
}

func TestFailedBumpMarksDirtyAndSweepRecovers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	flaky := &flakyStore{Store: mem}
	c := NewController(flaky, nil, nil)

	threadID, target := seedThread(t, mem, 0)
	putComment(t, mem, threadID, time.Now().UTC())

	// The comment write landed but the counter bump is lost.
	flaky.failPatch = true
	c.BumpCounter(ctx, target, 1)
	assert.Equal(t, 1, c.DirtyCount())

	var th models.Thread
	require.NoError(t, mem.Get(ctx, store.ThreadPath(threadID), &th))
	assert.Equal(t, 0, th.CommentCount)

	// Store comes back; the sweep repairs the counter from ground truth.
	flaky.failPatch = false
	c.Sweep(ctx)
	assert.Zero(t, c.DirtyCount())
	require.NoError(t, mem.Get(ctx, store.ThreadPath(threadID), &th))
	assert.Equal(t, 1, th.CommentCount)
}

func TestReconcileCountReportsUnrepairedDrift(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	flaky := &flakyStore{Store: mem}
	c := NewController(flaky, nil, nil)

	threadID, target := seedThread(t, mem, 7)
	putComment(t, mem, threadID, time.Now().UTC())

	// Drift is found but the corrective write fails: the caller gets the
	// drift signal, not a silent success.
	flaky.failPatch = true
	_, err := c.ReconcileCount(ctx, target)
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrConsistencyDrift))

	var th models.Thread
	require.NoError(t, mem.Get(ctx, store.ThreadPath(threadID), &th))
	assert.Equal(t, 7, th.CommentCount)

	// A later reconcile converges as usual.
	flaky.failPatch = false
	actual, err := c.ReconcileCount(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 1, actual)
	require.NoError(t, mem.Get(ctx, store.ThreadPath(threadID), &th))
	assert.Equal(t, 1, th.CommentCount)
}

func TestWatchReplacesSameKey(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewController(st, nil, nil)
	threadA, _ := seedThread(t, st, 0)
	threadB, _ := seedThread(t, st, 0)

	var fromA, fromB int
	require.NoError(t, c.Watch(ctx, "viewer-1", store.Query{
		Collection: store.ThreadCommentsCollection(threadA),
	}, func([]store.Snapshot) { fromA++ }))

	// Switching the viewed thread under the same key tears down the old
	// stream before the new one starts.
	require.NoError(t, c.Watch(ctx, "viewer-1", store.Query{
		Collection: store.ThreadCommentsCollection(threadB),
	}, func([]store.Snapshot) { fromB++ }))

	initialA := fromA
	putComment(t, st, threadA, time.Now().UTC())
	putComment(t, st, threadB, time.Now().UTC())

	assert.Equal(t, initialA, fromA, "stale view must not receive deliveries")
	assert.Equal(t, 2, fromB) // initial snapshot + one change

	c.Unwatch("viewer-1")
	putComment(t, st, threadB, time.Now().UTC())
	assert.Equal(t, 2, fromB)
}

func TestSetPreviewAndReconcilePreview(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewController(st, nil, nil)

	conversationID := uuid.New()
	require.NoError(t, st.Put(ctx, store.ConversationPath(conversationID), &models.Conversation{
		ID:           conversationID,
		Participants: []uuid.UUID{uuid.New()},
		CreatedAt:    time.Now().UTC(),
	}))

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	first := &models.Message{
		ID: uuid.New(), ConversationID: conversationID,
		SenderID: uuid.New(), Content: "first", CreatedAt: base,
	}
	second := &models.Message{
		ID: uuid.New(), ConversationID: conversationID,
		SenderID: uuid.New(), Content: "second", CreatedAt: base.Add(time.Minute),
	}
	require.NoError(t, st.Put(ctx, store.MessagePath(conversationID, first.ID), first))
	c.SetPreview(ctx, conversationID, first)
	require.NoError(t, st.Put(ctx, store.MessagePath(conversationID, second.ID), second))
	c.SetPreview(ctx, conversationID, second)

	var conv models.Conversation
	require.NoError(t, st.Get(ctx, store.ConversationPath(conversationID), &conv))
	assert.Equal(t, "second", conv.LastMessage)

	// Deleting the previewed message leaves the cache stale until the
	// preview is recomputed from the remaining messages.
	require.NoError(t, st.Delete(ctx, store.MessagePath(conversationID, second.ID)))
	require.NoError(t, c.ReconcilePreview(ctx, conversationID))
	require.NoError(t, st.Get(ctx, store.ConversationPath(conversationID), &conv))
	assert.Equal(t, "first", conv.LastMessage)

	// No messages left: the preview clears.
	require.NoError(t, st.Delete(ctx, store.MessagePath(conversationID, first.ID)))
	require.NoError(t, c.ReconcilePreview(ctx, conversationID))
	require.NoError(t, st.Get(ctx, store.ConversationPath(conversationID), &conv))
	assert.Empty(t, conv.LastMessage)
	assert.Nil(t, conv.LastMessageAt)
}

func TestPreviewRendersThroughOverlay(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewController(st, nil, nil)

	conversationID := uuid.New()
	require.NoError(t, st.Put(ctx, store.ConversationPath(conversationID), &models.Conversation{
		ID: conversationID, CreatedAt: time.Now().UTC(),
	}))

	censored := &models.Message{
		ID: uuid.New(), ConversationID: conversationID,
		SenderID: uuid.New(), Content: "slur", Censored: true,
		CreatedAt: time.Now().UTC(),
	}
	c.SetPreview(ctx, conversationID, censored)

	var conv models.Conversation
	require.NoError(t, st.Get(ctx, store.ConversationPath(conversationID), &conv))
	assert.Equal(t, moderation.RedactionPlaceholder, conv.LastMessage)
}
