package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayou/internal/utils"
)

type testDoc struct {
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Count     int       `json:"count,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	err := st.Put(ctx, "things/a", &testDoc{Name: "first", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	var got testDoc
	require.NoError(t, st.Get(ctx, "things/a", &got))
	assert.Equal(t, "first", got.Name)

	require.NoError(t, st.Delete(ctx, "things/a"))
	err = st.Get(ctx, "things/a", &got)
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	// Deleting a missing document is not an error.
	assert.NoError(t, st.Delete(ctx, "things/a"))
}

func TestMemoryStorePatchUpsertsAndMerges(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	// Patch on a missing path creates the document.
	require.NoError(t, st.Patch(ctx, "things/a", map[string]any{"name": "born"}))

	require.NoError(t, st.Patch(ctx, "things/a", map[string]any{"category": "misc"}))

	var doc map[string]any
	require.NoError(t, st.Get(ctx, "things/a", &doc))
	assert.Equal(t, "born", doc["name"])
	assert.Equal(t, "misc", doc["category"])
}

func TestMemoryStoreSentinels(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.Put(ctx, "things/a", &testDoc{Name: "x", Count: 10}))

	require.NoError(t, st.Patch(ctx, "things/a", map[string]any{"count": Increment(3)}))
	require.NoError(t, st.Patch(ctx, "things/a", map[string]any{"count": Increment(-1)}))

	var got testDoc
	require.NoError(t, st.Get(ctx, "things/a", &got))
	assert.Equal(t, 12, got.Count)

	// Increment on an absent field starts from zero.
	require.NoError(t, st.Patch(ctx, "things/b", map[string]any{"count": Increment(5)}))
	require.NoError(t, st.Get(ctx, "things/b", &got))
	assert.Equal(t, 5, got.Count)

	before := time.Now().UTC()
	require.NoError(t, st.Patch(ctx, "things/a", map[string]any{"createdAt": ServerTimestamp()}))
	require.NoError(t, st.Get(ctx, "things/a", &got))
	assert.False(t, got.CreatedAt.Before(before.Add(-time.Second)))
}

func TestMemoryStoreQueryFiltersOrderLimit(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.Put(ctx, "things/a", &testDoc{Name: "a", Category: "news", CreatedAt: base}))
	require.NoError(t, st.Put(ctx, "things/b", &testDoc{Name: "b", Category: "news", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, st.Put(ctx, "things/c", &testDoc{Name: "c", Category: "other", CreatedAt: base.Add(2 * time.Hour)}))

	snaps, err := st.Query(ctx, Query{
		Collection: "things",
		Filters:    []Filter{{Field: "category", Op: "==", Value: "news"}},
		OrderBy:    "createdAt",
		Desc:       true,
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "things/b", snaps[0].Path)
	assert.Equal(t, "things/a", snaps[1].Path)

	snaps, err = st.Query(ctx, Query{Collection: "things", OrderBy: "createdAt", Limit: 2})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "things/a", snaps[0].Path)

	// Nested collections are separate namespaces.
	require.NoError(t, st.Put(ctx, "things/a/subitems/x", &testDoc{Name: "nested"}))
	snaps, err = st.Query(ctx, Query{Collection: "things"})
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

func TestMemoryStoreQueryArrayContains(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	member := uuid.New()

	require.NoError(t, st.Put(ctx, "groups/a", map[string]any{"participants": []uuid.UUID{member, uuid.New()}}))
	require.NoError(t, st.Put(ctx, "groups/b", map[string]any{"participants": []uuid.UUID{uuid.New()}}))

	snaps, err := st.Query(ctx, Query{
		Collection: "groups",
		Filters:    []Filter{{Field: "participants", Op: "array-contains", Value: member}},
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "groups/a", snaps[0].Path)
}

func TestMemoryStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Put(ctx, "things/a", &testDoc{Name: "existing"}))

	var deliveries [][]Snapshot
	cancel, err := st.Subscribe(ctx, Query{Collection: "things", OrderBy: "name"}, func(snaps []Snapshot) {
		deliveries = append(deliveries, snaps)
	}, func(err error) { t.Fatalf("unexpected subscribe error: %v", err) })
	require.NoError(t, err)

	// Initial snapshot arrives synchronously on subscribe.
	require.Len(t, deliveries, 1)
	require.Len(t, deliveries[0], 1)

	require.NoError(t, st.Put(ctx, "things/b", &testDoc{Name: "later"}))
	require.Len(t, deliveries, 2)
	assert.Len(t, deliveries[1], 2)

	// Writes outside the watched collection do not notify.
	require.NoError(t, st.Put(ctx, "elsewhere/x", &testDoc{Name: "noise"}))
	assert.Len(t, deliveries, 2)

	cancel()
	require.NoError(t, st.Delete(ctx, "things/b"))
	assert.Len(t, deliveries, 2)

	// Cancel is idempotent.
	cancel()
}

func TestMemoryStoreEvents(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var events []Event
	st.SetEventSink(func(ev Event) { events = append(events, ev) })

	require.NoError(t, st.Put(ctx, "things/a", &testDoc{Name: "v1"}))
	require.NoError(t, st.Patch(ctx, "things/a", map[string]any{"name": "v2"}))
	require.NoError(t, st.Delete(ctx, "things/a"))
	// Deleting again emits nothing.
	require.NoError(t, st.Delete(ctx, "things/a"))

	require.Len(t, events, 3)
	assert.Equal(t, EventCreate, events[0].Type)
	assert.Nil(t, events[0].Before)
	assert.Equal(t, EventUpdate, events[1].Type)
	assert.NotNil(t, events[1].Before)
	assert.Equal(t, EventDelete, events[2].Type)
	assert.Equal(t, "things/a", events[2].Path)
}

func TestMemoryStoreInsertAutoID(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	id, err := st.InsertAutoID(ctx, "things", &testDoc{Name: "auto"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got testDoc
	require.NoError(t, st.Get(ctx, "things/"+id, &got))
	assert.Equal(t, "auto", got.Name)
}

func TestSnapshotDecodeAndID(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Put(ctx, "things/abc", &testDoc{Name: "n"}))

	snaps, err := st.Query(ctx, Query{Collection: "things"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	assert.Equal(t, "abc", snaps[0].ID())
	var got testDoc
	require.NoError(t, snaps[0].Decode(&got))
	assert.Equal(t, "n", got.Name)
}

func TestParentCollection(t *testing.T) {
	assert.Equal(t, "threads", ParentCollection("threads/x"))
	assert.Equal(t, "threads/x/comments", ParentCollection("threads/x/comments/y"))
	assert.Equal(t, "", ParentCollection("rootdoc"))
}
