package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayou/internal/store"
	"bayou/internal/utils"
)

func TestDispatchBindsPatternParams(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Synchronous()

	var got Invocation
	reg.OnCreate("threads/{threadId}/comments/{commentId}", func(ctx context.Context, inv Invocation) error {
		got = inv
		return nil
	})

	reg.Dispatch(context.Background(), store.Event{
		Type: store.EventCreate,
		Path: "threads/t1/comments/c1",
	})

	assert.Equal(t, "t1", got.Params["threadId"])
	assert.Equal(t, "c1", got.Params["commentId"])
}

func TestDispatchFiltersByTypeAndShape(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Synchronous()

	var creates, updates int
	reg.OnCreate("things/{id}", func(context.Context, Invocation) error { creates++; return nil })
	reg.OnUpdate("things/{id}", func(context.Context, Invocation) error { updates++; return nil })

	ctx := context.Background()
	reg.Dispatch(ctx, store.Event{Type: store.EventCreate, Path: "things/a"})
	reg.Dispatch(ctx, store.Event{Type: store.EventUpdate, Path: "things/a"})
	reg.Dispatch(ctx, store.Event{Type: store.EventCreate, Path: "other/a"})
	reg.Dispatch(ctx, store.Event{Type: store.EventCreate, Path: "things/a/nested/b"})

	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
}

func TestDispatchRetriesOnce(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Synchronous()

	attempts := 0
	reg.OnCreate("things/{id}", func(context.Context, Invocation) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	reg.Dispatch(context.Background(), store.Event{Type: store.EventCreate, Path: "things/a"})
	assert.Equal(t, 2, attempts)

	// Persistent failure: exactly one redelivery, then surrender.
	attempts = 0
	reg2 := NewRegistry(nil)
	reg2.Synchronous()
	reg2.OnCreate("things/{id}", func(context.Context, Invocation) error {
		attempts++
		return errors.New("permanent")
	})
	reg2.Dispatch(context.Background(), store.Event{Type: store.EventCreate, Path: "things/a"})
	assert.Equal(t, 2, attempts)
}

func TestSinkDeliversStoreWrites(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Synchronous()
	st := store.NewMemoryStore()
	st.SetEventSink(reg.Sink())

	var deliveries []store.EventType
	for _, hook := range []func(string, Handler){reg.OnCreate, reg.OnUpdate, reg.OnDelete} {
		hook("things/{id}", func(ctx context.Context, inv Invocation) error {
			deliveries = append(deliveries, inv.Event.Type)
			return nil
		})
	}

	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "things/a", map[string]any{"v": 1}))
	require.NoError(t, st.Patch(ctx, "things/a", map[string]any{"v": 2}))
	require.NoError(t, st.Delete(ctx, "things/a"))

	assert.Equal(t, []store.EventType{store.EventCreate, store.EventUpdate, store.EventDelete}, deliveries)
}

func TestCallables(t *testing.T) {
	reg := NewRegistry(nil)
	caller := uuid.New()

	reg.RegisterCallable("echo", func(ctx context.Context, cc CallableContext, payload json.RawMessage) (any, error) {
		assert.Equal(t, caller, cc.CallerUID)
		var body map[string]string
		require.NoError(t, json.Unmarshal(payload, &body))
		return body["msg"], nil
	})

	result, err := reg.Call(context.Background(), "echo", CallableContext{CallerUID: caller}, json.RawMessage(`{"msg":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", result)

	_, err = reg.Call(context.Background(), "missing", CallableContext{}, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}
