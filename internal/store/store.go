// Package store defines the document-store capability the engine is built
// against. Documents live at slash-delimited paths ("threads/{id}",
// "threads/{id}/comments/{id}"); collections are the even-length prefixes.
// Three backends implement the interface: MongoDB, PostgreSQL and an
// in-memory store used by tests and local runs.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Filter is a single field predicate in a query. Supported operators:
// "==" and "array-contains".
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query selects documents from one collection. OrderBy ties are broken by
// document id so delivered ordering is stable across reloads.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Snapshot is one document as observed at a consistent point in time.
type Snapshot struct {
	Path string
	Data []byte // JSON document body
}

// Decode unmarshals the document body into dest.
func (s Snapshot) Decode(dest any) error {
	return json.Unmarshal(s.Data, dest)
}

// ID returns the final path segment.
func (s Snapshot) ID() string {
	idx := strings.LastIndexByte(s.Path, '/')
	if idx < 0 {
		return s.Path
	}
	return s.Path[idx+1:]
}

// EventType identifies a document lifecycle transition.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event describes a document write, delivered at-least-once to the trigger
// platform. Before/After carry the JSON body around the transition; Before
// is nil on create, After is nil on delete.
type Event struct {
	Type   EventType
	Path   string
	Before []byte
	After  []byte
}

// EventSink receives document events. The trigger registry implements it.
type EventSink func(Event)

// CancelFunc tears down a live subscription. Safe to call more than once.
type CancelFunc func()

// Store is the generic document-store capability. Every method honoring
// ctx is asynchronous from the caller's point of view: no method blocks
// past ctx cancellation.
//
// Subscribe delivers a full, reordered snapshot of the matching collection
// on every change, not a diff. Within one subscription each delivery
// reflects a consistent read of that collection; there is no ordering
// guarantee across collections.
type Store interface {
	// Get decodes the document at path into dest. Returns a NOT_FOUND
	// AppError when the document does not exist.
	Get(ctx context.Context, path string, dest any) error

	// Put creates or fully replaces the document at path.
	Put(ctx context.Context, path string, data any) error

	// Patch merges fields into the document at path. Field values may be
	// Increment or ServerTimestamp sentinels.
	Patch(ctx context.Context, path string, fields map[string]any) error

	// Delete removes the document at path. Deleting a missing document is
	// not an error.
	Delete(ctx context.Context, path string) error

	// InsertAutoID creates a document with a generated id under the given
	// collection and returns the id.
	InsertAutoID(ctx context.Context, collection string, data any) (string, error)

	// Query returns matching documents as an ordered snapshot.
	Query(ctx context.Context, q Query) ([]Snapshot, error)

	// Subscribe registers a live watch on q. onChange receives an initial
	// snapshot and then one snapshot per observed change. onError receives
	// transient delivery failures; the subscription stays up.
	Subscribe(ctx context.Context, q Query, onChange func([]Snapshot), onError func(error)) (CancelFunc, error)

	Close(ctx context.Context) error
}

// increment is the sentinel produced by Increment.
type increment struct {
	Delta int64
}

// Increment returns a patch value that atomically adds delta to a numeric
// field, creating it at delta if absent. Single-field, order-independent
// mutation: concurrent writers never need a lock.
// Compile-time backend checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*MongoStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func Increment(delta int64) any {
	return increment{Delta: delta}
}

// serverTimestamp is the sentinel produced by ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp returns a patch value resolved to the store's clock at
// write time.
func ServerTimestamp() any {
	return serverTimestamp{}
}

// resolveSentinel maps sentinel patch values for backends that apply
// patches read-modify-write. The bool result reports whether v was an
// increment, in which case the returned int64 is its delta.
func resolveSentinel(v any, now time.Time) (any, int64, bool) {
	switch s := v.(type) {
	case increment:
		return nil, s.Delta, true
	case serverTimestamp:
		return now.UTC(), 0, false
	default:
		return v, 0, false
	}
}

// ParentCollection returns the collection prefix of a document path, or ""
// for a malformed path.
func ParentCollection(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
