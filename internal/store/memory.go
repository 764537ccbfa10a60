package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bayou/internal/utils"
)

// MemoryStore is the in-process backend. It backs tests and local runs and
// is the reference implementation of the capability semantics: full-snapshot
// subscriptions, merge patches with sentinels, and event emission into the
// trigger bus.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string][]byte
	subs    map[int]*memorySub
	nextSub int
	sink    EventSink
}

type memorySub struct {
	query    Query
	onChange func([]Snapshot)
	onError  func(error)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		subs: make(map[int]*memorySub),
	}
}

// SetEventSink wires document events into the trigger platform. Must be
// called before writes that should produce trigger deliveries.
func (m *MemoryStore) SetEventSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *MemoryStore) Get(ctx context.Context, path string, dest any) error {
	m.mu.RLock()
	raw, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return utils.NewNotFoundError(path)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to decode document "+path, err)
	}
	return nil
}

func (m *MemoryStore) Put(ctx context.Context, path string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to encode document "+path, err)
	}

	m.mu.Lock()
	before := m.docs[path]
	m.docs[path] = raw
	notify, sink := m.collect(ParentCollection(path))
	m.mu.Unlock()

	m.emit(sink, eventFor(before, raw, path))
	deliver(notify)
	return nil
}

func (m *MemoryStore) Patch(ctx context.Context, path string, fields map[string]any) error {
	now := time.Now()

	m.mu.Lock()
	doc := map[string]any{}
	before := m.docs[path]
	if before != nil {
		if err := json.Unmarshal(before, &doc); err != nil {
			m.mu.Unlock()
			return utils.NewAppError(utils.ErrInvalidInput, "Failed to decode document "+path, err)
		}
	}
	for field, value := range fields {
		resolved, delta, isIncrement := resolveSentinel(value, now)
		if isIncrement {
			current, _ := doc[field].(float64)
			doc[field] = current + float64(delta)
			continue
		}
		doc[field] = resolved
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		m.mu.Unlock()
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to encode document "+path, err)
	}
	m.docs[path] = raw
	notify, sink := m.collect(ParentCollection(path))
	m.mu.Unlock()

	m.emit(sink, eventFor(before, raw, path))
	deliver(notify)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	before, existed := m.docs[path]
	delete(m.docs, path)
	notify, sink := m.collect(ParentCollection(path))
	m.mu.Unlock()

	if existed {
		m.emit(sink, Event{Type: EventDelete, Path: path, Before: before})
	}
	deliver(notify)
	return nil
}

func (m *MemoryStore) InsertAutoID(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.NewString()
	if err := m.Put(ctx, collection+"/"+id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(q), nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, q Query, onChange func([]Snapshot), onError func(error)) (CancelFunc, error) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = &memorySub{query: q, onChange: onChange, onError: onError}
	initial := m.snapshot(q)
	m.mu.Unlock()

	onChange(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = make(map[int]*memorySub)
	return nil
}

// collect gathers pending snapshot deliveries for subscriptions watching
// the given collection. Called with the lock held; deliveries run after it
// is released.
func (m *MemoryStore) collect(collection string) ([]func(), EventSink) {
	var notify []func()
	for _, sub := range m.subs {
		if sub.query.Collection != collection {
			continue
		}
		snap := m.snapshot(sub.query)
		onChange := sub.onChange
		notify = append(notify, func() { onChange(snap) })
	}
	return notify, m.sink
}

func (m *MemoryStore) emit(sink EventSink, ev Event) {
	if sink != nil {
		sink(ev)
	}
}

func deliver(notify []func()) {
	for _, fn := range notify {
		fn()
	}
}

// snapshot evaluates q against current documents. Called with at least a
// read lock held.
func (m *MemoryStore) snapshot(q Query) []Snapshot {
	matches := make([]Snapshot, 0)
	for path, raw := range m.docs {
		if ParentCollection(path) != q.Collection {
			continue
		}
		if !matchesFilters(raw, q.Filters) {
			continue
		}
		matches = append(matches, Snapshot{Path: path, Data: raw})
	}

	sort.Slice(matches, func(i, j int) bool {
		if q.OrderBy != "" {
			cmp := compareField(matches[i].Data, matches[j].Data, q.OrderBy)
			if cmp != 0 {
				if q.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		// Deterministic tie-break by document path.
		return matches[i].Path < matches[j].Path
	})

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches
}

func matchesFilters(raw []byte, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	for _, f := range filters {
		got, ok := doc[f.Field]
		want := normalize(f.Value)
		switch f.Op {
		case "==":
			if !ok || !reflect.DeepEqual(normalize(got), want) {
				return false
			}
		case "array-contains":
			arr, isArr := got.([]any)
			if !ok || !isArr {
				return false
			}
			found := false
			for _, elem := range arr {
				if reflect.DeepEqual(normalize(elem), want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// normalize converts a value through a JSON round trip so filter values
// given as Go types (uuid.UUID, int, time.Time) compare against decoded
// document values.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func compareField(a, b []byte, field string) int {
	av := fieldValue(a, field)
	bv := fieldValue(b, field)

	// Timestamps encode as RFC 3339 strings; compare as instants so
	// fractional-second width differences do not skew the order.
	if as, ok := av.(string); ok {
		if bs, ok := bv.(string); ok {
			at, aerr := time.Parse(time.RFC3339Nano, as)
			bt, berr := time.Parse(time.RFC3339Nano, bs)
			if aerr == nil && berr == nil {
				switch {
				case at.Before(bt):
					return -1
				case at.After(bt):
					return 1
				default:
					return 0
				}
			}
		}
	}

	if af, ok := av.(float64); ok {
		if bf, ok := bv.(float64); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	as := fmt.Sprint(av)
	bs := fmt.Sprint(bv)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func fieldValue(raw []byte, field string) any {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc[field]
}

func eventFor(before, after []byte, path string) Event {
	if before == nil {
		return Event{Type: EventCreate, Path: path, After: after}
	}
	return Event{Type: EventUpdate, Path: path, Before: before, After: after}
}
