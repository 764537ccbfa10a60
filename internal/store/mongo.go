package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bayou/internal/utils"
)

// MongoStore keeps every document in a single "documents" collection keyed
// by its full path, with the body JSON-normalized under "data". Live
// subscriptions ride on a change stream over that collection.
type MongoStore struct {
	client *mongo.Client
	docs   *mongo.Collection
	sink   EventSink
}

type mongoDocument struct {
	Path       string         `bson:"_id"`
	Collection string         `bson:"collection"`
	Data       map[string]any `bson:"data"`
	UpdatedAt  time.Time      `bson:"updatedAt"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Database("admin").RunCommand(connectCtx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client: client,
		docs:   client.Database(database).Collection("documents"),
	}, nil
}

func (m *MongoStore) SetEventSink(sink EventSink) {
	m.sink = sink
}

func (m *MongoStore) Get(ctx context.Context, path string, dest any) error {
	var doc mongoDocument
	err := m.docs.FindOne(ctx, bson.M{"_id": path}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return utils.NewNotFoundError(path)
	}
	if err != nil {
		return utils.NewTransientStoreError("get "+path, err)
	}
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to encode document "+path, err)
	}
	return json.Unmarshal(raw, dest)
}

func (m *MongoStore) Put(ctx context.Context, path string, data any) error {
	body, err := normalizeBody(data)
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to encode document "+path, err)
	}

	before := m.rawBody(ctx, path)

	doc := mongoDocument{
		Path:       path,
		Collection: ParentCollection(path),
		Data:       body,
		UpdatedAt:  time.Now().UTC(),
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.docs.UpdateOne(ctx, bson.M{"_id": path}, bson.M{"$set": doc}, opts); err != nil {
		return utils.NewTransientStoreError("put "+path, err)
	}

	m.emitChange(before, path)
	return nil
}

func (m *MongoStore) Patch(ctx context.Context, path string, fields map[string]any) error {
	now := time.Now()
	before := m.rawBody(ctx, path)

	set := bson.M{
		"collection": ParentCollection(path),
		"updatedAt":  now.UTC(),
	}
	inc := bson.M{}
	for field, value := range fields {
		resolved, delta, isIncrement := resolveSentinel(value, now)
		if isIncrement {
			inc["data."+field] = delta
			continue
		}
		normalized := normalize(resolved)
		set["data."+field] = normalized
	}

	update := bson.M{"$set": set}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.docs.UpdateOne(ctx, bson.M{"_id": path}, update, opts); err != nil {
		return utils.NewTransientStoreError("patch "+path, err)
	}

	m.emitChange(before, path)
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, path string) error {
	before := m.rawBody(ctx, path)
	if _, err := m.docs.DeleteOne(ctx, bson.M{"_id": path}); err != nil {
		return utils.NewTransientStoreError("delete "+path, err)
	}
	if before != nil && m.sink != nil {
		m.sink(Event{Type: EventDelete, Path: path, Before: before})
	}
	return nil
}

func (m *MongoStore) InsertAutoID(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.NewString()
	if err := m.Put(ctx, collection+"/"+id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *MongoStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	filter := bson.M{"collection": q.Collection}
	for _, f := range q.Filters {
		switch f.Op {
		case "==":
			filter["data."+f.Field] = normalize(f.Value)
		case "array-contains":
			// Mongo matches array fields element-wise with plain equality.
			filter["data."+f.Field] = normalize(f.Value)
		default:
			return nil, utils.NewAppError(utils.ErrInvalidInput, "Unsupported filter operator: "+f.Op, nil)
		}
	}

	opts := options.Find()
	sortSpec := bson.D{}
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		sortSpec = append(sortSpec, bson.E{Key: "data." + q.OrderBy, Value: dir})
	}
	sortSpec = append(sortSpec, bson.E{Key: "_id", Value: 1})
	opts.SetSort(sortSpec)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewTransientStoreError("query "+q.Collection, err)
	}
	defer cursor.Close(ctx)

	var snaps []Snapshot
	for cursor.Next(ctx) {
		var doc mongoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewTransientStoreError("query "+q.Collection, err)
		}
		raw, err := json.Marshal(doc.Data)
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{Path: doc.Path, Data: raw})
	}
	return snaps, cursor.Err()
}

func (m *MongoStore) Subscribe(ctx context.Context, q Query, onChange func([]Snapshot), onError func(error)) (CancelFunc, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	stream, err := m.docs.Watch(streamCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, utils.NewTransientStoreError("subscribe "+q.Collection, err)
	}

	initial, err := m.Query(ctx, q)
	if err != nil {
		cancel()
		stream.Close(context.Background())
		return nil, err
	}
	onChange(initial)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			// Any write may have touched the watched collection; re-read
			// for a consistent snapshot rather than patching diffs.
			snaps, err := m.Query(streamCtx, q)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(snaps)
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil && onError != nil {
			onError(utils.NewTransientStoreError("subscribe "+q.Collection, err))
		}
	}()

	return CancelFunc(cancel), nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// rawBody reads the current JSON body at path for event construction, nil
// when the document does not exist. Read and write are not one atomic
// step; the trigger contract is at-least-once, not exactly-once.
func (m *MongoStore) rawBody(ctx context.Context, path string) []byte {
	var doc mongoDocument
	if err := m.docs.FindOne(ctx, bson.M{"_id": path}).Decode(&doc); err != nil {
		return nil
	}
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil
	}
	return raw
}

func (m *MongoStore) emitChange(before []byte, path string) {
	if m.sink == nil {
		return
	}
	after := m.rawBody(context.Background(), path)
	m.sink(eventFor(before, after, path))
}

func normalizeBody(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}
