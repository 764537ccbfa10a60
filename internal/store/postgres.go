package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayou/internal/utils"
)

const notifyChannel = "bayou_documents"

// PostgresStore keeps documents in one jsonb-valued table and implements
// live subscriptions with LISTEN/NOTIFY: every write NOTIFYs its
// collection, listeners re-query on notification.
type PostgresStore struct {
	db   *sqlx.DB
	dsn  string
	sink EventSink
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path        TEXT PRIMARY KEY,
	collection  TEXT NOT NULL,
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);
`

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure documents schema: %w", err)
	}
	return &PostgresStore{db: db, dsn: dsn}, nil
}

func (p *PostgresStore) SetEventSink(sink EventSink) {
	p.sink = sink
}

func (p *PostgresStore) Get(ctx context.Context, path string, dest any) error {
	var raw []byte
	err := p.db.GetContext(ctx, &raw, `SELECT data FROM documents WHERE path = $1`, path)
	if err == sql.ErrNoRows {
		return utils.NewNotFoundError(path)
	}
	if err != nil {
		return utils.NewTransientStoreError("get "+path, err)
	}
	return json.Unmarshal(raw, dest)
}

func (p *PostgresStore) Put(ctx context.Context, path string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to encode document "+path, err)
	}

	before := p.rawBody(ctx, path)
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		path, ParentCollection(path), raw)
	if err != nil {
		return utils.NewTransientStoreError("put "+path, err)
	}

	p.notify(ctx, ParentCollection(path))
	if p.sink != nil {
		p.sink(eventFor(before, raw, path))
	}
	return nil
}

func (p *PostgresStore) Patch(ctx context.Context, path string, fields map[string]any) error {
	now := time.Now()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewTransientStoreError("patch "+path, err)
	}
	defer tx.Rollback()

	var before []byte
	err = tx.GetContext(ctx, &before, `SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path)
	if err != nil && err != sql.ErrNoRows {
		return utils.NewTransientStoreError("patch "+path, err)
	}

	doc := map[string]any{}
	if len(before) > 0 {
		if err := json.Unmarshal(before, &doc); err != nil {
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
		doc[field] = normalize(resolved)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to encode document "+path, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, collection, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		path, ParentCollection(path), raw)
	if err != nil {
		return utils.NewTransientStoreError("patch "+path, err)
	}
	if err := tx.Commit(); err != nil {
		return utils.NewTransientStoreError("patch "+path, err)
	}

	p.notify(ctx, ParentCollection(path))
	if p.sink != nil {
		if len(before) == 0 {
			before = nil
		}
		p.sink(eventFor(before, raw, path))
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, path string) error {
	before := p.rawBody(ctx, path)
	if _, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
		return utils.NewTransientStoreError("delete "+path, err)
	}
	p.notify(ctx, ParentCollection(path))
	if before != nil && p.sink != nil {
		p.sink(Event{Type: EventDelete, Path: path, Before: before})
	}
	return nil
}

func (p *PostgresStore) InsertAutoID(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.NewString()
	if err := p.Put(ctx, collection+"/"+id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (p *PostgresStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	sqlText, args, err := buildQuerySQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryxContext(ctx, sqlText, args...)
	if err != nil {
		return nil, utils.NewTransientStoreError("query "+q.Collection, err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, utils.NewTransientStoreError("query "+q.Collection, err)
		}
		snaps = append(snaps, Snapshot{Path: path, Data: raw})
	}
	return snaps, rows.Err()
}

func buildQuerySQL(q Query) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT path, data FROM documents WHERE collection = $1`)
	args := []any{q.Collection}

	for _, f := range q.Filters {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, utils.NewAppError(utils.ErrInvalidInput, "Unencodable filter value for "+f.Field, err)
		}
		switch f.Op {
		case "==":
			args = append(args, string(raw))
			fmt.Fprintf(&sb, ` AND data->%s = $%d::jsonb`, quoteLiteral(f.Field), len(args))
		case "array-contains":
			args = append(args, "["+string(raw)+"]")
			fmt.Fprintf(&sb, ` AND data->%s @> $%d::jsonb`, quoteLiteral(f.Field), len(args))
		default:
			return "", nil, utils.NewAppError(utils.ErrInvalidInput, "Unsupported filter operator: "+f.Op, nil)
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY data->>%s %s, path ASC`, quoteLiteral(q.OrderBy), dir)
	} else {
		sb.WriteString(` ORDER BY path ASC`)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, ` LIMIT %d`, q.Limit)
	}
	return sb.String(), args, nil
}

// quoteLiteral quotes a field name as a SQL string literal. Field names
// come from engine code, never from user input, but quoting keeps the
// generated SQL well-formed regardless.
func quoteLiteral(field string) string {
	return "'" + strings.ReplaceAll(field, "'", "''") + "'"
}

func (p *PostgresStore) Subscribe(ctx context.Context, q Query, onChange func([]Snapshot), onError func(error)) (CancelFunc, error) {
	listener := pq.NewListener(p.dsn, 200*time.Millisecond, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil && onError != nil {
			onError(utils.NewTransientStoreError("listen "+q.Collection, err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, utils.NewTransientStoreError("subscribe "+q.Collection, err)
	}

	initial, err := p.Query(ctx, q)
	if err != nil {
		listener.Close()
		return nil, err
	}
	onChange(initial)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case n := <-listener.Notify:
				if n == nil || n.Extra != q.Collection {
					continue
				}
				snaps, err := p.Query(context.Background(), q)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(snaps)
			case <-time.After(90 * time.Second):
				if err := listener.Ping(); err != nil && onError != nil {
					onError(utils.NewTransientStoreError("listen "+q.Collection, err))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			listener.Close()
		})
	}, nil
}

func (p *PostgresStore) Close(ctx context.Context) error {
	return p.db.Close()
}

func (p *PostgresStore) notify(ctx context.Context, collection string) {
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		slog.Warn("notify failed", "collection", collection, "error", err)
	}
}

func (p *PostgresStore) rawBody(ctx context.Context, path string) []byte {
	var raw []byte
	if err := p.db.GetContext(ctx, &raw, `SELECT data FROM documents WHERE path = $1`, path); err != nil {
		return nil
	}
	return raw
}
