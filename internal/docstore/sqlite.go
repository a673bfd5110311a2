package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
`

type sqliteBackend struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and creates if missing) a SQLite-backed store at
// the provided path.
func OpenSQLiteStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// Serialize writers; the optimistic commit assumes one writer at a time
	// per database handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return newStore(&sqliteBackend{db: db}), nil
}

func (s *sqliteBackend) get(ctx context.Context, coll, id string) (map[string]any, int64, error) {
	return sqlGetDoc(ctx, s.db, coll, id)
}

func (s *sqliteBackend) list(ctx context.Context, coll string) ([]rawDoc, error) {
	return sqlListDocs(ctx, s.db, coll)
}

func (s *sqliteBackend) collections(ctx context.Context) ([]string, error) {
	return sqlCollections(ctx, s.db)
}

func (s *sqliteBackend) commit(ctx context.Context, reads []readStamp, writes []writeOp) ([]applied, error) {
	// The single connection serializes commits; no isolation option needed.
	return sqlCommit(ctx, s.db, nil, reads, writes)
}

func (s *sqliteBackend) close() error {
	return s.db.Close()
}

// Shared database/sql plumbing for the SQLite and Postgres backends. Both
// store one row per document with a version column checked on commit.

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqlGetDoc(ctx context.Context, q querier, coll, id string) (map[string]any, int64, error) {
	var body string
	var version int64
	err := q.QueryRowContext(ctx,
		`SELECT body, version FROM documents WHERE collection = $1 AND id = $2`,
		coll, id).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, 0, fmt.Errorf("decode %s/%s: %w", coll, id, err)
	}
	return data, version, nil
}

func sqlListDocs(ctx context.Context, q querier, coll string) ([]rawDoc, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, body, version FROM documents WHERE collection = $1 ORDER BY id`, coll)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", coll, err)
	}
	defer rows.Close()

	var out []rawDoc
	for rows.Next() {
		var id, body string
		var version int64
		if err := rows.Scan(&id, &body, &version); err != nil {
			return nil, err
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(body), &data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", coll, id, err)
		}
		out = append(out, rawDoc{Collection: coll, ID: id, Data: data, Version: version})
	}
	return out, rows.Err()
}

func sqlCollections(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var coll string
		if err := rows.Scan(&coll); err != nil {
			return nil, err
		}
		out = append(out, coll)
	}
	return out, rows.Err()
}

func sqlCommit(ctx context.Context, db *sql.DB, opts *sql.TxOptions, reads []readStamp, writes []writeOp) ([]applied, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, r := range reads {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM documents WHERE collection = $1 AND id = $2`,
			r.coll, r.id).Scan(&current)
		if err == sql.ErrNoRows {
			current = 0
		} else if err != nil {
			return nil, err
		}
		if current != r.version {
			return nil, ErrConflict
		}
	}

	out := make([]applied, 0, len(writes))
	for _, op := range writes {
		before, version, err := sqlGetDoc(ctx, tx, op.coll, op.id)
		if err != nil {
			return nil, err
		}
		after, err := applyWriteOp(before, op)
		if err != nil {
			return nil, err
		}
		if after == nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2`,
				op.coll, op.id); err != nil {
				return nil, err
			}
		} else {
			body, err := json.Marshal(after)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (collection, id, body, version)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (collection, id) DO UPDATE SET body = $3, version = $4`,
				op.coll, op.id, string(body), version+1); err != nil {
				return nil, err
			}
		}
		out = append(out, applied{
			coll:   op.coll,
			id:     op.id,
			before: newSnapshot(op.coll, op.id, version, before),
			after:  newSnapshot(op.coll, op.id, version+1, after),
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return out, nil
}
