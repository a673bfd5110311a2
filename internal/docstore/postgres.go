package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	version    BIGINT NOT NULL,
	PRIMARY KEY (collection, id)
);
`

type postgresBackend struct {
	db *sql.DB
}

// OpenPostgresStore connects to Postgres and bootstraps the documents table.
func OpenPostgresStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return newStore(&postgresBackend{db: db}), nil
}

func (p *postgresBackend) get(ctx context.Context, coll, id string) (map[string]any, int64, error) {
	return sqlGetDoc(ctx, p.db, coll, id)
}

func (p *postgresBackend) list(ctx context.Context, coll string) ([]rawDoc, error) {
	return sqlListDocs(ctx, p.db, coll)
}

func (p *postgresBackend) collections(ctx context.Context) ([]string, error) {
	return sqlCollections(ctx, p.db)
}

func (p *postgresBackend) commit(ctx context.Context, reads []readStamp, writes []writeOp) ([]applied, error) {
	// Postgres runs many commits concurrently; READ COMMITTED would let two
	// of them validate the same version stamps and both win. SERIALIZABLE
	// makes Postgres abort one side instead, which surfaces here as a
	// retryable conflict.
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	out, err := sqlCommit(ctx, p.db, opts, reads, writes)
	if err != nil && isSerializationFailure(err) {
		return nil, ErrConflict
	}
	return out, err
}

// isSerializationFailure reports whether Postgres aborted the transaction
// for serializability (SQLSTATE 40001) or deadlock (40P01) reasons.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func (p *postgresBackend) close() error {
	return p.db.Close()
}
