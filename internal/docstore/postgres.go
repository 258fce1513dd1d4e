package docstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/placepulse/internal/db"
)

// PostgresStore implements Store on a single JSONB documents table.
// Transactions lock each touched document with a transaction-scoped advisory
// lock before reading it, so concurrent read-modify-writes on the same key
// (including keys that do not exist yet) are linearized.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps a pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// DocumentsTable is the table backing every collection.
const DocumentsTable = "documents"

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, key)
);
`

const (
	pgGetSQL    = `SELECT body FROM documents WHERE collection = $1 AND key = $2`
	pgLockedSQL = `SELECT body FROM documents WHERE collection = $1 AND key = $2 FOR UPDATE`
	pgLockSQL   = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	pgListSQL   = `SELECT key, body FROM documents WHERE collection = $1 AND key > $2 ORDER BY key LIMIT $3`
	pgCountSQL  = `SELECT collection, count(*) FROM documents GROUP BY collection ORDER BY collection`
	pgUpsertSQL = `
		INSERT INTO documents (collection, key, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, key) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = now()`
)

// Migrate implements Store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for table maintenance.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

// CollectionCounts returns the number of documents per collection.
func (s *PostgresStore) CollectionCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, pgCountSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count collections")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			coll string
			n    int64
		)
		if err := rows.Scan(&coll, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan collection count")
		}
		counts[coll] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate collection counts")
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, collection, key string, dst any) error {
	var body []byte
	err := s.pool.QueryRow(ctx, pgGetSQL, collection, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get %s/%s", collection, key)
	}
	return decode(collection, key, body, dst)
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, collection, key string, v any) error {
	body, err := encode(collection, key, v)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgUpsertSQL, collection, key, body)
	return eris.Wrapf(err, "postgres: set %s/%s", collection, key)
}

// Transact implements Store.
func (s *PostgresStore) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &postgresTx{tx: tx, locked: make(map[string]bool)}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, collection, afterKey string, limit int) ([]Document, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, pgListSQL, collection, afterKey, lim)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", collection)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Key, &d.Body); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", collection)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate %s", collection)
	}
	return docs, nil
}

type postgresTx struct {
	tx     pgx.Tx
	locked map[string]bool
}

func (t *postgresTx) lock(ctx context.Context, collection, key string) error {
	id := collection + "/" + key
	if t.locked[id] {
		return nil
	}
	if _, err := t.tx.Exec(ctx, pgLockSQL, id); err != nil {
		return eris.Wrapf(err, "postgres: lock %s", id)
	}
	t.locked[id] = true
	return nil
}

func (t *postgresTx) Get(ctx context.Context, collection, key string, dst any) error {
	if err := t.lock(ctx, collection, key); err != nil {
		return err
	}
	var body []byte
	err := t.tx.QueryRow(ctx, pgLockedSQL, collection, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get %s/%s", collection, key)
	}
	return decode(collection, key, body, dst)
}

func (t *postgresTx) Set(ctx context.Context, collection, key string, v any) error {
	if err := t.lock(ctx, collection, key); err != nil {
		return err
	}
	body, err := encode(collection, key, v)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, pgUpsertSQL, collection, key, body)
	return eris.Wrapf(err, "postgres: set %s/%s", collection, key)
}
