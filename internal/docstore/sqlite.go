package docstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Transactions are
// opened with BEGIN IMMEDIATE so the write lock is taken before any read.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "_txlock=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_txlock=immediate"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps writers strictly serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (collection, key)
);
`

const (
	sqliteGetSQL    = `SELECT body FROM documents WHERE collection = ? AND key = ?`
	sqliteListSQL   = `SELECT key, body FROM documents WHERE collection = ? AND key > ? ORDER BY key LIMIT ?`
	sqliteUpsertSQL = `
		INSERT INTO documents (collection, key, body, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT (collection, key) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at`
)

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteGet(ctx context.Context, q sqlQuerier, collection, key string, dst any) error {
	var body string
	err := q.QueryRowContext(ctx, sqliteGetSQL, collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get %s/%s", collection, key)
	}
	return decode(collection, key, []byte(body), dst)
}

func sqliteSet(ctx context.Context, q sqlQuerier, collection, key string, v any) error {
	body, err := encode(collection, key, v)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, sqliteUpsertSQL, collection, key, string(body))
	return eris.Wrapf(err, "sqlite: set %s/%s", collection, key)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, collection, key string, dst any) error {
	return sqliteGet(ctx, s.db, collection, key, dst)
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, collection, key string, v any) error {
	return sqliteSet(ctx, s.db, collection, key, v)
}

// Transact implements Store.
func (s *SQLiteStore) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, collection, afterKey string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sqliteListSQL, collection, afterKey, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", collection)
	}
	defer rows.Close() //nolint:errcheck

	var docs []Document
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", collection)
		}
		docs = append(docs, Document{Key: key, Body: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: iterate %s", collection)
	}
	return docs, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Get(ctx context.Context, collection, key string, dst any) error {
	return sqliteGet(ctx, t.tx, collection, key, dst)
}

func (t *sqliteTx) Set(ctx context.Context, collection, key string, v any) error {
	return sqliteSet(ctx, t.tx, collection, key, v)
}
