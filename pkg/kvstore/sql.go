package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// schema is safe to apply repeatedly.
const schema = `
CREATE TABLE IF NOT EXISTS scptracker_kv (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const (
	selectQuery = `SELECT value FROM scptracker_kv WHERE name = ?`
	upsertQuery = `INSERT INTO scptracker_kv (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	deleteQuery = `DELETE FROM scptracker_kv WHERE name = ?`
)

// SQL stores documents in a single table through database/sql. The sqlite
// driver is modernc.org/sqlite, postgres uses lib/pq.
type SQL struct {
	db     *sql.DB
	driver string
	owned  bool
}

// OpenSQL opens the database, pings it and creates the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.Errorf("kvstore: %s requires a dsn", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: open %s", driver)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "kvstore: ping %s", driver)
	}
	store, err := NewSQL(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewSQL wraps an open database. The caller keeps ownership of db.
func NewSQL(ctx context.Context, db *sql.DB, driver string) (*SQL, error) {
	if db == nil {
		return nil, errors.New("kvstore: nil database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "kvstore: create schema")
	}
	return &SQL{db: db, driver: driver}, nil
}

// Get returns the stored value.
func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(selectQuery), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "kvstore: get %s", key)
	}
	return []byte(value), true, nil
}

// Set upserts value under key.
func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(upsertQuery), key, string(value)); err != nil {
		return errors.Wrapf(err, "kvstore: set %s", key)
	}
	return nil
}

// Delete removes key.
func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(deleteQuery), key); err != nil {
		return errors.Wrapf(err, "kvstore: delete %s", key)
	}
	return nil
}

// Close closes the database when it was opened by OpenSQL.
func (s *SQL) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQL) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
