package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore keeps records in a single blobs table. The version token is an
// integer incremented on every successful write.
type SQLStore struct {
	conn    *sql.DB
	dialect dialect
}

// NewSQLite opens (creating if needed) a SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	conn.SetMaxOpenConns(1)
	return newSQLStore(ctx, conn, dialectSQLite)
}

// NewPostgres connects to a Postgres database.
func NewPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newSQLStore(ctx, conn, dialectPostgres)
}

func newSQLStore(ctx context.Context, conn *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{conn: conn, dialect: d}
	if err := s.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.conn.Close()
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		version INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if s.dialect == dialectPostgres {
		schema = `
		CREATE TABLE IF NOT EXISTS blobs (
			name TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			version BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		`
	}
	_, err := s.conn.ExecContext(ctx, schema)
	return err
}

// Get returns the record stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) (Record, error) {
	query := s.rebind(`SELECT value, version FROM blobs WHERE name = ?`)

	var value []byte
	var version int64
	err := s.conn.QueryRowContext(ctx, query, key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	return Record{Value: value, Version: strconv.FormatInt(version, 10)}, nil
}

// Put writes value under key if the stored version matches expected.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte, expected string) (string, error) {
	now := time.Now().UTC()

	if expected == "" {
		query := s.rebind(`
		INSERT INTO blobs (name, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (name) DO NOTHING
		`)
		res, err := s.conn.ExecContext(ctx, query, key, value, now)
		if err != nil {
			return "", fmt.Errorf("insert %s: %w", key, err)
		}
		if err := requireOneRow(res); err != nil {
			return "", err
		}
		return "1", nil
	}

	current, err := strconv.ParseInt(expected, 10, 64)
	if err != nil {
		return "", fmt.Errorf("put %s: invalid version token %q: %w", key, expected, ErrVersionConflict)
	}

	query := s.rebind(`
	UPDATE blobs SET value = ?, version = version + 1, updated_at = ?
	WHERE name = ? AND version = ?
	`)
	res, err := s.conn.ExecContext(ctx, query, value, now, key, current)
	if err != nil {
		return "", fmt.Errorf("update %s: %w", key, err)
	}
	if err := requireOneRow(res); err != nil {
		return "", err
	}
	return strconv.FormatInt(current+1, 10), nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
