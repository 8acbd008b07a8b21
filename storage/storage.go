// Package storage provides the versioned key/value content store that holds
// all state shared between curation and learning cycles.
//
// Every write is conditional: Put must present the version token obtained
// from the Get it is based on, or ErrVersionConflict is returned.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a key has never been written.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a write does not match the current version.
	ErrVersionConflict = errors.New("version conflict")
)

// Keys of the records kept in the store.
const (
	KeySentArticles   = "sentArticles"
	KeyLearningData   = "learningData"
	KeyCycleCursor    = "cycleCursor"
	KeyTelegramLedger = "telegramLedger"
)

// Record is a stored value and the version token it was read at.
type Record struct {
	Value   []byte
	Version string
}

// Store is a key/value store with optimistic concurrency.
type Store interface {
	// Get returns the current value and version of key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)
	// Put writes value if the stored version equals expected. An empty
	// expected version means the key must not exist yet.
	Put(ctx context.Context, key string, value []byte, expected string) (string, error)
	Close() error
}

// Options selects and configures a Store backend.
type Options struct {
	Backend     string
	SQLitePath  string
	PostgresDSN string
	RedisAddr   string
	RedisPrefix string
	GitHub      GitHubOptions
}

// Open returns the Store for opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "sqlite":
		return NewSQLite(ctx, opts.SQLitePath)
	case "postgres":
		return NewPostgres(ctx, opts.PostgresDSN)
	case "redis":
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPrefix)
	case "github":
		return NewGitHub(opts.GitHub)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
