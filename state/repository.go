package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daily-news-bot/metrics"
	"daily-news-bot/storage"
)

// ErrUpdateDropped is returned by ModifyLearning when the retry also hit a
// version conflict. It wraps storage.ErrVersionConflict.
var ErrUpdateDropped = fmt.Errorf("learning update dropped: %w", storage.ErrVersionConflict)

const defaultSeenAttempts = 5

// Repository reads and conditionally writes the typed records.
type Repository struct {
	store storage.Store
	now   func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository wraps store.
func NewRepository(store storage.Store, opts ...Option) *Repository {
	r := &Repository{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadSeen returns the published fingerprints. A missing record is an empty set.
func (r *Repository) LoadSeen(ctx context.Context) (SeenSet, error) {
	s, _, err := r.loadSeen(ctx)
	return s, err
}

func (r *Repository) loadSeen(ctx context.Context) (SeenSet, string, error) {
	var rec sentArticles
	version, err := r.load(ctx, storage.KeySentArticles, &rec)
	if err != nil {
		return SeenSet{}, "", err
	}
	return NewSeenSet(rec.Fingerprints...), version, nil
}

// LoadLearning returns the preference model and its applied-reaction ledger.
func (r *Repository) LoadLearning(ctx context.Context) (LearningData, error) {
	d, _, err := r.loadLearning(ctx)
	return d, err
}

func (r *Repository) loadLearning(ctx context.Context) (LearningData, string, error) {
	d := NewLearningData()
	version, err := r.load(ctx, storage.KeyLearningData, &d)
	if err != nil {
		return LearningData{}, "", err
	}
	d.normalize()
	return d, version, nil
}

// LoadCursor returns the cycle cursor.
func (r *Repository) LoadCursor(ctx context.Context) (Cursor, error) {
	var c Cursor
	_, err := r.load(ctx, storage.KeyCycleCursor, &c)
	return c, err
}

// RecordPublished adds fingerprints to the SeenSet. On a version conflict the
// set is re-read and the fingerprints merged again.
func (r *Repository) RecordPublished(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}
	var err error
	for attempt := 0; attempt < defaultSeenAttempts; attempt++ {
		var (
			seen    SeenSet
			version string
		)
		seen, version, err = r.loadSeen(ctx)
		if err != nil {
			return err
		}
		seen.Add(fingerprints...)
		err = r.save(ctx, storage.KeySentArticles, version, sentArticles{
			Fingerprints: seen.Fingerprints(),
			UpdatedAt:    r.now().UTC(),
		})
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("record published: %w", err)
}

// ModifyLearning applies fn to the current learning data and writes the
// result with the version just read. On conflict it retries once with a fresh
// read; a second conflict returns ErrUpdateDropped.
func (r *Repository) ModifyLearning(ctx context.Context, fn func(LearningData) (LearningData, error)) (LearningData, error) {
	for attempt := 0; attempt < 2; attempt++ {
		current, version, err := r.loadLearning(ctx)
		if err != nil {
			return LearningData{}, err
		}
		next, err := fn(current)
		if err != nil {
			return LearningData{}, err
		}
		next.normalize()
		next.UpdatedAt = r.now().UTC()

		err = r.save(ctx, storage.KeyLearningData, version, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return LearningData{}, err
		}
	}
	return LearningData{}, ErrUpdateDropped
}

// TouchCursor applies fn to the cursor and writes it back. A conflict retries
// once and then gives up quietly; the cursor is informational.
func (r *Repository) TouchCursor(ctx context.Context, fn func(*Cursor)) error {
	for attempt := 0; attempt < 2; attempt++ {
		var c Cursor
		version, err := r.load(ctx, storage.KeyCycleCursor, &c)
		if err != nil {
			return err
		}
		fn(&c)
		c.UpdatedAt = r.now().UTC()
		err = r.save(ctx, storage.KeyCycleCursor, version, c)
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
	}
	return nil
}

// load decodes key into v and returns its version. A missing key leaves v
// untouched and returns an empty version.
func (r *Repository) load(ctx context.Context, key string, v any) (string, error) {
	rec, err := r.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(rec.Value, v); err != nil {
		return "", fmt.Errorf("decode %s: %w", key, err)
	}
	return rec.Version, nil
}

func (r *Repository) save(ctx context.Context, key, version string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := r.store.Put(ctx, key, data, version); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.StoreConflicts.WithLabelValues(key).Inc()
		}
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
