// Package learning runs the learning cycle: harvest reactions on recent
// article messages and fold them into the preference model.
package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"daily-news-bot/harvest"
	"daily-news-bot/metrics"
	"daily-news-bot/preference"
	"daily-news-bot/state"
)

// Harvester reads reaction observations from the channel.
type Harvester interface {
	Harvest(ctx context.Context, since time.Time) ([]preference.Observation, error)
}

// State is the persisted state the cycle updates.
type State interface {
	ModifyLearning(ctx context.Context, fn func(state.LearningData) (state.LearningData, error)) (state.LearningData, error)
	TouchCursor(ctx context.Context, fn func(*state.Cursor)) error
}

// Result describes one learning run.
type Result struct {
	RunID string
	preference.Stats
	Dropped     bool
	Preferences preference.Model
}

// Learner orchestrates the learning cycle.
type Learner struct {
	harvester Harvester
	state     State
	policy    preference.ReactionPolicy
	lookback  time.Duration
	decayRate float64
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Learner.
type Option func(*Learner)

// WithPolicy sets how reaction names map to sentiment.
func WithPolicy(p preference.ReactionPolicy) Option {
	return func(l *Learner) { l.policy = p }
}

// WithLookback sets how far back messages are harvested.
func WithLookback(d time.Duration) Option {
	return func(l *Learner) { l.lookback = d }
}

// WithDecayRate shrinks every weight by rate once per run before new
// reactions are applied. Zero disables decay.
func WithDecayRate(rate float64) Option {
	return func(l *Learner) { l.decayRate = rate }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Learner) { l.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// NewLearner creates a Learner.
func NewLearner(h Harvester, st State, opts ...Option) *Learner {
	l := &Learner{
		harvester: h,
		state:     st,
		policy:    preference.DefaultReactionPolicy(),
		lookback:  harvest.DefaultLookback,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes one learning cycle. A preference write that loses the race
// twice is dropped: Result.Dropped is set and no error is returned, since the
// next run reconciles from the ledger.
func (l *Learner) Run(ctx context.Context) (res Result, err error) {
	start := l.now()
	res.RunID = uuid.NewString()
	log := l.logger.With().Str("cycle", "learning").Str("run_id", res.RunID).Logger()

	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case res.Dropped:
			status = "dropped"
		}
		metrics.CycleDuration.WithLabelValues("learning", status).Observe(l.now().Sub(start).Seconds())
	}()

	observations, err := l.harvester.Harvest(ctx, start.Add(-l.lookback))
	if err != nil {
		return res, fmt.Errorf("harvest reactions: %w", err)
	}
	log.Info().Int("observations", len(observations)).Msg("harvested reactions")

	// Ledger entries must outlive the harvest window or a message still in
	// view would be applied again from zero.
	retention := 2 * l.lookback

	var stats preference.Stats
	data, err := l.state.ModifyLearning(ctx, func(d state.LearningData) (state.LearningData, error) {
		model := d.Preferences
		if l.decayRate > 0 {
			model = model.Decay(l.decayRate)
		}
		d.Preferences, d.Applied, stats = preference.Apply(model, d.Applied, observations, l.policy, start.UTC(), retention)
		return d, nil
	})
	switch {
	case errors.Is(err, state.ErrUpdateDropped):
		res.Dropped = true
		log.Warn().Err(err).Msg("preference update dropped after repeated conflicts")
		return res, nil
	case err != nil:
		return res, fmt.Errorf("update preferences: %w", err)
	}

	res.Stats = stats
	res.Preferences = data.Preferences
	metrics.ReactionDeltas.WithLabelValues("positive", "added").Add(float64(stats.PositiveAdded))
	metrics.ReactionDeltas.WithLabelValues("positive", "removed").Add(float64(stats.PositiveRemoved))
	metrics.ReactionDeltas.WithLabelValues("negative", "added").Add(float64(stats.NegativeAdded))
	metrics.ReactionDeltas.WithLabelValues("negative", "removed").Add(float64(stats.NegativeRemoved))

	err = l.state.TouchCursor(ctx, func(c *state.Cursor) {
		c.LastLearningAt = start.UTC()
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to update cycle cursor")
	}

	log.Info().
		Int("changed", stats.Changed).
		Int("positive_added", stats.PositiveAdded).
		Int("positive_removed", stats.PositiveRemoved).
		Int("negative_added", stats.NegativeAdded).
		Int("negative_removed", stats.NegativeRemoved).
		Int("pruned", stats.Pruned).
		Msg("learning run complete")
	return res, nil
}
