// Package digest runs the curation cycle: collect candidates, rank them
// against the learned preferences and publish the day's slate.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"daily-news-bot/article"
	"daily-news-bot/bot"
	"daily-news-bot/filter"
	"daily-news-bot/metrics"
	"daily-news-bot/normalize"
	"daily-news-bot/ranker"
	"daily-news-bot/state"
)

// DefaultSlateSize is the number of articles published per run.
const DefaultSlateSize = 5

// ErrPublishUnavailable is returned when the channel cannot be reached at all.
var ErrPublishUnavailable = errors.New("publisher unavailable")

// DefaultSeedReactions are added to every published article.
var DefaultSeedReactions = []string{"thumbsup", "thumbsdown"}

// Collector gathers raw items from every configured source.
type Collector interface {
	Collect(ctx context.Context, since time.Time) []article.RawItem
}

// Backfiller fills missing summaries on items that survived deduplication.
type Backfiller interface {
	Backfill(ctx context.Context, items []article.RawItem) int
}

// Publisher posts messages to the channel.
type Publisher interface {
	Post(ctx context.Context, p bot.Post) (string, error)
	React(ctx context.Context, messageID, name string) error
}

// State is the persisted state the cycle reads and writes.
type State interface {
	LoadSeen(ctx context.Context) (state.SeenSet, error)
	LoadLearning(ctx context.Context) (state.LearningData, error)
	RecordPublished(ctx context.Context, fingerprints []string) error
	TouchCursor(ctx context.Context, fn func(*state.Cursor)) error
}

// Result describes one curation run.
type Result struct {
	RunID      string
	Collected  int
	Candidates int
	Backfilled int
	Kept       int
	Slate      []ranker.Scored
	Published  []string
	Failed     int
	Empty      bool
	DryRun     bool
}

// Curator orchestrates the curation cycle.
type Curator struct {
	collector  Collector
	normalizer *normalize.Normalizer
	filter     *filter.Filter
	scorer     *ranker.Scorer
	state      State
	publisher  Publisher
	backfiller Backfiller

	formatter     bot.Formatter
	slateSize     int
	window        time.Duration
	seedReactions []string
	dryRun        bool
	logger        zerolog.Logger
	now           func() time.Time
}

// Option configures a Curator.
type Option func(*Curator)

// WithSlateSize sets the number of articles per run.
func WithSlateSize(n int) Option {
	return func(c *Curator) {
		c.slateSize = n
	}
}

// WithRecencyWindow sets how far back sources are asked for items.
func WithRecencyWindow(d time.Duration) Option {
	return func(c *Curator) {
		c.window = d
	}
}

// WithSeedReactions sets the reactions added to each published article.
func WithSeedReactions(names ...string) Option {
	return func(c *Curator) {
		c.seedReactions = names
	}
}

// WithFormatter sets how messages are rendered.
func WithFormatter(f bot.Formatter) Option {
	return func(c *Curator) {
		c.formatter = f
	}
}

// WithBackfiller fills missing summaries after deduplication and before the
// filter sees the articles.
func WithBackfiller(b Backfiller) Option {
	return func(c *Curator) {
		c.backfiller = b
	}
}

// WithDryRun ranks and logs the slate without publishing or persisting.
func WithDryRun(dry bool) Option {
	return func(c *Curator) {
		c.dryRun = dry
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Curator) {
		c.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Curator) {
		c.now = now
	}
}

// NewCurator creates a Curator.
func NewCurator(
	collector Collector,
	normalizer *normalize.Normalizer,
	f *filter.Filter,
	scorer *ranker.Scorer,
	st State,
	publisher Publisher,
	opts ...Option,
) *Curator {
	c := &Curator{
		collector:     collector,
		normalizer:    normalizer,
		filter:        f,
		scorer:        scorer,
		state:         st,
		publisher:     publisher,
		slateSize:     DefaultSlateSize,
		window:        normalize.DefaultRecencyWindow,
		seedReactions: DefaultSeedReactions,
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one curation cycle. State is only written after the header
// was posted; fingerprints are recorded for successfully posted articles.
func (c *Curator) Run(ctx context.Context) (res Result, err error) {
	now := c.now()
	res = Result{RunID: uuid.NewString(), DryRun: c.dryRun}
	log := c.logger.With().Str("cycle", "curation").Str("run_id", res.RunID).Logger()

	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case res.DryRun:
			status = "dry_run"
		case res.Empty:
			status = "empty"
		}
		metrics.CycleDuration.WithLabelValues("curation", status).Observe(c.now().Sub(now).Seconds())
	}()

	// Step 1: Load state
	seen, err := c.state.LoadSeen(ctx)
	if err != nil {
		return res, fmt.Errorf("load seen articles: %w", err)
	}
	learning, err := c.state.LoadLearning(ctx)
	if err != nil {
		return res, fmt.Errorf("load learning data: %w", err)
	}
	log.Info().Int("seen", seen.Len()).Int("slate_size", c.slateSize).Msg("starting curation run")

	// Step 2: Collect
	raw := c.collector.Collect(ctx, now.Add(-c.window))
	res.Collected = len(raw)

	// Step 3: Normalize and deduplicate
	admitted, report := c.normalizer.Admit(raw, seen, now)
	if c.backfiller != nil {
		res.Backfilled = c.backfiller.Backfill(ctx, admitted)
	}
	candidates := c.normalizer.Build(admitted)
	res.Candidates = len(candidates)
	metrics.ArticlesDropped.WithLabelValues("invalid").Add(float64(report.Invalid))
	metrics.ArticlesDropped.WithLabelValues("stale").Add(float64(report.Stale))
	metrics.ArticlesDropped.WithLabelValues("seen").Add(float64(report.Seen))
	metrics.ArticlesDropped.WithLabelValues("duplicate").Add(float64(report.Duplicate))
	log.Info().
		Int("collected", res.Collected).
		Int("candidates", res.Candidates).
		Int("seen", report.Seen).
		Int("stale", report.Stale).
		Int("backfilled", res.Backfilled).
		Msg("normalized items")

	// Step 4: Filter
	kept := make([]article.Article, 0, len(candidates))
	for _, a := range candidates {
		v := c.filter.Evaluate(a)
		if !v.Keep {
			metrics.ArticlesDropped.WithLabelValues("filter").Inc()
			log.Debug().Str("url", a.URL).Str("reason", v.Reason).Msg("article filtered")
			continue
		}
		kept = append(kept, a)
	}
	res.Kept = len(kept)

	// Step 5: Rank and select
	ranked := c.scorer.Rank(kept, learning.Preferences)
	res.Slate = ranker.Select(ranked, c.slateSize)
	if len(res.Slate) == 0 {
		res.Empty = true
		log.Info().Msg("no articles to publish")
		return res, nil
	}

	if c.dryRun {
		for i, s := range res.Slate {
			log.Info().
				Int("position", i+1).
				Str("title", s.Article.Title).
				Str("source", s.Article.Source).
				Float64("score", s.Score).
				Msg("selected article")
		}
		return res, nil
	}

	// Step 6: Publish
	header := bot.Post{Text: c.formatter.FormatHeader(now), DisableLinkPreview: true}
	if _, err := c.publisher.Post(ctx, header); err != nil {
		return res, fmt.Errorf("%w: post header: %w", ErrPublishUnavailable, err)
	}

	for i, s := range res.Slate {
		a := s.Article
		md := bot.ArticleMetadata(a)
		msgID, err := c.publisher.Post(ctx, bot.Post{
			Text:               c.formatter.FormatArticle(i+1, a),
			DisableLinkPreview: true,
			Metadata:           &md,
		})
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Str("url", a.URL).Msg("failed to post article")
			continue
		}
		metrics.ArticlesPublished.Inc()
		res.Published = append(res.Published, a.Fingerprint)

		for _, name := range c.seedReactions {
			if err := c.publisher.React(ctx, msgID, name); err != nil {
				log.Warn().Err(err).Str("message_id", msgID).Str("reaction", name).Msg("failed to seed reaction")
			}
		}
		log.Info().
			Str("message_id", msgID).
			Str("title", a.Title).
			Str("source", a.Source).
			Float64("score", s.Score).
			Msg("published article")
	}

	// Step 7: Persist
	if err := c.state.RecordPublished(ctx, res.Published); err != nil {
		return res, fmt.Errorf("record published articles: %w", err)
	}
	err = c.state.TouchCursor(ctx, func(cur *state.Cursor) {
		cur.LastCurationAt = now.UTC()
		cur.LastSlateSize = len(res.Published)
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to update cycle cursor")
	}

	log.Info().Int("published", len(res.Published)).Int("failed", res.Failed).Msg("curation run complete")
	return res, nil
}
