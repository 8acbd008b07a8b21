package feeds

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"daily-news-bot/article"
	"daily-news-bot/metrics"
)

const (
	defaultConcurrency = 4
	defaultMaxBackfill = 20
)

// Excerpter supplies a summary for an item whose feed carried none.
type Excerpter interface {
	Excerpt(ctx context.Context, url string) (string, error)
}

// Collector runs every Fetcher and merges the results in configured order.
type Collector struct {
	fetchers    []Fetcher
	concurrency int
	excerpter   Excerpter
	maxBackfill int
	logger      zerolog.Logger
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithConcurrency bounds how many sources are fetched at once.
func WithConcurrency(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithExcerpter enables Backfill for at most maxItems items per run.
func WithExcerpter(e Excerpter, maxItems int) CollectorOption {
	return func(c *Collector) {
		c.excerpter = e
		if maxItems > 0 {
			c.maxBackfill = maxItems
		}
	}
}

// WithCollectorLogger sets the logger.
func WithCollectorLogger(logger zerolog.Logger) CollectorOption {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a collector over fetchers.
func NewCollector(fetchers []Fetcher, opts ...CollectorOption) *Collector {
	c := &Collector{
		fetchers:    fetchers,
		concurrency: defaultConcurrency,
		maxBackfill: defaultMaxBackfill,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect fetches all sources. A failing source contributes zero items and
// never fails the collection; the result is the concatenation of each
// source's items in configured order.
func (c *Collector) Collect(ctx context.Context, since time.Time) []article.RawItem {
	results := make([][]article.RawItem, len(c.fetchers))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, f := range c.fetchers {
		i, f := i, f
		g.Go(func() error {
			items, err := f.Fetch(ctx, since)
			if err != nil {
				metrics.FetchFailures.WithLabelValues(f.Name()).Inc()
				c.logger.Warn().Err(err).Str("source", f.Name()).Msg("source fetch failed")
				return nil
			}
			metrics.ArticlesCollected.WithLabelValues(f.Name()).Add(float64(len(items)))
			c.logger.Debug().Str("source", f.Name()).Int("items", len(items)).Msg("source fetched")
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var merged []article.RawItem
	for _, items := range results {
		merged = append(merged, items...)
	}
	return merged
}

// Backfill fetches a summary for items whose feed carried none, in order,
// for at most the configured number of items, and returns how many it
// filled. Callers pass items that already survived deduplication so the
// budget is not spent on articles that will be dropped.
func (c *Collector) Backfill(ctx context.Context, items []article.RawItem) int {
	if c.excerpter == nil {
		return 0
	}
	var (
		g      errgroup.Group
		filled atomic.Int32
	)
	g.SetLimit(c.concurrency)
	n := 0
	for i := range items {
		if strings.TrimSpace(items[i].Summary) != "" || items[i].Link == "" {
			continue
		}
		if n >= c.maxBackfill {
			break
		}
		n++
		i := i
		g.Go(func() error {
			excerpt, err := c.excerpter.Excerpt(ctx, items[i].Link)
			if err != nil {
				c.logger.Debug().Err(err).Str("url", items[i].Link).Msg("summary backfill failed")
				return nil
			}
			items[i].Summary = excerpt
			filled.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(filled.Load())
}
