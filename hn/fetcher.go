package hn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"daily-news-bot/article"
)

// SourceName is the source name attached to Hacker News items.
const SourceName = "Hacker News"

const itemConcurrency = 8

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	List     List
	Limit    int
	Language article.Language
	Tags     []string
	Logger   zerolog.Logger
}

// Fetcher turns a story list into raw items.
type Fetcher struct {
	client *Client
	opts   FetcherOptions
}

// NewFetcher returns a source reading up to opts.Limit stories of opts.List.
func NewFetcher(client *Client, opts FetcherOptions) *Fetcher {
	if opts.List == "" {
		opts.List = Top
	}
	opts.Tags = append([]string(nil), opts.Tags...)
	return &Fetcher{client: client, opts: opts}
}

func (f *Fetcher) Name() string { return SourceName }

// Fetch returns linked stories published after since, in list order. Items
// that fail to load are skipped; only a failure to read the list is an error.
func (f *Fetcher) Fetch(ctx context.Context, since time.Time) ([]article.RawItem, error) {
	ids, err := f.client.Stories(ctx, f.opts.List, f.opts.Limit)
	if err != nil {
		return nil, err
	}

	slots := make([]*article.RawItem, len(ids))
	var (
		g       errgroup.Group
		mu      sync.Mutex
		failed  int
		missing int
	)
	g.SetLimit(itemConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			item, err := f.client.Item(ctx, id)
			if err != nil {
				mu.Lock()
				if errors.Is(err, ErrNoItem) {
					missing++
				} else {
					failed++
				}
				mu.Unlock()
				return nil
			}
			if !item.Linked() {
				return nil
			}
			published := time.Unix(item.Time, 0).UTC()
			if !since.IsZero() && published.Before(since) {
				return nil
			}
			slots[i] = &article.RawItem{
				Title:     strings.TrimSpace(item.Title),
				Link:      strings.TrimSpace(item.URL),
				Source:    SourceName,
				Published: &published,
				Language:  f.opts.Language,
				Tags:      append([]string(nil), f.opts.Tags...),
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 || missing > 0 {
		f.opts.Logger.Warn().
			Str("list", string(f.opts.List)).
			Int("failed", failed).
			Int("missing", missing).
			Int("requested", len(ids)).
			Msg("some hacker news items could not be loaded")
	}

	items := make([]article.RawItem, 0, len(ids))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}
	return items, nil
}
