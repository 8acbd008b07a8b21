package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"daily-news-bot/article"
)

// RSSFetcher reads one or more RSS, RDF or Atom feeds under a single source name.
type RSSFetcher struct {
	name     string
	urls     []string
	language article.Language
	tags     []string
	client   *http.Client
	logger   zerolog.Logger
}

// RSSOption configures an RSSFetcher.
type RSSOption func(*RSSFetcher)

// WithLanguage sets the language hint attached to every item.
func WithLanguage(lang article.Language) RSSOption {
	return func(f *RSSFetcher) {
		f.language = lang
	}
}

// WithTags sets tags attached to every item.
func WithTags(tags ...string) RSSOption {
	return func(f *RSSFetcher) {
		f.tags = append([]string(nil), tags...)
	}
}

// WithHTTPClient sets the client used to download feeds.
func WithHTTPClient(c *http.Client) RSSOption {
	return func(f *RSSFetcher) {
		f.client = c
	}
}

// WithLogger sets the logger for partial feed failures.
func WithLogger(logger zerolog.Logger) RSSOption {
	return func(f *RSSFetcher) {
		f.logger = logger
	}
}

// NewRSS creates a fetcher for the given feed URLs.
func NewRSS(name string, urls []string, opts ...RSSOption) *RSSFetcher {
	f := &RSSFetcher{
		name:   name,
		urls:   append([]string(nil), urls...),
		client: http.DefaultClient,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewSearch creates a fetcher for a search endpoint that answers in RSS.
// The "{query}" placeholder in endpoint is replaced with the escaped query,
// and the query's tags are attached to every item.
func NewSearch(name, endpoint, query string, tags []string, opts ...RSSOption) *RSSFetcher {
	u := strings.ReplaceAll(endpoint, "{query}", url.QueryEscape(query))
	opts = append([]RSSOption{WithTags(tags...)}, opts...)
	return NewRSS(name, []string{u}, opts...)
}

func (f *RSSFetcher) Name() string { return f.name }

// Fetch reads every feed URL in order. It fails only when all of them fail.
func (f *RSSFetcher) Fetch(ctx context.Context, since time.Time) ([]article.RawItem, error) {
	var (
		items []article.RawItem
		errs  []error
	)
	for _, u := range f.urls {
		got, err := f.fetchOne(ctx, u, since)
		if err != nil {
			f.logger.Warn().Err(err).Str("source", f.name).Str("url", u).Msg("feed fetch failed")
			errs = append(errs, err)
			continue
		}
		items = append(items, got...)
	}
	if len(errs) > 0 && len(errs) == len(f.urls) {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func (f *RSSFetcher) fetchOne(ctx context.Context, feedURL string, since time.Time) ([]article.RawItem, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := make([]article.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		published := it.PublishedParsed
		if published == nil {
			published = it.UpdatedParsed
		}
		if published != nil && !since.IsZero() && published.Before(since) {
			continue
		}
		raw := it.Published
		if raw == "" {
			raw = it.Updated
		}
		summary := it.Description
		if summary == "" {
			summary = it.Content
		}
		items = append(items, article.RawItem{
			Title:        strings.TrimSpace(it.Title),
			Link:         strings.TrimSpace(it.Link),
			Summary:      summary,
			Source:       f.name,
			Published:    published,
			PublishedRaw: raw,
			Language:     f.language,
			Tags:         append([]string(nil), f.tags...),
		})
	}
	return items, nil
}
