// Package scraper backfills article summaries from the article page itself.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"daily-news-bot/httpclient"
)

const (
	defaultMaxExcerptLen = 400
	maxPageBytes         = 4 << 20
)

// ErrNotHTML is returned for pages that are not HTML documents, such as PDFs.
var ErrNotHTML = errors.New("page is not html")

// Scraper extracts a short readable excerpt from web pages.
type Scraper struct {
	httpClient    *http.Client
	maxExcerptLen int
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient sets the client used to download pages.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		s.httpClient = c
	}
}

// WithMaxExcerptLength sets the maximum excerpt length in runes.
func WithMaxExcerptLength(n int) Option {
	return func(s *Scraper) {
		s.maxExcerptLen = n
	}
}

// NewScraper creates a scraper. timeout bounds each page download.
func NewScraper(timeout time.Duration, opts ...Option) *Scraper {
	s := &Scraper{
		httpClient:    httpclient.New(timeout, httpclient.WithMaxRetries(1)),
		maxExcerptLen: defaultMaxExcerptLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Excerpt returns the page's readability excerpt, or the start of its text
// when the page declares none.
func (s *Scraper) Excerpt(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httpclient.StatusError{URL: rawURL, Status: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		if mt != "text/html" && mt != "application/xhtml+xml" {
			return "", fmt.Errorf("%s: %w (%s)", rawURL, ErrNotHTML, mt)
		}
	}

	page, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), parsedURL)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	text := strings.Join(strings.Fields(page.Excerpt), " ")
	if text == "" {
		text = strings.Join(strings.Fields(page.TextContent), " ")
	}

	if r := []rune(text); len(r) > s.maxExcerptLen {
		text = string(r[:s.maxExcerptLen])
	}
	return text, nil
}
