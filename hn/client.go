// Package hn reads stories from the Hacker News API as an article source.
package hn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"daily-news-bot/httpclient"
)

const defaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// ErrNoItem is returned for ids the API answers with null.
var ErrNoItem = errors.New("hacker news item does not exist")

// List names one of the API's ranked story lists.
type List string

const (
	Top  List = "top"
	Best List = "best"
	New  List = "new"
)

// ParseList maps a config value to a List. Empty means Top.
func ParseList(s string) (List, error) {
	switch l := List(s); l {
	case "":
		return Top, nil
	case Top, Best, New:
		return l, nil
	default:
		return "", fmt.Errorf("unknown hacker news list %q (want top, best or new)", s)
	}
}

// Item is the subset of a Hacker News item the source reads.
type Item struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Time    int64  `json:"time"`
	Score   int    `json:"score"`
	Dead    bool   `json:"dead"`
	Deleted bool   `json:"deleted"`
}

// Linked reports whether the item is a live story pointing at an article.
func (it Item) Linked() bool {
	return it.Type == "story" && !it.Dead && !it.Deleted && it.URL != ""
}

// Client reads the public Hacker News API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type Option func(*Client)

// WithBaseURL points the client at another API root, including the version.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient replaces the retrying default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: httpclient.New(30 * time.Second),
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stories returns up to limit ids from list, best ranked first. A
// non-positive limit returns the whole list.
func (c *Client) Stories(ctx context.Context, list List, limit int) ([]int64, error) {
	var ids []int64
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%sstories.json", c.baseURL, list), &ids); err != nil {
		return nil, fmt.Errorf("list %s stories: %w", list, err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Item loads one item.
func (c *Client) Item(ctx context.Context, id int64) (Item, error) {
	var item *Item
	if err := c.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", c.baseURL, id), &item); err != nil {
		return Item{}, fmt.Errorf("load item %d: %w", id, err)
	}
	if item == nil {
		return Item{}, fmt.Errorf("load item %d: %w", id, ErrNoItem)
	}
	return *item, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &httpclient.StatusError{URL: url, Status: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
