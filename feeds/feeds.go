// Package feeds collects raw items from the configured article sources.
package feeds

import (
	"context"
	"time"

	"daily-news-bot/article"
)

// Fetcher is one article source.
type Fetcher interface {
	Name() string
	// Fetch returns the items the source currently offers. Items dated
	// before since may be dropped by the source.
	Fetch(ctx context.Context, since time.Time) ([]article.RawItem, error)
}
