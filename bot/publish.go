package bot

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Post is one message to publish.
type Post struct {
	Text               string
	DisableLinkPreview bool
	Metadata           *Metadata
}

// Pacer spaces out channel calls with a fixed delay between them.
type Pacer struct {
	post  *rate.Limiter
	react *rate.Limiter
}

// NewPacer returns a Pacer that allows one post per postDelay and one
// reaction per reactDelay. A non-positive delay disables pacing.
func NewPacer(postDelay, reactDelay time.Duration) *Pacer {
	return &Pacer{post: limiter(postDelay), react: limiter(reactDelay)}
}

func limiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// BeforePost blocks until the next post may be sent.
func (p *Pacer) BeforePost(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.post.Wait(ctx)
}

// BeforeReact blocks until the next reaction may be sent.
func (p *Pacer) BeforeReact(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.react.Wait(ctx)
}
