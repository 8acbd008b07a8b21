// Package harvest reads back published article messages and their reactions.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"daily-news-bot/bot"
	"daily-news-bot/preference"
)

// DefaultLookback is how far back messages are harvested.
const DefaultLookback = 7 * 24 * time.Hour

// Message is one message in the channel as returned by History.
type Message struct {
	ID        string
	PostedAt  time.Time
	EventType string
	Payload   json.RawMessage
	Reactions map[string]int
}

// History lists channel messages posted at or after since.
type History interface {
	Messages(ctx context.Context, since time.Time) ([]Message, error)
}

// Harvester turns channel history into reaction observations.
type Harvester struct {
	history History
	logger  zerolog.Logger
}

// New creates a Harvester.
func New(history History, logger zerolog.Logger) *Harvester {
	return &Harvester{history: history, logger: logger}
}

// Harvest returns one observation per article message posted since. Messages
// that are not article posts are skipped, as are article posts whose
// metadata fails validation.
func (h *Harvester) Harvest(ctx context.Context, since time.Time) ([]preference.Observation, error) {
	msgs, err := h.history.Messages(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("read channel history: %w", err)
	}

	var out []preference.Observation
	for _, m := range msgs {
		if m.EventType != bot.EventArticle {
			continue
		}
		if m.ID == "" {
			h.logger.Warn().Msg("article message without id skipped")
			continue
		}
		payload, err := DecodePayload(m.Payload)
		if err != nil {
			h.logger.Warn().Err(err).Str("message_id", m.ID).Msg("malformed article metadata skipped")
			continue
		}

		tally := make(map[string]int, len(m.Reactions))
		for name, n := range m.Reactions {
			if n > 0 {
				tally[name] = n
			}
		}
		out = append(out, preference.Observation{
			Record:   payload.Record(m.ID),
			Tally:    tally,
			PostedAt: m.PostedAt,
		})
	}
	h.logger.Debug().Int("messages", len(msgs)).Int("articles", len(out)).Msg("harvested channel history")
	return out, nil
}
