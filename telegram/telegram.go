// Package telegram publishes articles to a Telegram chat and collects the
// reactions they receive.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"daily-news-bot/bot"
	"daily-news-bot/harvest"
	"daily-news-bot/metrics"
	"daily-news-bot/storage"
)

const (
	updateBatch   = 100
	maxDrainPages = 50
	ledgerRetries = 3
)

var allowedUpdates = []string{"message_reaction", "message_reaction_count"}

// Client is a Telegram chat.
type Client struct {
	api    *tgbotapi.BotAPI
	chat   string
	store  storage.Store
	pacer  *bot.Pacer
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Client.
type Option func(*config)

type config struct {
	endpoint string
	http     *http.Client
	pacer    *bot.Pacer
	logger   zerolog.Logger
	now      func() time.Time
}

// WithEndpoint sets the Bot API endpoint format, see tgbotapi.APIEndpoint.
func WithEndpoint(format string) Option {
	return func(c *config) { c.endpoint = format }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.http = hc }
}

// WithPacer sets the delays between posts and reactions.
func WithPacer(p *bot.Pacer) Option {
	return func(c *config) { c.pacer = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock overrides the time source used for ledger entries.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// New connects to the Bot API. chat is a numeric chat ID or an @channel
// username. The ledger of posted messages and reactions is kept in store.
func New(token, chat string, store storage.Store, opts ...Option) (*Client, error) {
	cfg := config{
		endpoint: tgbotapi.APIEndpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if strings.TrimSpace(chat) == "" {
		return nil, errors.New("telegram chat is required")
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, cfg.endpoint, cfg.http)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &Client{
		api:    api,
		chat:   chat,
		store:  store,
		pacer:  cfg.pacer,
		logger: cfg.logger,
		now:    cfg.now,
	}, nil
}

// Post sends p as an HTML message. Article messages are recorded in the
// ledger so their reactions can be attributed later.
func (c *Client) Post(ctx context.Context, p bot.Post) (string, error) {
	if err := c.pacer.BeforePost(ctx); err != nil {
		return "", err
	}

	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(c.chat, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, p.Text)
	} else {
		msg = tgbotapi.NewMessageToChannel(c.chat, p.Text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = p.DisableLinkPreview

	sent, err := c.api.Send(msg)
	if err != nil {
		metrics.PublishFailures.WithLabelValues("post").Inc()
		return "", fmt.Errorf("telegram send: %w", err)
	}

	if p.Metadata != nil {
		payload, err := json.Marshal(p.Metadata.Payload)
		if err != nil {
			return "", err
		}
		entry := &MessageEntry{PostedAt: c.now().UTC(), EventType: p.Metadata.EventType, Payload: payload}
		err = c.modifyLedger(ctx, func(l *Ledger) { l.add(sent.MessageID, entry) })
		if err != nil {
			c.logger.Warn().Err(err).Int("message_id", sent.MessageID).Msg("posted message not recorded in ledger")
		}
	}
	return strconv.Itoa(sent.MessageID), nil
}

// React sets the bot's reaction on a message. A bot holds one reaction per
// message, so a later call replaces an earlier one.
func (c *Client) React(ctx context.Context, messageID, name string) error {
	emoji, ok := emojiFor(name)
	if !ok {
		return fmt.Errorf("telegram has no reaction for %q", name)
	}
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("bad telegram message id %q", messageID)
	}
	if err := c.pacer.BeforeReact(ctx); err != nil {
		return err
	}

	params := tgbotapi.Params{"chat_id": c.chat}
	params.AddNonZero("message_id", id)
	if err := params.AddInterface("reaction", []reactionType{{Type: "emoji", Emoji: emoji}}); err != nil {
		return err
	}
	if _, err := c.api.MakeRequest("setMessageReaction", params); err != nil {
		metrics.PublishFailures.WithLabelValues("react").Inc()
		return fmt.Errorf("telegram react %s: %w", name, err)
	}

	return c.modifyLedger(ctx, func(l *Ledger) {
		if e := l.entry(id); e != nil {
			e.Seeded = name
		}
	})
}

// Messages drains pending reaction updates into the ledger and returns the
// recorded messages posted at or after since.
//
// Each page of updates is written to the ledger before the next one is
// requested, since asking for the next page confirms the previous one to
// Telegram and it is never delivered again.
func (c *Client) Messages(ctx context.Context, since time.Time) ([]harvest.Message, error) {
	var ledger *Ledger
	for page := 0; page < maxDrainPages; page++ {
		var n int
		err := c.modifyLedger(ctx, func(l *Ledger) {
			ledger = l
		}, func(ctx context.Context, l *Ledger) (err error) {
			n, err = c.drainPage(ctx, l)
			return err
		})
		if err != nil {
			return nil, err
		}
		if n < updateBatch {
			break
		}
	}
	return ledger.messages(since), nil
}

// drainPage reads one page of updates past the ledger offset into l and
// returns how many it read.
func (c *Client) drainPage(ctx context.Context, l *Ledger) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero("offset", l.Offset)
	params.AddNonZero("limit", updateBatch)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return 0, err
	}
	resp, err := c.api.MakeRequest("getUpdates", params)
	if err != nil {
		return 0, fmt.Errorf("telegram get updates: %w", err)
	}
	var updates []update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return 0, fmt.Errorf("decode updates: %w", err)
	}
	for _, u := range updates {
		l.apply(u, c.api.Self.ID)
	}
	return len(updates), nil
}

// modifyLedger runs the optional loader then fn against the stored ledger and
// writes it back, retrying from a fresh read on a version conflict. A page of
// updates is only confirmed to Telegram by a later getUpdates offset, so a
// retried page is delivered again.
func (c *Client) modifyLedger(ctx context.Context, fn func(*Ledger), loaders ...func(context.Context, *Ledger) error) error {
	var err error
	for attempt := 0; attempt < ledgerRetries; attempt++ {
		var (
			l       = newLedger()
			version string
		)
		rec, gerr := c.store.Get(ctx, storage.KeyTelegramLedger)
		switch {
		case errors.Is(gerr, storage.ErrNotFound):
		case gerr != nil:
			return fmt.Errorf("get %s: %w", storage.KeyTelegramLedger, gerr)
		default:
			if uerr := json.Unmarshal(rec.Value, l); uerr != nil {
				return fmt.Errorf("decode %s: %w", storage.KeyTelegramLedger, uerr)
			}
			version = rec.Version
		}

		for _, load := range loaders {
			if lerr := load(ctx, l); lerr != nil {
				return lerr
			}
		}
		fn(l)
		l.prune(c.now())

		raw, merr := json.Marshal(l)
		if merr != nil {
			return merr
		}
		_, err = c.store.Put(ctx, storage.KeyTelegramLedger, raw, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return fmt.Errorf("put %s: %w", storage.KeyTelegramLedger, err)
		}
		metrics.StoreConflicts.WithLabelValues(storage.KeyTelegramLedger).Inc()
	}
	return fmt.Errorf("put %s: %w", storage.KeyTelegramLedger, err)
}

type update struct {
	UpdateID      int                  `json:"update_id"`
	Reaction      *reactionUpdate      `json:"message_reaction"`
	ReactionCount *reactionCountUpdate `json:"message_reaction_count"`
}

type reactionUpdate struct {
	MessageID   int            `json:"message_id"`
	User        *tgbotapi.User `json:"user"`
	OldReaction []reactionType `json:"old_reaction"`
	NewReaction []reactionType `json:"new_reaction"`
}

type reactionCountUpdate struct {
	MessageID int `json:"message_id"`
	Reactions []struct {
		Type       reactionType `json:"type"`
		TotalCount int          `json:"total_count"`
	} `json:"reactions"`
}
