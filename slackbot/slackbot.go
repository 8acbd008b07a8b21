// Package slackbot publishes articles to a Slack channel and reads their
// reactions back.
package slackbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"daily-news-bot/bot"
	"daily-news-bot/harvest"
	"daily-news-bot/metrics"
)

const historyPageSize = 100

var channelID = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)

// Client is a Slack channel.
type Client struct {
	api     *slack.Client
	channel string
	pacer   *bot.Pacer
	logger  zerolog.Logger

	mu        sync.Mutex
	channelID string
	selfID    string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	apiURL string
	http   *http.Client
	pacer  *bot.Pacer
	logger zerolog.Logger
}

// WithAPIURL points the client at another Slack API root.
func WithAPIURL(u string) Option {
	return func(c *config) { c.apiURL = u }
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

// New creates a client posting to channel, given by name or ID.
func New(token, channel string, opts ...Option) *Client {
	cfg := config{logger: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}

	var sopts []slack.Option
	if cfg.apiURL != "" {
		sopts = append(sopts, slack.OptionAPIURL(strings.TrimSuffix(cfg.apiURL, "/")+"/"))
	}
	if cfg.http != nil {
		sopts = append(sopts, slack.OptionHTTPClient(cfg.http))
	}

	c := &Client{
		api:     slack.New(token, sopts...),
		channel: strings.TrimPrefix(channel, "#"),
		pacer:   cfg.pacer,
		logger:  cfg.logger,
	}
	if channelID.MatchString(c.channel) {
		c.channelID = c.channel
	}
	return c
}

// Post sends p and returns the message timestamp.
func (c *Client) Post(ctx context.Context, p bot.Post) (string, error) {
	if err := c.pacer.BeforePost(ctx); err != nil {
		return "", err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(p.Text, false)}
	if p.DisableLinkPreview {
		opts = append(opts, slack.MsgOptionDisableLinkUnfurl(), slack.MsgOptionDisableMediaUnfurl())
	}
	if p.Metadata != nil {
		md, err := toSlackMetadata(*p.Metadata)
		if err != nil {
			return "", err
		}
		opts = append(opts, slack.MsgOptionMetadata(md))
	}

	channel, ts, err := c.api.PostMessageContext(ctx, c.target(), opts...)
	if err != nil {
		metrics.PublishFailures.WithLabelValues("post").Inc()
		return "", fmt.Errorf("slack post: %w", err)
	}
	c.rememberChannel(channel)
	return ts, nil
}

// React adds the reaction name to the message. A reaction the bot already
// placed is not an error.
func (c *Client) React(ctx context.Context, messageID, name string) error {
	if err := c.pacer.BeforeReact(ctx); err != nil {
		return err
	}
	channel, err := c.resolveChannel(ctx)
	if err != nil {
		return err
	}
	err = c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channel, messageID))
	if err != nil && !alreadyReacted(err) {
		metrics.PublishFailures.WithLabelValues("react").Inc()
		return fmt.Errorf("slack react %s: %w", name, err)
	}
	return nil
}

// Messages returns the channel's messages posted at or after since, with
// reaction counts that leave out the bot's own reactions.
func (c *Client) Messages(ctx context.Context, since time.Time) ([]harvest.Message, error) {
	channel, err := c.resolveChannel(ctx)
	if err != nil {
		return nil, err
	}
	self, err := c.self(ctx)
	if err != nil {
		return nil, err
	}

	params := &slack.GetConversationHistoryParameters{
		ChannelID:          channel,
		Oldest:             timestamp(since),
		Limit:              historyPageSize,
		IncludeAllMetadata: true,
	}
	var out []harvest.Message
	for {
		resp, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("slack history: %w", err)
		}
		for _, m := range resp.Messages {
			msg, err := convert(m, self)
			if err != nil {
				c.logger.Warn().Err(err).Str("ts", m.Timestamp).Msg("unreadable message skipped")
				continue
			}
			out = append(out, msg)
		}
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}
	return out, nil
}

func (c *Client) target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelID != "" {
		return c.channelID
	}
	return c.channel
}

func (c *Client) rememberChannel(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.channelID = id
	c.mu.Unlock()
}

func (c *Client) resolveChannel(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.channelID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("slack list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == c.channel {
				c.rememberChannel(ch.ID)
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", fmt.Errorf("slack channel %q not found", c.channel)
		}
		params.Cursor = cursor
	}
}

func (c *Client) self(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.selfID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test: %w", err)
	}
	c.mu.Lock()
	c.selfID = resp.UserID
	c.mu.Unlock()
	return resp.UserID, nil
}

func convert(m slack.Message, self string) (harvest.Message, error) {
	posted, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return harvest.Message{}, err
	}
	msg := harvest.Message{
		ID:        m.Timestamp,
		PostedAt:  posted,
		EventType: m.Metadata.EventType,
		Reactions: make(map[string]int, len(m.Reactions)),
	}
	if m.Metadata.EventPayload != nil {
		raw, err := json.Marshal(m.Metadata.EventPayload)
		if err != nil {
			return harvest.Message{}, err
		}
		msg.Payload = raw
	}
	for _, r := range m.Reactions {
		n := r.Count
		for _, u := range r.Users {
			if u == self {
				n--
				break
			}
		}
		if n > 0 {
			msg.Reactions[r.Name] += n
		}
	}
	return msg, nil
}

func toSlackMetadata(md bot.Metadata) (slack.SlackMetadata, error) {
	raw, err := json.Marshal(md.Payload)
	if err != nil {
		return slack.SlackMetadata{}, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return slack.SlackMetadata{}, err
	}
	return slack.SlackMetadata{EventType: md.EventType, EventPayload: payload}, nil
}

func alreadyReacted(err error) bool {
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		return se.Err == "already_reacted"
	}
	return strings.Contains(err.Error(), "already_reacted")
}

// timestamp formats t the way Slack writes message timestamps.
func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

func parseTimestamp(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad message timestamp %q", ts)
	}
	var us int64
	if frac != "" {
		frac = (frac + "000000")[:6]
		us, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad message timestamp %q", ts)
		}
	}
	return time.Unix(s, us*1000).UTC(), nil
}
