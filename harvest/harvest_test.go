package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-news-bot/article"
	"daily-news-bot/bot"
)

type fakeHistory struct {
	msgs  []Message
	err   error
	since time.Time
}

func (f *fakeHistory) Messages(_ context.Context, since time.Time) ([]Message, error) {
	f.since = since
	return f.msgs, f.err
}

func payload(t *testing.T, a article.Article) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(bot.ArticleMetadata(a).Payload)
	require.NoError(t, err)
	return data
}

func TestHarvest(t *testing.T) {
	posted := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	a := article.Article{
		Title:       "記事",
		URL:         "https://example.com/a",
		Source:      "MarkeZine",
		Fingerprint: article.Fingerprint("https://example.com/a"),
		Tags:        []string{"AI"},
		Language:    article.Secondary,
	}
	h := &fakeHistory{msgs: []Message{
		{ID: "1.0", PostedAt: posted, Reactions: map[string]int{"thumbsup": 4}},
		{ID: "2.0", PostedAt: posted, EventType: bot.EventArticle, Payload: payload(t, a),
			Reactions: map[string]int{"thumbsup": 2, "thumbsdown": 0}},
		{ID: "3.0", PostedAt: posted, EventType: bot.EventArticle, Payload: json.RawMessage(`{"source":"x"}`)},
		{ID: "4.0", PostedAt: posted, EventType: bot.EventArticle, Payload: json.RawMessage(`not json`)},
	}}
	since := posted.Add(-7 * 24 * time.Hour)

	obs, err := New(h, zerolog.Nop()).Harvest(context.Background(), since)

	require.NoError(t, err)
	assert.Equal(t, since, h.since)
	require.Len(t, obs, 1)
	assert.Equal(t, "2.0", obs[0].Record.MessageID)
	assert.Equal(t, a.Fingerprint, obs[0].Record.ArticleFingerprint)
	assert.Equal(t, "MarkeZine", obs[0].Record.SourceName)
	assert.Equal(t, []string{"AI"}, obs[0].Record.Tags)
	assert.Equal(t, article.Secondary, obs[0].Record.Language)
	assert.Equal(t, map[string]int{"thumbsup": 2}, obs[0].Tally)
	assert.Equal(t, posted, obs[0].PostedAt)
}

func TestHarvestHistoryError(t *testing.T) {
	_, err := New(&fakeHistory{err: errors.New("channel_not_found")}, zerolog.Nop()).
		Harvest(context.Background(), time.Now())
	assert.ErrorContains(t, err, "channel_not_found")
}

func TestDecodePayload(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"legacy payload", `{"url":"https://example.com/a","source":"CNET Japan","tags":["AI"]}`, true},
		{"full payload", `{"fingerprint":"c984d06aafbecf6bc55569f964148ea3","url":"https://example.com","title":"t","source":"s","tags":[],"language":"primary"}`, true},
		{"missing url", `{"source":"s","tags":[]}`, false},
		{"relative url", `{"url":"/a","source":"s","tags":[]}`, false},
		{"tags not array", `{"url":"https://example.com","source":"s","tags":"AI"}`, false},
		{"empty tag", `{"url":"https://example.com","source":"s","tags":[""]}`, false},
		{"bad fingerprint", `{"fingerprint":"xyz","url":"https://example.com","source":"s","tags":[]}`, false},
		{"bad language", `{"url":"https://example.com","source":"s","tags":[],"language":"fr"}`, false},
		{"trailing content", `{"url":"https://example.com","source":"s","tags":[]} {}`, false},
		{"empty", ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePayload(json.RawMessage(tc.raw))
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
