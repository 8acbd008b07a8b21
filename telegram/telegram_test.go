package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-news-bot/article"
	"daily-news-bot/bot"
	"daily-news-bot/storage"
)

const botID = 999

type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	sent     []map[string]string
	reacted  []map[string]string
	updates  []string
	offsets  []string
	failSend bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprintf(w, `{"ok":true,"result":{"id":%d,"is_bot":true,"first_name":"news","username":"newsbot"}}`, botID)
	case "sendMessage":
		if f.failSend {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		f.nextID++
		f.sent = append(f.sent, map[string]string{
			"chat_id":                  r.FormValue("chat_id"),
			"text":                     r.FormValue("text"),
			"parse_mode":               r.FormValue("parse_mode"),
			"disable_web_page_preview": r.FormValue("disable_web_page_preview"),
		})
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":1760688000,"chat":{"id":-1001,"type":"channel"}}}`, f.nextID)
	case "setMessageReaction":
		f.reacted = append(f.reacted, map[string]string{
			"message_id": r.FormValue("message_id"),
			"reaction":   r.FormValue("reaction"),
		})
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	case "getUpdates":
		f.offsets = append(f.offsets, r.FormValue("offset"))
		offset, _ := strconv.Atoi(r.FormValue("offset"))
		limit, _ := strconv.Atoi(r.FormValue("limit"))
		// An offset confirms every earlier update; Telegram forgets them.
		var pending []string
		for _, u := range f.updates {
			var head struct {
				UpdateID int `json:"update_id"`
			}
			json.Unmarshal([]byte(u), &head)
			if head.UpdateID >= offset {
				pending = append(pending, u)
			}
		}
		f.updates = pending
		if limit > 0 && len(pending) > limit {
			pending = pending[:limit]
		}
		fmt.Fprintf(w, `{"ok":true,"result":[%s]}`, strings.Join(pending, ","))
	default:
		http.NotFound(w, r)
	}
}

var postedAt = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, store storage.Store) (*Client, *fakeAPI) {
	f := &fakeAPI{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New("TOKEN", "-1001", store,
		WithEndpoint(srv.URL+"/bot%s/%s"),
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return postedAt }),
	)
	require.NoError(t, err)
	return c, f
}

func articleMetadata(url string) *bot.Metadata {
	md := bot.ArticleMetadata(article.Article{
		URL: url, Source: "MarkeZine", Tags: []string{"AI"},
		Fingerprint: article.Fingerprint(url), Language: article.Primary,
	})
	return &md
}

func reactionUpdateJSON(id, msg int, user int64, emojis ...string) string {
	var rs []string
	for _, e := range emojis {
		rs = append(rs, fmt.Sprintf(`{"type":"emoji","emoji":%q}`, e))
	}
	return fmt.Sprintf(`{"update_id":%d,"message_reaction":{"chat":{"id":-1001,"type":"channel"},"message_id":%d,"user":{"id":%d,"is_bot":false,"first_name":"u"},"date":1760690000,"old_reaction":[],"new_reaction":[%s]}}`,
		id, msg, user, strings.Join(rs, ","))
}

func TestPostSendsHTMLAndRecordsArticles(t *testing.T) {
	store := storage.NewMemory()
	c, f := newTestClient(t, store)
	ctx := context.Background()

	header, err := c.Post(ctx, bot.Post{Text: "<b>header</b>", DisableLinkPreview: true})
	require.NoError(t, err)
	assert.Equal(t, "1", header)

	id, err := c.Post(ctx, bot.Post{Text: "article", DisableLinkPreview: true, Metadata: articleMetadata("https://example.com/a")})
	require.NoError(t, err)
	assert.Equal(t, "2", id)

	require.Len(t, f.sent, 2)
	assert.Equal(t, "-1001", f.sent[0]["chat_id"])
	assert.Equal(t, "HTML", f.sent[0]["parse_mode"])
	assert.Equal(t, "true", f.sent[0]["disable_web_page_preview"])

	rec, err := store.Get(ctx, storage.KeyTelegramLedger)
	require.NoError(t, err)
	var l Ledger
	require.NoError(t, json.Unmarshal(rec.Value, &l))
	require.Len(t, l.Messages, 1)
	e := l.Messages["2"]
	require.NotNil(t, e)
	assert.Equal(t, bot.EventArticle, e.EventType)
	assert.Equal(t, postedAt, e.PostedAt)
}

func TestPostFailure(t *testing.T) {
	c, f := newTestClient(t, storage.NewMemory())
	f.failSend = true
	_, err := c.Post(context.Background(), bot.Post{Text: "x"})
	assert.ErrorContains(t, err, "chat not found")
}

func TestReact(t *testing.T) {
	store := storage.NewMemory()
	c, f := newTestClient(t, store)
	ctx := context.Background()

	id, err := c.Post(ctx, bot.Post{Text: "a", Metadata: articleMetadata("https://example.com/a")})
	require.NoError(t, err)

	require.NoError(t, c.React(ctx, id, "thumbsup"))
	assert.Error(t, c.React(ctx, id, "no-such-reaction"))
	assert.Error(t, c.React(ctx, "abc", "thumbsup"))

	require.Len(t, f.reacted, 1)
	assert.Equal(t, id, f.reacted[0]["message_id"])
	assert.JSONEq(t, `[{"type":"emoji","emoji":"👍"}]`, f.reacted[0]["reaction"])
}

func TestMessagesDrainsUpdates(t *testing.T) {
	store := storage.NewMemory()
	c, f := newTestClient(t, store)
	ctx := context.Background()

	id, err := c.Post(ctx, bot.Post{Text: "a", Metadata: articleMetadata("https://example.com/a")})
	require.NoError(t, err)
	msg, _ := strconv.Atoi(id)

	f.updates = []string{
		reactionUpdateJSON(10, msg, 1, "👍"),
		reactionUpdateJSON(11, msg, 2, "👍", "❤"),
		reactionUpdateJSON(12, msg, botID, "👍"),
		reactionUpdateJSON(13, 4242, 3, "👍"),
		reactionUpdateJSON(14, msg, 2, "👎"),
	}

	msgs, err := c.Messages(ctx, postedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, bot.EventArticle, msgs[0].EventType)
	assert.Equal(t, map[string]int{"thumbsup": 1, "thumbsdown": 1}, msgs[0].Reactions)

	// The stored offset moves past the drained updates.
	msgs, err = c.Messages(ctx, postedAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"thumbsup": 1, "thumbsdown": 1}, msgs[0].Reactions)
	assert.Equal(t, []string{"", "15"}, f.offsets)

	msgs, err = c.Messages(ctx, postedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// conflictStore fails the ledger write numbered failAt with a version conflict.
type conflictStore struct {
	storage.Store
	puts   int
	failAt int
}

func (s *conflictStore) Put(ctx context.Context, key string, value []byte, expected string) (string, error) {
	if key == storage.KeyTelegramLedger {
		s.puts++
		if s.puts == s.failAt {
			return "", storage.ErrVersionConflict
		}
	}
	return s.Store.Put(ctx, key, value, expected)
}

func TestMessagesKeepsConfirmedPagesOnConflict(t *testing.T) {
	// Write 1 records the post, write 2 the first page, write 3 the second.
	store := &conflictStore{Store: storage.NewMemory(), failAt: 3}
	c, f := newTestClient(t, store)
	ctx := context.Background()

	id, err := c.Post(ctx, bot.Post{Text: "a", Metadata: articleMetadata("https://example.com/a")})
	require.NoError(t, err)
	msg, _ := strconv.Atoi(id)

	for i := 1; i <= 150; i++ {
		f.updates = append(f.updates, reactionUpdateJSON(i, msg, int64(i), "👍"))
	}

	msgs, err := c.Messages(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]int{"thumbsup": 150}, msgs[0].Reactions)
	assert.Equal(t, []string{"", "101", "101"}, f.offsets)
	assert.Equal(t, 4, store.puts)
}

func TestAnonymousCountsExcludeSeededReaction(t *testing.T) {
	store := storage.NewMemory()
	c, f := newTestClient(t, store)
	ctx := context.Background()

	id, err := c.Post(ctx, bot.Post{Text: "a", Metadata: articleMetadata("https://example.com/a")})
	require.NoError(t, err)
	require.NoError(t, c.React(ctx, id, "thumbsup"))

	f.updates = []string{fmt.Sprintf(`{"update_id":1,"message_reaction_count":{"chat":{"id":-1001,"type":"channel"},"message_id":%s,"date":1760690000,"reactions":[
		{"type":{"type":"emoji","emoji":"👍"},"total_count":3},
		{"type":{"type":"emoji","emoji":"🔥"},"total_count":1},
		{"type":{"type":"custom_emoji","custom_emoji_id":"x"},"total_count":5}]}}`, id)}

	msgs, err := c.Messages(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]int{"thumbsup": 2, "fire": 1}, msgs[0].Reactions)
}

func TestLedgerPrune(t *testing.T) {
	l := newLedger()
	l.add(1, &MessageEntry{PostedAt: postedAt.Add(-31 * 24 * time.Hour)})
	l.add(2, &MessageEntry{PostedAt: postedAt.Add(-time.Hour)})

	l.prune(postedAt)

	assert.Nil(t, l.entry(1))
	assert.NotNil(t, l.entry(2))
}

func TestEmojiMapping(t *testing.T) {
	e, ok := emojiFor("heart")
	require.True(t, ok)
	assert.Equal(t, "heart", canonical(reactionType{Type: "emoji", Emoji: e}))
	assert.Equal(t, "heart", canonical(reactionType{Type: "emoji", Emoji: "❤️"}))
	assert.Equal(t, "🦄", canonical(reactionType{Type: "emoji", Emoji: "🦄"}))
	assert.Equal(t, "", canonical(reactionType{Type: "custom_emoji", CustomEmojiID: "1"}))
}
