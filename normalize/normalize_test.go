package normalize

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-news-bot/article"
	"daily-news-bot/state"
)

var now = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

var rules = []TagRule{
	{Tag: "AI", Keywords: []string{"ai", "人工知能", "生成AI", "ChatGPT"}},
	{Tag: "SNS", Keywords: []string{"sns", "instagram", "x"}},
	{Tag: "データ分析", Keywords: []string{"データ", "分析"}},
}

func newNormalizer(c Classifier) *Normalizer {
	return New(Options{TagRules: rules, FallbackTag: "その他", Classifier: c})
}

func item(title, link string) article.RawItem {
	return article.RawItem{Title: title, Link: link, Source: "MarkeZine"}
}

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

type fixedClassifier article.Language

func (f fixedClassifier) Classify(string) article.Language { return article.Language(f) }

func TestNormalizeBuildsArticle(t *testing.T) {
	raw := item("  生成AIで変わる  マーケティング ", "HTTPS://Example.COM/a?x=1#top")
	raw.Summary = "<p>データ<b>分析</b>の&amp;最新動向</p><script>track()</script>"
	raw.Published = ago(time.Hour)

	out := newNormalizer(nil).Normalize([]article.RawItem{raw}, state.NewSeenSet(), now)

	require.Len(t, out, 1)
	a := out[0]
	assert.Equal(t, "生成AIで変わる マーケティング", a.Title)
	assert.Equal(t, "https://example.com/a?x=1", a.URL)
	assert.Equal(t, article.Fingerprint("https://example.com/a?x=1"), a.Fingerprint)
	assert.Equal(t, "データ分析の&最新動向", a.Summary)
	assert.Equal(t, []string{"AI", "データ分析"}, a.Tags)
	assert.Equal(t, "MarkeZine", a.Source)
	assert.Equal(t, article.Primary, a.Language)
	require.NotNil(t, a.PublishedAt)
}

func TestNormalizeDropsIncompleteItems(t *testing.T) {
	out, report := newNormalizer(nil).Run([]article.RawItem{
		item("", "https://example.com/a"),
		item("title", "  "),
		item("title", "https://example.com/ok"),
	}, nil, now)

	require.Len(t, out, 1)
	assert.Equal(t, 2, report.Invalid)
}

func TestNormalizeRecencyWindow(t *testing.T) {
	fresh := item("fresh", "https://example.com/fresh")
	fresh.Published = ago(71 * time.Hour)
	stale := item("stale", "https://example.com/stale")
	stale.Published = ago(73 * time.Hour)
	rawStale := item("raw stale", "https://example.com/raw-stale")
	rawStale.PublishedRaw = "Mon, 05 Oct 2026 09:00:00 +0900"
	rawFresh := item("raw fresh", "https://example.com/raw-fresh")
	rawFresh.PublishedRaw = "2026-10-16 21:00:00"
	garbage := item("undated", "https://example.com/undated")
	garbage.PublishedRaw = "sometime last week"

	out, report := newNormalizer(nil).Run([]article.RawItem{fresh, stale, rawStale, rawFresh, garbage}, nil, now)

	var titles []string
	for _, a := range out {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, []string{"fresh", "raw fresh", "undated"}, titles)
	assert.Equal(t, 2, report.Stale)
}

func TestNormalizeSkipsSeenAndBatchDuplicates(t *testing.T) {
	seen := state.NewSeenSet(article.Fingerprint("https://example.com/old"))
	first := item("first", "https://example.com/a")
	second := item("second copy", "https://example.com/a#comments")

	out, report := newNormalizer(nil).Run([]article.RawItem{
		item("old", "https://example.com/old"), first, second,
	}, seen, now)

	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Title)
	assert.Equal(t, 1, report.Seen)
	assert.Equal(t, 1, report.Duplicate)
	assert.Equal(t, 1, seen.Len())
}

func TestAdmitThenBuildUsesLateSummary(t *testing.T) {
	n := newNormalizer(nil)
	stale := now.Add(-10 * 24 * time.Hour)
	old := item("old", "https://example.com/old")
	old.Published = &stale

	admitted, report := n.Admit([]article.RawItem{
		item("first", "https://example.com/a"),
		old,
		item("first again", "https://example.com/a"),
	}, nil, now)

	require.Len(t, admitted, 1)
	assert.Equal(t, 1, report.Stale)
	assert.Equal(t, 1, report.Duplicate)

	admitted[0].Summary = "<p>生成AIの活用事例</p>"
	out := n.Build(admitted)
	require.Len(t, out, 1)
	assert.Equal(t, "生成AIの活用事例", out[0].Summary)
	assert.Equal(t, []string{"AI"}, out[0].Tags)
}

func TestNormalizeDedupIsIdempotent(t *testing.T) {
	n := newNormalizer(nil)
	items := []article.RawItem{
		item("a", "https://example.com/a"),
		item("b", "https://example.com/b"),
		item("a again", "https://example.com/a"),
	}

	once := n.Normalize(items, nil, now)

	var again []article.RawItem
	for _, a := range once {
		again = append(again, article.RawItem{Title: a.Title, Link: a.URL, Summary: a.Summary, Source: a.Source, Tags: a.Tags, Language: a.Language})
	}
	twice := n.Normalize(again, nil, now)

	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].Fingerprint, twice[i].Fingerprint)
	}
}

func TestNormalizeTruncatesSummary(t *testing.T) {
	long := item("long", "https://example.com/long")
	long.Summary = strings.Repeat("あ", 250)
	exact := item("exact", "https://example.com/exact")
	exact.Summary = strings.Repeat("い", 200)

	out := newNormalizer(nil).Normalize([]article.RawItem{long, exact}, nil, now)

	require.Len(t, out, 2)
	assert.Equal(t, 200, utf8.RuneCountInString(out[0].Summary))
	assert.True(t, strings.HasSuffix(out[0].Summary, "..."))
	assert.Equal(t, strings.Repeat("あ", 197)+"...", out[0].Summary)
	assert.Equal(t, strings.Repeat("い", 200), out[1].Summary)
}

func TestNormalizeTags(t *testing.T) {
	n := newNormalizer(nil)
	cases := []struct {
		name  string
		title string
		query []string
		want  []string
	}{
		{"fallback", "四半期決算のお知らせ", nil, []string{"その他"}},
		{"ascii word boundary", "Next steps for email campaigns", nil, []string{"その他"}},
		{"standalone x", "X（旧Twitter）の広告運用", nil, []string{"SNS"}},
		{"ascii next to kana", "生成aiの使い方", nil, []string{"AI"}},
		{"query tags first", "Instagram growth", []string{"コミュニティ"}, []string{"コミュニティ", "SNS"}},
		{"query tag not duplicated", "AI news", []string{"AI"}, []string{"AI"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := item(tc.title, "https://example.com/"+tc.name)
			raw.Tags = tc.query
			out := n.Normalize([]article.RawItem{raw}, nil, now)
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, out[0].Tags)
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	hinted := item("hinted", "https://example.com/hinted")
	hinted.Language = article.Primary
	unhinted := item("unhinted", "https://example.com/unhinted")

	out := newNormalizer(fixedClassifier(article.Secondary)).Normalize([]article.RawItem{hinted, unhinted}, nil, now)
	require.Len(t, out, 2)
	assert.Equal(t, article.Primary, out[0].Language)
	assert.Equal(t, article.Secondary, out[1].Language)

	out = newNormalizer(nil).Normalize([]article.RawItem{unhinted}, nil, now)
	assert.Equal(t, article.Primary, out[0].Language)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := item(" spaced ", "https://example.com/a")
	raw.Summary = "<b>x</b>"
	items := []article.RawItem{raw}

	newNormalizer(nil).Normalize(items, nil, now)

	assert.Equal(t, " spaced ", items[0].Title)
	assert.Equal(t, "<b>x</b>", items[0].Summary)
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "first second", StripMarkup("<p>first</p><p>second</p>"))
	assert.Equal(t, "a < b & c", StripMarkup("a &lt; b &amp; c"))
	assert.Equal(t, "plain text", StripMarkup("plain\n\ttext"))
	assert.Equal(t, "", StripMarkup("<style>p{}</style>"))
}
