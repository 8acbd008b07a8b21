// Package normalize turns raw feed items into deduplicated articles.
package normalize

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/purell"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"daily-news-bot/article"
)

const (
	maxSummaryRunes  = 200
	truncatedRunes   = 197
	truncationSuffix = "..."

	DefaultRecencyWindow = 3 * 24 * time.Hour
)

const urlFlags = purell.FlagsSafe | purell.FlagRemoveFragment

// TagRule assigns Tag to articles whose text contains any of Keywords.
type TagRule struct {
	Tag      string   `yaml:"tag"`
	Keywords []string `yaml:"keywords"`
}

// Seen reports whether a fingerprint was already published.
type Seen interface {
	Contains(fingerprint string) bool
}

// Classifier guesses the language of a text.
type Classifier interface {
	Classify(text string) article.Language
}

// Options configures a Normalizer.
type Options struct {
	RecencyWindow time.Duration
	TagRules      []TagRule
	FallbackTag   string
	Classifier    Classifier
}

// Normalizer cleans, tags and deduplicates raw items.
type Normalizer struct {
	window      time.Duration
	rules       []compiledRule
	fallbackTag string
	classifier  Classifier
}

// Report counts why raw items were dropped.
type Report struct {
	Invalid   int
	Stale     int
	Seen      int
	Duplicate int
}

// New creates a Normalizer. A zero RecencyWindow means DefaultRecencyWindow.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		window:      opts.RecencyWindow,
		fallbackTag: opts.FallbackTag,
		classifier:  opts.Classifier,
	}
	if n.window <= 0 {
		n.window = DefaultRecencyWindow
	}
	for _, r := range opts.TagRules {
		n.rules = append(n.rules, compileRule(r))
	}
	return n
}

// Normalize returns the articles built from items that are complete, recent
// and not yet seen. seen is only read. The first occurrence of a URL wins.
func (n *Normalizer) Normalize(items []article.RawItem, seen Seen, now time.Time) []article.Article {
	out, _ := n.Run(items, seen, now)
	return out
}

// Run is Normalize that also reports what was dropped.
func (n *Normalizer) Run(items []article.RawItem, seen Seen, now time.Time) ([]article.Article, Report) {
	admitted, report := n.Admit(items, seen, now)
	return n.Build(admitted), report
}

// Admit drops items that lack a title or link, fall outside the recency
// window, were already published, or repeat an earlier item of the batch.
// The rest keep their order and are returned unchanged, ready for Build.
func (n *Normalizer) Admit(items []article.RawItem, seen Seen, now time.Time) ([]article.RawItem, Report) {
	var report Report
	cutoff := now.Add(-n.window)
	batch := make(map[string]struct{}, len(items))
	out := make([]article.RawItem, 0, len(items))

	for _, item := range items {
		if collapse(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			report.Invalid++
			continue
		}

		if published := publishedAt(item); published != nil && published.Before(cutoff) {
			report.Stale++
			continue
		}

		fp := article.Fingerprint(NormalizeURL(strings.TrimSpace(item.Link)))
		if seen != nil && seen.Contains(fp) {
			report.Seen++
			continue
		}
		if _, dup := batch[fp]; dup {
			report.Duplicate++
			continue
		}
		batch[fp] = struct{}{}
		out = append(out, item)
	}
	return out, report
}

// Build turns admitted items into articles: markup is stripped, the summary
// truncated, and tags and language derived from title and summary.
func (n *Normalizer) Build(items []article.RawItem) []article.Article {
	out := make([]article.Article, 0, len(items))
	for _, item := range items {
		title := collapse(item.Title)
		url := NormalizeURL(strings.TrimSpace(item.Link))
		summary := Truncate(StripMarkup(item.Summary))
		out = append(out, article.Article{
			Title:       title,
			URL:         url,
			Summary:     summary,
			Source:      item.Source,
			Fingerprint: article.Fingerprint(url),
			Tags:        n.tags(item.Tags, title+" "+summary),
			Language:    n.language(item.Language, title+" "+summary),
			PublishedAt: publishedAt(item),
		})
	}
	return out
}

func (n *Normalizer) language(hint article.Language, text string) article.Language {
	if hint == article.Primary || hint == article.Secondary {
		return hint
	}
	if n.classifier != nil {
		return n.classifier.Classify(text)
	}
	return article.Primary
}

func (n *Normalizer) tags(queryTags []string, text string) []string {
	var tags []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		for _, existing := range tags {
			if existing == t {
				return
			}
		}
		tags = append(tags, t)
	}
	for _, t := range queryTags {
		add(t)
	}
	lower := strings.ToLower(text)
	for _, r := range n.rules {
		if r.matches(lower) {
			add(r.tag)
		}
	}
	if len(tags) == 0 && n.fallbackTag != "" {
		tags = append(tags, n.fallbackTag)
	}
	return tags
}

// NormalizeURL applies safe normalizations and drops the fragment. A URL that
// cannot be parsed is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := purell.NormalizeURLString(raw, urlFlags)
	if err != nil {
		return raw
	}
	return u
}

func publishedAt(item article.RawItem) *time.Time {
	if item.Published != nil && !item.Published.IsZero() {
		t := *item.Published
		return &t
	}
	raw := strings.TrimSpace(item.PublishedRaw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// StripMarkup removes tags, decodes entities and collapses whitespace.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(b.String())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			tt := z.Token()
			switch {
			case tt.Data == "script" || tt.Data == "style":
				if tt.Type == html.StartTagToken {
					skip++
				} else if tt.Type == html.EndTagToken && skip > 0 {
					skip--
				}
			case isBlock(tt.Data):
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "br", "div", "li", "ul", "ol", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "hr":
		return true
	}
	return false
}

// Truncate shortens s to 197 runes plus "..." when it is longer than 200 runes.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxSummaryRunes {
		return s
	}
	r := []rune(s)
	return string(r[:truncatedRunes]) + truncationSuffix
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
