// Package bot renders the messages posted to the channel and the metadata
// envelope that lets reactions be traced back to articles.
package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"daily-news-bot/article"
)

// EventArticle marks messages that carry one curated article.
const EventArticle = "daily_news_article"

// Metadata is attached to each article message.
type Metadata struct {
	EventType string         `json:"event_type"`
	Payload   ArticlePayload `json:"event_payload"`
}

// ArticlePayload is the article's feature vector as stored with its message.
type ArticlePayload struct {
	Fingerprint string   `json:"fingerprint,omitempty"`
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Source      string   `json:"source"`
	Tags        []string `json:"tags"`
	Language    string   `json:"language,omitempty"`
}

// Record converts the payload into the record of the message it rode on.
func (p ArticlePayload) Record(messageID string) article.PublishedRecord {
	fp := p.Fingerprint
	if fp == "" {
		fp = article.Fingerprint(p.URL)
	}
	lang, err := article.ParseLanguage(p.Language)
	if err != nil || lang == "" {
		lang = article.Primary
	}
	return article.PublishedRecord{
		MessageID:          messageID,
		ArticleFingerprint: fp,
		URL:                p.URL,
		SourceName:         p.Source,
		Tags:               append([]string(nil), p.Tags...),
		Language:           lang,
	}
}

// ArticleMetadata builds the envelope for a.
func ArticleMetadata(a article.Article) Metadata {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return Metadata{
		EventType: EventArticle,
		Payload: ArticlePayload{
			Fingerprint: a.Fingerprint,
			URL:         a.URL,
			Title:       a.Title,
			Source:      a.Source,
			Tags:        append([]string(nil), tags...),
			Language:    string(a.Language),
		},
	}
}

// Markup selects how text is escaped for the channel.
type Markup int

const (
	// Plain leaves text as is (Slack mrkdwn).
	Plain Markup = iota
	// HTML escapes text and links titles (Telegram).
	HTML
)

var numberEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

// Formatter renders header and article messages.
type Formatter struct {
	Markup        Markup
	Mention       string
	PrimaryFlag   string
	SecondaryFlag string
	Location      *time.Location
}

// FormatHeader renders the message posted before the slate.
func (f Formatter) FormatHeader(now time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📰 今日のおすすめ記事 (%s)", now.In(loc).Format("2006-01-02"))
	if f.Mention != "" {
		b.WriteString(" " + f.mention())
	}
	b.WriteString("\n良かった記事には👍リアクションをつけてください！")
	return b.String()
}

func (f Formatter) mention() string {
	if f.Markup == HTML {
		return html.EscapeString(f.Mention)
	}
	return "<@" + f.Mention + ">"
}

// FormatArticle renders the message for the article at 1-based position.
func (f Formatter) FormatArticle(position int, a article.Article) string {
	num := fmt.Sprintf("%d.", position)
	if position >= 1 && position <= len(numberEmojis) {
		num = numberEmojis[position-1]
	}

	tags := make([]string, len(a.Tags))
	for i, t := range a.Tags {
		tags[i] = "#" + t
	}

	title, summary, source, tagLine := a.Title, a.Summary, a.Source, strings.Join(tags, " ")
	link := a.URL
	if f.Markup == HTML {
		title = fmt.Sprintf(`<b>%s</b>`, html.EscapeString(title))
		summary = html.EscapeString(summary)
		source = html.EscapeString(source)
		tagLine = html.EscapeString(tagLine)
		link = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(a.URL), html.EscapeString(a.URL))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", num, title)
	fmt.Fprintf(&b, "%s 🔗 %s\n", f.flag(a.Language), link)
	if summary != "" {
		fmt.Fprintf(&b, "📝 %s\n", summary)
	}
	fmt.Fprintf(&b, "🏷️ %s | 📰 %s", tagLine, source)
	return b.String()
}

func (f Formatter) flag(lang article.Language) string {
	if lang == article.Secondary {
		if f.SecondaryFlag != "" {
			return f.SecondaryFlag
		}
		return "🌐"
	}
	if f.PrimaryFlag != "" {
		return f.PrimaryFlag
	}
	return "🇯🇵"
}
