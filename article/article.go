package article

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Language classifies an article as domestic (primary) or foreign (secondary) content.
type Language string

const (
	Primary   Language = "primary"
	Secondary Language = "secondary"
)

// ParseLanguage maps a config or metadata value to a Language.
// An empty string yields an empty Language (no hint).
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case string(Primary):
		return Primary, nil
	case string(Secondary):
		return Secondary, nil
	default:
		return "", fmt.Errorf("unknown language %q (want primary or secondary)", s)
	}
}

// RawItem is one candidate as produced by a fetcher, before normalization.
type RawItem struct {
	Title        string
	Link         string
	Summary      string
	Source       string
	Published    *time.Time
	PublishedRaw string
	Language     Language
	Tags         []string
}

// Article is a normalized, deduplicated candidate.
type Article struct {
	Title       string
	URL         string
	Summary     string
	Source      string
	Fingerprint string
	Tags        []string
	Language    Language
	PublishedAt *time.Time
}

// PublishedRecord binds a published message to the features of the article it carried.
type PublishedRecord struct {
	MessageID          string
	ArticleFingerprint string
	URL                string
	SourceName         string
	Tags               []string
	Language           Language
}

// Fingerprint returns the stable identity of an article URL: the hex MD5 of the URL.
func Fingerprint(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// HasTag reports whether the article carries tag.
func (a *Article) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
