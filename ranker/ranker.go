// Package ranker scores articles against the learned preference model and
// picks the slate to publish.
package ranker

import (
	"sort"
	"strings"

	"daily-news-bot/article"
	"daily-news-bot/preference"
)

// Default scoring constants. The trusted-source bonus is large enough that
// the trusted source outranks any plausible learned weight.
const (
	DefaultTrustedSourceBonus = 100.0
	DefaultSourceFactor       = 2.0
	DefaultTagFactor          = 1.5
	DefaultKeywordBonus       = 5.0

	minPrimary = 3
)

// Scored is an article with its score for this cycle.
type Scored struct {
	Article article.Article
	Score   float64
}

// Scorer combines static priors with the learned preference model.
type Scorer struct {
	trustedSource      string
	trustedSourceBonus float64
	sourceFactor       float64
	tagFactor          float64
	keywordBonus       float64
	keywords           []string
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTrustedSource sets the source that receives the static bonus.
func WithTrustedSource(name string, bonus float64) Option {
	return func(s *Scorer) {
		s.trustedSource = name
		s.trustedSourceBonus = bonus
	}
}

// WithFactors sets the multipliers applied to learned source and tag weights.
func WithFactors(source, tag float64) Option {
	return func(s *Scorer) {
		s.sourceFactor = source
		s.tagFactor = tag
	}
}

// WithPriorityKeywords sets the keywords that each add bonus when present.
func WithPriorityKeywords(bonus float64, keywords ...string) Option {
	return func(s *Scorer) {
		s.keywordBonus = bonus
		s.keywords = s.keywords[:0]
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				s.keywords = append(s.keywords, kw)
			}
		}
	}
}

// NewScorer creates a scorer with the default constants and no trusted
// source or priority keywords.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		trustedSourceBonus: DefaultTrustedSourceBonus,
		sourceFactor:       DefaultSourceFactor,
		tagFactor:          DefaultTagFactor,
		keywordBonus:       DefaultKeywordBonus,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the additive score of a under m.
func (s *Scorer) Score(a article.Article, m preference.Model) float64 {
	var score float64
	if s.trustedSource != "" && a.Source == s.trustedSource {
		score += s.trustedSourceBonus
	}
	score += m.SourceWeight[a.Source] * s.sourceFactor
	for _, tag := range a.Tags {
		score += m.TagWeight[tag] * s.tagFactor
	}
	text := strings.ToLower(a.Title + " " + a.Summary)
	for _, kw := range s.keywords {
		if strings.Contains(text, kw) {
			score += s.keywordBonus
		}
	}
	return score
}

// Rank scores articles and orders them by score descending. Ties keep input order.
func (s *Scorer) Rank(articles []article.Article, m preference.Model) []Scored {
	ranked := make([]Scored, len(articles))
	for i, a := range articles {
		ranked[i] = Scored{Article: a, Score: s.Score(a, m)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Select picks at most target articles. At least max(3, target-2) primary
// language articles are taken when available, the rest of the slate is
// filled from the secondary language, and any remaining room is backfilled
// with the best leftovers of either language. The result is ordered by
// score descending, ties in input order.
func Select(scored []Scored, target int) []Scored {
	if target <= 0 || len(scored) == 0 {
		return []Scored{}
	}

	order := make([]int, len(scored))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scored[order[i]].Score > scored[order[j]].Score
	})

	var primary, secondary []int
	for _, idx := range order {
		if scored[idx].Article.Language == article.Secondary {
			secondary = append(secondary, idx)
		} else {
			primary = append(primary, idx)
		}
	}

	quota := min(max(minPrimary, target-2), len(primary), target)
	chosen := make(map[int]bool, target)
	for _, idx := range primary[:quota] {
		chosen[idx] = true
	}
	fill := min(target-quota, len(secondary))
	for _, idx := range secondary[:fill] {
		chosen[idx] = true
	}
	for _, idx := range order {
		if len(chosen) >= target {
			break
		}
		chosen[idx] = true
	}

	out := make([]Scored, 0, len(chosen))
	for _, idx := range order {
		if chosen[idx] {
			out = append(out, scored[idx])
		}
	}
	return out
}
