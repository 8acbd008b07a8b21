// Package filter decides which articles are worth ranking at all.
//
// The decision is static: learned preferences never influence it.
package filter

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"daily-news-bot/article"
)

// DefaultMinTitleLength is the title length, in runes, above which an
// article is kept without matching an include phrase.
const DefaultMinTitleLength = 15

// Field selects what a Rule's pattern is matched against.
type Field int

const (
	// Text matches the title, summary and URL.
	Text Field = iota
	// Domain matches the URL host or any of its parent domains.
	Domain
)

// Action is what a matching Rule does.
type Action int

const (
	Exclude Action = iota
	Include
)

// Rule is one row of the policy table.
type Rule struct {
	Pattern string
	Field   Field
	Action  Action
}

func (r Rule) String() string {
	kind := "text"
	if r.Field == Domain {
		kind = "domain"
	}
	if r.Action == Include {
		return "include " + kind + " " + r.Pattern
	}
	return "exclude " + kind + " " + r.Pattern
}

// Verdict explains a filter decision.
type Verdict struct {
	Keep   bool
	Reason string
	Rule   *Rule
}

// Policy configures a Filter.
type Policy struct {
	TrustedSource  string
	ExcludePhrases []string
	ExcludeDomains []string
	IncludePhrases []string
	MinTitleLength int
}

// Rules expands the policy into its table: excludes first, then includes.
func (p Policy) Rules() []Rule {
	var rules []Rule
	for _, s := range p.ExcludePhrases {
		rules = append(rules, Rule{Pattern: s, Field: Text, Action: Exclude})
	}
	for _, s := range p.ExcludeDomains {
		rules = append(rules, Rule{Pattern: s, Field: Domain, Action: Exclude})
	}
	for _, s := range p.IncludePhrases {
		rules = append(rules, Rule{Pattern: s, Field: Text, Action: Include})
	}
	return rules
}

// Filter applies a Policy.
type Filter struct {
	trusted  string
	rules    []Rule
	minTitle int
}

// New creates a Filter from p. A non-positive MinTitleLength means
// DefaultMinTitleLength.
func New(p Policy) *Filter {
	f := &Filter{
		trusted:  p.TrustedSource,
		minTitle: p.MinTitleLength,
	}
	if f.minTitle <= 0 {
		f.minTitle = DefaultMinTitleLength
	}
	for _, r := range p.Rules() {
		r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
		if r.Pattern != "" {
			f.rules = append(f.rules, r)
		}
	}
	return f
}

// IsValuable reports whether a should be ranked.
func (f *Filter) IsValuable(a article.Article) bool {
	return f.Evaluate(a).Keep
}

// Evaluate returns the decision for a and the rule that produced it.
// Articles from the trusted source are kept without inspection. Otherwise any
// exclude rule drops the article; then it is kept if an include rule matches
// or its title is long enough.
func (f *Filter) Evaluate(a article.Article) Verdict {
	if f.trusted != "" && a.Source == f.trusted {
		return Verdict{Keep: true, Reason: "trusted source"}
	}

	text := strings.ToLower(a.Title + "\n" + a.Summary + "\n" + a.URL)
	host := hostOf(a.URL)

	for i := range f.rules {
		r := &f.rules[i]
		if r.Action == Exclude && r.matches(text, host) {
			return Verdict{Keep: false, Reason: r.String(), Rule: r}
		}
	}

	content := strings.ToLower(a.Title + "\n" + a.Summary)
	for i := range f.rules {
		r := &f.rules[i]
		if r.Action == Include && r.matches(content, host) {
			return Verdict{Keep: true, Reason: r.String(), Rule: r}
		}
	}

	if utf8.RuneCountInString(a.Title) > f.minTitle {
		return Verdict{Keep: true, Reason: "title length"}
	}
	return Verdict{Keep: false, Reason: "no include phrase and short title"}
}

// Apply partitions articles, preserving order.
func (f *Filter) Apply(articles []article.Article) (kept, dropped []article.Article) {
	for _, a := range articles {
		if f.IsValuable(a) {
			kept = append(kept, a)
		} else {
			dropped = append(dropped, a)
		}
	}
	return kept, dropped
}

func (r *Rule) matches(text, host string) bool {
	if r.Field == Domain {
		return host != "" && (host == r.Pattern || strings.HasSuffix(host, "."+r.Pattern))
	}
	return strings.Contains(text, r.Pattern)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}
