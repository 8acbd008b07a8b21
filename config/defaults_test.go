package config

import (
	"testing"

	"daily-news-bot/article"
	"daily-news-bot/filter"
)

func defaultFilter(t *testing.T) (*filter.Filter, CurationConfig) {
	t.Helper()
	cfg := &Config{}
	applyDefaults(cfg)
	cur := cfg.Curation
	return filter.New(filter.Policy{
		TrustedSource:  cur.TrustedSource,
		ExcludePhrases: cur.ExcludePhrases,
		ExcludeDomains: cur.ExcludeDomains,
		IncludePhrases: cur.IncludePhrases,
		MinTitleLength: cur.MinTitleLength,
	}), cur
}

// neutralTitle is long enough to pass on length and matches no default phrase.
const neutralTitle = "Weekly roundup of the marketing industry"

func TestDefaultPolicyBaseline(t *testing.T) {
	f, cur := defaultFilter(t)

	if len(cur.ExcludePhrases) != len(excludePhrases) || len(cur.ExcludeDomains) != 3 {
		t.Fatalf("unexpected default table: %d phrases, %d domains", len(cur.ExcludePhrases), len(cur.ExcludeDomains))
	}
	v := f.Evaluate(article.Article{Title: neutralTitle, URL: "https://example.com/a", Source: "MarkeZine"})
	if !v.Keep || v.Reason != "title length" {
		t.Errorf("neutral article: %+v, want kept on title length", v)
	}
	v = f.Evaluate(article.Article{Title: "短い見出し", URL: "https://example.com/a", Source: "MarkeZine"})
	if v.Keep {
		t.Errorf("short neutral article kept: %+v", v)
	}
}

func TestDefaultExcludePhrases(t *testing.T) {
	f, cur := defaultFilter(t)

	for _, phrase := range cur.ExcludePhrases {
		for name, a := range map[string]article.Article{
			"title":   {Title: neutralTitle + " " + phrase, URL: "https://example.com/a"},
			"summary": {Title: neutralTitle, Summary: "本日 " + phrase + " です", URL: "https://example.com/a"},
		} {
			a.Source = "MarkeZine"
			v := f.Evaluate(a)
			if v.Keep {
				t.Errorf("%q in %s: kept, want dropped", phrase, name)
				continue
			}
			if v.Rule == nil || v.Rule.Field != filter.Text || v.Rule.Action != filter.Exclude {
				t.Errorf("%q in %s: dropped by %+v", phrase, name, v.Rule)
			}
		}
	}
}

func TestDefaultExcludeDomains(t *testing.T) {
	f, cur := defaultFilter(t)

	for _, domain := range cur.ExcludeDomains {
		for _, url := range []string{
			"https://" + domain + "/main/html/rd/p/000000001.html",
			"https://news." + domain + "/article/1",
		} {
			v := f.Evaluate(article.Article{Title: neutralTitle, URL: url, Source: "PR wire"})
			if v.Keep {
				t.Errorf("%s: kept, want dropped", url)
				continue
			}
			if v.Rule == nil || v.Rule.Field != filter.Domain || v.Rule.Pattern != domain {
				t.Errorf("%s: dropped by %+v, want domain rule %s", url, v.Rule, domain)
			}
		}
	}

	v := f.Evaluate(article.Article{Title: neutralTitle, URL: "https://notprtimes.jp/a", Source: "x"})
	if !v.Keep {
		t.Errorf("lookalike domain dropped: %+v", v)
	}
}

func TestDefaultIncludePhrases(t *testing.T) {
	f, cur := defaultFilter(t)

	if len(cur.IncludePhrases) != len(priorityKeywords) {
		t.Fatalf("include phrases = %d, want %d", len(cur.IncludePhrases), len(priorityKeywords))
	}
	for _, phrase := range cur.IncludePhrases {
		v := f.Evaluate(article.Article{Title: phrase, URL: "https://example.com/a", Source: "MarkeZine"})
		if !v.Keep {
			t.Errorf("short title %q dropped: %s", phrase, v.Reason)
			continue
		}
		if v.Rule == nil || v.Rule.Action != filter.Include {
			t.Errorf("short title %q kept by %q, want include rule", phrase, v.Reason)
		}
	}
}

func TestDefaultTrustedSourceBypassesExcludes(t *testing.T) {
	f, cur := defaultFilter(t)

	for _, phrase := range cur.ExcludePhrases {
		v := f.Evaluate(article.Article{Title: phrase, URL: "https://xtrend.nikkei.com/atcl/1", Source: cur.TrustedSource})
		if !v.Keep || v.Reason != "trusted source" {
			t.Errorf("trusted %q: %+v", phrase, v)
		}
	}
	for _, domain := range cur.ExcludeDomains {
		v := f.Evaluate(article.Article{Title: "短い", URL: "https://" + domain + "/a", Source: cur.TrustedSource})
		if !v.Keep || v.Reason != "trusted source" {
			t.Errorf("trusted on %s: %+v", domain, v)
		}
	}
}
