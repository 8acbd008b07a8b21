// Package preference holds the learned preference model and the pure update
// that folds audience reactions into it.
//
// Weights are unbounded in both directions. A burst of negative reactions can
// push a source far enough below zero that it never ranks again; decay is the
// only mechanism that pulls weights back toward zero.
package preference

import (
	"sort"
)

// MaxLikedURLs bounds the liked URL history; oldest entries are evicted first.
const MaxLikedURLs = 100

// Model is the learned state: signed weights per source and tag plus the
// history of liked article URLs.
type Model struct {
	SourceWeight map[string]float64 `json:"sourceWeight"`
	TagWeight    map[string]float64 `json:"tagWeight"`
	LikedURLs    []string           `json:"likedUrls"`
}

// NewModel returns an empty model.
func NewModel() Model {
	return Model{
		SourceWeight: make(map[string]float64),
		TagWeight:    make(map[string]float64),
		LikedURLs:    []string{},
	}
}

// Clone returns a deep copy; nil maps are replaced with empty ones.
func (m Model) Clone() Model {
	out := NewModel()
	for k, v := range m.SourceWeight {
		out.SourceWeight[k] = v
	}
	for k, v := range m.TagWeight {
		out.TagWeight[k] = v
	}
	out.LikedURLs = append(out.LikedURLs, m.LikedURLs...)
	return out
}

// Decay scales every weight by (1 - rate). A rate outside (0, 1] is a no-op.
//
// The ledger keeps raw reaction counts, not decayed contributions, so a
// reaction removed after one or more decays subtracts its full original
// count and overshoots what is left of it. With a zero rate the reversal is
// exact.
func (m Model) Decay(rate float64) Model {
	out := m.Clone()
	if rate <= 0 || rate > 1 {
		return out
	}
	for k, v := range out.SourceWeight {
		out.SourceWeight[k] = v * (1 - rate)
	}
	for k, v := range out.TagWeight {
		out.TagWeight[k] = v * (1 - rate)
	}
	return out
}

func (m *Model) addLiked(url string) {
	if url == "" {
		return
	}
	for _, u := range m.LikedURLs {
		if u == url {
			return
		}
	}
	m.LikedURLs = append(m.LikedURLs, url)
	if len(m.LikedURLs) > MaxLikedURLs {
		m.LikedURLs = append([]string(nil), m.LikedURLs[len(m.LikedURLs)-MaxLikedURLs:]...)
	}
}

// Weight is a named weight, used for reporting.
type Weight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// TopSources returns up to n sources ordered by weight descending.
func (m Model) TopSources(n int) []Weight {
	return top(m.SourceWeight, n)
}

// TopTags returns up to n tags ordered by weight descending.
func (m Model) TopTags(n int) []Weight {
	return top(m.TagWeight, n)
}

func top(weights map[string]float64, n int) []Weight {
	out := make([]Weight, 0, len(weights))
	for name, w := range weights {
		out = append(out, Weight{Name: name, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
