// Package state reads and writes the typed records kept in the content store.
package state

import (
	"time"

	"daily-news-bot/preference"
)

// MaxSeen bounds the SeenSet; the oldest fingerprints are evicted first.
const MaxSeen = 1000

// SeenSet is the ordered set of fingerprints already published, oldest first.
type SeenSet struct {
	order []string
	index map[string]struct{}
}

// NewSeenSet builds a SeenSet from fingerprints in publication order.
func NewSeenSet(fingerprints ...string) SeenSet {
	s := SeenSet{index: make(map[string]struct{}, len(fingerprints))}
	s.Add(fingerprints...)
	return s
}

// Contains reports whether fp has been published.
func (s SeenSet) Contains(fp string) bool {
	_, ok := s.index[fp]
	return ok
}

// Len returns the number of fingerprints held.
func (s SeenSet) Len() int {
	return len(s.order)
}

// Fingerprints returns the fingerprints in publication order.
func (s SeenSet) Fingerprints() []string {
	return append([]string(nil), s.order...)
}

// Add appends fingerprints not already present, then evicts the oldest
// entries beyond MaxSeen.
func (s *SeenSet) Add(fingerprints ...string) {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	for _, fp := range fingerprints {
		if fp == "" {
			continue
		}
		if _, ok := s.index[fp]; ok {
			continue
		}
		s.index[fp] = struct{}{}
		s.order = append(s.order, fp)
	}
	if over := len(s.order) - MaxSeen; over > 0 {
		for _, fp := range s.order[:over] {
			delete(s.index, fp)
		}
		s.order = append([]string(nil), s.order[over:]...)
	}
}

type sentArticles struct {
	Fingerprints []string  `json:"fingerprints"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LearningData is the persisted preference model together with the ledger of
// reaction counts already applied to it. Both commit under one version.
type LearningData struct {
	Preferences preference.Model  `json:"preferences"`
	Applied     preference.Ledger `json:"applied"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// NewLearningData returns empty learning data.
func NewLearningData() LearningData {
	return LearningData{
		Preferences: preference.NewModel(),
		Applied:     preference.Ledger{},
	}
}

func (d *LearningData) normalize() {
	d.Preferences = d.Preferences.Clone()
	if d.Applied == nil {
		d.Applied = preference.Ledger{}
	}
}

// Cursor records when cycles last completed.
type Cursor struct {
	LastCurationAt time.Time `json:"lastCurationAt"`
	LastLearningAt time.Time `json:"lastLearningAt"`
	LastSlateSize  int       `json:"lastSlateSize"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
