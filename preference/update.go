package preference

import (
	"sort"
	"time"

	"daily-news-bot/article"
)

// Reaction names as used by the chat channel.
var (
	DefaultPositive = []string{"thumbsup", "+1", "heart", "fire", "star-struck", "eyes", "100"}
	DefaultNegative = []string{"thumbsdown", "-1", "disappointed"}
)

// ReactionPolicy classifies reaction names as positive, negative or neutral.
type ReactionPolicy struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// NewReactionPolicy builds a policy. A name listed in both sets counts as positive.
func NewReactionPolicy(positive, negative []string) ReactionPolicy {
	p := ReactionPolicy{
		positive: make(map[string]struct{}, len(positive)),
		negative: make(map[string]struct{}, len(negative)),
	}
	for _, n := range positive {
		p.positive[n] = struct{}{}
	}
	for _, n := range negative {
		if _, ok := p.positive[n]; !ok {
			p.negative[n] = struct{}{}
		}
	}
	return p
}

// DefaultReactionPolicy uses DefaultPositive and DefaultNegative.
func DefaultReactionPolicy() ReactionPolicy {
	return NewReactionPolicy(DefaultPositive, DefaultNegative)
}

// Sentiment returns +1, -1 or 0 for a reaction name.
func (p ReactionPolicy) Sentiment(name string) int {
	if _, ok := p.positive[name]; ok {
		return 1
	}
	if _, ok := p.negative[name]; ok {
		return -1
	}
	return 0
}

// Observation is the reaction tally of one published article message at harvest time.
type Observation struct {
	Record   article.PublishedRecord
	Tally    map[string]int
	PostedAt time.Time
}

// LedgerEntry records the reaction counts already folded into the model for one message.
type LedgerEntry struct {
	Counts     map[string]int `json:"counts"`
	ObservedAt time.Time      `json:"observedAt"`
}

// Ledger maps message IDs to the counts already applied for them.
type Ledger map[string]LedgerEntry

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for id, e := range l {
		counts := make(map[string]int, len(e.Counts))
		for k, v := range e.Counts {
			counts[k] = v
		}
		out[id] = LedgerEntry{Counts: counts, ObservedAt: e.ObservedAt}
	}
	return out
}

// Stats summarizes one Apply call. Added and removed reaction counts are kept
// apart per sentiment so a removal and an addition in the same run are both
// visible.
type Stats struct {
	Observations    int
	Changed         int
	PositiveAdded   int
	PositiveRemoved int
	NegativeAdded   int
	NegativeRemoved int
	Pruned          int
}

// PositiveNet is the net change in positive reaction counts.
func (s Stats) PositiveNet() int { return s.PositiveAdded - s.PositiveRemoved }

// NegativeNet is the net change in negative reaction counts.
func (s Stats) NegativeNet() int { return s.NegativeAdded - s.NegativeRemoved }

func (s *Stats) count(sign, delta int) {
	switch {
	case sign > 0 && delta > 0:
		s.PositiveAdded += delta
	case sign > 0:
		s.PositiveRemoved -= delta
	case delta > 0:
		s.NegativeAdded += delta
	default:
		s.NegativeRemoved -= delta
	}
}

// Apply folds observations into the model. Only the difference between each
// observed count and the count recorded in the ledger is applied, so the same
// snapshot applied twice changes nothing the second time. A count that went
// down (a removed reaction) reverses its earlier contribution.
//
// Ledger entries not observed within retention of now are pruned. Apply does
// not modify its inputs.
func Apply(m Model, l Ledger, observations []Observation, policy ReactionPolicy, now time.Time, retention time.Duration) (Model, Ledger, Stats) {
	model := m.Clone()
	ledger := l.Clone()
	stats := Stats{Observations: len(observations)}

	for _, obs := range observations {
		id := obs.Record.MessageID
		if id == "" {
			continue
		}
		entry, ok := ledger[id]
		if !ok {
			entry = LedgerEntry{Counts: make(map[string]int)}
		}

		changed := false
		for _, name := range reactionNames(obs.Tally, entry.Counts) {
			sign := policy.Sentiment(name)
			if sign == 0 {
				continue
			}
			current := obs.Tally[name]
			if current < 0 {
				current = 0
			}
			delta := current - entry.Counts[name]
			if delta != 0 {
				model.shift(obs.Record, float64(sign*delta))
				changed = true
				stats.count(sign, delta)
			}
			if sign > 0 && delta > 0 {
				model.addLiked(obs.Record.URL)
			}
			if current == 0 {
				delete(entry.Counts, name)
			} else {
				entry.Counts[name] = current
			}
		}
		if changed {
			stats.Changed++
		}
		entry.ObservedAt = now
		ledger[id] = entry
	}

	if retention > 0 {
		cutoff := now.Add(-retention)
		for id, e := range ledger {
			if e.ObservedAt.Before(cutoff) {
				delete(ledger, id)
				stats.Pruned++
			}
		}
	}

	return model, ledger, stats
}

func (m *Model) shift(rec article.PublishedRecord, amount float64) {
	if rec.SourceName != "" {
		m.SourceWeight[rec.SourceName] += amount
	}
	for _, tag := range rec.Tags {
		m.TagWeight[tag] += amount
	}
}

func reactionNames(tally, applied map[string]int) []string {
	seen := make(map[string]struct{}, len(tally)+len(applied))
	names := make([]string, 0, len(tally)+len(applied))
	for n := range tally {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	for n := range applied {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
