package preference

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-news-bot/article"
)

var now = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func record(id, source string, tags ...string) article.PublishedRecord {
	return article.PublishedRecord{
		MessageID:          id,
		ArticleFingerprint: article.Fingerprint("https://example.com/" + id),
		URL:                "https://example.com/" + id,
		SourceName:         source,
		Tags:               tags,
		Language:           article.Primary,
	}
}

func TestApplyPositiveReactionAddsExactCount(t *testing.T) {
	obs := []Observation{{
		Record: record("m1", "MarkeZine", "AI", "SNS"),
		Tally:  map[string]int{"thumbsup": 3},
	}}

	m, l, stats := Apply(NewModel(), nil, obs, DefaultReactionPolicy(), now, 0)

	assert.Equal(t, 3.0, m.SourceWeight["MarkeZine"])
	assert.Equal(t, 3.0, m.TagWeight["AI"])
	assert.Equal(t, 3.0, m.TagWeight["SNS"])
	assert.Equal(t, []string{"https://example.com/m1"}, m.LikedURLs)
	assert.Equal(t, 3, l["m1"].Counts["thumbsup"])
	assert.Equal(t, 1, stats.Changed)
	assert.Equal(t, 3, stats.PositiveAdded)
	assert.Zero(t, stats.PositiveRemoved)
}

func TestApplyNegativeReactionSubtracts(t *testing.T) {
	obs := []Observation{{
		Record: record("m1", "CNET Japan", "戦略"),
		Tally:  map[string]int{"thumbsdown": 2, "-1": 1},
	}}

	m, _, stats := Apply(NewModel(), nil, obs, DefaultReactionPolicy(), now, 0)

	assert.Equal(t, -3.0, m.SourceWeight["CNET Japan"])
	assert.Equal(t, -3.0, m.TagWeight["戦略"])
	assert.Empty(t, m.LikedURLs)
	assert.Equal(t, 3, stats.NegativeAdded)
	assert.Equal(t, -3, stats.NegativeNet())
}

func TestApplyIsIdempotentForSameSnapshot(t *testing.T) {
	obs := []Observation{{
		Record: record("m1", "MarkeZine", "AI"),
		Tally:  map[string]int{"thumbsup": 2, "thumbsdown": 1},
	}}
	policy := DefaultReactionPolicy()

	m1, l1, _ := Apply(NewModel(), nil, obs, policy, now, 0)
	m2, l2, stats := Apply(m1, l1, obs, policy, now.Add(time.Hour), 0)

	assert.Equal(t, m1.SourceWeight, m2.SourceWeight)
	assert.Equal(t, m1.TagWeight, m2.TagWeight)
	assert.Equal(t, 1.0, m2.SourceWeight["MarkeZine"])
	assert.Equal(t, 0, stats.Changed)
	assert.Equal(t, l1["m1"].Counts, l2["m1"].Counts)
}

func TestApplyOnlyIncrementSinceLastObservation(t *testing.T) {
	policy := DefaultReactionPolicy()
	first := []Observation{{Record: record("m1", "S", "T"), Tally: map[string]int{"heart": 1}}}
	second := []Observation{{Record: record("m1", "S", "T"), Tally: map[string]int{"heart": 4}}}

	m, l, _ := Apply(NewModel(), nil, first, policy, now, 0)
	m, l, _ = Apply(m, l, second, policy, now.Add(time.Hour), 0)

	assert.Equal(t, 4.0, m.SourceWeight["S"])
	assert.Equal(t, 4.0, m.TagWeight["T"])
	assert.Equal(t, 4, l["m1"].Counts["heart"])
}

func TestApplyRemovedReactionReverses(t *testing.T) {
	policy := DefaultReactionPolicy()
	first := []Observation{{Record: record("m1", "S", "T"), Tally: map[string]int{"fire": 2}}}
	second := []Observation{{Record: record("m1", "S", "T"), Tally: map[string]int{}}}

	m, l, _ := Apply(NewModel(), nil, first, policy, now, 0)
	m, l, _ = Apply(m, l, second, policy, now, 0)

	assert.Equal(t, 0.0, m.SourceWeight["S"])
	assert.Equal(t, 0.0, m.TagWeight["T"])
	assert.NotContains(t, l["m1"].Counts, "fire")
}

func TestApplyCountsRemovalAndAdditionSeparately(t *testing.T) {
	ledger := Ledger{
		"m1": {Counts: map[string]int{"thumbsup": 1, "thumbsdown": 2}, ObservedAt: now.Add(-time.Hour)},
	}
	obs := []Observation{
		{Record: record("m1", "S", "T"), Tally: map[string]int{"thumbsdown": 1}},
		{Record: record("m2", "S", "T"), Tally: map[string]int{"thumbsup": 1, "thumbsdown": 1}},
	}
	in := NewModel()
	in.SourceWeight["S"] = 2

	m, _, stats := Apply(in, ledger, obs, DefaultReactionPolicy(), now, 0)

	assert.Equal(t, 1, stats.PositiveAdded)
	assert.Equal(t, 1, stats.PositiveRemoved)
	assert.Equal(t, 1, stats.NegativeAdded)
	assert.Equal(t, 1, stats.NegativeRemoved)
	assert.Zero(t, stats.PositiveNet())
	assert.Zero(t, stats.NegativeNet())
	assert.Equal(t, 2, stats.Changed)
	assert.Equal(t, 2.0, m.SourceWeight["S"])
	assert.Equal(t, []string{"https://example.com/m2"}, m.LikedURLs)
}

func TestApplyIgnoresNeutralReactions(t *testing.T) {
	obs := []Observation{{Record: record("m1", "S", "T"), Tally: map[string]int{"tada": 5}}}

	m, l, stats := Apply(NewModel(), nil, obs, DefaultReactionPolicy(), now, 0)

	assert.Empty(t, m.SourceWeight)
	assert.Empty(t, l["m1"].Counts)
	assert.Equal(t, 0, stats.Changed)
}

func TestApplyEmptySourceOnlyUpdatesTags(t *testing.T) {
	obs := []Observation{{Record: record("m1", "", "AI"), Tally: map[string]int{"+1": 1}}}

	m, _, _ := Apply(NewModel(), nil, obs, DefaultReactionPolicy(), now, 0)

	assert.Empty(t, m.SourceWeight)
	assert.Equal(t, 1.0, m.TagWeight["AI"])
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	in := NewModel()
	in.SourceWeight["S"] = 1
	ledger := Ledger{"m1": {Counts: map[string]int{"thumbsup": 1}, ObservedAt: now}}
	obs := []Observation{{Record: record("m1", "S"), Tally: map[string]int{"thumbsup": 5}}}

	Apply(in, ledger, obs, DefaultReactionPolicy(), now, 0)

	assert.Equal(t, 1.0, in.SourceWeight["S"])
	assert.Equal(t, 1, ledger["m1"].Counts["thumbsup"])
}

func TestApplyPrunesStaleLedgerEntries(t *testing.T) {
	ledger := Ledger{
		"old":    {Counts: map[string]int{"thumbsup": 1}, ObservedAt: now.Add(-15 * 24 * time.Hour)},
		"recent": {Counts: map[string]int{"thumbsup": 1}, ObservedAt: now.Add(-time.Hour)},
	}

	_, l, stats := Apply(NewModel(), ledger, nil, DefaultReactionPolicy(), now, 14*24*time.Hour)

	assert.NotContains(t, l, "old")
	assert.Contains(t, l, "recent")
	assert.Equal(t, 1, stats.Pruned)
}

func TestApplySkipsObservationWithoutMessageID(t *testing.T) {
	obs := []Observation{{Record: record("", "S"), Tally: map[string]int{"thumbsup": 1}}}

	m, l, _ := Apply(NewModel(), nil, obs, DefaultReactionPolicy(), now, 0)

	assert.Empty(t, m.SourceWeight)
	assert.Empty(t, l)
}

func TestLikedURLsBoundedAndDeduplicated(t *testing.T) {
	m := NewModel()
	for i := 0; i < MaxLikedURLs+20; i++ {
		m.addLiked(fmt.Sprintf("https://example.com/%d", i))
	}
	m.addLiked("https://example.com/119")

	require.Len(t, m.LikedURLs, MaxLikedURLs)
	assert.Equal(t, "https://example.com/20", m.LikedURLs[0])
	assert.Equal(t, "https://example.com/119", m.LikedURLs[MaxLikedURLs-1])
}

func TestReactionPolicy(t *testing.T) {
	p := NewReactionPolicy([]string{"thumbsup", "eyes"}, []string{"thumbsdown", "eyes"})

	assert.Equal(t, 1, p.Sentiment("thumbsup"))
	assert.Equal(t, 1, p.Sentiment("eyes"))
	assert.Equal(t, -1, p.Sentiment("thumbsdown"))
	assert.Equal(t, 0, p.Sentiment("wave"))
}

func TestDecay(t *testing.T) {
	m := NewModel()
	m.SourceWeight["S"] = 10
	m.TagWeight["T"] = -4

	d := m.Decay(0.5)
	assert.Equal(t, 5.0, d.SourceWeight["S"])
	assert.Equal(t, -2.0, d.TagWeight["T"])
	assert.Equal(t, 10.0, m.SourceWeight["S"])

	assert.Equal(t, 10.0, m.Decay(0).SourceWeight["S"])
}

func TestDecayThenRemovalOvershoots(t *testing.T) {
	policy := DefaultReactionPolicy()
	first := []Observation{{Record: record("m1", "S"), Tally: map[string]int{"thumbsup": 1}}}
	removed := []Observation{{Record: record("m1", "S"), Tally: map[string]int{}}}

	m, l, _ := Apply(NewModel(), nil, first, policy, now, 0)
	m, _, stats := Apply(m.Decay(0.1), l, removed, policy, now, 0)

	assert.Equal(t, 1, stats.PositiveRemoved)
	assert.InDelta(t, -0.1, m.SourceWeight["S"], 1e-9)
}

func TestTopTags(t *testing.T) {
	m := NewModel()
	m.TagWeight = map[string]float64{"a": 1, "b": 3, "c": -2, "d": 3}

	top := m.TopTags(3)
	require.Len(t, top, 3)
	assert.Equal(t, []Weight{{"b", 3}, {"d", 3}, {"a", 1}}, top)
}

func TestCloneHandlesNilMaps(t *testing.T) {
	var m Model
	c := m.Clone()
	c.SourceWeight["x"] = 1
	assert.NotNil(t, c.TagWeight)
	assert.NotNil(t, c.LikedURLs)
}
