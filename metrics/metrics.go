// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ArticlesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsbot_articles_collected_total",
	Help: "Number of raw items returned by each source",
}, []string{"source"})

var FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsbot_fetch_failures_total",
	Help: "Number of failed source fetches",
}, []string{"source"})

var ArticlesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsbot_articles_dropped_total",
	Help: "Number of articles dropped before ranking",
}, []string{"stage"})

var ArticlesPublished = promauto.NewCounter(prometheus.CounterOpts{
	Name: "newsbot_articles_published_total",
	Help: "Number of articles posted to the channel",
})

var PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsbot_publish_failures_total",
	Help: "Number of failed channel calls",
}, []string{"call"})

var ReactionDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsbot_reaction_deltas_total",
	Help: "Reaction counts added or removed since the last learning run",
}, []string{"sentiment", "change"})

var StoreConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsbot_store_conflicts_total",
	Help: "Number of optimistic concurrency conflicts by record",
}, []string{"key"})

var CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "newsbot_cycle_duration_seconds",
	Help:    "Duration of curation and learning cycles",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
}, []string{"cycle", "status"})
