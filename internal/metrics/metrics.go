package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var (
	registerOnce sync.Once

	recomputeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_recompute_runs_total",
			Help: "Total number of match recompute runs",
		},
		[]string{"status"},
	)

	recomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "match_recompute_duration_seconds",
			Help:    "Wall time of a match recompute run",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	matchesPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matches_persisted_total",
			Help: "Total number of match rows written by recompute runs",
		},
	)

	friendshipOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendship_operations_total",
			Help: "Total number of friendship operations by action",
		},
		[]string{"action", "status"},
	)

	engagementOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_operations_total",
			Help: "Total number of like/comment operations",
		},
		[]string{"op", "status"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of send message attempts",
		},
		[]string{"status"},
	)

	feedDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_events_dropped_total",
			Help: "Feed events dropped because a subscriber queue was full",
		},
	)
)

// Register adds every collector to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			recomputeRuns, recomputeDuration, matchesPersisted,
			friendshipOps, engagementOps, messagesSent, feedDropped,
		)
	})
}

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusSuccess
}

func ObserveRecompute(status string, took time.Duration, persisted int) {
	Register()
	recomputeRuns.WithLabelValues(status).Inc()
	recomputeDuration.Observe(took.Seconds())
	if persisted > 0 {
		matchesPersisted.Add(float64(persisted))
	}
}

func IncFriendship(action, status string) {
	Register()
	friendshipOps.WithLabelValues(action, status).Inc()
}

func IncEngagement(op, status string) {
	Register()
	engagementOps.WithLabelValues(op, status).Inc()
}

func IncMessageSent(status string) {
	Register()
	messagesSent.WithLabelValues(status).Inc()
}

func IncFeedDropped() {
	Register()
	feedDropped.Inc()
}
