package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forummod_decisions_total",
	Help: "Number of moderation decision attempts by action and outcome",
}, []string{"action", "outcome"})

var decisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "forummod_decision_duration_sec",
	Help:    "Duration of a single moderation decision",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
}, []string{"action"})

var submittedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "forummod_content_submitted_total",
	Help: "Number of content items accepted into moderation",
})

var reportCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forummod_reports_total",
	Help: "Number of reporter flags by outcome",
}, []string{"outcome"})

var spamScoreHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "forummod_spam_score",
	Help:    "Distribution of spam scores produced by evaluation",
	Buckets: prometheus.LinearBuckets(0, 0.1, 11),
})
