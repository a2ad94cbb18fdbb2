// Package services – Prometheus domain metrics.
//
// Two counters track the moderation pipeline itself, complementing the
// generic HTTP series exposed by the middleware package. The verdict label
// is the bounded safe/flagged pair rather than the raw classification
// string, which is comma-joined and therefore unbounded.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// decisionsTotal counts completed moderation decisions by content type
	// ("text"/"image") and verdict ("safe"/"flagged").
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_decisions_total",
			Help: "Total number of completed moderation decisions.",
		},
		[]string{"content_type", "verdict"},
	)

	// notificationsTotal counts alert delivery attempts by outcome
	// ("sent"/"failed"/"error").
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_notifications_total",
			Help: "Total number of alert delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal, notificationsTotal)
}

// observeDecision records one completed moderation decision.
func observeDecision(contentType string, flagged bool) {
	verdict := "safe"
	if flagged {
		verdict = "flagged"
	}
	decisionsTotal.WithLabelValues(contentType, verdict).Inc()
}
