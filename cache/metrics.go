package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	moderationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_comment_moderation_transitions_total",
		Help: "Comment status transitions applied by moderation",
	}, []string{"from", "to"})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialfeed_cache_persist_failures_total",
		Help: "Snapshot writes to local storage that failed",
	})
)
