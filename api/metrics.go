package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_remote_requests_total",
		Help: "Remote resource requests by method and outcome",
	}, []string{"method", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialfeed_remote_request_duration_seconds",
		Help:    "Latency of remote resource requests",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms doubling up to ~5s
	}, []string{"method"})
)
