package llmsvc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts completions by feature and outcome
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alloqly_llm_requests_total",
		Help: "Total LLM completion requests by feature and outcome",
	}, []string{"feature", "outcome"}) // outcome: ok, error, empty, throttled

	// requestDuration tracks completion latency
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alloqly_llm_request_duration_seconds",
		Help:    "LLM completion duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
	}, []string{"feature"})

	// tokensTotal counts tokens reported by the provider
	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alloqly_llm_tokens_total",
		Help: "Total tokens used by feature and kind",
	}, []string{"feature", "kind"}) // kind: prompt, completion
)
