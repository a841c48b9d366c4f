// Package telemetry exposes Prometheus instrumentation for the payment
// pipeline and serves the scrape endpoint.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerificationOutcomes counts finished payment verifications by purpose
	// and outcome. Outcome is "verified", "already_verified", or the error
	// code of the rejection.
	VerificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memexp",
		Subsystem: "payment",
		Name:      "verification_outcomes_total",
		Help:      "Payment verification results by purpose and outcome.",
	}, []string{"purpose", "outcome"})

	// LedgerFetches counts transaction fetch results against the RPC node.
	LedgerFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memexp",
		Subsystem: "ledger",
		Name:      "fetches_total",
		Help:      "Ledger transaction fetches by result.",
	}, []string{"result"})

	// VerificationDuration observes end-to-end verification latency.
	VerificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "memexp",
		Subsystem: "payment",
		Name:      "verification_duration_seconds",
		Help:      "End-to-end payment verification latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// StorageOps counts object store operations by kind and result.
	StorageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memexp",
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Object store operations by kind and result.",
	}, []string{"op", "result"})

	// LLMRequests counts text generation calls by model and result.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memexp",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "LLM completion requests by model and result.",
	}, []string{"model", "result"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
