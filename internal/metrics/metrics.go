package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelKind   = "kind"
	labelStatus = "status"
	labelMethod = "method"

	KindOCSP = "ocsp"
	KindCRL  = "crl"
)

var (
	totalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "revcheck",
		Name:      "http_requests_total",
		Help:      "Number of outbound revocation requests.",
	}, []string{labelKind})

	responseStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "revcheck",
		Name:      "http_response_status",
		Help:      "Status of outbound revocation responses, \"error\" when no response arrived.",
	}, []string{labelKind, labelStatus})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "revcheck",
		Name:      "http_response_time_seconds",
		Help:      "Duration of outbound revocation requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{labelKind})

	decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "revcheck",
		Name:      "decisions_total",
		Help:      "Revocation decisions by final status and the method that produced them.",
	}, []string{labelStatus, labelMethod})

	SigningTimeFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "revcheck",
		Name:      "signing_time_fallbacks_total",
		Help:      "Decisions made against the current time because the signing time could not be resolved.",
	})
)

func init() {
	prometheus.MustRegister(totalRequests)
	prometheus.MustRegister(responseStatus)
	prometheus.MustRegister(httpDuration)
	prometheus.MustRegister(decisions)
	prometheus.MustRegister(SigningTimeFallbacks)
}

func ObserveDecision(status string, method string) {
	decisions.With(prometheus.Labels{
		labelStatus: status,
		labelMethod: method,
	}).Inc()
}
