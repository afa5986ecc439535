package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backendReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "backend_requests_total",
			Help:      "Total backend requests by kind, model and result",
		},
		[]string{"kind", "model", "result"},
	)

	backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "genstudio",
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of backend requests by kind and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "model"},
	)

	gatewayDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "gateway_decisions_total",
			Help:      "Failure classifications by class and retryability",
		},
		[]string{"class", "retryable"},
	)

	gatewayPrompts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "gateway_prompts_total",
			Help:      "Credential selection flows by result",
		},
		[]string{"result"},
	)

	gatewayRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "gateway_retries_total",
			Help:      "Operations re-invoked after a credential refresh",
		},
	)

	tierFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "tier_fallbacks_total",
			Help:      "Fallbacks into lower tiers by kind and tier",
		},
		[]string{"kind", "tier"},
	)

	videoPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "video_poll_ticks_total",
			Help:      "Video job status polls",
		},
	)

	breakerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "breaker_events_total",
			Help:      "Circuit breaker events by model and action",
		},
		[]string{"model", "action"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "genstudio",
			Name:      "queue_depth",
			Help:      "Video job queue depth gauges for stream and dlq",
		},
		[]string{"type"},
	)

	galleryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Name:      "gallery_operations_total",
			Help:      "Gallery operations by op and result",
		},
		[]string{"op", "result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(backendReqs, backendLatency, gatewayDecisions, gatewayPrompts,
		gatewayRetries, tierFallbacks, videoPolls, breakerEvents, queueDepth, galleryOps)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveBackend(kind, model, result string, dur time.Duration) {
	backendReqs.WithLabelValues(kind, model, result).Inc()
	backendLatency.WithLabelValues(kind, model).Observe(dur.Seconds())
}

func IncDecision(class string, retryable bool) {
	gatewayDecisions.WithLabelValues(class, boolToStr(retryable)).Inc()
}

func IncPrompt(result string)            { gatewayPrompts.WithLabelValues(result).Inc() }
func IncRetry()                          { gatewayRetries.Inc() }
func IncFallback(kind, tier string)      { tierFallbacks.WithLabelValues(kind, tier).Inc() }
func IncVideoPoll()                      { videoPolls.Inc() }
func BreakerOpened(model string)         { breakerEvents.WithLabelValues(model, "opened").Inc() }
func BreakerClosed(model string)         { breakerEvents.WithLabelValues(model, "closed").Inc() }
func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
func IncGallery(op, result string)       { galleryOps.WithLabelValues(op, result).Inc() }

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
