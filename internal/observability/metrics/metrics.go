package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters/histograms for the SMS callback flow.
type BridgeMetrics struct {
	callbacksTotal  *prometheus.CounterVec
	portalWrites    *prometheus.CounterVec
	callbackLatency *prometheus.HistogramVec
	tokenRefreshes  *prometheus.CounterVec
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		callbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsbridge",
			Subsystem: "callback",
			Name:      "requests_total",
			Help:      "Total inbound SMS callbacks by outcome",
		}, []string{"outcome"}),
		portalWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsbridge",
			Subsystem: "portal",
			Name:      "writes_total",
			Help:      "Total CRM write attempts",
		}, []string{"kind", "status"}),
		callbackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smsbridge",
			Subsystem: "callback",
			Name:      "latency_seconds",
			Help:      "Latency of SMS callback processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsbridge",
			Subsystem: "oauth",
			Name:      "token_refresh_total",
			Help:      "Total OAuth token refreshes",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callbacksTotal, m.portalWrites, m.callbackLatency, m.tokenRefreshes)
	return m
}

func (m *BridgeMetrics) ObserveCallback(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(outcome).Inc()
	m.callbackLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BridgeMetrics) ObservePortalWrite(kind, status string) {
	if m == nil {
		return
	}
	m.portalWrites.WithLabelValues(kind, status).Inc()
}

func (m *BridgeMetrics) ObserveTokenRefresh(status string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(status).Inc()
}
