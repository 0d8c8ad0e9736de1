package webglue

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of event deliveries
const (
	eventDelivered = "delivered"
	eventFiltered  = "filtered"
	eventDropped   = "dropped"
	eventFailed    = "failed"
)

// Metrics holds the Prometheus collectors of a Server. A nil *Metrics records nothing.
type Metrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	eventsTotal  *prometheus.CounterVec
	connections  prometheus.Gauge
}

// NewMetrics creates and registers the collectors with registerer.
// namespace defaults to "webglue", registerer to prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer, namespace string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "webglue"
	}
	factory := promauto.With(registerer)
	return &Metrics{
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of function calls by outcome",
		}, []string{"api", "fnc", "outcome"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of function calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of per connection event deliveries by outcome",
		}, []string{"api", "event", "outcome"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of connected clients",
		}),
	}
}

// WithMetrics records call, event and connection metrics of the Server
func WithMetrics(metrics *Metrics) func(Party) error {
	return func(p Party) error {
		if s, ok := p.(*server); ok {
			s.metrics = metrics
			return nil
		}
		return errors.New("option WithMetrics is server only")
	}
}

func (m *Metrics) observeCall(apiName, fncName string, callErr *CallError, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if callErr != nil {
		outcome = string(callErr.Kind)
		// Names sent by clients are not known to the server, don't use them as labels
		if callErr.Kind == KindUnknownAPI || callErr.Kind == KindUnknownFunction {
			apiName, fncName = "", ""
		}
	}
	m.callsTotal.WithLabelValues(apiName, fncName, outcome).Inc()
	m.callDuration.WithLabelValues(apiName).Observe(d.Seconds())
}

func (m *Metrics) countEvent(apiName, eventName, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(apiName, eventName, outcome).Inc()
}

func (m *Metrics) addConnections(delta float64) {
	if m == nil {
		return
	}
	m.connections.Add(delta)
}
