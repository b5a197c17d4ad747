package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects runtime metrics. A nil *Recorder is valid and records
// nothing, so components can be built without metrics.
type Recorder struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	decodeErrors   prometheus.Counter
	connects       *prometheus.CounterVec
	disconnects    *prometheus.CounterVec
	retryAttempt   prometheus.Gauge
	backoffSeconds prometheus.Histogram
	streamState    prometheus.Gauge
	trackedSymbols prometheus.Gauge
	alerts         *prometheus.CounterVec
	alertsDropped  prometheus.Counter
	deliveries     *prometheus.CounterVec
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "pumpwatch_ticks_total",
			Help: "Ticks decoded from the exchange stream",
		}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pumpwatch_decode_errors_total",
			Help: "Frames skipped because they could not be decoded",
		}),
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpwatch_stream_connects_total",
			Help: "Stream connection attempts by result",
		}, []string{"result"}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpwatch_stream_disconnects_total",
			Help: "Established streams lost, by reason",
		}, []string{"reason"}),
		retryAttempt: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pumpwatch_retry_attempt",
			Help: "Current consecutive failure count",
		}),
		backoffSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pumpwatch_backoff_seconds",
			Help:    "Backoff waits before reconnecting",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		streamState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pumpwatch_stream_state",
			Help: "Reconnect supervisor state (0 disconnected, 1 connected, 2 backoff, 3 halted)",
		}),
		trackedSymbols: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pumpwatch_tracked_symbols",
			Help: "Symbols with an active price window",
		}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpwatch_alerts_total",
			Help: "Alerts emitted by horizon",
		}, []string{"horizon"}),
		alertsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "pumpwatch_alerts_dropped_total",
			Help: "Alerts dropped because the delivery queue was full",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpwatch_deliveries_total",
			Help: "Notification deliveries by operation and result",
		}, []string{"op", "result"}),
	}
}

// Registry exposes the underlying registry for the HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) TicksReceived(n int) {
	if r == nil {
		return
	}
	r.ticks.Add(float64(n))
}

func (r *Recorder) DecodeError() {
	if r == nil {
		return
	}
	r.decodeErrors.Inc()
}

// ConnectAttempt records the outcome of opening a stream.
func (r *Recorder) ConnectAttempt(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.connects.WithLabelValues(result).Inc()
}

func (r *Recorder) Disconnected(reason string) {
	if r == nil {
		return
	}
	r.disconnects.WithLabelValues(reason).Inc()
}

func (r *Recorder) RetryAttempt(attempt int) {
	if r == nil {
		return
	}
	r.retryAttempt.Set(float64(attempt))
}

func (r *Recorder) Backoff(wait time.Duration) {
	if r == nil {
		return
	}
	r.backoffSeconds.Observe(wait.Seconds())
}

func (r *Recorder) StreamState(state int) {
	if r == nil {
		return
	}
	r.streamState.Set(float64(state))
}

func (r *Recorder) TrackedSymbols(n int) {
	if r == nil {
		return
	}
	r.trackedSymbols.Set(float64(n))
}

func (r *Recorder) AlertEmitted(horizon string) {
	if r == nil {
		return
	}
	r.alerts.WithLabelValues(horizon).Inc()
}

func (r *Recorder) AlertDropped() {
	if r == nil {
		return
	}
	r.alertsDropped.Inc()
}

// Delivery records a notification attempt; op is "text" or "image".
func (r *Recorder) Delivery(op string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.deliveries.WithLabelValues(op, result).Inc()
}
