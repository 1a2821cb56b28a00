package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	TripsStarted   prometheus.Counter
	TripsCompleted prometheus.Counter

	SamplesAccepted prometheus.Counter
	SamplesRejected *prometheus.CounterVec // reason label: invalid|impossible|not_found|error

	Recommendations   *prometheus.CounterVec // mode label: nearby|along_route
	RecommendDuration prometheus.Histogram

	Notifications *prometheus.CounterVec // result label: delivered|undelivered|empty|error

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fuel_trips_started_total",
			Help: "Total trips started.",
		}),
		TripsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fuel_trips_completed_total",
			Help: "Total trips stopped.",
		}),
		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fuel_gps_samples_accepted_total",
			Help: "GPS samples applied to a trip.",
		}),
		SamplesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuel_gps_samples_rejected_total",
			Help: "GPS samples rejected without changing trip state.",
		}, []string{"reason"}),
		Recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuel_recommendations_total",
			Help: "Recommendation requests served.",
		}, []string{"mode"}),
		RecommendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuel_recommend_duration_seconds",
			Help:    "Time spent computing a recommendation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuel_notifications_total",
			Help: "Notification attempts by outcome.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fuel_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fuel_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fuel_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuel_publish_duration_seconds",
			Help:    "Duration to marshal and publish a notification.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.TripsStarted, c.TripsCompleted,
		c.SamplesAccepted, c.SamplesRejected,
		c.Recommendations, c.RecommendDuration,
		c.Notifications,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// The methods below satisfy the small hook interfaces of the tracking and
// notify packages. They are safe on a nil Collector.

func (c *Collector) SampleAccepted() {
	if c != nil {
		c.SamplesAccepted.Inc()
	}
}

func (c *Collector) SampleRejected(reason string) {
	if c != nil {
		c.SamplesRejected.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) RecommendObserve(mode string, d time.Duration) {
	if c != nil {
		c.Recommendations.WithLabelValues(mode).Inc()
		c.RecommendDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NotificationResult(result string) {
	if c != nil {
		c.Notifications.WithLabelValues(result).Inc()
	}
}

func (c *Collector) TripStarted() {
	if c != nil {
		c.TripsStarted.Inc()
	}
}

func (c *Collector) TripCompleted() {
	if c != nil {
		c.TripsCompleted.Inc()
	}
}

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c != nil {
		c.PublishDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
