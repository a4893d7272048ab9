// Package metrics exports guidance engine events as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-wayfinder/pkg/guidance"
)

const namespace = "wayfinder"

// Collector implements guidance.Observer and owns its registry.
type Collector struct {
	registry *prometheus.Registry

	phase       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	spoken      prometheus.Counter
	waypoints   prometheus.Counter
	corrections *prometheus.CounterVec
	alignDiff   prometheus.Histogram
	heading     prometheus.Gauge
	accuracy    prometheus.Gauge
	signals     *prometheus.CounterVec
	routes      *prometheus.CounterVec
	sessions    *prometheus.HistogramVec

	sessionStart time.Time
}

// New creates a collector registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "1 for the current navigation phase, 0 otherwise.",
		}, []string{"phase"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Navigation state transitions.",
		}, []string{"from", "to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Sessions that ended in error, by failure kind.",
		}, []string{"kind"}),
		spoken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances accepted by the speech backend.",
		}),
		waypoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waypoints_announced_total",
			Help:      "Waypoint descriptions announced on arrival.",
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Heading corrections spoken while guiding.",
		}, []string{"direction"}),
		alignDiff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alignment_offset_degrees",
			Help:      "Absolute heading offset seen by the alignment loop.",
			Buckets:   []float64{5, 10, 20, 25, 40, 60, 90, 135, 180},
		}),
		heading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heading_degrees",
			Help:      "Last applied smoothed heading.",
		}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_accuracy_meters",
			Help:      "Filtered position accuracy.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_signal_events_total",
			Help:      "Informational events from the location source.",
		}, []string{"event"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_events_total",
			Help:      "Route fetch and parse completions.",
		}, []string{"stage"}),
		sessions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from route search to the end of a session.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"outcome"}),
	}

	c.registry.MustRegister(
		c.phase, c.transitions, c.failures, c.spoken, c.waypoints, c.corrections,
		c.alignDiff, c.heading, c.accuracy, c.signals, c.routes, c.sessions,
	)
	for _, p := range guidance.Phases() {
		c.phase.WithLabelValues(p.String()).Set(0)
	}
	c.phase.WithLabelValues(guidance.Preparing.String()).Set(1)
	return c
}

// Registry returns the registry holding every collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe implements guidance.Observer.
func (c *Collector) Observe(ev guidance.Event) {
	switch ev.Kind {
	case guidance.EventStateChanged:
		c.stateChanged(ev)
	case guidance.EventSpeech:
		c.spoken.Inc()
	case guidance.EventWaypoint:
		c.waypoints.Inc()
	case guidance.EventCorrection:
		dir := "right"
		if ev.Value < 0 {
			dir = "left"
		}
		c.corrections.WithLabelValues(dir).Inc()
	case guidance.EventAlignment:
		if ev.Result != nil {
			c.alignDiff.Observe(ev.Result.AbsDiff)
		}
	case guidance.EventHeading:
		c.heading.Set(ev.Heading)
	case guidance.EventLocation:
		if ev.Position != nil {
			c.accuracy.Set(ev.Position.Accuracy)
		}
	case guidance.EventSignal:
		c.signals.WithLabelValues(ev.Detail).Inc()
	case guidance.EventRoute:
		c.routes.WithLabelValues(ev.Detail).Inc()
	}
}

func (c *Collector) stateChanged(ev guidance.Event) {
	if ev.State == nil || ev.Prev == nil {
		return
	}
	from, to := ev.Prev.Phase, ev.State.Phase
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
	c.phase.WithLabelValues(from.String()).Set(0)
	c.phase.WithLabelValues(to.String()).Set(1)

	switch {
	case to == guidance.SearchingRoute:
		c.sessionStart = ev.Time
	case to.Terminal():
		if to == guidance.Failed && ev.State.Failure != nil {
			c.failures.WithLabelValues(ev.State.Failure.Kind.String()).Inc()
		}
		if !c.sessionStart.IsZero() {
			c.sessions.WithLabelValues(to.String()).Observe(ev.Time.Sub(c.sessionStart).Seconds())
			c.sessionStart = time.Time{}
		}
	}
}
