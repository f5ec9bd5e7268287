// Package metrics holds the Prometheus collectors shared by the bridge and the hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "les02"

// Discard reasons for frames_discarded_total.
const (
	ReasonLengthMismatch = "length_mismatch"
	ReasonUnknownID      = "unknown_id"
)

// Drop reasons for subscriber_drops_total.
const (
	ReasonSendFailed = "send_failed"
	ReasonSlow       = "slow"
	ReasonClosed     = "closed"
)

// Metrics is the set of pipeline collectors.
type Metrics struct {
	FramesReceived    *prometheus.CounterVec
	FramesDiscarded   *prometheus.CounterVec
	HandoffDropped    prometheus.Counter
	HandoffDepth      prometheus.Gauge
	Broadcasts        prometheus.Counter
	SerializationErrs prometheus.Counter
	Subscribers       prometheus.Gauge
	SubscriberDrops   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Decoded frames by message kind and channel.",
		}, []string{"kind", "channel"}),
		FramesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_discarded_total",
			Help:      "Frames discarded before decoding completed.",
		}, []string{"reason"}),
		HandoffDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoff_dropped_total",
			Help:      "Envelopes dropped (oldest first) because the handoff queue was full.",
		}),
		HandoffDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handoff_depth",
			Help:      "Envelopes waiting in the handoff queue.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Envelopes broadcast to subscribers.",
		}),
		SerializationErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serialization_errors_total",
			Help:      "Broadcasts skipped because the envelope could not be encoded.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently registered subscribers.",
		}),
		SubscriberDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_drops_total",
			Help:      "Subscribers removed from the registry.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesReceived,
			m.FramesDiscarded,
			m.HandoffDropped,
			m.HandoffDepth,
			m.Broadcasts,
			m.SerializationErrs,
			m.Subscribers,
			m.SubscriberDrops,
		)
	}
	return m
}
