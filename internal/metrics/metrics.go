// Package metrics exports event bus dispatch statistics as Prometheus
// metrics. A Collector implements event.Recorder and is attached to a bus
// with event.WithRecorder.
package metrics

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "stockroom"

const topicLabel = "topic"

// Collector records one observation per dispatch pass, labelled by topic.
// It is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	passes      *prometheus.CounterVec
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	unrouted    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New creates a Collector registered on its own registry.
func New() *Collector {
	c, err := NewWithRegistry(prometheus.NewRegistry())
	if err != nil {
		// A fresh registry cannot hold conflicting collectors.
		panic(err)
	}
	return c
}

// NewWithRegistry creates a Collector and registers its metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) (*Collector, error) {
	c := &Collector{
		registry: reg,
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dispatch_passes_total",
			Help:      "Number of notify passes per topic.",
		}, []string{topicLabel}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "listener_invocations_total",
			Help:      "Number of listener invocations per topic.",
		}, []string{topicLabel}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "listener_failures_total",
			Help:      "Number of listener errors and panics per topic.",
		}, []string{topicLabel}),
		unrouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "unrouted_events_total",
			Help:      "Number of events published to a topic with no listeners.",
		}, []string{topicLabel}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a notify pass.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{topicLabel}),
	}

	for _, col := range []prometheus.Collector{c.passes, c.invocations, c.failures, c.unrouted, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register dispatch metrics: %w", err)
		}
	}
	return c, nil
}

// ObserveDispatch implements event.Recorder.
func (c *Collector) ObserveDispatch(topic string, invoked, failed int, elapsed time.Duration) {
	c.passes.WithLabelValues(topic).Inc()
	if invoked == 0 && failed == 0 {
		c.unrouted.WithLabelValues(topic).Inc()
	}
	c.invocations.WithLabelValues(topic).Add(float64(invoked))
	c.failures.WithLabelValues(topic).Add(float64(failed))
	c.duration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// Registry returns the registry the Collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// TopicStats is a point-in-time view of the counters for one topic.
type TopicStats struct {
	Topic       string
	Passes      uint64
	Invocations uint64
	Failures    uint64
	Unrouted    uint64
}

// Snapshot gathers the Collector's counters, one entry per observed topic,
// sorted by topic.
func (c *Collector) Snapshot() ([]TopicStats, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	byTopic := make(map[string]*TopicStats)
	for _, mf := range families {
		var field func(*TopicStats) *uint64
		switch mf.GetName() {
		case prometheus.BuildFQName(namespace, "bus", "dispatch_passes_total"):
			field = func(s *TopicStats) *uint64 { return &s.Passes }
		case prometheus.BuildFQName(namespace, "bus", "listener_invocations_total"):
			field = func(s *TopicStats) *uint64 { return &s.Invocations }
		case prometheus.BuildFQName(namespace, "bus", "listener_failures_total"):
			field = func(s *TopicStats) *uint64 { return &s.Failures }
		case prometheus.BuildFQName(namespace, "bus", "unrouted_events_total"):
			field = func(s *TopicStats) *uint64 { return &s.Unrouted }
		default:
			continue
		}
		for _, m := range mf.GetMetric() {
			topic := labelValue(m, topicLabel)
			s, ok := byTopic[topic]
			if !ok {
				s = &TopicStats{Topic: topic}
				byTopic[topic] = s
			}
			*field(s) = uint64(m.GetCounter().GetValue())
		}
	}

	stats := make([]TopicStats, 0, len(byTopic))
	for _, s := range byTopic {
		stats = append(stats, *s)
	}
	slices.SortFunc(stats, func(a, b TopicStats) int {
		return cmp.Compare(a.Topic, b.Topic)
	})
	return stats, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
