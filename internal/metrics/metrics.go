// Package metrics holds the Prometheus collectors for the memory store.
// Collectors are registered on a caller-supplied registry; nothing is
// exposed over HTTP. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bitacora"

// Metrics groups every collector used by the record store, the snapshot
// manager and the forensics engine.
type Metrics struct {
	RecordsInserted  prometheus.Counter
	RecordsDeleted   prometheus.Counter
	RecordsUpdated   prometheus.Counter
	Records          prometheus.Gauge
	Queries          *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	SnapshotsCreated prometheus.Counter
	SnapshotsPruned  prometheus.Counter
	CompressionRatio prometheus.Gauge
	SnapshotBytes    prometheus.Counter
	Patterns         *prometheus.CounterVec
	TimelineEvents   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "inserted_total",
			Help: "Records inserted into the store.",
		}),
		RecordsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "deleted_total",
			Help: "Records deleted from the store.",
		}),
		RecordsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "updated_total",
			Help: "Feature vector replacements, including effectiveness updates.",
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "records", Name: "current",
			Help: "Records currently held by the store.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "queries_total",
			Help: "Queries served by kind.",
		}, []string{"kind"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "records", Name: "query_duration_seconds",
			Help:    "Query latency by kind.",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"kind"}),
		SnapshotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "snapshots", Name: "created_total",
			Help: "Snapshots created.",
		}),
		SnapshotsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "snapshots", Name: "pruned_total",
			Help: "Snapshots removed by the retention policy.",
		}),
		CompressionRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "snapshots", Name: "compression_ratio",
			Help: "Compressed over uncompressed size of the last snapshot.",
		}),
		SnapshotBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "snapshots", Name: "written_bytes_total",
			Help: "Compressed snapshot bytes written.",
		}),
		Patterns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "forensics", Name: "patterns_detected_total",
			Help: "Patterns detected by kind.",
		}, []string{"kind"}),
		TimelineEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "forensics", Name: "timeline_events_total",
			Help: "Timeline events recorded by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.RecordsInserted, m.RecordsDeleted, m.RecordsUpdated, m.Records,
		m.Queries, m.QueryDuration,
		m.SnapshotsCreated, m.SnapshotsPruned, m.CompressionRatio, m.SnapshotBytes,
		m.Patterns, m.TimelineEvents,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordInserted(total int) {
	if m == nil {
		return
	}
	m.RecordsInserted.Inc()
	m.Records.Set(float64(total))
}

func (m *Metrics) RecordDeleted(total int) {
	if m == nil {
		return
	}
	m.RecordsDeleted.Inc()
	m.Records.Set(float64(total))
}

func (m *Metrics) RecordUpdated() {
	if m == nil {
		return
	}
	m.RecordsUpdated.Inc()
}

// SetRecords sets the record gauge, used after a bulk load.
func (m *Metrics) SetRecords(total int) {
	if m == nil {
		return
	}
	m.Records.Set(float64(total))
}

func (m *Metrics) ObserveQuery(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(kind).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) SnapshotCreated(uncompressed, compressed int64) {
	if m == nil {
		return
	}
	m.SnapshotsCreated.Inc()
	m.SnapshotBytes.Add(float64(compressed))
	if uncompressed > 0 {
		m.CompressionRatio.Set(float64(compressed) / float64(uncompressed))
	}
}

func (m *Metrics) SnapshotPruned() {
	if m == nil {
		return
	}
	m.SnapshotsPruned.Inc()
}

func (m *Metrics) PatternsDetected(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Patterns.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) TimelineEvent(kind string) {
	if m == nil {
		return
	}
	m.TimelineEvents.WithLabelValues(kind).Inc()
}
