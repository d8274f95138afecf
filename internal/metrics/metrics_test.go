package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordInserted(1)
	m.RecordInserted(2)
	m.RecordDeleted(1)
	m.ObserveQuery("radius", 2*time.Millisecond)
	m.SnapshotCreated(1000, 250)
	m.PatternsDetected("spatial_cluster", 3)
	m.PatternsDetected("trend", 0)
	m.TimelineEvent("insert")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsInserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Records))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("radius")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.CompressionRatio))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Patterns.WithLabelValues("spatial_cluster")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordInserted(1)
		m.RecordDeleted(0)
		m.RecordUpdated()
		m.SetRecords(4)
		m.ObserveQuery("similarity", time.Second)
		m.SnapshotCreated(1, 1)
		m.SnapshotPruned()
		m.PatternsDetected("anomaly", 1)
		m.TimelineEvent("query")
	})
}
