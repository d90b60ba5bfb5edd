package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Flush("saved", 0.01)
	m.Flush("clean", 0)
	m.PersistError("upsert")
	m.QueueDepth(3)
	m.Residents(2)
	m.Transfer("ok")
	m.OfflineMutation("add")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushTotal.WithLabelValues("saved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushTotal.WithLabelValues("clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistErrors.WithLabelValues("upsert")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SaveQueueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResidentEntities))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transfers.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FlushDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Flush("saved", 1)
		m.PersistError("fetch")
		m.QueueDepth(1)
		m.Residents(1)
		m.Transfer("ok")
		m.OfflineMutation("set")
	})
}
