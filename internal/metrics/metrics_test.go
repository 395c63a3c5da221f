package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ImportRows(RowCreated, 3)
	m.ImportRows(RowCreated, 0)
	m.ImportRows(RowSkippedNoIdentity, 1)
	m.ImportRun("ok")
	m.VocabularyFallback("status")
	m.IdentitiesCreated(2)
	m.Exchange("approved", 10*time.Millisecond)
	m.ImportChunk(time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.importRows.WithLabelValues(RowCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importRows.WithLabelValues(RowSkippedNoIdentity)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importRuns.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.identitiesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchangeTotal.WithLabelValues("approved")))

	n, err := testutil.GatherAndCount(reg, "wfm_exchange_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ImportRows(RowFailed, 1)
		m.ImportRun("failed")
		m.ImportChunk(time.Second)
		m.VocabularyFallback("direction")
		m.IdentitiesCreated(1)
		m.Exchange("error", time.Second)
	})
}
