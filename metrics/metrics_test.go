package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePhaseRecordsHistogram(t *testing.T) {
	r := New()
	r.ObservePhase("storage", "user:/app", 0.5)

	count := testutil.CollectAndCount(r.PhaseDuration)
	assert.Equal(t, 1, count)
}

func TestRecordPluginErrorIncrementsCounter(t *testing.T) {
	r := New()
	r.RecordPluginError("file/storage", "commit")
	r.RecordPluginError("file/storage", "commit")

	got := testutil.ToFloat64(r.PluginErrors.WithLabelValues("file/storage", "commit"))
	assert.Equal(t, float64(2), got)
}

func TestRecordConflict(t *testing.T) {
	r := New()
	r.RecordConflict()
	assert.Equal(t, float64(1), testutil.ToFloat64(r.ConflictsTotal))
}

func TestNilRegistryIsNoOp(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.ObservePhase("storage", "user:/app", 1)
		r.RecordPluginError("p", "phase")
		r.RecordConflict()
		assert.Nil(t, r.Prometheus())
	})
}
