package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObservePipeline("students", "success", 8, 2, 150*time.Millisecond)
	c.ObserveTransaction("students", "completed", 5, 3, 0)
	c.ObserveRollback("students", true)
	c.ImportStarted()
	c.ImportStarted()
	c.ImportFinished()
	c.ImportRejected()

	assert.InDelta(t, 1, testutil.ToFloat64(c.pipelineRuns.WithLabelValues("students", "success")), 0)
	assert.InDelta(t, 8, testutil.ToFloat64(c.pipelineRows.WithLabelValues("students", "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.pipelineRows.WithLabelValues("students", "error")), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(c.transactionRecords.WithLabelValues("students", "created")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(c.transactionRecords.WithLabelValues("students", "updated")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.rollbacks.WithLabelValues("students", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.activeImports), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.rejected), 0)
}

func TestCollectors_NilSafe(t *testing.T) {
	var c *Collectors

	assert.NotPanics(t, func() {
		c.ObservePipeline("books", "failed", 0, 0, time.Second)
		c.ObserveTransaction("books", "failed", 0, 0, 1)
		c.ObserveRollback("books", false)
		c.ImportStarted()
		c.ImportFinished()
		c.ImportRejected()
	})
}
