// Package metrics exposes prometheus collectors for imports.
//
// All methods are safe on a nil *Collectors so components can run without
// metrics in tests and the CLI.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "importer"

// Collectors groups the import metrics.
type Collectors struct {
	pipelineRuns     *prometheus.CounterVec
	pipelineRows     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec

	transactions       *prometheus.CounterVec
	transactionRecords *prometheus.CounterVec
	rollbacks          *prometheus.CounterVec

	activeImports prometheus.Gauge
	rejected      prometheus.Counter
}

// New registers the collectors with reg. Use prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		pipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome.",
		}, []string{"entity", "result"}),
		pipelineRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_rows_total",
			Help:      "Total number of rows processed by the pipeline.",
		}, []string{"entity", "result"}),
		pipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets: []float64{
				0.01, 0.05,
				0.1, 0.5,
				1, 2, 5, 10, 30, 60,
			},
		}, []string{"entity"}),
		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total number of import transactions by final status.",
		}, []string{"entity", "status"}),
		transactionRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_records_total",
			Help:      "Total number of records persisted by action.",
		}, []string{"entity", "action"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Total number of transaction rollbacks by outcome.",
		}, []string{"entity", "result"}),
		activeImports: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_imports",
			Help:      "Current number of imports holding a concurrency slot.",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_rejected_total",
			Help:      "Total number of imports rejected because all slots were busy.",
		}),
	}
}

// ObservePipeline records a finished pipeline run.
func (c *Collectors) ObservePipeline(entity, result string, successRows, errorRows int, d time.Duration) {
	if c == nil {
		return
	}
	c.pipelineRuns.WithLabelValues(entity, result).Inc()
	c.pipelineRows.WithLabelValues(entity, "success").Add(float64(successRows))
	c.pipelineRows.WithLabelValues(entity, "error").Add(float64(errorRows))
	c.pipelineDuration.WithLabelValues(entity).Observe(d.Seconds())
}

// ObserveTransaction records a finished transaction and its record counts.
func (c *Collectors) ObserveTransaction(entity, status string, created, updated, failed int) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues(entity, status).Inc()
	c.transactionRecords.WithLabelValues(entity, "created").Add(float64(created))
	c.transactionRecords.WithLabelValues(entity, "updated").Add(float64(updated))
	c.transactionRecords.WithLabelValues(entity, "failed").Add(float64(failed))
}

// ObserveRollback records a rollback attempt.
func (c *Collectors) ObserveRollback(entity string, ok bool) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "partial"
	}
	c.rollbacks.WithLabelValues(entity, result).Inc()
}

// ImportStarted increments the active import gauge.
func (c *Collectors) ImportStarted() {
	if c == nil {
		return
	}
	c.activeImports.Inc()
}

// ImportFinished decrements the active import gauge.
func (c *Collectors) ImportFinished() {
	if c == nil {
		return
	}
	c.activeImports.Dec()
}

// ImportRejected counts an import refused by the limiter.
func (c *Collectors) ImportRejected() {
	if c == nil {
		return
	}
	c.rejected.Inc()
}
