// Package metrics holds the Prometheus collectors for catalog synchronization.
// Collectors are registered with the default registry through promauto, so
// exposing promhttp.Handler() is enough to scrape them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the registerer the collectors below are attached to.
var Registry = prometheus.DefaultRegisterer

// Page stages and results used as label values.
const (
	StageFetch  = "fetch"
	StageInsert = "insert"

	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// RoundsTotal counts completed pagination rounds by entity kind.
	RoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_rounds_total",
		Help: "Total pagination rounds completed by entity kind",
	}, []string{"kind"})

	// RoundDuration observes the time a round takes, barrier included, delay excluded.
	RoundDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_round_duration_seconds",
		Help:    "Duration of a pagination round by entity kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	// PagesTotal counts page tasks by kind, stage and result.
	PagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_pages_total",
		Help: "Total page fetch/insert operations by entity kind, stage and result",
	}, []string{"kind", "stage", "result"})

	// ItemsInserted counts rows handed to the local store.
	ItemsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_items_inserted_total",
		Help: "Total items inserted into the local store by entity kind",
	}, []string{"kind"})

	// InflightFetches tracks fetches currently outstanding.
	InflightFetches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_sync_inflight_fetches",
		Help: "Page fetches currently in flight by entity kind",
	}, []string{"kind"})

	// RunsTotal counts finished sync runs by result (success, failure, cancelled).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_total",
		Help: "Total sync runs by result",
	}, []string{"result"})

	// ProgressPercent is the last percentage emitted by the running sync.
	ProgressPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_sync_progress_percent",
		Help: "Last progress percentage reported by the current sync run",
	})
)

// Example Prometheus Queries:
//
//   # Page failure rate
//   sum(rate(catalog_sync_pages_total{result="error"}[5m])) by (kind, stage)
//
//   # P95 round latency
//   histogram_quantile(0.95, rate(catalog_sync_round_duration_seconds_bucket[5m]))
//
//   # Items per second during a run
//   sum(rate(catalog_sync_items_inserted_total[1m])) by (kind)
