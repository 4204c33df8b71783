// Package metrics provides Prometheus metrics for scrollharvest.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundsTotal counts scan rounds by harvest mode.
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrollharvest",
			Name:      "rounds_total",
			Help:      "Total number of scan rounds",
		},
		[]string{"mode"},
	)

	// RecordsTotal counts emitted records by harvest mode.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrollharvest",
			Name:      "records_total",
			Help:      "Total number of harvested records",
		},
		[]string{"mode"},
	)

	// TerminationsTotal counts finished harvests by reason.
	TerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrollharvest",
			Name:      "terminations_total",
			Help:      "Total number of finished harvests",
		},
		[]string{"mode", "reason"},
	)

	// SkippedNodesTotal counts nodes skipped during a scan, labelled with
	// one of the Skipped* values.
	SkippedNodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrollharvest",
			Name:      "skipped_nodes_total",
			Help:      "Total number of nodes skipped during scans",
		},
		[]string{"field"},
	)

	// ScrollDistance observes the distance of each scroll in pixels.
	ScrollDistance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scrollharvest",
			Name:      "scroll_distance_pixels",
			Help:      "Distribution of scroll distances",
			Buckets:   []float64{500, 1000, 1500, 2500, 4000, 6000, 10000},
		},
	)

	// HarvestInProgress is 1 while a harvest owns the browser session.
	HarvestInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scrollharvest",
			Name:      "harvest_in_progress",
			Help:      "Whether a harvest is currently running (1 = running)",
		},
	)
)

// Label values of SkippedNodesTotal's field label.
const (
	// SkippedID marks nodes with no id, not even a content-derived one.
	SkippedID = "id"
	// SkippedTimeMissing marks nodes with no time label.
	SkippedTimeMissing = "time_missing"
	// SkippedTimeUnresolvable marks nodes whose time label matched no
	// grammar.
	SkippedTimeUnresolvable = "time_unresolvable"
)
