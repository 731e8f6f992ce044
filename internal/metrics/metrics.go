package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "osintdeck"

var (
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Searches processed by operating mode",
	}, []string{"mode"})

	EntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extractor",
		Name:      "entities_total",
		Help:      "Entities returned by the extractor, by kind",
	}, []string{"kind"})

	CatalogErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "catalog_errors_total",
		Help:      "Searches that degraded to zero tools because the catalog was unavailable",
	})

	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "predictions_total",
		Help:      "Intent predictions by winning category",
	}, []string{"category"})

	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "train_duration_seconds",
		Help:      "Time spent rebuilding the classifier model",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	TLDRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tld",
		Name:      "refresh_total",
		Help:      "TLD reference refreshes by outcome",
	}, []string{"status"})

	TLDReferenceSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tld",
		Name:      "reference_labels",
		Help:      "Labels in the current TLD reference set",
	})

	CatalogReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "reloads_total",
		Help:      "Catalog file reloads by outcome",
	}, []string{"status"})
)
