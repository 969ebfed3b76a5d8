package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustscore_reviews_classified_total",
			Help: "Reviews processed by the analysis pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	classifyAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trustscore_classify_attempts_total",
			Help: "Classifier calls made by the analysis pipeline, retries included",
		},
	)

	pipelineBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trustscore_pipeline_batch_duration_seconds",
			Help:    "Time spent processing one batch of pending reviews",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	recomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustscore_recompute_total",
			Help: "Trust score recomputations, by resulting status or error",
		},
		[]string{"status"},
	)

	recomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trustscore_recompute_duration_seconds",
			Help:    "Time spent recomputing and publishing one trust score",
			Buckets: prometheus.DefBuckets,
		},
	)

	recomputeCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trustscore_recompute_coalesced_total",
			Help: "Recompute requests that joined a pending follow-up run instead of starting one",
		},
	)

	pendingProducts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trustscore_pending_products",
			Help: "Products marked for recomputation, sampled by the scheduler",
		},
	)
)

// Outcome labels for reviewsClassified.
const (
	outcomeAnalyzed = "analyzed"
	outcomeFailed   = "failed"
	outcomeSkipped  = "skipped"
)
