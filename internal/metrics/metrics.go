// Package metrics exposes Prometheus instrumentation for the decode loop,
// the external scoring call, and the evaluation aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecodeStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decode_steps_total",
		Help: "The total number of decode steps executed",
	})

	TokensGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokens_generated_total",
		Help: "The total number of tokens sampled across all parallel samples",
	})

	DecodeStepDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "decode_step_duration_seconds",
		Help: "Duration of a full decode step (encode, score, filter, draw)",
	})

	ScorerCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scorer_call_duration_seconds",
		Help:    "Histogram of scoring model call latencies",
		Buckets: prometheus.DefBuckets,
	})

	ScorerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorer_errors_total",
		Help: "Total number of failed scoring model calls",
	})

	ContextLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "context_length_tokens",
		Help:    "Distribution of context lengths processed",
		Buckets: []float64{16, 32, 64, 128, 256, 512, 1024, 2048},
	})

	ConditioningFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conditioning_fetch_duration_seconds",
		Help:    "Histogram of auxiliary conditioning fetch latencies",
		Buckets: prometheus.DefBuckets,
	})

	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generations_total",
		Help: "Completed generation calls by outcome",
	}, []string{"status"})

	EvalScorerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eval_scorer_runs_total",
		Help: "Evaluation scorer executions by scorer name and outcome",
	}, []string{"scorer", "status"})

	EvalScorerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eval_scorer_duration_seconds",
		Help:    "Histogram of evaluation scorer execution times",
		Buckets: prometheus.DefBuckets,
	}, []string{"scorer"})
)
