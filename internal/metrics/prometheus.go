package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aixiv_stage_duration_seconds",
			Help:    "Review pipeline stage duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	ReviewRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aixiv_review_runs_total",
			Help: "Total full review pipeline runs",
		},
		[]string{"status"},
	)

	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aixiv_pipeline_runs_total",
			Help: "Total end-to-end pipeline runs",
		},
		[]string{"status"},
	)

	PapersSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aixiv_papers_submitted_total",
			Help: "Total papers created",
		},
	)

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aixiv_status_transitions_total",
			Help: "Total lifecycle transitions applied",
		},
		[]string{"to"},
	)

	ArenaPromotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aixiv_arena_promotions_total",
			Help: "Total promotions to the arena",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aixiv_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	DecisionRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aixiv_decision_records_total",
			Help: "Total decision records appended",
		},
		[]string{"action_type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aixiv_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aixiv_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ActivePipelineStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aixiv_active_pipeline_streams",
			Help: "WebSocket pipeline streams currently open",
		},
	)
)

func Init() {
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(ReviewRuns)
	prometheus.MustRegister(PipelineRuns)
	prometheus.MustRegister(PapersSubmitted)
	prometheus.MustRegister(StatusTransitions)
	prometheus.MustRegister(ArenaPromotions)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(DecisionRecords)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ActivePipelineStreams)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
