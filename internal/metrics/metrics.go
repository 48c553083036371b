package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelinesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_pipelines_started_total",
			Help: "Total number of chat pipelines started",
		},
		[]string{"intent"},
	)

	PipelinesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_pipelines_completed_total",
			Help: "Total number of chat pipelines completed",
		},
		[]string{"route", "status"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aesop_pipeline_duration_seconds",
			Help:    "End to end pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"route"},
	)

	// CRAG loop metrics
	CragIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aesop_crag_iterations",
			Help:    "Number of Scout/Critic iterations per research request",
			Buckets: []float64{1, 2, 3},
		},
	)

	CragDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_crag_decisions_total",
			Help: "Critic loop decisions by type",
		},
		[]string{"decision", "forced"},
	)

	PapersGraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_papers_graded_total",
			Help: "Total number of papers graded by recommendation",
		},
		[]string{"recommendation"},
	)

	PaperQuality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aesop_paper_quality_score",
			Help:    "Distribution of per-paper quality scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	MemoryBoost = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aesop_memory_boost",
			Help:    "Acceptance memory confidence boost applied per research request",
			Buckets: []float64{0, 0.025, 0.05, 0.075, 0.1, 0.125, 0.15},
		},
	)

	AcceptancesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aesop_acceptances_recorded_total",
			Help: "Total number of papers written to acceptance memory",
		},
	)

	// PubMed metrics
	PubMedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_pubmed_requests_total",
			Help: "Total number of PubMed E-utilities requests",
		},
		[]string{"operation", "status"},
	)

	PubMedLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aesop_pubmed_latency_seconds",
			Help:    "PubMed E-utilities request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"model", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aesop_llm_latency_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	LLMRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_llm_retries_total",
			Help: "Total number of LLM request retries by reason",
		},
		[]string{"reason"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aesop_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aesop_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aesop_session_cache_hits_total",
			Help: "Total number of session cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aesop_session_cache_misses_total",
			Help: "Total number of session cache misses",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aesop_session_cache_size",
			Help: "Current number of sessions in the local cache",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aesop_session_cache_evictions_total",
			Help: "Total number of sessions evicted from the local cache",
		},
	)

	// Intent/routing metrics
	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_intent_classifications_total",
			Help: "Total number of intent classifications by intent and stage",
		},
		[]string{"intent", "stage"},
	)

	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aesop_route_decisions_total",
			Help: "Total number of routing decisions by route",
		},
		[]string{"route"},
	)
)

// RecordPipelineMetrics records metrics for a completed pipeline run.
func RecordPipelineMetrics(route, status string, durationSeconds float64) {
	PipelinesCompleted.WithLabelValues(route, status).Inc()
	PipelineDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordGrade records per-paper grading metrics.
func RecordGrade(recommendation string, quality float64) {
	PapersGraded.WithLabelValues(recommendation).Inc()
	PaperQuality.Observe(quality)
}

// RecordPubMedMetrics records E-utilities request metrics.
func RecordPubMedMetrics(operation, status string, durationSeconds float64) {
	PubMedRequests.WithLabelValues(operation, status).Inc()
	if durationSeconds > 0 {
		PubMedLatency.WithLabelValues(operation).Observe(durationSeconds)
	}
}

// RecordLLMMetrics records completion request metrics.
func RecordLLMMetrics(model, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		LLMLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding request metrics.
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}
