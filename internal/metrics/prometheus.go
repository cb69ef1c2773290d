package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "complyassist_query_duration_seconds",
			Help:    "Context query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"query_type"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complyassist_query_total",
			Help: "Total number of context queries processed",
		},
		[]string{"status"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "complyassist_retrieval_results_count",
			Help:    "Number of retrieved chunks per query after deduplication",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	KeywordFallbackTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "complyassist_keyword_fallback_triggered_total",
			Help: "Total number of queries that fell back to keyword search",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complyassist_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complyassist_documents_processed_total",
			Help: "Total documents processed by terminal status",
		},
		[]string{"status"},
	)

	ChunksPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "complyassist_chunks_persisted_total",
			Help: "Total chunks written to the chunk store",
		},
	)

	ChunksReused = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "complyassist_chunks_reused_total",
			Help: "Total chunks reused from the approved cache",
		},
	)

	EmbeddingsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "complyassist_embeddings_skipped_total",
			Help: "Total chunks persisted without an embedding",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complyassist_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complyassist_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	GapTicketsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complyassist_gap_tickets_created_total",
			Help: "Total gap tickets created by category",
		},
		[]string{"category"},
	)

	GapFollowUpsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "complyassist_gap_followups_sent_total",
			Help: "Total gap follow-up notifications dispatched",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(KeywordFallbackTriggered)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(ChunksPersisted)
	prometheus.MustRegister(ChunksReused)
	prometheus.MustRegister(EmbeddingsSkipped)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(GapTicketsCreated)
	prometheus.MustRegister(GapFollowUpsSent)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
