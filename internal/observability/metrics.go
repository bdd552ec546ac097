package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	searchDuration prometheus.Histogram
	searchTotal    *prometheus.CounterVec

	syncDuration prometheus.Histogram
	syncTotal    *prometheus.CounterVec
	syncPending  prometheus.Gauge

	embeddingRequests *prometheus.CounterVec
	embeddingDuration *prometheus.HistogramVec
	embeddingTexts    *prometheus.CounterVec
	fallbackTotal     *prometheus.CounterVec
	providerDegraded  *prometheus.GaugeVec

	cacheLookups     *prometheus.CounterVec
	embedCacheHits   prometheus.Counter
	embedCacheMisses prometheus.Counter

	indexedDocuments prometheus.Gauge
	indexedChunks    prometheus.Gauge

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_total",
					Help: "Total memory searches by status.",
				},
				[]string{"status"},
			),
			syncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_sync_duration_seconds",
					Help:    "Memory sync run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			syncTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_sync_total",
					Help: "Total memory sync runs by reason and status.",
				},
				[]string{"reason", "status"},
			),
			syncPending: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_sync_dirty",
					Help: "Whether the index has unsynced changes (1 dirty, 0 clean).",
				},
			),
			embeddingRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_embedding_requests_total",
					Help: "Total embedding requests by provider, operation and status.",
				},
				[]string{"provider", "op", "status"},
			),
			embeddingDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_embedding_duration_seconds",
					Help:    "Embedding request duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			embeddingTexts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_embedding_texts_total",
					Help: "Total texts sent for embedding by provider.",
				},
				[]string{"provider"},
			),
			fallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_embedding_fallback_total",
					Help: "Total fallback activations by primary and secondary provider.",
				},
				[]string{"primary", "secondary"},
			),
			providerDegraded: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "memory_embedding_provider_degraded",
					Help: "Provider degraded state (1 degraded, 0 healthy).",
				},
				[]string{"provider"},
			),
			cacheLookups: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_result_cache_lookups_total",
					Help: "Total result cache lookups by outcome.",
				},
				[]string{"outcome"},
			),
			embedCacheHits: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_embedding_cache_hits_total",
					Help: "Total chunk embeddings served from the persistent embedding cache.",
				},
			),
			embedCacheMisses: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_embedding_cache_misses_total",
					Help: "Total chunk embeddings that had to be computed.",
				},
			),
			indexedDocuments: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_indexed_documents",
					Help: "Documents currently in the index.",
				},
			),
			indexedChunks: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_indexed_chunks",
					Help: "Chunks currently in the index.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_tool_execution_total",
					Help: "Total memory tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_tool_execution_duration_seconds",
					Help:    "Memory tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
		}

		prometheus.MustRegister(
			m.searchDuration,
			m.searchTotal,
			m.syncDuration,
			m.syncTotal,
			m.syncPending,
			m.embeddingRequests,
			m.embeddingDuration,
			m.embeddingTexts,
			m.fallbackTotal,
			m.providerDegraded,
			m.cacheLookups,
			m.embedCacheHits,
			m.embedCacheMisses,
			m.indexedDocuments,
			m.indexedChunks,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordMemorySearch(duration time.Duration, success bool) {
	m := getMetrics()
	m.searchDuration.Observe(duration.Seconds())
	m.searchTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordMemorySync records one sync run. status is the run's final status.
func RecordMemorySync(reason, status string, duration time.Duration) {
	m := getMetrics()
	m.syncDuration.Observe(duration.Seconds())
	m.syncTotal.WithLabelValues(reason, status).Inc()
}

func SetMemoryDirty(dirty bool) {
	m := getMetrics()
	value := 0.0
	if dirty {
		value = 1.0
	}
	m.syncPending.Set(value)
}

func RecordEmbedding(provider, op string, texts int, duration time.Duration, success bool) {
	m := getMetrics()
	m.embeddingRequests.WithLabelValues(provider, op, statusLabel(success)).Inc()
	m.embeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.embeddingTexts.WithLabelValues(provider).Add(float64(texts))
}

func RecordEmbeddingFallback(primary, secondary string) {
	m := getMetrics()
	m.fallbackTotal.WithLabelValues(primary, secondary).Inc()
}

func SetProviderDegraded(provider string, degraded bool) {
	m := getMetrics()
	value := 0.0
	if degraded {
		value = 1.0
	}
	m.providerDegraded.WithLabelValues(provider).Set(value)
}

func RecordResultCacheLookup(hit bool) {
	m := getMetrics()
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func RecordEmbeddingCache(hits, misses int) {
	m := getMetrics()
	m.embedCacheHits.Add(float64(hits))
	m.embedCacheMisses.Add(float64(misses))
}

func SetIndexSize(documents, chunks int) {
	m := getMetrics()
	m.indexedDocuments.Set(float64(documents))
	m.indexedChunks.Set(float64(chunks))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
