package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Chat transport metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_messages_received_total",
		Help: "Total number of chat messages received",
	}, []string{"kind"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_messages_processed_total",
		Help: "Total number of chat messages processed",
	}, []string{"status"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Memory metrics
	turnsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_memory_turns_recorded_total",
		Help: "Total number of conversation turns recorded",
	}, []string{"role"})

	sweepRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_memory_sweep_removed_total",
		Help: "Entries removed by the expiry sweep",
	}, []string{"kind"})

	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_assistant_memory_sweeps_total",
		Help: "Total number of expiry sweeps",
	})

	// Learning metrics
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_analyses_total",
		Help: "Total number of business pattern analyses",
	}, []string{"status"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_assistant_analysis_duration_seconds",
		Help:    "Duration of business pattern analyses",
		Buckets: prometheus.DefBuckets,
	})

	documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_documents_processed_total",
		Help: "Total number of ingested documents",
	}, []string{"kind", "status"})

	// AI metrics
	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_assistant_ai_request_duration_seconds",
		Help:    "Duration of AI requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_assistant_cache_hits_total",
		Help: "Total number of cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_assistant_cache_misses_total",
		Help: "Total number of cache misses",
	})

	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_assistant_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_assistant_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_assistant_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	activeUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_assistant_active_users",
		Help: "Number of users with state in memory",
	})
)

// Metrics provides methods to record metrics. A nil *Metrics is valid and records normally.
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received chat message
func (m *Metrics) RecordMessageReceived(kind string) {
	messagesReceived.WithLabelValues(kind).Inc()
}

// RecordMessageProcessed records a processed chat message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordTurn records a conversation turn
func (m *Metrics) RecordTurn(role string) {
	turnsRecorded.WithLabelValues(role).Inc()
}

// RecordSweep records the outcome of an expiry sweep
func (m *Metrics) RecordSweep(contexts, preferences, patterns, conversations int) {
	sweepsTotal.Inc()
	sweepRemoved.WithLabelValues("context").Add(float64(contexts))
	sweepRemoved.WithLabelValues("preferences").Add(float64(preferences))
	sweepRemoved.WithLabelValues("pattern").Add(float64(patterns))
	sweepRemoved.WithLabelValues("conversation").Add(float64(conversations))
}

// RecordAnalysis records a business pattern analysis
func (m *Metrics) RecordAnalysis(status string, duration time.Duration) {
	analysesTotal.WithLabelValues(status).Inc()
	analysisDuration.Observe(duration.Seconds())
}

// RecordDocument records an ingested document
func (m *Metrics) RecordDocument(kind, status string) {
	documentsProcessed.WithLabelValues(kind, status).Inc()
}

// RecordAIRequest records an AI request
func (m *Metrics) RecordAIRequest(operation, status string, duration time.Duration) {
	aiRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetActiveUsers sets the number of users with state in memory
func (m *Metrics) SetActiveUsers(count int) {
	activeUsers.Set(float64(count))
}

// NewRouter creates the router serving metrics and health checks
func NewRouter(metricsPath string) *mux.Router {
	router := mux.NewRouter()
	router.Handle(metricsPath, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}

// NewServer wraps the router in an HTTP server listening on port
func NewServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
