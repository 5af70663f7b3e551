package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
	"github.com/MikeSquared-Agency/sift/internal/executor"
)

const namespace = "sift"

// Metrics holds the run's Prometheus collectors. It implements
// dispatcher.Observer.
type Metrics struct {
	registry *prometheus.Registry
	inFlight startedSet

	ChunksInFlight prometheus.Gauge
	ChunkResults   *prometheus.CounterVec
	ChunkAttempts  prometheus.Histogram
	ChunkDuration  *prometheus.HistogramVec
	ChunkTokens    prometheus.Histogram

	FilesTotal         *prometheus.CounterVec
	ConversationsTotal prometheus.Counter
	DuplicatesTotal    prometheus.Counter

	HTTPRequestsTotal *prometheus.CounterVec
}

// New registers every collector on a fresh registry, so independent runs
// and tests never collide on the global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChunksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_in_flight",
			Help:      "Chunks currently being executed",
		}),
		ChunkResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_results_total",
			Help:      "Finished chunks by status and error kind",
		}, []string{"status", "kind"}),
		ChunkAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_attempts",
			Help:      "API attempts spent per chunk",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		ChunkDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Wall time per chunk including retries",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		ChunkTokens: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_tokens",
			Help:      "Estimated tokens per dispatched chunk",
			Buckets:   prometheus.ExponentialBuckets(250, 2, 8),
		}),
		FilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Input files by load outcome",
		}, []string{"outcome"}),
		ConversationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Unique conversations accepted for chunking",
		}),
		DuplicatesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Conversations dropped as content duplicates",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Status server requests",
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) ChunkStarted(c chunker.Chunk) {
	m.inFlight.add(c.ConversationID, c.Index)
	m.ChunksInFlight.Inc()
	m.ChunkTokens.Observe(float64(c.ApproxTokens))
}

func (m *Metrics) ChunkFinished(r executor.Result) {
	// Chunks cancelled before starting were never counted in flight.
	if m.inFlight.remove(r.ConversationID, r.ChunkIndex) {
		m.ChunksInFlight.Dec()
	}
	m.ChunkResults.WithLabelValues(string(r.Status), string(r.Kind)).Inc()
	m.ChunkAttempts.Observe(float64(r.Attempts))
	m.ChunkDuration.WithLabelValues(string(r.Status)).Observe(r.Duration.Seconds())
}

// RecordFile counts one input file under outcome (loaded, unreadable,
// unrecognized, mismatch).
func (m *Metrics) RecordFile(outcome string) {
	m.FilesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordConversations(unique, duplicates int) {
	m.ConversationsTotal.Add(float64(unique))
	m.DuplicatesTotal.Add(float64(duplicates))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and embedding.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Middleware counts requests by method, route path and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Progress is a point-in-time view of a run, served by the status API.
type Progress struct {
	RunID      string    `json:"run_id,omitempty"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Total      int       `json:"total_chunks"`
	Started    int       `json:"started"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	InFlight   int       `json:"in_flight"`
}

type chunkKey struct {
	conversation string
	index        int
}

// startedSet remembers which chunks reported a start.
type startedSet struct {
	mu   sync.Mutex
	keys map[chunkKey]struct{}
}

func (s *startedSet) add(conversation string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[chunkKey]struct{})
	}
	s.keys[chunkKey{conversation, index}] = struct{}{}
}

func (s *startedSet) remove(conversation string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := chunkKey{conversation, index}
	if _, ok := s.keys[k]; !ok {
		return false
	}
	delete(s.keys, k)
	return true
}
