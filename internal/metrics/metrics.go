package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector exposes Prometheus metrics for the ingestion pipeline.
type PipelineCollector struct {
	registry         *prometheus.Registry
	postsProcessed   *prometheus.CounterVec
	eventsExtracted  prometheus.Counter
	duplicatesMerged prometheus.Counter
	postDuration     prometheus.Histogram
}

// NewPipelineCollector constructs a collector on a private registry.
func NewPipelineCollector() (*PipelineCollector, error) {
	registry := prometheus.NewRegistry()

	postsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventsbackend",
		Subsystem: "pipeline",
		Name:      "posts_processed_total",
		Help:      "Posts handled by the pipeline, by result.",
	}, []string{"result"})

	eventsExtracted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventsbackend",
		Subsystem: "pipeline",
		Name:      "events_extracted_total",
		Help:      "Event candidates persisted as new catalog entries.",
	})

	duplicatesMerged := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventsbackend",
		Subsystem: "pipeline",
		Name:      "duplicates_merged_total",
		Help:      "Event candidates merged into existing catalog entries.",
	})

	postDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventsbackend",
		Subsystem: "pipeline",
		Name:      "post_duration_seconds",
		Help:      "Latency distribution for processing one post end to end.",
		Buckets:   prometheus.DefBuckets,
	})

	for _, c := range []prometheus.Collector{postsProcessed, eventsExtracted, duplicatesMerged, postDuration} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &PipelineCollector{
		registry:         registry,
		postsProcessed:   postsProcessed,
		eventsExtracted:  eventsExtracted,
		duplicatesMerged: duplicatesMerged,
		postDuration:     postDuration,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *PipelineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObservePost records the outcome and duration of one processed post.
// result is one of "succeeded", "failed", "skipped".
func (c *PipelineCollector) ObservePost(result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.postsProcessed.WithLabelValues(result).Inc()
	c.postDuration.Observe(duration.Seconds())
}

// AddExtracted counts newly persisted events.
func (c *PipelineCollector) AddExtracted(n int) {
	if c == nil || n == 0 {
		return
	}
	c.eventsExtracted.Add(float64(n))
}

// AddMerged counts candidates folded into existing events.
func (c *PipelineCollector) AddMerged(n int) {
	if c == nil || n == 0 {
		return
	}
	c.duplicatesMerged.Add(float64(n))
}
