package metrics

import (
	"net/http"

	"github.com/fpang/vision-archiver/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromObserver exports pipeline metrics to a Prometheus registry.
type PromObserver struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	attempts    *prometheus.CounterVec
	archived    prometheus.Counter
	imageBytes  prometheus.Histogram
}

var _ pipeline.Observer = (*PromObserver)(nil)

// NewPromObserver creates the collectors on a fresh registry that also
// carries the Go runtime and process collectors.
func NewPromObserver() *PromObserver {
	reg := prometheus.NewRegistry()
	o := &PromObserver{
		registry: reg,
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vision_archiver",
			Name:      "invocations_total",
			Help:      "Pipeline invocations by final state and failure kind.",
		}, []string{"state", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vision_archiver",
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of one invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"state"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vision_archiver",
			Name:      "step_attempts_total",
			Help:      "Attempts made by retried steps.",
		}, []string{"step"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vision_archiver",
			Name:      "records_archived_total",
			Help:      "Superseded records copied to the archive.",
		}),
		imageBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vision_archiver",
			Name:      "image_bytes",
			Help:      "Declared size of source images.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		}),
	}
	reg.MustRegister(
		o.invocations, o.duration, o.attempts, o.archived, o.imageBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

// Observe implements pipeline.Observer.
func (o *PromObserver) Observe(r pipeline.Report) {
	o.invocations.WithLabelValues(string(r.State), r.Kind).Inc()
	o.duration.WithLabelValues(string(r.State)).Observe(r.Duration.Seconds())
	o.attempts.WithLabelValues("annotate").Add(float64(r.AnnotateAttempts))
	o.attempts.WithLabelValues("publish").Add(float64(r.PublishAttempts))
	o.imageBytes.Observe(float64(r.Size))
	if r.Archived {
		o.archived.Inc()
	}
}

// Registry returns the underlying registry.
func (o *PromObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (o *PromObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Multi fans a report out to several observers.
type Multi []pipeline.Observer

// Observe implements pipeline.Observer.
func (m Multi) Observe(r pipeline.Report) {
	for _, o := range m {
		if o != nil {
			o.Observe(r)
		}
	}
}
