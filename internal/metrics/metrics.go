// Package metrics exposes Prometheus collectors for the message pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cal2"

type Pipeline struct {
	registry *prometheus.Registry

	messages         *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	mediaAttempts    *prometheus.CounterVec
	malformed        *prometheus.CounterVec
	preprocessDegrad prometheus.Counter
	audioFallbacks   *prometheus.CounterVec
	persistFailures  prometheus.Counter
	deliveryFailures prometheus.Counter
}

// New registers every collector on a fresh registry so tests and multiple
// app instances never collide.
func New() *Pipeline {
	reg := prometheus.NewRegistry()
	p := &Pipeline{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		mediaAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_download_attempts_total",
			Help:      "Media download attempts, by attempt index and outcome.",
		}, []string{"attempt", "outcome"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_extractions_total",
			Help:      "Model answers replaced by an empty record.",
		}, []string{"kind"}),
		preprocessDegrad: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_preprocess_degraded_total",
			Help:      "Voice notes transcribed from raw bytes because cleaning failed.",
		}),
		audioFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_fallback_total",
			Help:      "Voice notes sent through the fallback path, by outcome.",
		}, []string{"outcome"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Analysis log writes that failed.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound replies that could not be sent.",
		}),
	}
	reg.MustRegister(
		p.messages,
		p.stageDuration,
		p.mediaAttempts,
		p.malformed,
		p.preprocessDegrad,
		p.audioFallbacks,
		p.persistFailures,
		p.deliveryFailures,
	)
	return p
}

func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Pipeline) Message(kind, outcome string) {
	p.messages.WithLabelValues(kind, outcome).Inc()
}

// ObserveStage records the time since start for stage.
func (p *Pipeline) ObserveStage(stage string, start time.Time) {
	p.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (p *Pipeline) MediaAttempt(attempt int, outcome string) {
	p.mediaAttempts.WithLabelValues(strconv.Itoa(attempt), outcome).Inc()
}

func (p *Pipeline) Malformed(kind string) {
	p.malformed.WithLabelValues(kind).Inc()
}

func (p *Pipeline) PreprocessDegraded() {
	p.preprocessDegrad.Inc()
}

func (p *Pipeline) AudioFallback(outcome string) {
	p.audioFallbacks.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) PersistFailure() {
	p.persistFailures.Inc()
}

func (p *Pipeline) DeliveryFailure() {
	p.deliveryFailures.Inc()
}
