package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of the speech I/O subsystem. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Recordings       *prometheus.CounterVec
	RecordedSeconds  prometheus.Histogram
	VADInconclusive  prometheus.Counter
	Transcriptions   *prometheus.CounterVec
	TranscribeTime   prometheus.Histogram
	SynthesisAttempt *prometheus.CounterVec
	Utterances       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Recordings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_recordings_total",
			Help: "Recordings by how they ended (fixed, silence, max_duration, fallback)",
		}, []string{"stop"}),
		RecordedSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "jarvis_recorded_seconds",
			Help:    "Length of captured audio",
			Buckets: []float64{0.5, 1, 2, 3, 5, 8, 10, 15, 30},
		}),
		VADInconclusive: f.NewCounter(prometheus.CounterOpts{
			Name: "jarvis_vad_inconclusive_total",
			Help: "Chunks the classifier failed on",
		}),
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_transcriptions_total",
			Help: "Transcriptions by result (ok, empty, error)",
		}, []string{"result"}),
		TranscribeTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "jarvis_transcription_seconds",
			Help:    "Wall time spent in the speech model",
			Buckets: prometheus.DefBuckets,
		}),
		SynthesisAttempt: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_synthesis_attempts_total",
			Help: "Backend attempts by backend and result (ok, error, unavailable)",
		}, []string{"backend", "result"}),
		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_utterances_total",
			Help: "Speak calls by the backend that played them, or none",
		}, []string{"backend"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Recorded(stop string, seconds float64) {
	if m == nil {
		return
	}
	m.Recordings.WithLabelValues(stop).Inc()
	m.RecordedSeconds.Observe(seconds)
}

func (m *Metrics) Inconclusive() {
	if m == nil {
		return
	}
	m.VADInconclusive.Inc()
}

func (m *Metrics) Transcribed(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(result).Inc()
	if seconds > 0 {
		m.TranscribeTime.Observe(seconds)
	}
}

func (m *Metrics) Attempt(backend, result string) {
	if m == nil {
		return
	}
	m.SynthesisAttempt.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) Spoken(backend string) {
	if m == nil {
		return
	}
	if backend == "" {
		backend = "none"
	}
	m.Utterances.WithLabelValues(backend).Inc()
}
