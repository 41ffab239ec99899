package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the voice loop.
type Metrics struct {
	LoopRunning        prometheus.Gauge
	SessionActive      prometheus.Gauge
	SpeechQueueDepth   prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	Utterances         *prometheus.CounterVec
	PlaybackEvents     *prometheus.CounterVec
	Injections         *prometheus.CounterVec
	ServiceErrors      *prometheus.CounterVec
	LoopErrors         prometheus.Counter
	TranscribeLatency  prometheus.Histogram
	FirstAudioLatency  prometheus.Histogram
	EventSubscriptions prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers instruments on reg. Pass nil to use the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)
	return &Metrics{
		LoopRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_running",
			Help:      "1 while the turn-taking loop owns the microphone.",
		}),
		SessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while an activation window is open.",
		}),
		SpeechQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speech_queue_depth",
			Help:      "Pending text-to-speech utterances.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Activation window transitions by reason.",
		}, []string{"event"}),
		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Completed utterances by outcome.",
		}, []string{"outcome"}),
		PlaybackEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_events_total",
			Help:      "Text-to-speech playback outcomes.",
		}, []string{"event"}),
		Injections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injections_total",
			Help:      "Text injection attempts by result.",
		}, []string{"result"}),
		ServiceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_errors_total",
			Help:      "Speech service errors by service and kind.",
		}, []string{"service", "kind"}),
		LoopErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_errors_total",
			Help:      "Recovered loop iteration failures.",
		}),
		TranscribeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcribe_latency_ms",
			Help:      "Transcription round trip in milliseconds.",
			Buckets:   []float64{100, 250, 500, 750, 1000, 1500, 2500, 5000, 10000},
		}),
		FirstAudioLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from playback start to first synthesized audio in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}),
		EventSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Connected event stream websocket clients.",
		}),
		gatherer: gatherer,
	}
}

func (m *Metrics) ObserveTranscribeLatency(d time.Duration) {
	m.TranscribeLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

// Handler exposes the registry these metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
