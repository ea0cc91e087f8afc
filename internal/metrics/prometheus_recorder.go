package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	runsStarted      prom.Counter
	runsFinished     *prom.CounterVec
	runDuration      prom.Histogram
	pagesRendered    prom.Counter
	pagesTranscribed prom.Counter
	pagesExcluded    prom.Counter
	stageDuration    *prom.HistogramVec
}

// NewPrometheusRecorder creates a recorder registered on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		runsStarted: factory.NewCounter(prom.CounterOpts{
			Name: "pdf2muse_runs_started_total",
			Help: "Conversion runs started.",
		}),
		runsFinished: factory.NewCounterVec(prom.CounterOpts{
			Name: "pdf2muse_runs_finished_total",
			Help: "Conversion runs finished, by status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prom.HistogramOpts{
			Name:    "pdf2muse_run_duration_seconds",
			Help:    "Total conversion run duration.",
			Buckets: prom.ExponentialBuckets(1, 2, 12),
		}),
		pagesRendered: factory.NewCounter(prom.CounterOpts{
			Name: "pdf2muse_pages_rendered_total",
			Help: "PDF pages rendered to images.",
		}),
		pagesTranscribed: factory.NewCounter(prom.CounterOpts{
			Name: "pdf2muse_pages_transcribed_total",
			Help: "Pages successfully transcribed.",
		}),
		pagesExcluded: factory.NewCounter(prom.CounterOpts{
			Name: "pdf2muse_pages_excluded_total",
			Help: "Pages excluded after transcription or parse failure.",
		}),
		stageDuration: factory.NewHistogramVec(prom.HistogramOpts{
			Name:    "pdf2muse_stage_duration_seconds",
			Help:    "Pipeline stage duration.",
			Buckets: prom.ExponentialBuckets(0.1, 2, 14),
		}, []string{"stage"}),
	}
}

func (r *PrometheusRecorder) RunStarted() { r.runsStarted.Inc() }

func (r *PrometheusRecorder) RunFinished(status string, d time.Duration) {
	r.runsFinished.WithLabelValues(status).Inc()
	r.runDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) PagesRendered(n int) { r.pagesRendered.Add(float64(n)) }
func (r *PrometheusRecorder) PageTranscribed()    { r.pagesTranscribed.Inc() }
func (r *PrometheusRecorder) PageExcluded()       { r.pagesExcluded.Inc() }

func (r *PrometheusRecorder) StageDuration(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler returns an http.Handler serving Prometheus metrics for reg.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
