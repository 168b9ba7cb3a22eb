package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry              *prometheus.Registry
	jobsTotal             *prometheus.CounterVec
	jobDuration           *prometheus.HistogramVec
	activeJobs            prometheus.Gauge
	piecesRenderedTotal   prometheus.Counter
	pixelsCompositedTotal prometheus.Counter
	computeTimeMSTotal    prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proofpress_worker_jobs_total",
			Help: "Total worker render jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proofpress_worker_job_duration_seconds",
			Help:    "Total render duration for each worker job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proofpress_worker_active_jobs",
			Help: "Current number of active render jobs in the worker.",
		}),
		piecesRenderedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proofpress_worker_pieces_rendered_total",
			Help: "Total partial pieces composited onto canvases by the worker.",
		}),
		pixelsCompositedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proofpress_usage_pixels_composited_total",
			Help: "Total canvas pixels composited across all successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proofpress_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful jobs.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.piecesRenderedTotal,
		m.pixelsCompositedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
