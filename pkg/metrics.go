package dispenser

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispenser_events_processed_total",
		Help: "Events processed by the simulation engine across all runs",
	})
	chunksDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispenser_chunks_dispatched_total",
		Help: "Event chunks dispatched to the simulation engine",
	})
	constantsLoadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispenser_constants_loads_total",
		Help: "Digitization constants and translation table reloads triggered by a run number change",
	})
	samplingClampedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispenser_sampling_clamped_total",
		Help: "Weighted draws that exceeded the cumulative weight and were assigned to the last run",
	})
	framesFlushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispenser_frames_flushed_total",
		Help: "Frames flushed to stream outputs",
	})
	payloadsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispenser_payloads_dropped_total",
		Help: "Frame payloads whose frame was already flushed",
	})
	framesBuffered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispenser_frames_buffered",
		Help: "Frames currently open in the frame buffer",
	})
	publishFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispenser_publish_failures_total",
		Help: "Failed publish steps reported by streamers",
	}, []string{"streamer"})
)

// RegisterMetrics adds the dispenser collectors to reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{eventsProcessedTotal, chunksDispatchedTotal, constantsLoadsTotal,
		samplingClampedTotal, framesFlushedTotal, payloadsDroppedTotal, framesBuffered, publishFailuresTotal}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ServeMetrics exposes the metrics gathered by reg on addr under /metrics.
// It blocks like http.ListenAndServe.
func ServeMetrics(addr string, reg prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
