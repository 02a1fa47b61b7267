package observer

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dcshock/respipe/pipeline"
)

// MetricsObserver records Prometheus metrics:
//
//	respipe_pipeline_runs_total{pipeline,outcome}
//	respipe_pipeline_in_flight{pipeline}
//	respipe_handler_duration_seconds{pipeline,handler,outcome}
type MetricsObserver struct {
	runs     *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewMetricsObserver creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &MetricsObserver{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "respipe",
			Name:      "pipeline_runs_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"pipeline", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "respipe",
			Name:      "pipeline_in_flight",
			Help:      "Pipeline runs currently executing.",
		}, []string{"pipeline"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "respipe",
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"pipeline", "handler", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.inFlight, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsObserver) BeforePipeline(_ context.Context, run pipeline.Run, _ pipeline.Bag) error {
	m.inFlight.WithLabelValues(run.Pipeline).Inc()
	return nil
}

func (m *MetricsObserver) AfterPipeline(_ context.Context, run pipeline.Run, _ pipeline.Bag, err error) error {
	m.inFlight.WithLabelValues(run.Pipeline).Dec()
	m.runs.WithLabelValues(run.Pipeline, Outcome(err)).Inc()
	return nil
}

func (m *MetricsObserver) BeforeHandler(context.Context, pipeline.Run, int, pipeline.Bag) error {
	return nil
}

func (m *MetricsObserver) AfterHandler(_ context.Context, run pipeline.Run, index int, _ pipeline.Bag, handlerErr error, d time.Duration) error {
	m.duration.WithLabelValues(run.Pipeline, strconv.Itoa(index), Outcome(handlerErr)).Observe(d.Seconds())
	return nil
}
