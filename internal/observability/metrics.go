// Package observability exposes Prometheus metrics for scale traffic and
// derived measurements, and sets up OpenTelemetry tracing.
package observability

import (
	"net/http"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/measurement"
	"codeberg.org/mutker/co2scale/internal/scale"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "co2scale"

// Collector bundles the application's metrics. A nil *Collector is valid
// and records nothing, which is how disabled metrics are represented.
type Collector struct {
	gatherer prometheus.Gatherer

	Requests         *prometheus.CounterVec
	RequestDurations *prometheus.HistogramVec
	Samples          *prometheus.CounterVec
	PollFailures     *prometheus.CounterVec

	Load              prometheus.Gauge
	UsedMass          prometheus.Gauge
	RemainingMass     prometheus.Gauge
	ConfirmedBaseline prometheus.Gauge
}

var _ scale.Recorder = (*Collector)(nil)

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against one registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scale_requests_total",
		Help:      "Requests sent to the scale, labeled by operation and outcome.",
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scale_request_duration_seconds",
		Help:      "Scale request latency in seconds.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}

	samples, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Readings delivered to a view.",
	}, []string{"view"}))
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_failures_total",
		Help:      "Failed periodic reads, by view and error kind.",
	}, []string{"view", "kind"}))
	if err != nil {
		return nil, err
	}

	load, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "load_grams",
		Help:      "Last load reported by the scale, signed.",
	}))
	if err != nil {
		return nil, err
	}
	used, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "used_mass_grams",
		Help:      "CO2 used since the bottle was weighed in.",
	}))
	if err != nil {
		return nil, err
	}
	remaining, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "remaining_mass_grams",
		Help:      "Estimated CO2 left in the bottle. May be negative.",
	}))
	if err != nil {
		return nil, err
	}
	baseline, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "confirmed_baseline_grams",
		Help:      "Contained CO2 baseline the remaining mass is computed from.",
	}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Requests:          requests,
		RequestDurations:  durations,
		Samples:           samples,
		PollFailures:      failures,
		Load:              load,
		UsedMass:          used,
		RemainingMass:     remaining,
		ConfirmedBaseline: baseline,
	}, nil
}

// ObserveRequest satisfies scale.Recorder.
func (c *Collector) ObserveRequest(op scale.Operation, outcome scale.Outcome, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(string(op), string(outcome)).Inc()
	c.RequestDurations.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// ObserveSample updates the measurement gauges from one derived sample.
func (c *Collector) ObserveSample(view string, r scale.Reading, st measurement.State, baseline float64) {
	if c == nil {
		return
	}
	c.Samples.WithLabelValues(view).Inc()
	c.Load.Set(r.Load)
	c.UsedMass.Set(st.UsedMass)
	c.RemainingMass.Set(st.RemainingMass)
	c.ConfirmedBaseline.Set(baseline)
}

// ObservePollFailure counts a failed periodic read.
func (c *Collector) ObservePollFailure(view string, err error) {
	if c == nil {
		return
	}
	c.PollFailures.WithLabelValues(view, errors.KindOfErr(err).String()).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, errors.New().Wrap(ErrRegisterCollector, err)
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, errors.New().Wrap(ErrRegisterCollector, err)
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
		}
		return nil, errors.New().Wrap(ErrRegisterCollector, err)
	}
	return gauge, nil
}
