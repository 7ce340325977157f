// Package monitor drives one live view: it polls the scale, reconciles the
// confirmed baseline, derives the displayed quantities and fans samples out
// to subscribers.
package monitor

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/co2scale/internal/history"
	"codeberg.org/mutker/co2scale/internal/logger"
	"codeberg.org/mutker/co2scale/internal/measurement"
	"codeberg.org/mutker/co2scale/internal/observability"
	"codeberg.org/mutker/co2scale/internal/poller"
	"codeberg.org/mutker/co2scale/internal/scale"
	"codeberg.org/mutker/co2scale/internal/store"
)

// View names used by the application.
const (
	ViewHome     = "home"
	ViewSettings = "settings"
)

const subscriberBuffer = 8

// Sample is what a view displays for one reading.
type Sample struct {
	View     string            `json:"view"`
	Reading  scale.Reading     `json:"reading"`
	State    measurement.State `json:"state"`
	Baseline float64           `json:"baseline"`
}

type Monitor struct {
	view      string
	interval  time.Duration
	session   *poller.Session
	store     *store.Store
	history   history.Service
	metrics   *observability.Collector
	logger    logger.Logger
	policy    poller.Policy
	immediate bool

	mu      sync.RWMutex
	latest  *Sample
	subs    map[int]chan Sample
	nextID  int
	stopped bool
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

func WithPolicy(p poller.Policy) Option {
	return func(m *Monitor) {
		m.policy = p
	}
}

// WithImmediate reads once at Start instead of waiting one interval.
func WithImmediate(immediate bool) Option {
	return func(m *Monitor) {
		m.immediate = immediate
	}
}

// WithHistory records every sample to h.
func WithHistory(h history.Service) Option {
	return func(m *Monitor) {
		m.history = h
	}
}

func WithMetrics(c *observability.Collector) Option {
	return func(m *Monitor) {
		m.metrics = c
	}
}

func WithLogger(log logger.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.logger = log
		}
	}
}

// New creates a monitor for view. It does nothing until Start.
func New(view string, r poller.Reader, st *store.Store, opts ...Option) *Monitor {
	m := &Monitor{
		view:     view,
		interval: time.Second,
		store:    st,
		logger:   logger.Nop(),
		policy:   poller.LastResolvedWins,
		subs:     make(map[int]chan Sample),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.session = poller.New(stampedReader{r},
		poller.WithPolicy(m.policy),
		poller.WithImmediate(m.immediate),
		poller.WithLogger(m.logger),
		poller.WithErrorHandler(m.handleError),
	)

	return m
}

// View returns the name the monitor was created with.
func (m *Monitor) View() string {
	return m.view
}

func (m *Monitor) Start() error {
	if err := m.session.Start(m.interval, m.handleSample); err != nil {
		return err
	}

	m.logger.Info().
		Str("view", m.view).
		Dur("interval", m.interval).
		Msg("Monitor started")

	return nil
}

// Stop ends polling and closes every subscription. No sample is published
// after Stop returns.
func (m *Monitor) Stop() {
	m.session.Stop()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.mu.Unlock()

	m.logger.Info().Str("view", m.view).Msg("Monitor stopped")
}

// Latest returns the most recently resolved sample.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.latest == nil {
		return Sample{}, false
	}
	return *m.latest, true
}

// Subscribe returns a channel receiving every new sample. A subscriber that
// falls behind misses samples rather than blocking the monitor. The channel
// is closed by cancel or Stop.
func (m *Monitor) Subscribe() (<-chan Sample, func()) {
	ch := make(chan Sample, subscriberBuffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			close(c)
			delete(m.subs, id)
		}
	}
}

// stampedReader records when a read was issued if the reader did not.
type stampedReader struct {
	poller.Reader
}

func (s stampedReader) ReadLoad(ctx context.Context) (scale.Reading, error) {
	requested := time.Now()
	r, err := s.Reader.ReadLoad(ctx)
	if err == nil && r.RequestedAt.IsZero() {
		r.RequestedAt = requested
	}
	return r, err
}

func (m *Monitor) handleSample(r scale.Reading) {
	m.store.ObserveRemoteBaseline(r.ContainedCo2, r.RequestedAt)
	baseline := m.store.ConfirmedBaseline()

	sample := Sample{
		View:     m.view,
		Reading:  r,
		State:    measurement.Derive(r, baseline),
		Baseline: baseline,
	}

	m.metrics.ObserveSample(m.view, r, sample.State, baseline)

	if m.history != nil {
		if err := m.history.Record(context.Background(), &history.Sample{
			ID:            r.ID,
			SampledAt:     r.SampledAt,
			Load:          r.Load,
			ContainedCo2:  r.ContainedCo2,
			UsedMass:      sample.State.UsedMass,
			RemainingMass: sample.State.RemainingMass,
		}); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to record sample")
		}
	}

	m.logger.Debug().
		Str("id", r.ID).
		Str("used", measurement.FormatGrams(sample.State.UsedMass)).
		Str("remaining", measurement.FormatGrams(sample.State.RemainingMass)).
		Msg("Sample")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest = &sample
	for _, ch := range m.subs {
		select {
		case ch <- sample:
		default:
		}
	}
}

func (m *Monitor) handleError(err error) {
	m.metrics.ObservePollFailure(m.view, err)
}
