package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/co2scale/internal/calibration"
	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/history"
	"codeberg.org/mutker/co2scale/internal/observability"
	"codeberg.org/mutker/co2scale/internal/scale"
	"codeberg.org/mutker/co2scale/internal/scale/scaletest"
	"codeberg.org/mutker/co2scale/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = 10 * time.Millisecond

type recordingHistory struct {
	mu      sync.Mutex
	samples []*history.Sample
}

func (h *recordingHistory) Record(_ context.Context, s *history.Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, s)
	return nil
}

func (h *recordingHistory) Usage(context.Context, int) ([]history.DailyUsage, error) {
	return nil, nil
}

func (h *recordingHistory) Close() error { return nil }

func (h *recordingHistory) Enabled() bool { return true }

func (h *recordingHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New("first-co2-bottle-scale")
	require.NoError(t, err)
	return st
}

func steadyScale(load, contained float64) *scaletest.Fake {
	return &scaletest.Fake{
		ReadLoadFunc: func(context.Context) (scale.Reading, error) {
			return scale.Reading{ID: "r", Load: load, ContainedCo2: contained, SampledAt: time.Now().UTC()}, nil
		},
	}
}

func TestSampleDerivation(t *testing.T) {
	st := newStore(t)
	m := New(ViewHome, steadyScale(-120, 5000), st, WithInterval(interval), WithImmediate(true))

	ch, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.Start())
	defer m.Stop()

	select {
	case s := <-ch:
		assert.Equal(t, ViewHome, s.View)
		assert.Equal(t, 120.0, s.State.UsedMass)
		assert.Equal(t, 4880.0, s.State.RemainingMass)
		assert.Equal(t, 5000.0, s.Baseline)
	case <-time.After(time.Second):
		t.Fatal("no sample received")
	}

	assert.Equal(t, 5000.0, st.ConfirmedBaseline(), "polled baseline is reconciled into the store")

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 4880.0, latest.State.RemainingMass)
}

func TestPendingEditDoesNotAffectRemainingMass(t *testing.T) {
	st := newStore(t)
	st.SetPendingBaseline("100")

	m := New(ViewSettings, steadyScale(50, 1000), st, WithInterval(interval))
	require.NoError(t, m.Start())
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, ok := m.Latest()
		return ok && s.State.RemainingMass == 950
	}, time.Second, time.Millisecond)

	pending, ok := st.PendingBaseline()
	assert.True(t, ok)
	assert.Equal(t, "100", pending)
}

func TestLatestBeforeFirstSample(t *testing.T) {
	m := New(ViewHome, &scaletest.Fake{}, newStore(t))
	_, ok := m.Latest()
	assert.False(t, ok)
}

func TestFailuresAreCountedAndLoopContinues(t *testing.T) {
	var n atomic.Int64
	fake := &scaletest.Fake{
		ReadLoadFunc: func(context.Context) (scale.Reading, error) {
			if n.Add(1) <= 3 {
				return scale.Reading{}, errors.New().New(errors.ErrRequestFailed)
			}
			return scale.Reading{Load: 1, ContainedCo2: 10}, nil
		},
	}

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	m := New(ViewHome, fake, newStore(t), WithInterval(interval), WithMetrics(collector))
	require.NoError(t, m.Start())
	defer m.Stop()

	require.Eventually(t, func() bool {
		_, ok := m.Latest()
		return ok
	}, time.Second, time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.PollFailures.WithLabelValues(ViewHome, "transport")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(collector.Samples.WithLabelValues(ViewHome)), 1.0)
}

func TestHistoryRecording(t *testing.T) {
	h := &recordingHistory{}
	m := New(ViewHome, steadyScale(10, 100), newStore(t), WithInterval(interval), WithHistory(h))
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool { return h.len() >= 2 }, time.Second, time.Millisecond)
	m.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, "r", h.samples[0].ID)
	assert.Equal(t, 10.0, h.samples[0].UsedMass)
	assert.Equal(t, 90.0, h.samples[0].RemainingMass)
}

func TestStopClosesSubscriptions(t *testing.T) {
	m := New(ViewHome, steadyScale(1, 1), newStore(t), WithInterval(interval))
	ch, cancel := m.Subscribe()

	require.NoError(t, m.Start())
	m.Stop()
	m.Stop()
	cancel()

	for range ch {
	}

	late, _ := m.Subscribe()
	_, open := <-late
	assert.False(t, open)
}

func TestUnsubscribe(t *testing.T) {
	m := New(ViewHome, steadyScale(1, 1), newStore(t), WithInterval(interval))
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestTwoMonitorsShareStore(t *testing.T) {
	st := newStore(t)
	fake := steadyScale(-20, 700)

	home := New(ViewHome, fake, st, WithInterval(interval))
	settings := New(ViewSettings, fake, st, WithInterval(2*interval))

	require.NoError(t, home.Start())
	defer home.Stop()
	require.NoError(t, settings.Start())
	defer settings.Stop()

	require.Eventually(t, func() bool {
		h, ok1 := home.Latest()
		s, ok2 := settings.Latest()
		return ok1 && ok2 && h.State == s.State
	}, time.Second, time.Millisecond)
}

func TestInFlightReadDoesNotUndoSavedBaseline(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.CommitBaseline(5000))

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &scaletest.Fake{
		ReadLoadFunc: func(context.Context) (scale.Reading, error) {
			once.Do(func() { close(started) })
			<-release
			return scale.Reading{ID: "issued-before-save", Load: -100, ContainedCo2: 5000}, nil
		},
	}

	m := New(ViewHome, fake, st, WithInterval(time.Hour), WithImmediate(true))
	ch, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.Start())
	defer m.Stop()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("read not issued")
	}

	st.SetPendingBaseline("8000")
	_, err := calibration.New(fake, st).SaveSettings(context.Background())
	require.NoError(t, err)
	close(release)

	select {
	case s := <-ch:
		assert.Equal(t, 8000.0, s.Baseline)
		assert.Equal(t, 7900.0, s.State.RemainingMass)
	case <-time.After(time.Second):
		t.Fatal("no sample received")
	}
	assert.Equal(t, 8000.0, st.ConfirmedBaseline())
}

func TestStartTwice(t *testing.T) {
	m := New(ViewHome, &scaletest.Fake{}, newStore(t), WithInterval(interval))
	require.NoError(t, m.Start())
	defer m.Stop()

	assert.Error(t, m.Start())
}
