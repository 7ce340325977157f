package store

import (
	"math"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("first-co2-bottle-scale.fritz.box")
	require.NoError(t, err)
	return s
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) StoreChanged(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestNew(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, "http://first-co2-bottle-scale.fritz.box", s.Address())
	assert.Zero(t, s.ConfirmedBaseline())

	_, ok := s.PendingBaseline()
	assert.False(t, ok)

	_, err := New("  ")
	assert.True(t, errors.IsValidation(err))
}

func TestConfirmPendingBaseline(t *testing.T) {
	s := newStore(t)

	s.SetPendingBaseline("300")
	pending, ok := s.PendingBaseline()
	require.True(t, ok)
	assert.Equal(t, "300", pending)
	assert.Zero(t, s.ConfirmedBaseline(), "pending edits never affect the confirmed value")

	v, err := s.ConfirmPendingBaseline()
	require.NoError(t, err)
	assert.Equal(t, 300.0, v)
	assert.Equal(t, 300.0, s.ConfirmedBaseline())

	_, ok = s.PendingBaseline()
	assert.False(t, ok)
}

func TestConfirmPendingBaselineRejectsBadInput(t *testing.T) {
	for _, raw := range []string{"abc", "", "   ", "NaN", "1e400"} {
		t.Run(raw, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.CommitBaseline(5000))

			s.SetPendingBaseline(raw)
			_, err := s.ConfirmPendingBaseline()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Equal(t, 5000.0, s.ConfirmedBaseline())

			pending, ok := s.PendingBaseline()
			assert.True(t, ok, "bad input stays pending for correction")
			assert.Equal(t, raw, pending)
		})
	}
}

func TestConfirmWithoutPending(t *testing.T) {
	s := newStore(t)
	_, err := s.ConfirmPendingBaseline()
	assert.True(t, errors.IsValidation(err))
}

func TestDiscardPendingBaseline(t *testing.T) {
	s := newStore(t)
	rec := &recorder{}
	s.Subscribe(rec)

	s.DiscardPendingBaseline()
	assert.Zero(t, rec.count(), "nothing to discard")

	s.SetPendingBaseline("42")
	s.DiscardPendingBaseline()
	_, ok := s.PendingBaseline()
	assert.False(t, ok)
	assert.Equal(t, 2, rec.count())
}

func TestCommitBaseline(t *testing.T) {
	s := newStore(t)
	s.SetPendingBaseline("310")

	require.NoError(t, s.CommitBaseline(300))
	assert.Equal(t, 300.0, s.ConfirmedBaseline())
	_, ok := s.PendingBaseline()
	assert.False(t, ok)

	err := s.CommitBaseline(math.Inf(1))
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 300.0, s.ConfirmedBaseline())
}

func TestObserveRemoteBaselineKeepsPending(t *testing.T) {
	s := newStore(t)
	rec := &recorder{}
	s.Subscribe(rec)

	s.SetPendingBaseline("1000")
	s.ObserveRemoteBaseline(4800, time.Now())
	s.ObserveRemoteBaseline(4800, time.Now())
	s.ObserveRemoteBaseline(math.NaN(), time.Now())

	assert.Equal(t, 4800.0, s.ConfirmedBaseline())
	pending, ok := s.PendingBaseline()
	assert.True(t, ok)
	assert.Equal(t, "1000", pending)
	assert.Equal(t, 2, rec.count(), "repeated and non-finite values are not changes")
}

func TestAddress(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SetAddress(" 192.168.178.40/ "))
	assert.Equal(t, "http://192.168.178.40", s.Address())

	err := s.SetAddress("")
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, "http://192.168.178.40", s.Address())
}

func TestCommitPendingAddress(t *testing.T) {
	s := newStore(t)

	_, err := s.CommitPendingAddress()
	assert.True(t, errors.IsValidation(err))

	s.SetPendingAddress("ftp://scale")
	_, err = s.CommitPendingAddress()
	assert.True(t, errors.IsValidation(err))
	pending, ok := s.PendingAddress()
	assert.True(t, ok)
	assert.Equal(t, "ftp://scale", pending)

	s.SetPendingAddress("second-co2-bottle-scale")
	addr, err := s.CommitPendingAddress()
	require.NoError(t, err)
	assert.Equal(t, "http://second-co2-bottle-scale", addr)
	assert.Equal(t, addr, s.Address())
	_, ok = s.PendingAddress()
	assert.False(t, ok)
}

func TestDiscardPending(t *testing.T) {
	s := newStore(t)
	s.SetPendingAddress("x")
	s.SetPendingBaseline("1")

	s.DiscardPending()

	snap := s.Snapshot()
	assert.Nil(t, snap.PendingAddress)
	assert.Nil(t, snap.PendingBaseline)
}

func TestObservers(t *testing.T) {
	s := newStore(t)
	a, b := &recorder{}, &recorder{}
	cancelA := s.Subscribe(a)
	s.Subscribe(b)

	s.SetPendingBaseline("300")
	_, err := s.ConfirmPendingBaseline()
	require.NoError(t, err)

	require.Equal(t, 2, a.count())
	assert.Equal(t, 300.0, a.last().ConfirmedBaseline)
	assert.Nil(t, a.last().PendingBaseline)
	assert.Equal(t, uint64(2), a.last().Version)

	cancelA()
	cancelA()
	s.SetPendingBaseline("1")
	assert.Equal(t, 2, a.count())
	assert.Equal(t, 3, b.count())
}

func TestObserveRemoteBaselineIgnoresReadingsOlderThanCommit(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.CommitBaseline(5000))

	requested := time.Now()
	require.NoError(t, s.CommitBaseline(8000))

	s.ObserveRemoteBaseline(5000, requested)
	assert.Equal(t, 8000.0, s.ConfirmedBaseline(), "reading issued before the commit")

	s.ObserveRemoteBaseline(7900, time.Now())
	assert.Equal(t, 7900.0, s.ConfirmedBaseline(), "reading issued after the commit")

	s.SetPendingBaseline("300")
	requested = time.Now()
	_, err := s.ConfirmPendingBaseline()
	require.NoError(t, err)

	s.ObserveRemoteBaseline(7900, requested)
	assert.Equal(t, 300.0, s.ConfirmedBaseline())
}

func TestObserverMayCallStore(t *testing.T) {
	s := newStore(t)

	var seen float64
	s.Subscribe(ObserverFunc(func(Snapshot) {
		seen = s.ConfirmedBaseline()
	}))

	s.ObserveRemoteBaseline(123, time.Now())
	assert.Equal(t, 123.0, seen)
}

func TestSnapshotIsCopy(t *testing.T) {
	s := newStore(t)
	s.SetPendingBaseline("5")

	snap := s.Snapshot()
	*snap.PendingBaseline = "changed"

	pending, _ := s.PendingBaseline()
	assert.Equal(t, "5", pending)
}

func TestConcurrentAccess(t *testing.T) {
	s := newStore(t)
	s.Subscribe(ObserverFunc(func(Snapshot) {}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.ObserveRemoteBaseline(float64(i*1000+j), time.Now())
				s.SetPendingBaseline("300")
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	_, ok := s.PendingBaseline()
	assert.True(t, ok)
}
