// Package poller runs the periodic load reads behind every live view.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
	"codeberg.org/mutker/co2scale/internal/scale"
)

// Reader is the part of scale.Client a session needs.
type Reader interface {
	ReadLoad(ctx context.Context) (scale.Reading, error)
}

// State is the lifecycle position of a Session.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session repeatedly reads the scale and hands each successful reading to a
// callback. Failed reads are logged and the timer keeps running. A session
// is single use: once stopped it cannot be started again.
type Session struct {
	reader    Reader
	policy    Policy
	immediate bool
	onError   func(error)
	logger    logger.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	// delivery is held while a callback runs, so Stop can wait it out.
	delivery sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithPolicy sets the overlap policy. The default is LastResolvedWins.
func WithPolicy(p Policy) Option {
	return func(s *Session) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithImmediate issues the first read at Start instead of one interval later.
func WithImmediate(immediate bool) Option {
	return func(s *Session) {
		s.immediate = immediate
	}
}

// WithErrorHandler registers fn for failed reads. It runs under the same
// guarantee as the sample callback: never after Stop returns.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Session) {
		s.onError = fn
	}
}

// WithLogger sets the logger used for read failures.
func WithLogger(log logger.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.logger = log
		}
	}
}

// New creates an idle session reading from r.
func New(r Reader, opts ...Option) *Session {
	s := &Session{
		reader: r,
		policy: LastResolvedWins,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State reports where the session is in its lifecycle.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Policy returns the overlap policy in effect.
func (s *Session) Policy() Policy {
	return s.policy
}

// Start begins reading every interval. onSample is called once per
// successful read and must not call Stop.
func (s *Session) Start(interval time.Duration, onSample func(scale.Reading)) error {
	errFactory := errors.New()

	if interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, interval.String())
	}
	if onSample == nil {
		return errFactory.WithMessage(errors.ErrInvalidArgument, "sample callback is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return errFactory.WithData(errors.ErrInvalidOperation, "session is "+s.state.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.state = Running
	s.cancel = cancel
	s.done = make(chan struct{})

	r := &run{
		session:  s,
		ctx:      ctx,
		gen:      s.gen,
		onSample: onSample,
	}
	go r.loop(interval, s.done)

	s.logger.Debug().
		Dur("interval", interval).
		Str("policy", string(s.policy)).
		Msg("Polling started")

	return nil
}

// Stop ends the session. In-flight reads are cancelled, and once Stop
// returns no callback will run again. Calling Stop more than once, or on a
// session that never started, is safe.
func (s *Session) Stop() {
	s.mu.Lock()
	switch s.state {
	case Stopped:
		s.mu.Unlock()
		return
	case Idle:
		s.state = Stopped
		s.mu.Unlock()
		return
	}

	s.state = Stopped
	s.gen++
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done

	// Wait for a delivery that passed the generation check before the bump.
	s.delivery.Lock()
	s.delivery.Unlock() //nolint:staticcheck // empty critical section is the barrier

	s.logger.Debug().Msg("Polling stopped")
}

// live reports whether results from generation gen may still be delivered.
// Callers hold s.delivery.
func (s *Session) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running && s.gen == gen
}

// run is the state of one Start call.
type run struct {
	session  *Session
	ctx      context.Context
	gen      uint64
	onSample func(scale.Reading)

	busy       atomic.Bool
	cancelPrev context.CancelFunc
}

func (r *run) loop(interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if r.session.immediate {
		r.tick()
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *run) tick() {
	s := r.session
	ctx := r.ctx

	switch s.policy {
	case Coalesce:
		if !r.busy.CompareAndSwap(false, true) {
			s.logger.Debug().Msg("Read still in flight, skipping tick")
			return
		}
	case CancelStale:
		if r.cancelPrev != nil {
			r.cancelPrev()
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		r.cancelPrev = cancel
	}

	go r.read(ctx)
}

func (r *run) read(ctx context.Context) {
	s := r.session

	reading, err := s.reader.ReadLoad(ctx)

	if s.policy == Coalesce {
		r.busy.Store(false)
	}

	s.delivery.Lock()
	defer s.delivery.Unlock()

	if !s.live(r.gen) {
		return
	}

	if err != nil {
		if ctx.Err() != nil && r.ctx.Err() == nil {
			s.logger.Debug().Msg("Stale read cancelled")
			return
		}

		s.logger.Warn().Err(err).Msg("Failed to read load")
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	r.onSample(reading)
}
