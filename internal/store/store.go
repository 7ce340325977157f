// Package store holds the scale address and contained CO2 baseline shared by
// every view, and separates confirmed values from unsaved operator edits.
package store

import (
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/scale"
)

type Store struct {
	mu        sync.RWMutex
	version   uint64
	address   string
	confirmed float64
	pendingB  *string
	pendingA  *string

	// committedAt is when the confirmed baseline was last set by the
	// operator rather than observed.
	committedAt time.Time

	observers map[int]Observer
	nextID    int
}

// New creates a store for the scale at address with a confirmed baseline
// of zero. The first polled reading replaces it.
func New(address string) (*Store, error) {
	addr, err := scale.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	return &Store{
		address:   addr,
		observers: make(map[int]Observer),
	}, nil
}

// Subscribe registers o and returns a function that removes it.
func (s *Store) Subscribe(o Observer) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// SetAddress validates and normalizes addr before storing it.
func (s *Store) SetAddress(addr string) error {
	normalized, err := scale.NormalizeAddress(addr)
	if err != nil {
		return err
	}

	s.update(func() bool {
		if s.address == normalized {
			return false
		}
		s.address = normalized
		return true
	})

	return nil
}

// ConfirmedBaseline is the last baseline the device acknowledged or
// reported.
func (s *Store) ConfirmedBaseline() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmed
}

// PendingBaseline returns the unsaved baseline edit, if any.
func (s *Store) PendingBaseline() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deref(s.pendingB)
}

// SetPendingBaseline records raw operator input. It is not validated until
// it is confirmed or saved.
func (s *Store) SetPendingBaseline(raw string) {
	s.update(func() bool {
		if s.pendingB != nil && *s.pendingB == raw {
			return false
		}
		s.pendingB = &raw
		return true
	})
}

// ConfirmPendingBaseline moves a numeric pending edit into the confirmed
// value. Empty or non-numeric input fails and leaves both values as they
// were.
func (s *Store) ConfirmPendingBaseline() (float64, error) {
	var (
		value float64
		err   error
	)

	s.update(func() bool {
		raw, _ := deref(s.pendingB)
		value, err = scale.ParseBaseline(raw)
		if err != nil {
			return false
		}
		s.confirmed = value
		s.pendingB = nil
		s.committedAt = time.Now()
		return true
	})

	return value, err
}

func (s *Store) DiscardPendingBaseline() {
	s.update(func() bool {
		if s.pendingB == nil {
			return false
		}
		s.pendingB = nil
		return true
	})
}

// CommitBaseline stores a value the device acknowledged and clears the
// pending edit.
func (s *Store) CommitBaseline(value float64) error {
	if err := scale.CheckFinite(value); err != nil {
		return err
	}

	s.update(func() bool {
		s.committedAt = time.Now()
		if s.confirmed == value && s.pendingB == nil {
			return false
		}
		s.confirmed = value
		s.pendingB = nil
		return true
	})

	return nil
}

// ObserveRemoteBaseline reconciles the confirmed baseline with the value a
// reading requested at requestedAt reported. Readings requested before the
// last commit carry the old value and are ignored. Pending edits are left
// alone.
func (s *Store) ObserveRemoteBaseline(value float64, requestedAt time.Time) {
	if scale.CheckFinite(value) != nil {
		return
	}

	s.update(func() bool {
		if requestedAt.Before(s.committedAt) || s.confirmed == value {
			return false
		}
		s.confirmed = value
		return true
	})
}

// PendingAddress returns the unsaved address edit, if any.
func (s *Store) PendingAddress() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deref(s.pendingA)
}

func (s *Store) SetPendingAddress(raw string) {
	s.update(func() bool {
		if s.pendingA != nil && *s.pendingA == raw {
			return false
		}
		s.pendingA = &raw
		return true
	})
}

// CommitPendingAddress makes the pending address current. An invalid edit
// stays pending so the operator can correct it.
func (s *Store) CommitPendingAddress() (string, error) {
	var (
		addr string
		err  error
	)

	s.update(func() bool {
		raw, ok := deref(s.pendingA)
		if !ok || strings.TrimSpace(raw) == "" {
			err = errors.New().WithMessage(errors.ErrEmptyInput, "no pending address")
			return false
		}

		addr, err = scale.NormalizeAddress(raw)
		if err != nil {
			return false
		}

		s.address = addr
		s.pendingA = nil
		return true
	})

	return addr, err
}

func (s *Store) DiscardPendingAddress() {
	s.update(func() bool {
		if s.pendingA == nil {
			return false
		}
		s.pendingA = nil
		return true
	})
}

// DiscardPending drops every unsaved edit.
func (s *Store) DiscardPending() {
	s.update(func() bool {
		if s.pendingA == nil && s.pendingB == nil {
			return false
		}
		s.pendingA = nil
		s.pendingB = nil
		return true
	})
}

// update applies fn under the write lock and, if fn reports a change,
// notifies observers once the lock is released.
func (s *Store) update(fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}

	s.version++
	snap := s.snapshotLocked()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.StoreChanged(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:           s.version,
		Address:           s.address,
		ConfirmedBaseline: s.confirmed,
		PendingBaseline:   clone(s.pendingB),
		PendingAddress:    clone(s.pendingA),
	}
}

func deref(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

func clone(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
