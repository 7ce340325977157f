// Package history keeps a log of derived samples in SQLite and turns it into
// a daily usage data set.
package history

import (
	"context"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
)

const maxUsageDays = 366

type service struct {
	repo Repository
	now  func() time.Time
}

type noopService struct{}

// NewService returns a SQLite-backed service, or a no-op one when history is
// disabled.
func NewService(cfg Config, log logger.Logger) (Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op recorder")
		return &noopService{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	return newService(repo), nil
}

func newService(repo Repository) *service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *service) Record(ctx context.Context, sample *Sample) error {
	errFactory := errors.New()

	if sample == nil || sample.ID == "" {
		return errFactory.New(ErrInvalidSample)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(sample); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

// Usage returns one entry per UTC day with samples, covering today and the
// days-1 days before it.
func (s *service) Usage(ctx context.Context, days int) ([]DailyUsage, error) {
	if days <= 0 || days > maxUsageDays {
		return nil, errors.New().WithData(ErrInvalidDays, days)
	}

	return s.repo.Usage(ctx, usageSince(s.now(), days))
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*service) Enabled() bool {
	return true
}

func (*noopService) Record(context.Context, *Sample) error {
	return nil
}

func (*noopService) Usage(context.Context, int) ([]DailyUsage, error) {
	return []DailyUsage{}, nil
}

func (*noopService) Close() error {
	return nil
}

func (*noopService) Enabled() bool {
	return false
}

// usageSince returns midnight UTC of the first day in the window.
func usageSince(now time.Time, days int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
}
