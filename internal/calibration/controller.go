// Package calibration implements the operator actions that write to the
// scale: saving settings and taring.
package calibration

import (
	"context"
	"strings"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
	"codeberg.org/mutker/co2scale/internal/scale"
	"codeberg.org/mutker/co2scale/internal/store"
)

// SaveResult reports which parts of a save took effect. A save is not
// transactional: the address may be saved while the baseline fails, or the
// other way round.
type SaveResult struct {
	AddressSaved  bool    `json:"address_saved"`
	Address       string  `json:"address,omitempty"`
	BaselineSaved bool    `json:"baseline_saved"`
	Baseline      float64 `json:"baseline,omitempty"`
}

// Controller never retries; failed actions are returned as they are and the
// operator triggers them again.
type Controller struct {
	client scale.Client
	store  *store.Store
	logger logger.Logger
}

type Option func(*Controller)

func WithLogger(log logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.logger = log
		}
	}
}

func New(client scale.Client, st *store.Store, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		store:  st,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SaveSettings commits the pending address locally and sends the pending
// baseline to the scale. Each part commits as soon as it succeeds; the
// failures of both are joined. Blank edits count as no change and are
// dropped.
func (c *Controller) SaveSettings(ctx context.Context) (SaveResult, error) {
	var (
		result SaveResult
		errs   []error
	)

	if raw, ok := c.store.PendingAddress(); ok {
		if strings.TrimSpace(raw) == "" {
			c.store.DiscardPendingAddress()
		} else if addr, err := c.store.CommitPendingAddress(); err != nil {
			errs = append(errs, err)
		} else {
			result.AddressSaved = true
			result.Address = addr
			c.logger.Info().Str("address", addr).Msg("Scale address saved")
		}
	}

	if raw, ok := c.store.PendingBaseline(); ok {
		if strings.TrimSpace(raw) == "" {
			c.store.DiscardPendingBaseline()
		} else if value, err := c.saveBaseline(ctx, raw); err != nil {
			errs = append(errs, err)
		} else {
			result.BaselineSaved = true
			result.Baseline = value
		}
	}

	return result, errors.Join(errs...)
}

// SetBaseline records raw as the pending edit and saves it right away.
// Invalid input fails before any request is made and stays pending.
func (c *Controller) SetBaseline(ctx context.Context, raw string) (float64, error) {
	c.store.SetPendingBaseline(raw)
	return c.saveBaseline(ctx, raw)
}

// Tare zeroes the scale's load reference. The confirmed baseline is left
// alone; sequencing tare with a baseline save is up to the caller.
func (c *Controller) Tare(ctx context.Context) (scale.Confirmation, error) {
	conf, err := c.client.Tare(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Tare failed")
		return scale.Confirmation{}, err
	}

	c.logger.Info().Str("info", conf.Info).Msg("Scale tared")
	return conf, nil
}

func (c *Controller) saveBaseline(ctx context.Context, raw string) (float64, error) {
	value, err := scale.ParseBaseline(raw)
	if err != nil {
		return 0, err
	}

	conf, err := c.client.SetBaseline(ctx, value)
	if err != nil {
		c.logger.Warn().Err(err).Float64("requested", value).Msg("Failed to save contained CO2")
		return 0, err
	}

	if err := c.store.CommitBaseline(conf.Value); err != nil {
		return 0, err
	}

	if conf.Value != value {
		c.logger.Info().
			Float64("requested", value).
			Float64("acknowledged", conf.Value).
			Msg("Scale adjusted contained CO2")
	} else {
		c.logger.Info().Float64("baseline", conf.Value).Msg("Contained CO2 saved")
	}

	return conf.Value, nil
}
