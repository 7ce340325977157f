package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"codeberg.org/mutker/co2scale/internal/api"
	"codeberg.org/mutker/co2scale/internal/calibration"
	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/history"
	"codeberg.org/mutker/co2scale/internal/measurement"
	"codeberg.org/mutker/co2scale/internal/monitor"
	"codeberg.org/mutker/co2scale/internal/pid"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the scale and log the remaining CO2",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().String("view", monitor.ViewHome, "View to poll as: home or settings")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	view, _ := cmd.Flags().GetString("view")
	interval := a.cfg.HomeInterval
	switch view {
	case monitor.ViewHome:
	case monitor.ViewSettings:
		interval = a.cfg.SettingsInterval
	default:
		return errors.New().WithData(errors.ErrInvalidArgument, "view="+view)
	}

	m := monitor.New(view, a.client, a.store,
		monitor.WithInterval(interval),
		monitor.WithPolicy(a.cfg.Policy()),
		monitor.WithImmediate(true),
		monitor.WithMetrics(a.metrics),
		monitor.WithLogger(a.log.With("monitor")),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go handleSignals(cancel)

	samples, unsubscribe := m.Subscribe()
	defer unsubscribe()

	if err := m.Start(); err != nil {
		return err
	}
	defer m.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			a.log.Info().
				Str("load", measurement.FormatGrams(s.Reading.Load)).
				Str("used", measurement.FormatGrams(s.State.UsedMass)).
				Str("remaining", measurement.FormatGrams(s.State.RemainingMass)).
				Str("baseline", measurement.FormatGrams(s.Baseline)).
				Msg("")
		}
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the scale and serve the local dashboard API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	pidPath := pid.Path(a.cfg.PIDFile)
	if err := pid.Write(pidPath); err != nil {
		a.log.Error().Err(err).Str("path", pidPath).Msg("Failed to write PID file")
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			a.log.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	hist, err := history.NewService(history.Config{
		DSN:          a.cfg.History.DSN,
		BatchSize:    a.cfg.History.BatchSize,
		BatchTimeout: a.cfg.History.BatchTimeout,
		MaxBuffered:  a.cfg.History.MaxBuffered,
		Enabled:      a.cfg.History.Enabled,
	}, a.log.With("history"))
	if err != nil {
		return err
	}
	defer func() {
		if err := hist.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close history")
		}
	}()

	home := monitor.New(monitor.ViewHome, a.client, a.store,
		monitor.WithInterval(a.cfg.HomeInterval),
		monitor.WithPolicy(a.cfg.Policy()),
		monitor.WithImmediate(true),
		monitor.WithHistory(hist),
		monitor.WithMetrics(a.metrics),
		monitor.WithLogger(a.log.With("monitor")),
	)

	opts := []api.Option{
		api.WithUsage(hist),
		api.WithLogger(a.log.With("api")),
	}
	if a.metrics != nil {
		opts = append(opts, api.WithMetrics(a.metrics.Handler()))
	}
	controller := calibration.New(a.client, a.store, calibration.WithLogger(a.log.With("calibration")))
	router := api.NewHandler(home, a.store, controller, opts...).InitRoutes()
	server := api.NewServer(a.cfg.Listen, router)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go handleSignals(cancel)

	if err := home.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("listen", a.cfg.Listen).Msg("Serving local API")
		errCh <- server.Run()
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			a.log.Error().Err(err).Msg("Local API failed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn().Err(serr).Msg("Local API shutdown failed")
	}

	// Closes /ws streams, which Shutdown does not wait for.
	home.Stop()
	a.log.Info().Msg("Exiting...")

	return err
}

type statusOutput struct {
	Address           string            `json:"address"`
	Load              float64           `json:"load"`
	ContainedCo2      float64           `json:"contained_co2"`
	State             measurement.State `json:"state"`
	ConfirmedBaseline float64           `json:"confirmed_baseline"`
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Read the scale once and print the remaining CO2",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := a.requestContext(cmd.Context())
	defer cancel()

	reading, err := a.client.ReadLoad(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to read scale")
		return err
	}

	a.store.ObserveRemoteBaseline(reading.ContainedCo2, reading.RequestedAt)
	baseline := a.store.ConfirmedBaseline()
	out := statusOutput{
		Address:           a.store.Address(),
		Load:              reading.Load,
		ContainedCo2:      reading.ContainedCo2,
		State:             measurement.Derive(reading, baseline),
		ConfirmedBaseline: baseline,
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s remaining (%s used of %s) at %s\n",
		measurement.FormatGrams(out.State.RemainingMass),
		measurement.FormatGrams(out.State.UsedMass),
		measurement.FormatGrams(baseline),
		out.Address)
	return nil
}

func newTareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tare",
		Short: "Zero the scale's load reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()

			controller := calibration.New(a.client, a.store, calibration.WithLogger(a.log.With("calibration")))
			conf, err := controller.Tare(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace("tared "+conf.Info))
			return nil
		},
	}
}

func newSetBaselineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-baseline GRAMS",
		Short: "Store the contained CO2 of a fresh bottle on the scale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()

			controller := calibration.New(a.client, a.store, calibration.WithLogger(a.log.With("calibration")))
			value, err := controller.SetBaseline(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "contained CO2 set to %s\n", measurement.FormatGrams(value))
			return nil
		},
	}
}
