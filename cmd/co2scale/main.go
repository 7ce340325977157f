package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/co2scale/internal/config"
	"codeberg.org/mutker/co2scale/internal/logger"
	"codeberg.org/mutker/co2scale/internal/observability"
	"codeberg.org/mutker/co2scale/internal/scale"
	"codeberg.org/mutker/co2scale/internal/store"
	"github.com/spf13/cobra"
)

// oneShotTimeout bounds single requests when no request timeout is
// configured.
const oneShotTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "co2scale",
		Short:         "Monitor and calibrate a networked CO2 bottle scale",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newWatchCommand(),
		newServeCommand(),
		newStatusCommand(),
		newTareCommand(),
		newSetBaselineCommand(),
	)

	return root
}

// app holds the components every command shares.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	client  *scale.HTTPClient
	store   *store.Store
	metrics *observability.Collector

	shutdownTracing observability.ShutdownFunc
	unsubscribe     func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(config.WithFlags(cmd.Flags()))
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.Init(level, logger.IsService())
	log := logger.Component("co2scale")
	log.Debug().Msg("Config loaded")

	a := &app{cfg: cfg, log: log}

	a.shutdownTracing, err = observability.InitTracing(cmd.Context(), observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log.With("tracing"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracing")
		return nil, err
	}

	opts := []scale.Option{
		scale.WithTimeout(cfg.RequestTimeout),
		scale.WithOrigin(cfg.Origin),
		scale.WithLogger(log.With("scale")),
	}
	if cfg.Metrics.Enabled {
		a.metrics, err = observability.NewCollector(nil)
		if err != nil {
			a.close()
			return nil, err
		}
		opts = append(opts, scale.WithRecorder(a.metrics))
	}

	a.client, err = scale.NewHTTPClient(cfg.Address, opts...)
	if err != nil {
		a.close()
		return nil, err
	}

	a.store, err = store.New(cfg.Address)
	if err != nil {
		a.close()
		return nil, err
	}

	// A saved address takes effect for the next request.
	a.unsubscribe = a.store.Subscribe(store.ObserverFunc(func(s store.Snapshot) {
		if err := a.client.SetAddress(s.Address); err != nil {
			log.Warn().Err(err).Str("address", s.Address).Msg("Ignoring invalid scale address")
		}
	}))

	return a, nil
}

func (a *app) close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	observability.ShutdownWithTimeout(context.Background(), a.shutdownTracing, a.log)
}

// requestContext bounds a one-shot command.
func (a *app) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.RequestTimeout > 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, oneShotTimeout)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
