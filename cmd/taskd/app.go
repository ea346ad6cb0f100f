package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/approval"
	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/extraction"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/secrets"
	"github.com/fyrsmithlabs/taskd/internal/store"
	"github.com/fyrsmithlabs/taskd/internal/telemetry"
)

const (
	extractionScope = "github.com/fyrsmithlabs/taskd/internal/extraction"
	providerScope   = "github.com/fyrsmithlabs/taskd/internal/provider"
	httpScope       = "github.com/fyrsmithlabs/taskd/internal/http"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     store.Store
	events    events.Publisher
	queue     *approval.Queue
	orch      *extraction.Orchestrator
}

// loadConfig reads the config named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newApp initializes dependencies in order:
//  1. Logger and telemetry
//  2. Task store and event publisher
//  3. Approval queue, secret scrubber and provider client
//  4. Extraction orchestrator
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := initLogger(cfg, logOut)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	a.telemetry, err = telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version), logger.Underlying())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a.store, err = store.Open(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a.events = events.NopPublisher{}
	if cfg.Events.Enabled {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.events = pub
		logger.Info(ctx, "Connected to NATS", zap.String("url", cfg.Events.NATSURL))
	}

	a.queue, err = approval.New(a.store, approval.Config{CacheTTL: cfg.Queue.CacheTTL.Duration()}, logger,
		approval.WithPublisher(a.events))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create approval queue: %w", err)
	}

	scrubber, err := secrets.NewFromConfig(cfg.Secrets)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create secret scrubber: %w", err)
	}

	client, err := a.newClient(cfg.Provider)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orch, err = extraction.New(
		extraction.ConfigFromApp(cfg.Extraction, cfg.Provider.NameVariants),
		client, a.store, a.queue, logger,
		extraction.WithScrubber(scrubber),
		extraction.WithPublisher(a.events),
		extraction.WithTracer(a.telemetry.Tracer(extractionScope)),
		extraction.WithMeter(a.telemetry.Meter(extractionScope)),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	logger.Info(ctx, "taskd initialized",
		zap.String("provider", client.Kind().String()),
		zap.String("model", cfg.Provider.Model),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("events", cfg.Events.Enabled),
		zap.Bool("scrubbing", scrubber.IsEnabled()))
	return a, nil
}

// newClient builds the provider client for pc.
func (a *app) newClient(pc config.ProviderConfig) (provider.Client, error) {
	pcfg, err := provider.FromAppConfig(pc)
	if err != nil {
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}
	pcfg.Logger = a.logger
	pcfg.Tracer = a.telemetry.Tracer(providerScope)

	client, err := provider.New(pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	return client, nil
}

// reload swaps in the provider settings of a changed config file. Other
// sections take effect on restart.
func (a *app) reload(ctx context.Context, next *config.Config) {
	client, err := a.newClient(next.Provider)
	if err != nil {
		a.logger.Warn(ctx, "ignoring provider change", zap.Error(err))
		return
	}
	a.orch.Reconfigure(client, next.Provider.NameVariants)
	a.logger.Info(ctx, "provider reconfigured",
		zap.String("provider", client.Kind().String()),
		zap.String("model", next.Provider.Model))
}

// Close releases resources in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.telemetry.Shutdown(ctx))
		cancel()
	}
	if a.logger != nil {
		_ = a.logger.Sync() // Best-effort sync on shutdown
	}
	return errors.Join(errs...)
}

// initLogger initializes the structured logger writing to w.
func initLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	lcfg, err := logging.FromAppConfig(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, err
	}
	lcfg.Output.Writer = w
	if cfg.Telemetry.Enabled {
		return logging.NewLogger(lcfg, global.GetLoggerProvider())
	}
	return logging.NewLogger(lcfg, nil)
}
