package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"askbox/internal/adapter/history"
	"askbox/internal/infra/config"
	"askbox/internal/infra/logger"
	"askbox/internal/infra/metrics"
	"askbox/internal/infra/tracer"
	"askbox/internal/usecase/eventbus"
	"askbox/internal/usecase/session"
)

// app holds the wired infrastructure for one command invocation.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *eventbus.Bus
	store    *history.SQLiteStore // nil when persistence is off
	recorder *session.Recorder
	metrics  *metrics.Collector // nil when metrics are off

	closers []func() error
}

type appOptions struct {
	configPath string
	sessionKey string    // overrides session.key when set
	traceOut   io.Writer // stdout exporter destination; nil = stderr
}

// newApp loads config and builds logger, tracer, event bus, history store,
// recorder and metrics, in that order.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.sessionKey != "" {
		cfg.Session.Key = opts.sessionKey
	}

	a := &app{cfg: cfg}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, logCloser)

	var tracerOpts []tracer.Option
	if opts.traceOut != nil {
		tracerOpts = append(tracerOpts, tracer.WithWriter(opts.traceOut))
	}
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, tracerOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() error { return tracerShutdown(context.WithoutCancel(ctx)) })

	a.bus = eventbus.New(logger.Component(log, "eventbus"))
	a.closers = append(a.closers, func() error { a.bus.Close(); return nil })

	recCfg := session.RecorderConfig{
		Key:        cfg.Session.Key,
		MaxEntries: cfg.Session.MaxEntries,
		Logger:     logger.Component(log, "session"),
	}
	if cfg.Session.Persist {
		store, err := history.NewSQLiteStore(cfg.Session.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("history: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		recCfg.Store = store
	}
	a.recorder = session.NewRecorder(recCfg)
	if err := a.recorder.Restore(ctx); err != nil {
		log.Warn("history restore failed, starting empty", "session", cfg.Session.Key, "error", err)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(logger.Component(log, "metrics"))
		unsubscribe := a.metrics.Subscribe(a.bus)
		a.closers = append(a.closers, func() error { unsubscribe(); return nil })
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
