package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"labtrail/internal/history"
	historymetrics "labtrail/internal/history/metrics"
	"labtrail/internal/history/profile"
	"labtrail/internal/history/render"
	"labtrail/internal/platform/config"
	"labtrail/internal/platform/httpserver"
	"labtrail/internal/platform/logger"
	"labtrail/internal/platform/metrics"
	"labtrail/pkg/platform/audit/recorder"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "labtrail:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	backend, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.close(); err != nil {
			log.Warn("closing audit store", "error", err)
		}
	}()

	profiles := profile.Builtin()
	if cfg.History.ProfilesPath != "" {
		if err := profiles.LoadFile(cfg.History.ProfilesPath); err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
	}

	rec := recorder.New(backend.store,
		recorder.WithLogger(log.With("component", "audit_recorder")),
		recorder.WithMetrics(recorder.NewMetrics(reg)),
		recorder.WithCollections(profiles),
		recorder.WithAsyncBuffer(cfg.Audit.BufferSize),
		recorder.WithAppendTimeout(cfg.Audit.AppendTimeout),
	)
	svc := history.New(backend.store, rec, profiles,
		history.WithLogger(log.With("component", "history")),
		history.WithMetrics(historymetrics.New(reg)),
	)

	view := render.ViewContext{
		Location:       cfg.History.Location,
		CurrencySymbol: cfg.History.CurrencySymbol,
	}
	router := newRouter(routerDeps{
		service:       svc,
		profiles:      profiles,
		view:          view,
		registry:      reg,
		health:        backend.health,
		logger:        log,
		jwtSigningKey: cfg.Server.JWTSigningKey,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	log.InfoContext(ctx, "starting labtrail",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
		"timezone", cfg.History.Location.String(),
		"profiles", len(profiles.EntityTypes()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rec.Run(gctx)
	})
	g.Go(func() error {
		serveErr := httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log)

		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(serveErr, rec.Close(drainCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("labtrail stopped")
	return nil
}
