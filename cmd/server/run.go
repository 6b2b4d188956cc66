package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Canvas/internal/adapters/http"
	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/app/live"
	"github.com/dkeye/Canvas/internal/app/orch"
	"github.com/dkeye/Canvas/internal/config"
	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/store/memory"
	"github.com/dkeye/Canvas/internal/store/sqlite"
)

const shutdownTimeout = 5 * time.Second

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// openStore returns the history backend and a closer for it.
func openStore(cfg *config.Config) (core.HistoryStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.HistoryStore {
	case "memory":
		return memory.New(), noop, nil
	case "sqlite":
		s, err := sqlite.Open(sqlite.Config{
			Path:   cfg.SQLitePath,
			Logger: log.With().Str("module", "store.sqlite").Logger(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open history store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, noop, nil
	}
}

func run(parent context.Context, cfg *config.Config) error {
	setupLogger(cfg)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	miss, err := app.ParseMissPolicy(cfg.UpdateMiss)
	if err != nil {
		return err
	}
	action, err := app.ParseBackpressure(cfg.Backpressure)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("close history store")
		}
	}()

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(ctx, store),
		Queue:    app.NewMatchQueue(),
		Live:     live.NewRelayManager(),
		Policy:   app.SimplePolicy{Action: action},
		Miss:     miss,
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router.SetupRouter(ctx, cfg, o),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", srv.Addr).Str("version", releaseVersion).Msg("canvas server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("server stopped with error")
		return err
	}
	log.Info().Str("module", "main").Msg("server exited gracefully")
	return nil
}
