// Command intervox runs the interview session API server: session
// orchestration, scripted answering, report finalization, and room
// credential minting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/intervox/intervox/internal/api"
	"github.com/intervox/intervox/internal/app"
	"github.com/intervox/intervox/internal/config"
	"github.com/intervox/intervox/internal/health"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/orchestrator"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "intervox: %v\n", err)
		return 1
	}

	logger := app.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("intervox starting",
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", string(cfg.Server.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "intervox"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	st, err := app.BuildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect storage", "error", err)
		return 1
	}
	defer st.Close()

	llmProvider, err := app.BuildLLM(cfg)
	if err != nil {
		slog.Error("failed to create LLM provider", "error", err)
		return 1
	}

	svc := app.BuildCoach(cfg, llmProvider, logger)
	fin := app.BuildFinalizer(st, svc, logger)
	b := app.BuildBroker(cfg)
	orch := orchestrator.New(st, svc, svc, fin, b, logger)

	checkers := []health.Checker{health.StorageCheck(st)}
	if b.Configured() {
		checkers = append(checkers, health.BrokerCheck(func() error {
			_, err := b.MintRoomToken("readiness", "probe")
			return err
		}))
	}

	server := api.NewServer(orch,
		api.WithHealth(health.New(checkers...)),
		api.WithLogger(logger),
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining")
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(drainCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
