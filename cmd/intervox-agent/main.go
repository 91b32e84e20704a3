// Command intervox-agent runs the broker-dispatched interview agent worker.
// It subscribes to the session room dispatch pattern and serves one agent per
// assigned room until terminated.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/intervox/intervox/internal/agent"
	"github.com/intervox/intervox/internal/app"
	"github.com/intervox/intervox/internal/broker"
	"github.com/intervox/intervox/internal/config"
	"github.com/intervox/intervox/internal/observe"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "intervox-agent: %v\n", err)
		return 1
	}

	logger := app.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if !cfg.Broker.Configured() {
		slog.Error("broker credentials are required for the agent worker; set BROKER_URL, BROKER_API_KEY, BROKER_API_SECRET")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "intervox-agent"})
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
	voice := app.BuildRealtime(cfg)

	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithSnapshotInterval(cfg.Agent.SnapshotInterval),
		agent.WithVoice(cfg.Realtime.Voice),
	}
	if len(cfg.Agent.ClosingPhrases) > 0 {
		opts = append(opts, agent.WithClosingPhrases(cfg.Agent.ClosingPhrases))
	}
	runner := agent.NewRunner(st, fin, agent.NewBrokerDialer(b), voice, opts...)

	worker := broker.NewWorker(b, runner.HandleRoom, logger)

	slog.Info("agent worker ready", "pattern", broker.DispatchPattern, "broker_url", cfg.Broker.URL)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
