// Package app assembles intervox subsystems from configuration.
//
// Both binaries share these constructors: the API server wires the store,
// coach, finalizer, orchestrator, and broker; the agent worker wires the
// store, finalizer, broker, and realtime voice provider. Every external
// dependency is optional — a nil provider or unconfigured broker selects the
// corresponding degraded mode instead of failing startup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/intervox/intervox/internal/broker"
	"github.com/intervox/intervox/internal/coach"
	"github.com/intervox/intervox/internal/config"
	"github.com/intervox/intervox/internal/finalizer"
	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/internal/store/postgres"
	"github.com/intervox/intervox/pkg/provider/llm"
	"github.com/intervox/intervox/pkg/provider/llm/anyllm"
	llmopenai "github.com/intervox/intervox/pkg/provider/llm/openai"
	"github.com/intervox/intervox/pkg/provider/realtime"
	rtopenai "github.com/intervox/intervox/pkg/provider/realtime/openai"
)

// NewLogger builds the process-wide slog logger from the configured level.
func NewLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}))
}

// BuildStore selects the session store backend: Postgres when STORAGE_URL is
// set, the in-memory store otherwise.
func BuildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Storage.URL == "" {
		return store.NewMemStore(), nil
	}
	st, err := postgres.NewStore(ctx, cfg.Storage.URL)
	if err != nil {
		return nil, fmt.Errorf("app: connect storage: %w", err)
	}
	return st, nil
}

// BuildLLM constructs the primary LLM provider, or nil when none is
// configured. The "openai" provider uses the native client; every other name
// goes through the any-llm bridge.
func BuildLLM(cfg *config.Config) (llm.Provider, error) {
	if !cfg.LLM.Configured() {
		return nil, nil
	}

	if cfg.LLM.Provider == "openai" {
		p, err := llmopenai.New(cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, fmt.Errorf("app: create openai provider: %w", err)
		}
		return p, nil
	}

	p, err := anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
	if err != nil {
		return nil, fmt.Errorf("app: create %s provider: %w", cfg.LLM.Provider, err)
	}
	return p, nil
}

// BuildCoach wires the coach service over the given provider. A nil provider
// yields a fallback-only service.
func BuildCoach(cfg *config.Config, provider llm.Provider, log *slog.Logger) *coach.Service {
	return coach.NewService(provider, cfg.LLM.Temperature, coach.WithLogger(log))
}

// BuildBroker creates the transport broker. Never fails; an unconfigured
// broker reports so and every room operation returns ErrNotConfigured.
func BuildBroker(cfg *config.Config) *broker.Broker {
	return broker.New(broker.Config{
		URL:       cfg.Broker.URL,
		APIKey:    cfg.Broker.APIKey,
		APISecret: cfg.Broker.APISecret,
	})
}

// BuildRealtime constructs the realtime voice provider, or nil when no API
// key is configured (agents then run mute).
func BuildRealtime(cfg *config.Config) realtime.Provider {
	if cfg.Realtime.APIKey == "" {
		return nil
	}
	return rtopenai.New(cfg.Realtime.APIKey)
}

// BuildFinalizer wires the finalizer over the store and the coach service's
// summarizer path.
func BuildFinalizer(st store.Store, svc *coach.Service, log *slog.Logger) *finalizer.Finalizer {
	return finalizer.New(st, svc, log)
}
