// Package config provides the environment-driven configuration schema and
// loader for the intervox services.
//
// Every setting is optional: missing external dependencies put the system
// into a degraded but functional mode (text-only without a broker,
// deterministic fallbacks without an LLM, mute agents without a realtime
// key). Validate reports hard errors for malformed values and logs advisory
// warnings for absent optional dependencies.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to the corresponding slog level. Unrecognised values
// map to Info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration for both intervox binaries.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Broker   BrokerConfig
	LLM      LLMConfig
	Realtime RealtimeConfig
	Agent    AgentConfig
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the API server listens on.
	ListenAddr string

	// LogLevel controls verbosity.
	LogLevel LogLevel
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	// URL is the Postgres connection string. Empty selects the in-memory
	// store (development mode; sessions do not survive restarts).
	URL string
}

// BrokerConfig holds the realtime transport credentials. All three values
// are required together; absence of any puts the system in text-only mode.
type BrokerConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

// Configured reports whether all broker credentials are present.
func (b BrokerConfig) Configured() bool {
	return b.URL != "" && b.APIKey != "" && b.APISecret != ""
}

// LLMConfig selects the primary Planner/Evaluator/Summarizer backend.
// Absence of Provider or APIKey engages the deterministic fallbacks.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float64
}

// Configured reports whether a primary LLM backend is selected.
func (l LLMConfig) Configured() bool {
	return l.Provider != "" && l.APIKey != ""
}

// RealtimeConfig selects the realtime voice model backend. Absence of the
// API key makes agents run mute.
type RealtimeConfig struct {
	APIKey string
	Voice  string
}

// AgentConfig tunes the per-session interview agent.
type AgentConfig struct {
	// SnapshotInterval is the transcript snapshot period.
	SnapshotInterval time.Duration

	// ClosingPhrases override the completion-detection list when non-empty.
	ClosingPhrases []string
}

// Defaults applied by Load when the corresponding variable is unset.
const (
	DefaultListenAddr       = ":8080"
	DefaultSnapshotInterval = 30 * time.Second
)

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: envOr("LISTEN_ADDR", DefaultListenAddr),
			LogLevel:   LogLevel(strings.ToLower(envOr("LOG_LEVEL", string(LogInfo)))),
		},
		Storage: StorageConfig{
			URL: os.Getenv("STORAGE_URL"),
		},
		Broker: BrokerConfig{
			URL:       os.Getenv("BROKER_URL"),
			APIKey:    os.Getenv("BROKER_API_KEY"),
			APISecret: os.Getenv("BROKER_API_SECRET"),
		},
		LLM: LLMConfig{
			Provider: os.Getenv("LLM_PROVIDER"),
			Model:    os.Getenv("LLM_MODEL"),
			APIKey:   os.Getenv("LLM_API_KEY"),
		},
		Realtime: RealtimeConfig{
			APIKey: os.Getenv("REALTIME_API_KEY"),
			Voice:  os.Getenv("REALTIME_VOICE"),
		},
		Agent: AgentConfig{
			SnapshotInterval: DefaultSnapshotInterval,
			ClosingPhrases:   splitList(os.Getenv("CLOSING_PHRASES")),
		},
	}

	var errs []error

	if raw := os.Getenv("LLM_TEMPERATURE"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLM_TEMPERATURE %q is not a number", raw))
		} else {
			cfg.LLM.Temperature = t
		}
	}
	if raw := os.Getenv("SNAPSHOT_INTERVAL_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("SNAPSHOT_INTERVAL_SECONDS %q is not an integer", raw))
		case secs <= 0:
			errs = append(errs, fmt.Errorf("SNAPSHOT_INTERVAL_SECONDS must be positive, got %d", secs))
		default:
			cfg.Agent.SnapshotInterval = time.Duration(secs) * time.Second
		}
	}

	if err := errors.Join(append(errs, Validate(cfg))...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all hard failures; advisory conditions are logged.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("LISTEN_ADDR must not be empty"))
	}

	// Partial broker credentials are a misconfiguration, not a degraded mode.
	brokerSet := 0
	for _, v := range []string{cfg.Broker.URL, cfg.Broker.APIKey, cfg.Broker.APISecret} {
		if v != "" {
			brokerSet++
		}
	}
	if brokerSet > 0 && brokerSet < 3 {
		errs = append(errs, errors.New("BROKER_URL, BROKER_API_KEY, and BROKER_API_SECRET must be set together"))
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}

	if cfg.Storage.URL == "" {
		slog.Warn("STORAGE_URL is empty; using the in-memory store, sessions will not survive restarts")
	}
	if !cfg.Broker.Configured() {
		slog.Warn("broker credentials are absent; running in text-only mode, no voice rooms")
	}
	if !cfg.LLM.Configured() {
		slog.Warn("no LLM backend configured; planner, evaluator, and summarizer use deterministic fallbacks")
	}
	if cfg.Realtime.APIKey == "" {
		slog.Warn("REALTIME_API_KEY is empty; interview agents will run mute")
	}

	return errors.Join(errs...)
}

// envOr returns the value of key, or fallback when unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma-separated env value, trimming whitespace and
// dropping empty entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
