package coach

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/pkg/interview"
	"github.com/intervox/intervox/pkg/provider/llm"
)

// Compile-time interface checks.
var _ Planner = (*Service)(nil)
var _ Evaluator = (*Service)(nil)
var _ Summarizer = (*Service)(nil)

// defaultTimeout bounds every primary model call.
const defaultTimeout = 30 * time.Second

// Service is the production coach: each operation tries the LLM-backed
// primary behind a circuit breaker and falls back to the deterministic
// implementation on any failure. With a nil provider it runs fallback-only,
// which is how text-mode development setups operate.
type Service struct {
	planner    *LLMPlanner
	evaluator  *LLMEvaluator
	summarizer *LLMSummarizer

	fbPlanner    FallbackPlanner
	fbEvaluator  FallbackEvaluator
	fbSummarizer FallbackSummarizer

	// One breaker per logical service so a noisy path does not black out
	// the others.
	plannerBreaker    *resilience.Breaker
	evaluatorBreaker  *resilience.Breaker
	summarizerBreaker *resilience.Breaker

	timeout time.Duration
	log     *slog.Logger
}

// config holds optional configuration for Service.
type config struct {
	timeout time.Duration
	log     *slog.Logger
}

// Option is a functional option for Service.
type Option func(*config)

// WithTimeout overrides the per-call timeout for primary model calls.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for fallback engagement messages.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// NewService creates the coach service. provider may be nil, in which case
// every operation uses its fallback directly.
func NewService(provider llm.Provider, temperature float64, opts ...Option) *Service {
	cfg := &config{
		timeout: defaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}

	s := &Service{
		timeout: cfg.timeout,
		log:     cfg.log,
	}
	if provider != nil {
		s.planner = NewLLMPlanner(provider, temperature)
		s.evaluator = NewLLMEvaluator(provider, temperature)
		s.summarizer = NewLLMSummarizer(provider, temperature)
		s.plannerBreaker = resilience.NewBreaker(resilience.BreakerConfig{Name: "coach.planner"})
		s.evaluatorBreaker = resilience.NewBreaker(resilience.BreakerConfig{Name: "coach.evaluator"})
		s.summarizerBreaker = resilience.NewBreaker(resilience.BreakerConfig{Name: "coach.summarizer"})
	}
	return s
}

// GeneratePlan implements Planner.
func (s *Service) GeneratePlan(ctx context.Context, req PlanRequest) ([]PlannedQuestion, error) {
	if s.planner != nil {
		var plan []PlannedQuestion
		err := s.plannerBreaker.Do(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			var cerr error
			plan, cerr = s.planner.GeneratePlan(cctx, req)
			return cerr
		})
		if err == nil {
			return plan, nil
		}
		s.logFallback("planner", err)
	}
	return s.fbPlanner.GeneratePlan(ctx, req)
}

// EvaluateAnswer implements Evaluator.
func (s *Service) EvaluateAnswer(ctx context.Context, req EvalRequest) (Evaluation, error) {
	if s.evaluator != nil {
		var eval Evaluation
		err := s.evaluatorBreaker.Do(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			var cerr error
			eval, cerr = s.evaluator.EvaluateAnswer(cctx, req)
			return cerr
		})
		if err == nil {
			return eval, nil
		}
		s.logFallback("evaluator", err)
	}
	return s.fbEvaluator.EvaluateAnswer(ctx, req)
}

// SummarizeSession implements Summarizer.
func (s *Service) SummarizeSession(ctx context.Context, req SessionSummaryRequest) (interview.Report, error) {
	if s.summarizer != nil {
		var report interview.Report
		err := s.summarizerBreaker.Do(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			var cerr error
			report, cerr = s.summarizer.SummarizeSession(cctx, req)
			return cerr
		})
		if err == nil {
			return report, nil
		}
		s.logFallback("summarizer", err)
	}
	return s.fbSummarizer.SummarizeSession(ctx, req)
}

// SummarizeTranscript implements Summarizer.
func (s *Service) SummarizeTranscript(ctx context.Context, req TranscriptSummaryRequest) (interview.Report, error) {
	if s.summarizer != nil {
		var report interview.Report
		err := s.summarizerBreaker.Do(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			var cerr error
			report, cerr = s.summarizer.SummarizeTranscript(cctx, req)
			return cerr
		})
		if err == nil {
			return report, nil
		}
		s.logFallback("summarizer", err)
	}
	return s.fbSummarizer.SummarizeTranscript(ctx, req)
}

func (s *Service) logFallback(service string, err error) {
	unavailable := resilience.IsUnavailable(err) || errors.Is(err, llm.ErrUnavailable)
	s.log.Warn("coach primary failed, engaging fallback",
		"service", service,
		"unavailable", unavailable,
		"error", err)
}
