package coach

import (
	"context"
	"fmt"
	"testing"

	"github.com/intervox/intervox/pkg/interview"
	"github.com/intervox/intervox/pkg/provider/llm"
	"github.com/intervox/intervox/pkg/provider/llm/mock"
)

func TestServiceFallsBackOnPrimaryFailure(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{Err: fmt.Errorf("%w: quota exceeded", llm.ErrUnavailable)}
	svc := NewService(provider, 0.7)

	plan, err := svc.GeneratePlan(context.Background(), PlanRequest{
		JobTitle:     "Engineer",
		Seniority:    interview.SeniorityMid,
		NumQuestions: 4,
	})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan) != 4 {
		t.Fatalf("fallback plan has %d questions, want 4", len(plan))
	}
	if provider.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", provider.CallCount())
	}

	eval, err := svc.EvaluateAnswer(context.Background(), EvalRequest{AnswerText: "a short answer"})
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if eval.CoachNotes == "" {
		t.Fatal("fallback evaluation has no coach notes")
	}

	report, err := svc.SummarizeSession(context.Background(), SessionSummaryRequest{
		JobTitle:  "Engineer",
		Questions: []interview.Question{{ID: "q1", Index: 1}},
		Answers:   []interview.Answer{{QuestionID: "q1", OverallScore: 50}},
	})
	if err != nil {
		t.Fatalf("SummarizeSession: %v", err)
	}
	if report.GeneratedBy != interview.GeneratedByFallback {
		t.Fatalf("GeneratedBy = %q, want fallback", report.GeneratedBy)
	}
}

func TestServiceWithoutProvider(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, 0)

	plan, err := svc.GeneratePlan(context.Background(), PlanRequest{
		JobTitle:     "Engineer",
		Seniority:    interview.SeniorityJunior,
		NumQuestions: 3,
	})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("plan has %d questions, want 3", len(plan))
	}

	report, err := svc.SummarizeTranscript(context.Background(), TranscriptSummaryRequest{
		JobTitle:       "Engineer",
		Transcript:     []interview.TranscriptEntry{{Role: interview.RoleUser, Text: "hello"}},
		QuestionsAsked: 1,
		NumQuestions:   1,
	})
	if err != nil {
		t.Fatalf("SummarizeTranscript: %v", err)
	}
	if report.GeneratedBy != interview.GeneratedByFallback {
		t.Fatalf("GeneratedBy = %q, want fallback", report.GeneratedBy)
	}
}

func TestServiceBreakerShortCircuits(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{Err: fmt.Errorf("%w: upstream down", llm.ErrUnavailable)}
	svc := NewService(provider, 0.7)

	// The evaluator breaker trips after three consecutive failures; further
	// calls must not reach the primary.
	for i := 0; i < 5; i++ {
		if _, err := svc.EvaluateAnswer(context.Background(), EvalRequest{AnswerText: "x"}); err != nil {
			t.Fatalf("EvaluateAnswer %d: %v", i, err)
		}
	}
	if got := provider.CallCount(); got != 3 {
		t.Fatalf("primary called %d times, want 3 before the breaker opened", got)
	}

	// Successful primary output flows through again once configured.
	good := &mock.Provider{Responses: []string{`{"overall": 88, "relevance": 88, "clarity": 88, "structure": 88, "impact": 88, "coach_notes": "Nice."}`}}
	svc2 := NewService(good, 0.7)
	eval, err := svc2.EvaluateAnswer(context.Background(), EvalRequest{AnswerText: "x"})
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if eval.Overall != 88 {
		t.Fatalf("Overall = %d, want 88 from the primary", eval.Overall)
	}
}
