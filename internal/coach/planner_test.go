package coach

import (
	"context"
	"strings"
	"testing"

	"github.com/intervox/intervox/pkg/interview"
	"github.com/intervox/intervox/pkg/provider/llm/mock"
)

func TestKindMix(t *testing.T) {
	t.Parallel()

	count := func(mix []interview.QuestionKind, kind interview.QuestionKind) int {
		n := 0
		for _, k := range mix {
			if k == kind {
				n++
			}
		}
		return n
	}

	tests := []struct {
		n                                          int
		technical, behavioral, situational, general int
	}{
		{n: 10, technical: 4, behavioral: 3, situational: 2, general: 1},
		{n: 20, technical: 8, behavioral: 6, situational: 4, general: 2},
		{n: 5, technical: 3, behavioral: 1, situational: 1, general: 0},
		{n: 1, technical: 1},
	}
	for _, tt := range tests {
		mix := kindMix(tt.n)
		if len(mix) != tt.n {
			t.Fatalf("kindMix(%d) returned %d entries", tt.n, len(mix))
		}
		if got := count(mix, interview.KindTechnical); got != tt.technical {
			t.Errorf("kindMix(%d): technical = %d, want %d", tt.n, got, tt.technical)
		}
		if got := count(mix, interview.KindBehavioral); got != tt.behavioral {
			t.Errorf("kindMix(%d): behavioral = %d, want %d", tt.n, got, tt.behavioral)
		}
		if got := count(mix, interview.KindSituational); got != tt.situational {
			t.Errorf("kindMix(%d): situational = %d, want %d", tt.n, got, tt.situational)
		}
		if got := count(mix, interview.KindGeneral); got != tt.general {
			t.Errorf("kindMix(%d): general = %d, want %d", tt.n, got, tt.general)
		}
	}
}

func TestFallbackPlanner(t *testing.T) {
	t.Parallel()

	var p FallbackPlanner
	plan, err := p.GeneratePlan(context.Background(), PlanRequest{
		JobTitle:     "Backend Engineer",
		Seniority:    interview.SenioritySenior,
		Language:     "en",
		NumQuestions: 8,
	})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan) != 8 {
		t.Fatalf("plan has %d questions, want 8", len(plan))
	}

	substituted := false
	for i, q := range plan {
		if q.Text == "" {
			t.Errorf("question %d has empty text", i)
		}
		if q.Competency == "" {
			t.Errorf("question %d has empty competency", i)
		}
		if strings.Contains(q.Text, "{job_title}") {
			t.Errorf("question %d still contains the job title placeholder: %q", i, q.Text)
		}
		if strings.Contains(q.Text, "Backend Engineer") {
			substituted = true
		}
	}
	if !substituted {
		t.Error("no question mentions the job title; substitution never happened")
	}
}

func TestFallbackPlannerDeterministic(t *testing.T) {
	t.Parallel()

	req := PlanRequest{JobTitle: "SRE", Seniority: interview.SeniorityMid, NumQuestions: 6}
	var p FallbackPlanner
	a, err := p.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	b, err := p.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("plan not deterministic at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestLLMPlanner(t *testing.T) {
	t.Parallel()

	t.Run("parses plain JSON", func(t *testing.T) {
		t.Parallel()
		provider := &mock.Provider{Responses: []string{
			`[{"kind":"technical","competency":"api-design","text":"Design a rate limiter."},
			  {"kind":"behavioral","competency":"conflict","text":"Tell me about a disagreement."}]`,
		}}
		p := NewLLMPlanner(provider, 0.7)
		plan, err := p.GeneratePlan(context.Background(), PlanRequest{JobTitle: "Engineer", Seniority: interview.SeniorityMid, NumQuestions: 2})
		if err != nil {
			t.Fatalf("GeneratePlan: %v", err)
		}
		if plan[0].Kind != interview.KindTechnical || plan[1].Kind != interview.KindBehavioral {
			t.Fatalf("unexpected kinds: %+v", plan)
		}
	})

	t.Run("strips markdown fences and coerces unknown kinds", func(t *testing.T) {
		t.Parallel()
		provider := &mock.Provider{Responses: []string{
			"```json\n[{\"kind\":\"weird\",\"competency\":\"x\",\"text\":\"Q?\"}]\n```",
		}}
		p := NewLLMPlanner(provider, 0.7)
		plan, err := p.GeneratePlan(context.Background(), PlanRequest{NumQuestions: 1})
		if err != nil {
			t.Fatalf("GeneratePlan: %v", err)
		}
		if plan[0].Kind != interview.KindGeneral {
			t.Fatalf("kind = %q, want general", plan[0].Kind)
		}
	})

	t.Run("errors when the model under-delivers", func(t *testing.T) {
		t.Parallel()
		provider := &mock.Provider{Responses: []string{
			`[{"kind":"technical","competency":"x","text":"only one"}]`,
		}}
		p := NewLLMPlanner(provider, 0.7)
		if _, err := p.GeneratePlan(context.Background(), PlanRequest{NumQuestions: 3}); err == nil {
			t.Fatal("expected error for short plan, got nil")
		}
	})

	t.Run("errors on unparseable output", func(t *testing.T) {
		t.Parallel()
		provider := &mock.Provider{Responses: []string{"I cannot do that."}}
		p := NewLLMPlanner(provider, 0.7)
		if _, err := p.GeneratePlan(context.Background(), PlanRequest{NumQuestions: 1}); err == nil {
			t.Fatal("expected parse error, got nil")
		}
	})
}
