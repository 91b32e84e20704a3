package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/intervox/intervox/pkg/interview"
	"github.com/intervox/intervox/pkg/provider/llm"
)

// Compile-time interface checks.
var _ Planner = (*LLMPlanner)(nil)
var _ Planner = (*FallbackPlanner)(nil)

// plannerSystemPrompt instructs the model to act as an interview designer and
// reply with machine-readable JSON only.
const plannerSystemPrompt = `You are an experienced technical recruiter designing a mock job interview.
Respond with a JSON array only, no prose and no markdown fences. Each element
must be an object {"kind": ..., "competency": ..., "text": ...} where kind is
one of "technical", "behavioral", "situational", "general", competency is a
short lowercase tag, and text is the full question. Aim for roughly 40%
technical, 30% behavioral, 20% situational, and 10% general questions.`

// LLMPlanner generates interview plans with an LLM provider.
type LLMPlanner struct {
	llm         llm.Provider
	temperature float64
}

// NewLLMPlanner creates a planner backed by the given provider.
func NewLLMPlanner(provider llm.Provider, temperature float64) *LLMPlanner {
	return &LLMPlanner{llm: provider, temperature: temperature}
}

// GeneratePlan implements Planner.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, req PlanRequest) ([]PlannedQuestion, error) {
	prompt := fmt.Sprintf(
		"Design an interview for a %s %s position. Generate exactly %d questions, in the order they should be asked. Write the questions in %s.",
		req.Seniority, req.JobTitle, req.NumQuestions, languageName(req.Language),
	)

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: plannerSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("coach: plan: %w", err)
	}

	var raw []struct {
		Kind       string `json:"kind"`
		Competency string `json:"competency"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &raw); err != nil {
		return nil, fmt.Errorf("coach: plan: parse model output: %w", err)
	}

	plan := make([]PlannedQuestion, 0, req.NumQuestions)
	for _, q := range raw {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		plan = append(plan, PlannedQuestion{
			Kind:       coerceKind(q.Kind),
			Competency: strings.TrimSpace(q.Competency),
			Text:       text,
		})
		if len(plan) == req.NumQuestions {
			break
		}
	}
	if len(plan) < req.NumQuestions {
		return nil, fmt.Errorf("coach: plan: model returned %d usable questions, want %d", len(plan), req.NumQuestions)
	}
	return plan, nil
}

// coerceKind maps model output to a known question kind, defaulting to
// general.
func coerceKind(s string) interview.QuestionKind {
	kind := interview.QuestionKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case interview.KindTechnical, interview.KindBehavioral, interview.KindSituational, interview.KindGeneral:
		return kind
	default:
		return interview.KindGeneral
	}
}

// FallbackPlanner draws templated questions from the embedded static bank.
// It is fully deterministic for a given request.
type FallbackPlanner struct{}

// GeneratePlan implements Planner. It always returns exactly
// req.NumQuestions entries with the standard kind mix.
func (p *FallbackPlanner) GeneratePlan(ctx context.Context, req PlanRequest) ([]PlannedQuestion, error) {
	b, err := loadBank()
	if err != nil {
		return nil, err
	}

	plan := make([]PlannedQuestion, 0, req.NumQuestions)
	used := make(map[interview.QuestionKind]int)
	for _, kind := range kindMix(req.NumQuestions) {
		plan = append(plan, pickBankQuestion(b, kind, req.Seniority, used[kind], req.JobTitle))
		used[kind]++
	}
	return plan, nil
}

// kindMix distributes n questions over the kinds at roughly 40% technical,
// 30% behavioral, 20% situational, 10% general, with any remainder going to
// the heavier kinds first. Kinds are emitted as ordered blocks so the
// interview opens technical and closes general.
func kindMix(n int) []interview.QuestionKind {
	kinds := []interview.QuestionKind{
		interview.KindTechnical,
		interview.KindBehavioral,
		interview.KindSituational,
		interview.KindGeneral,
	}
	shares := []float64{0.4, 0.3, 0.2, 0.1}

	counts := make([]int, len(kinds))
	total := 0
	for i, share := range shares {
		counts[i] = int(share * float64(n))
		total += counts[i]
	}
	for i := 0; total < n; i = (i + 1) % len(kinds) {
		counts[i]++
		total++
	}

	mix := make([]interview.QuestionKind, 0, n)
	for i, kind := range kinds {
		for j := 0; j < counts[i]; j++ {
			mix = append(mix, kind)
		}
	}
	return mix
}

// languageName renders a BCP 47-ish language tag for use inside a prompt.
func languageName(tag string) string {
	if tag == "" {
		return "English"
	}
	return tag
}
