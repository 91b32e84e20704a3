package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/intervox/intervox/pkg/interview"
	"github.com/intervox/intervox/pkg/provider/llm"
)

// Compile-time interface checks.
var _ Evaluator = (*LLMEvaluator)(nil)
var _ Evaluator = (*FallbackEvaluator)(nil)

// evaluatorSystemPrompt instructs the model to score one answer and reply
// with machine-readable JSON only.
const evaluatorSystemPrompt = `You are an interview coach scoring a candidate's answer.
Respond with a JSON object only, no prose and no markdown fences:
{"overall": 0-100, "relevance": 0-100, "clarity": 0-100, "structure": 0-100,
"impact": 0-100, "coach_notes": "two or three sentences of actionable advice"}.
Score against what a strong candidate at the stated seniority would say.`

// LLMEvaluator scores answers with an LLM provider.
type LLMEvaluator struct {
	llm         llm.Provider
	temperature float64
}

// NewLLMEvaluator creates an evaluator backed by the given provider.
func NewLLMEvaluator(provider llm.Provider, temperature float64) *LLMEvaluator {
	return &LLMEvaluator{llm: provider, temperature: temperature}
}

// EvaluateAnswer implements Evaluator.
func (e *LLMEvaluator) EvaluateAnswer(ctx context.Context, req EvalRequest) (Evaluation, error) {
	prompt := fmt.Sprintf(
		"Position: %s %s.\nQuestion (%s, %s): %s\nCandidate's answer: %s",
		req.Seniority, req.JobTitle,
		req.Question.Kind, req.Question.Competency, req.Question.Text,
		req.AnswerText,
	)

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: evaluatorSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  e.temperature,
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("coach: evaluate: %w", err)
	}

	var raw struct {
		Overall    int    `json:"overall"`
		Relevance  int    `json:"relevance"`
		Clarity    int    `json:"clarity"`
		Structure  int    `json:"structure"`
		Impact     int    `json:"impact"`
		CoachNotes string `json:"coach_notes"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &raw); err != nil {
		return Evaluation{}, fmt.Errorf("coach: evaluate: parse model output: %w", err)
	}

	return Evaluation{
		Overall:    interview.ClampScore(raw.Overall),
		Relevance:  interview.ClampScore(raw.Relevance),
		Clarity:    interview.ClampScore(raw.Clarity),
		Structure:  interview.ClampScore(raw.Structure),
		Impact:     interview.ClampScore(raw.Impact),
		CoachNotes: strings.TrimSpace(raw.CoachNotes),
	}, nil
}

// ─── Fallback ──────────────────────────────────────────────────────────────────

// lengthBucket is one band of the heuristic scorer.
type lengthBucket struct {
	maxWords int
	base     int
	notes    string
}

// buckets partition answers by word count. Very long answers score below the
// sweet spot to penalise rambling.
var buckets = []lengthBucket{
	{maxWords: 15, base: 35, notes: "The answer is very short. Expand it with a concrete example and explain the outcome of your actions."},
	{maxWords: 50, base: 55, notes: "A reasonable start. Add more specifics: what exactly did you do, and what was the measurable result?"},
	{maxWords: 120, base: 70, notes: "Good level of detail. Tighten the structure: lead with the situation, then your actions, then the result."},
	{maxWords: 250, base: 80, notes: "Thorough answer. Make sure the key point lands early so the interviewer does not have to dig for it."},
	{maxWords: 1 << 30, base: 72, notes: "The answer runs long. Practise trimming it to the essentials; interviewers lose the thread in long monologues."},
}

// FallbackEvaluator scores answers with a deterministic heuristic: a base
// score from the answer's length bucket plus small text-derived noise so
// equal-length answers do not all score identically.
type FallbackEvaluator struct{}

// EvaluateAnswer implements Evaluator. It never fails.
func (e *FallbackEvaluator) EvaluateAnswer(ctx context.Context, req EvalRequest) (Evaluation, error) {
	words := len(strings.Fields(req.AnswerText))

	bucket := buckets[len(buckets)-1]
	for _, b := range buckets {
		if words <= b.maxWords {
			bucket = b
			break
		}
	}

	relevance := noisyScore(bucket.base, req.AnswerText, "relevance")
	clarity := noisyScore(bucket.base, req.AnswerText, "clarity")
	structure := noisyScore(bucket.base, req.AnswerText, "structure")
	impact := noisyScore(bucket.base, req.AnswerText, "impact")

	return Evaluation{
		Overall:    interview.ClampScore((relevance + clarity + structure + impact) / 4),
		Relevance:  relevance,
		Clarity:    clarity,
		Structure:  structure,
		Impact:     impact,
		CoachNotes: bucket.notes,
	}, nil
}

// noisyScore perturbs base by a value in [-3, +3] derived from hashing the
// answer text with the dimension name. Deterministic per (answer, dimension).
// The bound is smaller than every gap between bucket bases, so bucket
// ordering survives the noise.
func noisyScore(base int, text, dimension string) int {
	h := fnv.New32a()
	h.Write([]byte(dimension))
	h.Write([]byte(text))
	noise := int(h.Sum32()%7) - 3
	return interview.ClampScore(base + noise)
}
