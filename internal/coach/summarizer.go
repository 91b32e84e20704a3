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
var _ Summarizer = (*LLMSummarizer)(nil)
var _ Summarizer = (*FallbackSummarizer)(nil)

// summarizerSystemPrompt instructs the model to produce the final report and
// reply with machine-readable JSON only.
const summarizerSystemPrompt = `You are an interview coach writing the final assessment of a mock job interview.
Respond with a JSON object only, no prose and no markdown fences:
{"overall_score": 0-100, "strengths": [2-5 short strings],
"weaknesses": [2-5 short strings], "action_plan": [3-6 ordered steps],
"suggested_roles": [2-4 role titles]}.
Be honest but constructive; ground every point in what the candidate actually said.`

// LLMSummarizer produces reports with an LLM provider.
type LLMSummarizer struct {
	llm         llm.Provider
	temperature float64
}

// NewLLMSummarizer creates a summarizer backed by the given provider.
func NewLLMSummarizer(provider llm.Provider, temperature float64) *LLMSummarizer {
	return &LLMSummarizer{llm: provider, temperature: temperature}
}

// SummarizeSession implements Summarizer for scripted sessions.
func (s *LLMSummarizer) SummarizeSession(ctx context.Context, req SessionSummaryRequest) (interview.Report, error) {
	answers := make(map[string]interview.Answer, len(req.Answers))
	for _, a := range req.Answers {
		answers[a.QuestionID] = a
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Position: %s %s.\n\n", req.Seniority, req.JobTitle)
	for _, q := range req.Questions {
		fmt.Fprintf(&sb, "Q%d (%s): %s\n", q.Index, q.Kind, q.Text)
		if a, ok := answers[q.ID]; ok {
			fmt.Fprintf(&sb, "Answer (scored %d/100): %s\n\n", a.OverallScore, a.Text)
		} else {
			sb.WriteString("Answer: (not answered)\n\n")
		}
	}

	report, err := s.complete(ctx, sb.String())
	if err != nil {
		return interview.Report{}, err
	}
	return finishReport(report, req.JobTitle, req.Partial,
		partialNote(len(req.Answers), len(req.Questions)), interview.GeneratedByLLM), nil
}

// SummarizeTranscript implements Summarizer for conversational sessions.
func (s *LLMSummarizer) SummarizeTranscript(ctx context.Context, req TranscriptSummaryRequest) (interview.Report, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Position: %s %s. The interviewer got through %d of %d planned questions.\n\nTranscript:\n",
		req.Seniority, req.JobTitle, req.QuestionsAsked, req.NumQuestions)
	for _, e := range req.Transcript {
		fmt.Fprintf(&sb, "[%s]: %s\n", e.Role, e.Text)
	}

	report, err := s.complete(ctx, sb.String())
	if err != nil {
		return interview.Report{}, err
	}
	partial := req.QuestionsAsked < req.NumQuestions
	return finishReport(report, req.JobTitle, partial,
		partialNote(req.QuestionsAsked, req.NumQuestions), interview.GeneratedByLLM), nil
}

// complete sends the prepared material to the model and parses the report.
func (s *LLMSummarizer) complete(ctx context.Context, material string) (interview.Report, error) {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarizerSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: material}},
		Temperature:  s.temperature,
	})
	if err != nil {
		return interview.Report{}, fmt.Errorf("coach: summarize: %w", err)
	}

	var raw struct {
		OverallScore   int      `json:"overall_score"`
		Strengths      []string `json:"strengths"`
		Weaknesses     []string `json:"weaknesses"`
		ActionPlan     []string `json:"action_plan"`
		SuggestedRoles []string `json:"suggested_roles"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &raw); err != nil {
		return interview.Report{}, fmt.Errorf("coach: summarize: parse model output: %w", err)
	}

	return interview.Report{
		OverallScore:   raw.OverallScore,
		Strengths:      raw.Strengths,
		Weaknesses:     raw.Weaknesses,
		ActionPlan:     raw.ActionPlan,
		SuggestedRoles: raw.SuggestedRoles,
	}, nil
}

// ─── Fallback ──────────────────────────────────────────────────────────────────

// neutralScore is used when no per-answer scores are available.
const neutralScore = 70

// dimension labels for the heuristic strength/weakness derivation.
var dimensions = []struct {
	name     string
	strength string
	weakness string
	score    func(a interview.Answer) int
}{
	{"relevance", "answers stay on topic and address the question", "answers drift away from what was asked",
		func(a interview.Answer) int { return a.Relevance }},
	{"clarity", "communicates clearly and is easy to follow", "answers are hard to follow",
		func(a interview.Answer) int { return a.Clarity }},
	{"structure", "answers are well structured", "answers lack a recognisable structure",
		func(a interview.Answer) int { return a.Structure }},
	{"impact", "highlights the impact of their work", "the impact of described work stays unclear",
		func(a interview.Answer) int { return a.Impact }},
}

const (
	strengthThreshold = 75
	weaknessThreshold = 60
)

// FallbackSummarizer derives a report from the available scores without
// calling any model. It never fails.
type FallbackSummarizer struct{}

// SummarizeSession implements Summarizer for scripted sessions.
func (s *FallbackSummarizer) SummarizeSession(ctx context.Context, req SessionSummaryRequest) (interview.Report, error) {
	if len(req.Answers) == 0 && len(req.Questions) == 0 {
		return NoDataReport(), nil
	}

	report := interview.Report{OverallScore: neutralScore}
	if len(req.Answers) > 0 {
		sum := 0
		for _, a := range req.Answers {
			sum += a.OverallScore
		}
		report.OverallScore = sum / len(req.Answers)

		for _, d := range dimensions {
			avg := 0
			for _, a := range req.Answers {
				avg += d.score(a)
			}
			avg /= len(req.Answers)
			switch {
			case avg >= strengthThreshold:
				report.Strengths = append(report.Strengths, d.strength)
			case avg < weaknessThreshold:
				report.Weaknesses = append(report.Weaknesses, d.weakness)
			}
		}
	}

	return finishReport(report, req.JobTitle, req.Partial,
		partialNote(len(req.Answers), len(req.Questions)), interview.GeneratedByFallback), nil
}

// SummarizeTranscript implements Summarizer for conversational sessions.
func (s *FallbackSummarizer) SummarizeTranscript(ctx context.Context, req TranscriptSummaryRequest) (interview.Report, error) {
	if len(req.Transcript) == 0 {
		return NoDataReport(), nil
	}

	report := interview.Report{OverallScore: neutralScore}
	partial := req.QuestionsAsked < req.NumQuestions
	return finishReport(report, req.JobTitle, partial,
		partialNote(req.QuestionsAsked, req.NumQuestions), interview.GeneratedByFallback), nil
}

// finishReport applies the shared normalisation and partiality handling.
func finishReport(r interview.Report, jobTitle string, partial bool, note string, by interview.GeneratedBy) interview.Report {
	r = normalizeReport(r, jobTitle)
	r.GeneratedBy = by
	if partial {
		r.CompletionNote = note
	} else {
		r.CompletionNote = ""
	}
	return r
}
