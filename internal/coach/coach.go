// Package coach provides the AI services behind the interview: planning the
// question list, scoring candidate answers, and summarising a finished (or
// abandoned) session into a structured report.
//
// Each service exists in two implementations: an LLM-backed primary and a
// deterministic in-process fallback. [Service] pairs them behind a circuit
// breaker so that quota exhaustion or an upstream outage degrades the
// interview experience instead of failing it.
package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/intervox/intervox/pkg/interview"
)

// PlanRequest carries the inputs for interview plan generation.
type PlanRequest struct {
	JobTitle     string
	Seniority    interview.Seniority
	Language     string
	NumQuestions int
}

// PlannedQuestion is one entry of a generated interview plan, before it is
// persisted as an [interview.Question].
type PlannedQuestion struct {
	Kind       interview.QuestionKind
	Competency string
	Text       string
}

// Planner generates an ordered interview plan of exactly NumQuestions entries.
type Planner interface {
	GeneratePlan(ctx context.Context, req PlanRequest) ([]PlannedQuestion, error)
}

// EvalRequest carries one question/answer pair plus session context for
// scoring.
type EvalRequest struct {
	JobTitle   string
	Seniority  interview.Seniority
	Question   interview.Question
	AnswerText string
}

// Evaluation is the scored result for a single answer. All scores are in
// [0, 100].
type Evaluation struct {
	Overall    int
	Relevance  int
	Clarity    int
	Structure  int
	Impact     int
	CoachNotes string
}

// Evaluator scores a candidate's answer to one question.
type Evaluator interface {
	EvaluateAnswer(ctx context.Context, req EvalRequest) (Evaluation, error)
}

// SessionSummaryRequest summarises a scripted session from its question and
// answer rows.
type SessionSummaryRequest struct {
	JobTitle  string
	Seniority interview.Seniority
	Questions []interview.Question
	Answers   []interview.Answer

	// Partial marks sessions where not every question received an answer.
	Partial bool
}

// TranscriptSummaryRequest summarises a conversational session from its raw
// transcript.
type TranscriptSummaryRequest struct {
	JobTitle   string
	Seniority  interview.Seniority
	Transcript []interview.TranscriptEntry

	// QuestionsAsked is how many questions the agent got through;
	// NumQuestions is the session's target. Asked < target marks the
	// session partial.
	QuestionsAsked int
	NumQuestions   int
}

// Summarizer produces the final structured report for a session.
type Summarizer interface {
	SummarizeSession(ctx context.Context, req SessionSummaryRequest) (interview.Report, error)
	SummarizeTranscript(ctx context.Context, req TranscriptSummaryRequest) (interview.Report, error)
}

// NoDataReport is the report written for a session that ended with no
// transcript and no answers. Finalizing such a session must still succeed so
// that completed sessions always carry a report.
func NoDataReport() interview.Report {
	return interview.Report{
		OverallScore: 0,
		Strengths:    []string{"showed up to the interview", "session was set up correctly"},
		Weaknesses:   []string{"no interview data"},
		ActionPlan: []string{
			"Restart the interview and answer at least one question",
			"Check your microphone and network connection before joining",
			"Try the text-based interview mode if voice keeps failing",
		},
		SuggestedRoles: []string{"not enough data to suggest roles", "retry the interview first"},
		CompletionNote: "The session ended before any interview data was captured.",
		GeneratedBy:    interview.GeneratedByFallback,
	}
}

// ─── Report normalisation ──────────────────────────────────────────────────────

// list bounds from the report contract.
const (
	minStrengths  = 2
	maxStrengths  = 5
	minActionPlan = 3
	maxActionPlan = 6
	minRoles      = 2
	maxRoles      = 4
)

// normalizeReport clamps the score and pads or truncates the report lists to
// their required lengths. LLM output in particular routinely over- or
// undershoots the list bounds.
func normalizeReport(r interview.Report, jobTitle string) interview.Report {
	r.OverallScore = interview.ClampScore(r.OverallScore)
	r.Strengths = boundList(r.Strengths, minStrengths, maxStrengths, []string{
		"completed part of the interview",
		"engaged with the questions",
	})
	r.Weaknesses = boundList(r.Weaknesses, minStrengths, maxStrengths, []string{
		"answers could use more concrete detail",
		"answers could follow a clearer structure",
	})
	r.ActionPlan = boundList(r.ActionPlan, minActionPlan, maxActionPlan, []string{
		"Practise answering with the STAR structure (situation, task, action, result)",
		"Prepare two or three concrete examples from past work",
		"Rehearse answers out loud and time them",
	})
	r.SuggestedRoles = boundList(r.SuggestedRoles, minRoles, maxRoles, []string{
		jobTitle,
		"adjacent roles to " + jobTitle,
	})
	return r
}

// boundList truncates items to max and pads it from fillers up to min,
// skipping fillers already present.
func boundList(items []string, min, max int, fillers []string) []string {
	out := make([]string, 0, max)
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == max {
			return out
		}
	}
	for _, f := range fillers {
		if len(out) >= min {
			break
		}
		if !containsFold(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func containsFold(items []string, s string) bool {
	for _, it := range items {
		if strings.EqualFold(it, s) {
			return true
		}
	}
	return false
}

// partialNote renders the completion note for a partial session.
func partialNote(answered, total int) string {
	return fmt.Sprintf("The interview ended early: %d of %d questions were covered.", answered, total)
}
