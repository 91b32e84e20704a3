// Package interview defines the shared types used across all intervox packages.
//
// These types form the lingua franca between the store, the coach services,
// the agent, and the orchestrator. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package interview

import "time"

// Seniority is the target experience level of a mock interview.
type Seniority string

const (
	SeniorityJunior Seniority = "junior"
	SeniorityMid    Seniority = "mid"
	SenioritySenior Seniority = "senior"
	SeniorityLead   Seniority = "lead"
)

// IsValid reports whether s is a recognised seniority level.
func (s Seniority) IsValid() bool {
	switch s {
	case SeniorityJunior, SeniorityMid, SenioritySenior, SeniorityLead:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	// StatusActive is the initial state; the interview is in progress.
	StatusActive SessionStatus = "active"

	// StatusCompleted is terminal; the session has a committed report.
	StatusCompleted SessionStatus = "completed"

	// StatusFailed is terminal; finalisation failed unrecoverably. The
	// transcript and any partial state are preserved.
	StatusFailed SessionStatus = "failed"
)

// Mode selects how a session collects answers and derives its report.
type Mode string

const (
	// ModeScripted pre-generates questions at session creation; answers are
	// submitted over HTTP and the report summarises question/answer pairs.
	ModeScripted Mode = "scripted"

	// ModeConversational skips question pre-generation; the report is
	// derived from the captured voice transcript alone.
	ModeConversational Mode = "conversational"
)

// IsValid reports whether m is a recognised session mode.
func (m Mode) IsValid() bool {
	return m == ModeScripted || m == ModeConversational
}

// QuestionKind classifies an interview question.
type QuestionKind string

const (
	KindTechnical   QuestionKind = "technical"
	KindBehavioral  QuestionKind = "behavioral"
	KindSituational QuestionKind = "situational"
	KindGeneral     QuestionKind = "general"
)

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// GeneratedBy records which path produced a report.
type GeneratedBy string

const (
	// GeneratedByLLM means the primary LLM summariser produced the report.
	GeneratedByLLM GeneratedBy = "llm"

	// GeneratedByFallback means the deterministic in-process fallback
	// produced the report.
	GeneratedByFallback GeneratedBy = "fallback"
)

// Session is one mock interview instance, durable from creation to
// finalisation. Created by the orchestrator, mutated by the orchestrator and
// the finalizer, never deleted.
type Session struct {
	// ID is the opaque unique session identifier.
	ID string `json:"id"`

	// JobTitle is the role the candidate is interviewing for.
	JobTitle string `json:"job_title"`

	// Seniority is the target experience level.
	Seniority Seniority `json:"seniority"`

	// Language is a BCP 47-ish language tag (e.g. "en").
	Language string `json:"language"`

	// NumQuestions is the target question count, 1..20.
	NumQuestions int `json:"num_questions"`

	// Mode is fixed at creation and never changes.
	Mode Mode `json:"mode"`

	// Status is the lifecycle state.
	Status SessionStatus `json:"status"`

	// QuestionsAsked counts assistant turns that posed a question, as
	// reported by the agent's transcript snapshots.
	QuestionsAsked int `json:"questions_asked"`

	// OverallScore is set on finalisation; nil while active.
	OverallScore *int `json:"overall_score,omitempty"`

	// Summary is the structured report; nil until finalised.
	Summary *Report `json:"summary,omitempty"`

	// Transcript is the latest whole-transcript snapshot; nil if the agent
	// never ran.
	Transcript []TranscriptEntry `json:"transcript,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Question belongs to one session. Write-once; created in bulk at session
// start in scripted mode.
type Question struct {
	// ID is the opaque unique question identifier.
	ID string `json:"id"`

	// SessionID references the owning session.
	SessionID string `json:"session_id"`

	// Index is 1-based and unique within the session.
	Index int `json:"index"`

	// Kind classifies the question.
	Kind QuestionKind `json:"kind"`

	// Competency is a free-form tag (e.g. "system design").
	Competency string `json:"competency"`

	// Text is the question as posed to the candidate.
	Text string `json:"text"`
}

// Answer belongs to one question. Immutable once written; at most one answer
// per question.
type Answer struct {
	QuestionID string `json:"question_id"`

	// Text is the candidate's answer.
	Text string `json:"text"`

	// Per-dimension scores, each 0..100.
	Relevance int `json:"relevance"`
	Clarity   int `json:"clarity"`
	Structure int `json:"structure"`
	Impact    int `json:"impact"`

	// OverallScore is the aggregate score, 0..100.
	OverallScore int `json:"overall_score"`

	// CoachNotes is free-form coaching feedback.
	CoachNotes string `json:"coach_notes"`

	CreatedAt time.Time `json:"created_at"`
}

// TranscriptEntry is one committed utterance in a session's transcript.
// The transcript is append-only during a session and snapshotted as a whole.
type TranscriptEntry struct {
	// Role identifies the speaker.
	Role Role `json:"role"`

	// Text is the committed utterance text.
	Text string `json:"text"`

	// Timestamp is the wall clock at commit. Entries within a session are
	// non-decreasing by timestamp.
	Timestamp time.Time `json:"timestamp"`
}

// Report is the structured evaluation attached to a completed session.
type Report struct {
	// OverallScore is 0..100.
	OverallScore int `json:"overall_score"`

	// Strengths holds 2–5 short strings.
	Strengths []string `json:"strengths"`

	// Weaknesses holds 2–5 short strings.
	Weaknesses []string `json:"weaknesses"`

	// ActionPlan holds 3–6 ordered improvement steps.
	ActionPlan []string `json:"action_plan"`

	// SuggestedRoles holds 2–4 role titles the candidate profiles toward.
	SuggestedRoles []string `json:"suggested_roles"`

	// CompletionNote is non-empty iff the interview was partial.
	CompletionNote string `json:"completion_note,omitempty"`

	// GeneratedBy records whether the LLM or the fallback produced this.
	GeneratedBy GeneratedBy `json:"generated_by"`
}

// ScoreInRange reports whether n is a valid score value.
func ScoreInRange(n int) bool { return n >= 0 && n <= 100 }

// ClampScore bounds n into the valid score range.
func ClampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
