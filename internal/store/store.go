// Package store defines durable storage for interview sessions, questions,
// answers, transcripts, and reports.
//
// Two implementations exist: [MemStore] for tests and storage-less dev runs,
// and the PostgreSQL-backed store in the postgres subpackage. Both enforce
// the same write-time invariants: scores are bounded 0..100, a question holds
// at most one answer, transcript timestamps never regress, and a session is
// finalised at most once.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/intervox/intervox/pkg/interview"
)

// ErrNotFound is returned when the requested session or question does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write collides with existing state: a second
// answer to the same question, or finalising a session that already reached a
// terminal state without a report.
var ErrConflict = errors.New("store: conflict")

// ErrScoreOutOfRange is returned when any score field falls outside 0..100.
// Out-of-range scores are rejected at the storage boundary, never clamped.
var ErrScoreOutOfRange = errors.New("store: score out of range")

// Store is the durable record of sessions and everything attached to them.
//
// All implementations must be safe for concurrent use. Sessions are never
// deleted; questions and answers are write-once.
type Store interface {
	// CreateSession inserts a new session row. The session must carry a
	// non-empty ID and status [interview.StatusActive]. Returns the stored
	// session with CreatedAt set.
	CreateSession(ctx context.Context, s interview.Session) (interview.Session, error)

	// GetSession retrieves a session with its questions-asked counter,
	// transcript snapshot, and report (when present).
	// Returns [ErrNotFound] when no session with that ID exists.
	GetSession(ctx context.Context, id string) (interview.Session, error)

	// CreateQuestions inserts the session's question plan in bulk.
	// Indexes must be 1-based and unique within the session.
	CreateQuestions(ctx context.Context, qs []interview.Question) error

	// GetQuestion retrieves a single question by ID.
	// Returns [ErrNotFound] when no question with that ID exists.
	GetQuestion(ctx context.Context, id string) (interview.Question, error)

	// ListQuestions returns all questions of a session ordered by index.
	ListQuestions(ctx context.Context, sessionID string) ([]interview.Question, error)

	// CreateAnswer writes the single answer of a question.
	// Returns [ErrConflict] if an answer already exists (answers are never
	// overwritten) and [ErrScoreOutOfRange] if any score is outside 0..100.
	CreateAnswer(ctx context.Context, a interview.Answer) (interview.Answer, error)

	// ListAnswers returns all answers of a session ordered by question index.
	ListAnswers(ctx context.Context, sessionID string) ([]interview.Answer, error)

	// SaveTranscript overwrites the session's whole-transcript snapshot and
	// questions-asked counter. Idempotent; the agent is the sole writer per
	// session so last-writer-wins is acceptable. Takes a row-level lock on
	// the session in the PostgreSQL implementation.
	SaveTranscript(ctx context.Context, sessionID string, entries []interview.TranscriptEntry, questionsAsked int) error

	// FinalizeSession commits the report iff the session is still active,
	// setting summary, overall score, completed_at, and status=completed in
	// one conditional write. It returns the committed report whether this
	// call wrote it or a concurrent finaliser got there first.
	// Returns [ErrConflict] when the session is failed without a report.
	FinalizeSession(ctx context.Context, sessionID string, report interview.Report) (interview.Report, error)

	// MarkFailed transitions an active session to failed. Completed sessions
	// are left untouched; the transcript is preserved either way.
	MarkFailed(ctx context.Context, sessionID string) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close()
}

// validateTranscript checks that entry timestamps are non-decreasing.
func validateTranscript(entries []interview.TranscriptEntry) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			return fmt.Errorf("store: transcript timestamp regresses at entry %d", i)
		}
	}
	return nil
}

// validateAnswerScores rejects any score outside 0..100.
func validateAnswerScores(a interview.Answer) error {
	for _, n := range []int{a.OverallScore, a.Relevance, a.Clarity, a.Structure, a.Impact} {
		if !interview.ScoreInRange(n) {
			return fmt.Errorf("%w: %d", ErrScoreOutOfRange, n)
		}
	}
	return nil
}
