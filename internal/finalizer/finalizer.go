// Package finalizer turns a session's accumulated state into its durable
// outcome: transcript snapshots during the interview and the final report
// when it ends.
//
// Finalize is the convergence point for every path that can end a session:
// the agent on completion or disconnect, and the API on an explicit finish
// or an on-demand report. All of them race towards the store's conditional
// finalize; exactly one write wins and every caller observes the same
// committed report.
package finalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/intervox/intervox/internal/coach"
	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/pkg/interview"
)

// Finalizer persists transcripts and finalizes sessions.
type Finalizer struct {
	store      store.Store
	summarizer coach.Summarizer
	fallback   coach.FallbackSummarizer
	log        *slog.Logger
}

// New creates a Finalizer. log may be nil.
func New(st store.Store, summarizer coach.Summarizer, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{store: st, summarizer: summarizer, log: log}
}

// PersistPartialTranscript snapshots the current transcript and question
// counter. Idempotent; the whole transcript is replaced on every call, so
// concurrent snapshots settle on the last writer.
func (f *Finalizer) PersistPartialTranscript(ctx context.Context, sessionID string, entries []interview.TranscriptEntry, questionsAsked int) error {
	if err := f.store.SaveTranscript(ctx, sessionID, entries, questionsAsked); err != nil {
		return fmt.Errorf("finalizer: snapshot transcript: %w", err)
	}
	return nil
}

// Finalize produces and commits the session's report. Safe to call from any
// number of concurrent callers; all of them return the same committed
// report. Callers that hold an unsaved transcript must snapshot it first.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) (interview.Report, error) {
	sess, err := f.store.GetSession(ctx, sessionID)
	if err != nil {
		return interview.Report{}, fmt.Errorf("finalizer: load session: %w", err)
	}
	if sess.Status == interview.StatusCompleted && sess.Summary != nil {
		return *sess.Summary, nil
	}

	report, err := f.buildReport(ctx, sess)
	if err != nil {
		return interview.Report{}, err
	}

	committed, err := f.store.FinalizeSession(ctx, sessionID, report)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return interview.Report{}, fmt.Errorf("finalizer: session %s is terminal without a report: %w", sessionID, err)
		}
		// The report could not be committed; mark the session failed so it
		// does not linger as active. Transcript and answers stay intact.
		f.log.Error("finalize failed, marking session failed", "session_id", sessionID, "error", err)
		if failErr := f.store.MarkFailed(ctx, sessionID); failErr != nil {
			f.log.Error("marking session failed also failed", "session_id", sessionID, "error", failErr)
		}
		return interview.Report{}, fmt.Errorf("finalizer: commit report: %w", err)
	}
	return committed, nil
}

// buildReport assembles the summarizer input according to the session mode
// and produces a report, degrading to the deterministic fallback if the
// summarizer fails.
func (f *Finalizer) buildReport(ctx context.Context, sess interview.Session) (interview.Report, error) {
	questions, err := f.store.ListQuestions(ctx, sess.ID)
	if err != nil {
		return interview.Report{}, fmt.Errorf("finalizer: list questions: %w", err)
	}
	answers, err := f.store.ListAnswers(ctx, sess.ID)
	if err != nil {
		return interview.Report{}, fmt.Errorf("finalizer: list answers: %w", err)
	}

	// A session that produced neither transcript nor answers still gets a
	// report, so completed sessions always carry one.
	if len(sess.Transcript) == 0 && len(answers) == 0 {
		f.log.Info("finalizing session without interview data", "session_id", sess.ID)
		return coach.NoDataReport(), nil
	}

	var report interview.Report
	switch sess.Mode {
	case interview.ModeScripted:
		report, err = f.summarizer.SummarizeSession(ctx, coach.SessionSummaryRequest{
			JobTitle:  sess.JobTitle,
			Seniority: sess.Seniority,
			Questions: questions,
			Answers:   answers,
			Partial:   len(answers) < len(questions),
		})
		if err != nil {
			f.log.Warn("summarizer failed, using fallback", "session_id", sess.ID, "error", err)
			report, err = f.fallback.SummarizeSession(ctx, coach.SessionSummaryRequest{
				JobTitle:  sess.JobTitle,
				Seniority: sess.Seniority,
				Questions: questions,
				Answers:   answers,
				Partial:   len(answers) < len(questions),
			})
		}
	default:
		report, err = f.summarizer.SummarizeTranscript(ctx, coach.TranscriptSummaryRequest{
			JobTitle:       sess.JobTitle,
			Seniority:      sess.Seniority,
			Transcript:     sess.Transcript,
			QuestionsAsked: sess.QuestionsAsked,
			NumQuestions:   sess.NumQuestions,
		})
		if err != nil {
			f.log.Warn("summarizer failed, using fallback", "session_id", sess.ID, "error", err)
			report, err = f.fallback.SummarizeTranscript(ctx, coach.TranscriptSummaryRequest{
				JobTitle:       sess.JobTitle,
				Seniority:      sess.Seniority,
				Transcript:     sess.Transcript,
				QuestionsAsked: sess.QuestionsAsked,
				NumQuestions:   sess.NumQuestions,
			})
		}
	}
	if err != nil {
		return interview.Report{}, fmt.Errorf("finalizer: summarize: %w", err)
	}
	return report, nil
}
