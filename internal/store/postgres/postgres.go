package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/pkg/interview"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [store.Store]. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// CreateSession implements [store.Store.CreateSession].
func (s *Store) CreateSession(ctx context.Context, sess interview.Session) (interview.Session, error) {
	if sess.ID == "" {
		return interview.Session{}, fmt.Errorf("postgres: create session: empty id")
	}

	const query = `
		INSERT INTO sessions (id, job_title, seniority, language, num_questions, mode, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		sess.ID, sess.JobTitle, string(sess.Seniority), sess.Language,
		sess.NumQuestions, string(sess.Mode), string(sess.Status),
	).Scan(&sess.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return interview.Session{}, fmt.Errorf("postgres: session %q already exists: %w", sess.ID, store.ErrConflict)
		}
		return interview.Session{}, fmt.Errorf("postgres: create session: %w", err)
	}
	return sess, nil
}

// GetSession implements [store.Store.GetSession].
func (s *Store) GetSession(ctx context.Context, id string) (interview.Session, error) {
	const query = `
		SELECT id, job_title, seniority, language, num_questions, mode, status,
		       questions_asked, overall_score, summary, transcript,
		       created_at, completed_at
		FROM sessions
		WHERE id = $1`

	var (
		sess                      interview.Session
		summaryJSON, transcriptJS []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.JobTitle, &sess.Seniority, &sess.Language,
		&sess.NumQuestions, &sess.Mode, &sess.Status,
		&sess.QuestionsAsked, &sess.OverallScore, &summaryJSON, &transcriptJS,
		&sess.CreatedAt, &sess.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return interview.Session{}, store.ErrNotFound
		}
		return interview.Session{}, fmt.Errorf("postgres: get session %q: %w", id, err)
	}

	if summaryJSON != nil {
		var rep interview.Report
		if err := json.Unmarshal(summaryJSON, &rep); err != nil {
			return interview.Session{}, fmt.Errorf("postgres: unmarshal summary: %w", err)
		}
		sess.Summary = &rep
	}
	if transcriptJS != nil {
		if err := json.Unmarshal(transcriptJS, &sess.Transcript); err != nil {
			return interview.Session{}, fmt.Errorf("postgres: unmarshal transcript: %w", err)
		}
	}
	return sess, nil
}

// CreateQuestions implements [store.Store.CreateQuestions]. The plan is
// inserted inside one transaction so that a session either has its complete
// question list or none of it.
func (s *Store) CreateQuestions(ctx context.Context, qs []interview.Question) error {
	if len(qs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: create questions: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO questions (id, session_id, question_index, kind, competency, text)
		VALUES ($1,$2,$3,$4,$5,$6)`

	for _, q := range qs {
		if _, err := tx.Exec(ctx, query, q.ID, q.SessionID, q.Index, string(q.Kind), q.Competency, q.Text); err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("postgres: create questions: session %q: %w", q.SessionID, store.ErrNotFound)
			}
			if isDuplicateKeyError(err) {
				return fmt.Errorf("postgres: create questions: question %q: %w", q.ID, store.ErrConflict)
			}
			return fmt.Errorf("postgres: create questions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: create questions: commit: %w", err)
	}
	return nil
}

// GetQuestion implements [store.Store.GetQuestion].
func (s *Store) GetQuestion(ctx context.Context, id string) (interview.Question, error) {
	const query = `
		SELECT id, session_id, question_index, kind, competency, text
		FROM questions
		WHERE id = $1`

	var q interview.Question
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&q.ID, &q.SessionID, &q.Index, &q.Kind, &q.Competency, &q.Text,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return interview.Question{}, store.ErrNotFound
		}
		return interview.Question{}, fmt.Errorf("postgres: get question %q: %w", id, err)
	}
	return q, nil
}

// ListQuestions implements [store.Store.ListQuestions].
func (s *Store) ListQuestions(ctx context.Context, sessionID string) ([]interview.Question, error) {
	const query = `
		SELECT id, session_id, question_index, kind, competency, text
		FROM questions
		WHERE session_id = $1
		ORDER BY question_index`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (interview.Question, error) {
		var q interview.Question
		err := row.Scan(&q.ID, &q.SessionID, &q.Index, &q.Kind, &q.Competency, &q.Text)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list questions: %w", err)
	}
	return qs, nil
}

// CreateAnswer implements [store.Store.CreateAnswer]. The answers table's
// primary key on question_id makes the write-once rule atomic: a concurrent
// duplicate insert loses with a unique violation.
func (s *Store) CreateAnswer(ctx context.Context, a interview.Answer) (interview.Answer, error) {
	if err := validateAnswerScores(a); err != nil {
		return interview.Answer{}, err
	}

	const query = `
		INSERT INTO answers (question_id, text, relevance, clarity, structure, impact, overall_score, coach_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		a.QuestionID, a.Text, a.Relevance, a.Clarity, a.Structure, a.Impact,
		a.OverallScore, a.CoachNotes,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return interview.Answer{}, fmt.Errorf("postgres: question %q already answered: %w", a.QuestionID, store.ErrConflict)
		}
		if isForeignKeyError(err) {
			return interview.Answer{}, fmt.Errorf("postgres: question %q: %w", a.QuestionID, store.ErrNotFound)
		}
		if isCheckViolation(err) {
			return interview.Answer{}, fmt.Errorf("postgres: create answer: %w", store.ErrScoreOutOfRange)
		}
		return interview.Answer{}, fmt.Errorf("postgres: create answer: %w", err)
	}
	return a, nil
}

// ListAnswers implements [store.Store.ListAnswers].
func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]interview.Answer, error) {
	const query = `
		SELECT a.question_id, a.text, a.relevance, a.clarity, a.structure, a.impact,
		       a.overall_score, a.coach_notes, a.created_at
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE q.session_id = $1
		ORDER BY q.question_index`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list answers: %w", err)
	}

	as, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (interview.Answer, error) {
		var a interview.Answer
		err := row.Scan(&a.QuestionID, &a.Text, &a.Relevance, &a.Clarity, &a.Structure,
			&a.Impact, &a.OverallScore, &a.CoachNotes, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list answers: %w", err)
	}
	return as, nil
}

// SaveTranscript implements [store.Store.SaveTranscript]. The session row is
// locked for the duration of the snapshot so concurrent snapshot and
// finalize writes serialise.
func (s *Store) SaveTranscript(ctx context.Context, sessionID string, entries []interview.TranscriptEntry, questionsAsked int) error {
	if err := validateTranscript(entries); err != nil {
		return err
	}

	transcriptJSON, err := json.Marshal(emptyEntries(entries))
	if err != nil {
		return fmt.Errorf("postgres: marshal transcript: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save transcript: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: save transcript: session %q: %w", sessionID, store.ErrNotFound)
		}
		return fmt.Errorf("postgres: save transcript: lock: %w", err)
	}

	const query = `
		UPDATE sessions
		SET transcript = $2, questions_asked = $3
		WHERE id = $1`
	if _, err := tx.Exec(ctx, query, sessionID, transcriptJSON, questionsAsked); err != nil {
		return fmt.Errorf("postgres: save transcript: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save transcript: commit: %w", err)
	}
	return nil
}

// FinalizeSession implements [store.Store.FinalizeSession]. The conditional
// UPDATE on status='active' is the sole serialization point between the
// agent's finalize, the orchestrator's on-demand report, and any concurrent
// client call; exactly one of them commits a report.
func (s *Store) FinalizeSession(ctx context.Context, sessionID string, report interview.Report) (interview.Report, error) {
	if !interview.ScoreInRange(report.OverallScore) {
		return interview.Report{}, fmt.Errorf("%w: %d", store.ErrScoreOutOfRange, report.OverallScore)
	}

	summaryJSON, err := json.Marshal(report)
	if err != nil {
		return interview.Report{}, fmt.Errorf("postgres: marshal report: %w", err)
	}

	const update = `
		UPDATE sessions
		SET summary = $2, overall_score = $3, status = 'completed', completed_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING id`

	var id string
	err = s.pool.QueryRow(ctx, update, sessionID, summaryJSON, report.OverallScore).Scan(&id)
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return interview.Report{}, fmt.Errorf("postgres: finalize session: %w", err)
	}

	// Lost the race or the session already reached a terminal state:
	// read whatever report was committed.
	const read = `SELECT status, summary FROM sessions WHERE id = $1`
	var (
		status      string
		summaryBlob []byte
	)
	err = s.pool.QueryRow(ctx, read, sessionID).Scan(&status, &summaryBlob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return interview.Report{}, fmt.Errorf("postgres: finalize: session %q: %w", sessionID, store.ErrNotFound)
		}
		return interview.Report{}, fmt.Errorf("postgres: finalize: read committed: %w", err)
	}
	if summaryBlob == nil {
		return interview.Report{}, fmt.Errorf("postgres: finalize: session %q is %s without a report: %w", sessionID, status, store.ErrConflict)
	}

	var committed interview.Report
	if err := json.Unmarshal(summaryBlob, &committed); err != nil {
		return interview.Report{}, fmt.Errorf("postgres: finalize: unmarshal committed report: %w", err)
	}
	return committed, nil
}

// MarkFailed implements [store.Store.MarkFailed].
func (s *Store) MarkFailed(ctx context.Context, sessionID string) error {
	const query = `
		UPDATE sessions SET status = 'failed'
		WHERE id = $1 AND status = 'active'`

	tag, err := s.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("postgres: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already terminal; distinguish for the caller.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: mark failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("postgres: mark failed: session %q: %w", sessionID, store.ErrNotFound)
		}
	}
	return nil
}

// Ping implements [store.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// validateTranscript mirrors the in-memory store's monotonicity check so
// that both implementations reject the same writes.
func validateTranscript(entries []interview.TranscriptEntry) error {
	var prev time.Time
	for i, e := range entries {
		if i > 0 && e.Timestamp.Before(prev) {
			return fmt.Errorf("postgres: transcript timestamp regresses at entry %d", i)
		}
		prev = e.Timestamp
	}
	return nil
}

// validateAnswerScores rejects any score outside 0..100 before it reaches
// the CHECK constraints, so callers get [store.ErrScoreOutOfRange] instead
// of a raw SQLSTATE.
func validateAnswerScores(a interview.Answer) error {
	for _, n := range []int{a.OverallScore, a.Relevance, a.Clarity, a.Structure, a.Impact} {
		if !interview.ScoreInRange(n) {
			return fmt.Errorf("%w: %d", store.ErrScoreOutOfRange, n)
		}
	}
	return nil
}

// emptyEntries returns entries if non-nil, otherwise an empty non-nil slice.
// This ensures JSON marshalling produces "[]" instead of "null".
func emptyEntries(entries []interview.TranscriptEntry) []interview.TranscriptEntry {
	if entries == nil {
		return []interview.TranscriptEntry{}
	}
	return entries
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isForeignKeyError checks whether a PostgreSQL error is a foreign-key
// violation (SQLSTATE 23503).
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// isCheckViolation checks whether a PostgreSQL error is a CHECK-constraint
// violation (SQLSTATE 23514).
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}
