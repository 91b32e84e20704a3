// Package postgres provides the PostgreSQL-backed implementation of
// [store.Store].
//
// Sessions, questions, and answers live in three tables with foreign-key
// integrity; the transcript snapshot and the final report are JSONB columns
// on the session row. Score bounds are enforced both in Go and as CHECK
// constraints so that no write path can bypass them.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT         PRIMARY KEY,
    job_title       TEXT         NOT NULL,
    seniority       TEXT         NOT NULL,
    language        TEXT         NOT NULL DEFAULT 'en',
    num_questions   INT          NOT NULL CHECK (num_questions >= 1),
    mode            TEXT         NOT NULL DEFAULT 'scripted',
    status          TEXT         NOT NULL DEFAULT 'active',
    questions_asked INT          NOT NULL DEFAULT 0,
    overall_score   INT          CHECK (overall_score BETWEEN 0 AND 100),
    summary         JSONB,
    transcript      JSONB,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sessions_status
    ON sessions (status);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at
    ON sessions (created_at);
`

const ddlQuestions = `
CREATE TABLE IF NOT EXISTS questions (
    id             TEXT  PRIMARY KEY,
    session_id     TEXT  NOT NULL REFERENCES sessions (id),
    question_index INT   NOT NULL CHECK (question_index >= 1),
    kind           TEXT  NOT NULL,
    competency     TEXT  NOT NULL DEFAULT '',
    text           TEXT  NOT NULL,
    UNIQUE (session_id, question_index)
);

CREATE INDEX IF NOT EXISTS idx_questions_session
    ON questions (session_id);
`

// The primary key on question_id is what makes answers write-once: a second
// insert for the same question trips a unique violation, surfaced as
// [store.ErrConflict].
const ddlAnswers = `
CREATE TABLE IF NOT EXISTS answers (
    question_id   TEXT         PRIMARY KEY REFERENCES questions (id),
    text          TEXT         NOT NULL,
    relevance     INT          NOT NULL CHECK (relevance BETWEEN 0 AND 100),
    clarity       INT          NOT NULL CHECK (clarity BETWEEN 0 AND 100),
    structure     INT          NOT NULL CHECK (structure BETWEEN 0 AND 100),
    impact        INT          NOT NULL CHECK (impact BETWEEN 0 AND 100),
    overall_score INT          NOT NULL CHECK (overall_score BETWEEN 0 AND 100),
    coach_notes   TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlSessions,
		ddlQuestions,
		ddlAnswers,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
