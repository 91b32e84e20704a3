package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/intervox/intervox/pkg/interview"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It backs tests and storage-less development runs. State does not survive
// a process restart.
type MemStore struct {
	mu        sync.RWMutex
	sessions  map[string]*interview.Session
	questions map[string]interview.Question            // by question ID
	byIndex   map[string][]string                      // session ID -> question IDs ordered by index
	answers   map[string]interview.Answer              // by question ID
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:  make(map[string]*interview.Session),
		questions: make(map[string]interview.Question),
		byIndex:   make(map[string][]string),
		answers:   make(map[string]interview.Answer),
	}
}

// CreateSession implements [Store.CreateSession].
func (m *MemStore) CreateSession(ctx context.Context, s interview.Session) (interview.Session, error) {
	if s.ID == "" {
		return interview.Session{}, fmt.Errorf("store: create session: empty id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return interview.Session{}, fmt.Errorf("store: create session %q: %w", s.ID, ErrConflict)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	cp := s
	m.sessions[s.ID] = &cp
	return s, nil
}

// GetSession implements [Store.GetSession].
func (m *MemStore) GetSession(ctx context.Context, id string) (interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return interview.Session{}, ErrNotFound
	}
	return copySession(s), nil
}

// CreateQuestions implements [Store.CreateQuestions].
func (m *MemStore) CreateQuestions(ctx context.Context, qs []interview.Question) error {
	if len(qs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, q := range qs {
		if q.ID == "" || q.SessionID == "" {
			return fmt.Errorf("store: create questions: empty id")
		}
		if _, ok := m.sessions[q.SessionID]; !ok {
			return fmt.Errorf("store: create questions: session %q: %w", q.SessionID, ErrNotFound)
		}
		if _, exists := m.questions[q.ID]; exists {
			return fmt.Errorf("store: create questions: question %q: %w", q.ID, ErrConflict)
		}
	}
	for _, q := range qs {
		m.questions[q.ID] = q
		m.byIndex[q.SessionID] = append(m.byIndex[q.SessionID], q.ID)
	}
	ids := m.byIndex[qs[0].SessionID]
	slices.SortFunc(ids, func(a, b string) int {
		return m.questions[a].Index - m.questions[b].Index
	})
	return nil
}

// GetQuestion implements [Store.GetQuestion].
func (m *MemStore) GetQuestion(ctx context.Context, id string) (interview.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.questions[id]
	if !ok {
		return interview.Question{}, ErrNotFound
	}
	return q, nil
}

// ListQuestions implements [Store.ListQuestions].
func (m *MemStore) ListQuestions(ctx context.Context, sessionID string) ([]interview.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byIndex[sessionID]
	qs := make([]interview.Question, 0, len(ids))
	for _, id := range ids {
		qs = append(qs, m.questions[id])
	}
	return qs, nil
}

// CreateAnswer implements [Store.CreateAnswer].
func (m *MemStore) CreateAnswer(ctx context.Context, a interview.Answer) (interview.Answer, error) {
	if err := validateAnswerScores(a); err != nil {
		return interview.Answer{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.questions[a.QuestionID]; !ok {
		return interview.Answer{}, fmt.Errorf("store: create answer: question %q: %w", a.QuestionID, ErrNotFound)
	}
	if _, exists := m.answers[a.QuestionID]; exists {
		return interview.Answer{}, fmt.Errorf("store: create answer: question %q already answered: %w", a.QuestionID, ErrConflict)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.answers[a.QuestionID] = a
	return a, nil
}

// ListAnswers implements [Store.ListAnswers].
func (m *MemStore) ListAnswers(ctx context.Context, sessionID string) ([]interview.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var as []interview.Answer
	for _, qid := range m.byIndex[sessionID] {
		if a, ok := m.answers[qid]; ok {
			as = append(as, a)
		}
	}
	return as, nil
}

// SaveTranscript implements [Store.SaveTranscript].
func (m *MemStore) SaveTranscript(ctx context.Context, sessionID string, entries []interview.TranscriptEntry, questionsAsked int) error {
	if err := validateTranscript(entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("store: save transcript: session %q: %w", sessionID, ErrNotFound)
	}
	s.Transcript = slices.Clone(entries)
	s.QuestionsAsked = questionsAsked
	return nil
}

// FinalizeSession implements [Store.FinalizeSession].
func (m *MemStore) FinalizeSession(ctx context.Context, sessionID string, report interview.Report) (interview.Report, error) {
	if !interview.ScoreInRange(report.OverallScore) {
		return interview.Report{}, fmt.Errorf("%w: %d", ErrScoreOutOfRange, report.OverallScore)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return interview.Report{}, fmt.Errorf("store: finalize: session %q: %w", sessionID, ErrNotFound)
	}

	// Conditional write: only the first finaliser of an active session wins.
	// Everyone else observes the committed report.
	if s.Status == interview.StatusActive {
		now := time.Now()
		rep := report
		score := report.OverallScore
		s.Summary = &rep
		s.OverallScore = &score
		s.Status = interview.StatusCompleted
		s.CompletedAt = &now
		return report, nil
	}
	if s.Summary != nil {
		return *s.Summary, nil
	}
	return interview.Report{}, fmt.Errorf("store: finalize: session %q is %s without a report: %w", sessionID, s.Status, ErrConflict)
}

// MarkFailed implements [Store.MarkFailed].
func (m *MemStore) MarkFailed(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("store: mark failed: session %q: %w", sessionID, ErrNotFound)
	}
	if s.Status == interview.StatusActive {
		s.Status = interview.StatusFailed
	}
	return nil
}

// Ping implements [Store.Ping]. Always succeeds.
func (m *MemStore) Ping(ctx context.Context) error { return nil }

// Close implements [Store.Close]. No-op.
func (m *MemStore) Close() {}

// copySession returns a deep enough copy that callers cannot mutate stored state.
func copySession(s *interview.Session) interview.Session {
	cp := *s
	cp.Transcript = slices.Clone(s.Transcript)
	if s.Summary != nil {
		rep := *s.Summary
		rep.Strengths = slices.Clone(s.Summary.Strengths)
		rep.Weaknesses = slices.Clone(s.Summary.Weaknesses)
		rep.ActionPlan = slices.Clone(s.Summary.ActionPlan)
		rep.SuggestedRoles = slices.Clone(s.Summary.SuggestedRoles)
		cp.Summary = &rep
	}
	if s.OverallScore != nil {
		score := *s.OverallScore
		cp.OverallScore = &score
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
