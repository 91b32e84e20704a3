// Package orchestrator implements the synchronous session operations behind
// the HTTP API: creating sessions, evaluating text answers, finishing
// scripted sessions, producing reports on demand, and minting room
// credentials.
//
// The orchestrator holds no per-session state; concurrent requests are
// serialised by the store's conditional writes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/intervox/intervox/internal/broker"
	"github.com/intervox/intervox/internal/coach"
	"github.com/intervox/intervox/internal/finalizer"
	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/pkg/interview"
)

// ErrValidation marks a request rejected for malformed input. The HTTP
// layer maps it to 400.
var ErrValidation = errors.New("orchestrator: invalid request")

// MaxQuestions bounds the question count of a session.
const MaxQuestions = 20

// Service implements the orchestrator operations.
type Service struct {
	store     store.Store
	planner   coach.Planner
	evaluator coach.Evaluator
	finalizer *finalizer.Finalizer
	broker    *broker.Broker
	log       *slog.Logger
}

// New creates the orchestrator service. log may be nil.
func New(st store.Store, planner coach.Planner, evaluator coach.Evaluator, fin *finalizer.Finalizer, b *broker.Broker, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     st,
		planner:   planner,
		evaluator: evaluator,
		finalizer: fin,
		broker:    b,
		log:       log,
	}
}

// CreateRequest carries the inputs for a new session.
type CreateRequest struct {
	JobTitle     string
	Seniority    interview.Seniority
	Language     string
	NumQuestions int

	// Mode defaults to scripted when empty.
	Mode interview.Mode
}

// CreateResult is returned by CreateSession.
type CreateResult struct {
	Session interview.Session

	// FirstQuestion is set in scripted mode only.
	FirstQuestion *interview.Question
}

// CreateSession validates the request, persists the session, and in
// scripted mode generates and persists the question plan.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (CreateResult, error) {
	req.JobTitle = strings.TrimSpace(req.JobTitle)
	if req.Mode == "" {
		req.Mode = interview.ModeScripted
	}
	if req.Language == "" {
		req.Language = "en"
	}

	if req.JobTitle == "" {
		return CreateResult{}, fmt.Errorf("%w: job_title must not be empty", ErrValidation)
	}
	if !req.Seniority.IsValid() {
		return CreateResult{}, fmt.Errorf("%w: unknown seniority %q", ErrValidation, req.Seniority)
	}
	if req.NumQuestions < 1 || req.NumQuestions > MaxQuestions {
		return CreateResult{}, fmt.Errorf("%w: num_questions must be in 1..%d, got %d", ErrValidation, MaxQuestions, req.NumQuestions)
	}
	if !req.Mode.IsValid() {
		return CreateResult{}, fmt.Errorf("%w: unknown mode %q", ErrValidation, req.Mode)
	}

	sess, err := s.store.CreateSession(ctx, interview.Session{
		ID:           uuid.NewString(),
		JobTitle:     req.JobTitle,
		Seniority:    req.Seniority,
		Language:     req.Language,
		NumQuestions: req.NumQuestions,
		Mode:         req.Mode,
		Status:       interview.StatusActive,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("orchestrator: create session: %w", err)
	}

	result := CreateResult{Session: sess}
	if req.Mode == interview.ModeScripted {
		questions, err := s.buildPlan(ctx, sess)
		if err != nil {
			return CreateResult{}, err
		}
		result.FirstQuestion = &questions[0]
	}

	s.log.Info("session created",
		"session_id", sess.ID,
		"job_title", sess.JobTitle,
		"seniority", sess.Seniority,
		"mode", sess.Mode,
		"num_questions", sess.NumQuestions)
	return result, nil
}

// buildPlan generates and persists the question plan for a scripted session.
func (s *Service) buildPlan(ctx context.Context, sess interview.Session) ([]interview.Question, error) {
	plan, err := s.planner.GeneratePlan(ctx, coach.PlanRequest{
		JobTitle:     sess.JobTitle,
		Seniority:    sess.Seniority,
		Language:     sess.Language,
		NumQuestions: sess.NumQuestions,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: generate plan: %w", err)
	}

	questions := make([]interview.Question, len(plan))
	for i, p := range plan {
		questions[i] = interview.Question{
			ID:         uuid.NewString(),
			SessionID:  sess.ID,
			Index:      i + 1,
			Kind:       p.Kind,
			Competency: p.Competency,
			Text:       p.Text,
		}
	}
	if err := s.store.CreateQuestions(ctx, questions); err != nil {
		return nil, fmt.Errorf("orchestrator: persist plan: %w", err)
	}
	return questions, nil
}

// AnswerResult is returned by SubmitTextAnswer.
type AnswerResult struct {
	Answer interview.Answer

	// NextQuestion is the question with the next index, nil when IsLast.
	NextQuestion *interview.Question
	IsLast       bool
}

// SubmitTextAnswer evaluates and persists the answer to one question and
// returns the next question in the script.
func (s *Service) SubmitTextAnswer(ctx context.Context, sessionID, questionID, text string) (AnswerResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return AnswerResult{}, fmt.Errorf("%w: answer text must not be empty", ErrValidation)
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("orchestrator: load session: %w", err)
	}
	if sess.Status != interview.StatusActive {
		return AnswerResult{}, fmt.Errorf("%w: session %s is %s", store.ErrConflict, sessionID, sess.Status)
	}

	question, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("orchestrator: load question: %w", err)
	}
	if question.SessionID != sessionID {
		return AnswerResult{}, fmt.Errorf("%w: question %s does not belong to session %s", store.ErrNotFound, questionID, sessionID)
	}

	eval, err := s.evaluator.EvaluateAnswer(ctx, coach.EvalRequest{
		JobTitle:   sess.JobTitle,
		Seniority:  sess.Seniority,
		Question:   question,
		AnswerText: text,
	})
	if err != nil {
		return AnswerResult{}, fmt.Errorf("orchestrator: evaluate answer: %w", err)
	}

	answer, err := s.store.CreateAnswer(ctx, interview.Answer{
		QuestionID:   questionID,
		Text:         text,
		Relevance:    eval.Relevance,
		Clarity:      eval.Clarity,
		Structure:    eval.Structure,
		Impact:       eval.Impact,
		OverallScore: eval.Overall,
		CoachNotes:   eval.CoachNotes,
	})
	if err != nil {
		return AnswerResult{}, fmt.Errorf("orchestrator: store answer: %w", err)
	}

	result := AnswerResult{Answer: answer}
	questions, err := s.store.ListQuestions(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("orchestrator: list questions: %w", err)
	}
	for i := range questions {
		if questions[i].Index == question.Index+1 {
			result.NextQuestion = &questions[i]
			break
		}
	}
	result.IsLast = result.NextQuestion == nil
	return result, nil
}

// FinishScripted finalizes a scripted session once every question has an
// answer. Unanswered questions are a conflict, reported with their indexes.
func (s *Service) FinishScripted(ctx context.Context, sessionID string) (interview.Report, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return interview.Report{}, fmt.Errorf("orchestrator: load session: %w", err)
	}
	if sess.Mode != interview.ModeScripted {
		return interview.Report{}, fmt.Errorf("%w: session %s is not scripted", ErrValidation, sessionID)
	}
	if sess.Status == interview.StatusCompleted && sess.Summary != nil {
		return *sess.Summary, nil
	}

	questions, err := s.store.ListQuestions(ctx, sessionID)
	if err != nil {
		return interview.Report{}, fmt.Errorf("orchestrator: list questions: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return interview.Report{}, fmt.Errorf("orchestrator: list answers: %w", err)
	}

	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}
	var unanswered []int
	for _, q := range questions {
		if !answered[q.ID] {
			unanswered = append(unanswered, q.Index)
		}
	}
	if len(unanswered) > 0 {
		return interview.Report{}, fmt.Errorf("%w: questions %v are unanswered", store.ErrConflict, unanswered)
	}

	return s.finalizer.Finalize(ctx, sessionID)
}

// GenerateReport finalizes the session with whatever data exists. Callable
// at any time; an already finalized session returns its stored report.
func (s *Service) GenerateReport(ctx context.Context, sessionID string) (interview.Report, error) {
	return s.finalizer.Finalize(ctx, sessionID)
}

// SessionSnapshot is the full read model of one session: the session row plus
// its questions and answers.
type SessionSnapshot struct {
	interview.Session
	Questions []interview.Question `json:"questions,omitempty"`
	Answers   []interview.Answer   `json:"answers,omitempty"`
}

// GetSession returns the full session read model.
func (s *Service) GetSession(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	questions, err := s.store.ListQuestions(ctx, sessionID)
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("orchestrator: list questions: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("orchestrator: list answers: %w", err)
	}
	return SessionSnapshot{Session: sess, Questions: questions, Answers: answers}, nil
}

// MintRoomCredentials returns transport credentials for the session's room.
// Returns [broker.ErrNotConfigured] when the deployment has no broker; the
// session still works in text mode.
func (s *Service) MintRoomCredentials(ctx context.Context, sessionID, participantName string) (broker.Credentials, error) {
	participantName = strings.TrimSpace(participantName)
	if participantName == "" {
		return broker.Credentials{}, fmt.Errorf("%w: participant_name must not be empty", ErrValidation)
	}

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return broker.Credentials{}, fmt.Errorf("orchestrator: load session: %w", err)
	}

	creds, err := s.broker.MintRoomToken(sessionID, participantName)
	if err != nil {
		return broker.Credentials{}, fmt.Errorf("orchestrator: mint credentials: %w", err)
	}
	return creds, nil
}
