package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/intervox/intervox/internal/broker"
	"github.com/intervox/intervox/internal/coach"
	"github.com/intervox/intervox/internal/finalizer"
	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/pkg/interview"
)

// newService wires the orchestrator with the in-memory store and the
// fallback-only coach.
func newService(b *broker.Broker) (*Service, *store.MemStore) {
	st := store.NewMemStore()
	svc := coach.NewService(nil, 0)
	fin := finalizer.New(st, svc, nil)
	if b == nil {
		b = broker.New(broker.Config{})
	}
	return New(st, svc, svc, fin, b, nil), st
}

func validRequest() CreateRequest {
	return CreateRequest{
		JobTitle:     "Backend Engineer",
		Seniority:    interview.SeniorityMid,
		Language:     "en",
		NumQuestions: 3,
	}
}

func TestCreateSessionScripted(t *testing.T) {
	t.Parallel()

	svc, st := newService(nil)
	result, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if result.Session.ID == "" {
		t.Fatal("session has no id")
	}
	if result.Session.Mode != interview.ModeScripted {
		t.Errorf("Mode = %q, want scripted default", result.Session.Mode)
	}
	if result.FirstQuestion == nil {
		t.Fatal("scripted session returned no first question")
	}
	if result.FirstQuestion.Index != 1 {
		t.Errorf("first question index = %d, want 1", result.FirstQuestion.Index)
	}

	questions, err := st.ListQuestions(context.Background(), result.Session.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("%d questions persisted, want 3", len(questions))
	}
	for i, q := range questions {
		if q.Index != i+1 {
			t.Errorf("question %d has index %d", i, q.Index)
		}
		if q.ID == "" || q.Text == "" {
			t.Errorf("question %d incomplete: %+v", i, q)
		}
	}
}

func TestCreateSessionConversational(t *testing.T) {
	t.Parallel()

	svc, st := newService(nil)
	req := validRequest()
	req.Mode = interview.ModeConversational

	result, err := svc.CreateSession(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if result.FirstQuestion != nil {
		t.Error("conversational session returned a first question")
	}
	questions, err := st.ListQuestions(context.Background(), result.Session.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 0 {
		t.Errorf("conversational session persisted %d questions", len(questions))
	}
}

func TestCreateSessionValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"empty job title", func(r *CreateRequest) { r.JobTitle = "  " }},
		{"unknown seniority", func(r *CreateRequest) { r.Seniority = "principal" }},
		{"zero questions", func(r *CreateRequest) { r.NumQuestions = 0 }},
		{"too many questions", func(r *CreateRequest) { r.NumQuestions = 21 }},
		{"unknown mode", func(r *CreateRequest) { r.Mode = "freestyle" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.CreateSession(context.Background(), req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	// Both bounds of the question budget are valid.
	for _, n := range []int{1, MaxQuestions} {
		req := validRequest()
		req.NumQuestions = n
		if _, err := svc.CreateSession(context.Background(), req); err != nil {
			t.Errorf("CreateSession with %d questions: %v", n, err)
		}
	}
}

func TestSubmitTextAnswerFlow(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	created, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	sessionID := created.Session.ID

	question := created.FirstQuestion
	for i := 1; i <= 3; i++ {
		result, err := svc.SubmitTextAnswer(context.Background(), sessionID, question.ID,
			"I led the design, shipped it in stages, and measured the results carefully.")
		if err != nil {
			t.Fatalf("SubmitTextAnswer %d: %v", i, err)
		}
		if result.Answer.OverallScore < 0 || result.Answer.OverallScore > 100 {
			t.Fatalf("answer score %d out of range", result.Answer.OverallScore)
		}
		if result.Answer.CoachNotes == "" {
			t.Fatal("answer has no coach notes")
		}

		if i < 3 {
			if result.IsLast {
				t.Fatalf("question %d marked last", i)
			}
			if result.NextQuestion == nil || result.NextQuestion.Index != i+1 {
				t.Fatalf("next question after %d = %+v", i, result.NextQuestion)
			}
			question = result.NextQuestion
		} else {
			if !result.IsLast || result.NextQuestion != nil {
				t.Fatalf("final question not marked last: %+v", result)
			}
		}
	}

	// Second answer to an answered question conflicts.
	_, err = svc.SubmitTextAnswer(context.Background(), sessionID, created.FirstQuestion.ID, "again")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate answer err = %v, want ErrConflict", err)
	}
}

func TestSubmitTextAnswerErrors(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	created, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	other, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	t.Run("empty answer", func(t *testing.T) {
		t.Parallel()
		_, err := svc.SubmitTextAnswer(context.Background(), created.Session.ID, created.FirstQuestion.ID, "   ")
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		_, err := svc.SubmitTextAnswer(context.Background(), "missing", created.FirstQuestion.ID, "text")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("unknown question", func(t *testing.T) {
		t.Parallel()
		_, err := svc.SubmitTextAnswer(context.Background(), created.Session.ID, "missing", "text")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("question from another session", func(t *testing.T) {
		t.Parallel()
		_, err := svc.SubmitTextAnswer(context.Background(), created.Session.ID, other.FirstQuestion.ID, "text")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestSubmitTextAnswerAfterCompletion(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	created, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := svc.GenerateReport(context.Background(), created.Session.ID); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	_, err = svc.SubmitTextAnswer(context.Background(), created.Session.ID, created.FirstQuestion.ID, "late answer")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("answer on completed session err = %v, want ErrConflict", err)
	}
}

func TestFinishScripted(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	created, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	sessionID := created.Session.ID

	// Finishing with open questions conflicts and names the indexes.
	_, err = svc.FinishScripted(context.Background(), sessionID)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("premature finish err = %v, want ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "[1 2 3]") {
		t.Errorf("conflict does not list unanswered indexes: %v", err)
	}

	question := created.FirstQuestion
	for question != nil {
		result, err := svc.SubmitTextAnswer(context.Background(), sessionID, question.ID, "A thorough, structured answer with a concrete example and a clear result.")
		if err != nil {
			t.Fatalf("SubmitTextAnswer: %v", err)
		}
		question = result.NextQuestion
	}

	report, err := svc.FinishScripted(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("FinishScripted: %v", err)
	}
	if report.CompletionNote != "" {
		t.Errorf("complete session report has CompletionNote %q", report.CompletionNote)
	}

	// Finishing again returns the stored report unchanged.
	again, err := svc.FinishScripted(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("repeat FinishScripted: %v", err)
	}
	if again.OverallScore != report.OverallScore {
		t.Errorf("repeat finish diverged: %d vs %d", again.OverallScore, report.OverallScore)
	}

	sess, err := svc.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != interview.StatusCompleted {
		t.Errorf("Status = %q, want completed", sess.Status)
	}
}

func TestFinishScriptedOnConversational(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	req := validRequest()
	req.Mode = interview.ModeConversational
	created, err := svc.CreateSession(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err = svc.FinishScripted(context.Background(), created.Session.ID)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestGenerateReportMidInterview(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	created, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := svc.SubmitTextAnswer(context.Background(), created.Session.ID, created.FirstQuestion.ID, "One decent answer before bailing out."); err != nil {
		t.Fatalf("SubmitTextAnswer: %v", err)
	}

	report, err := svc.GenerateReport(context.Background(), created.Session.ID)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if !strings.Contains(report.CompletionNote, "1 of 3") {
		t.Errorf("CompletionNote = %q, want mention of 1 of 3", report.CompletionNote)
	}
}

func TestMintRoomCredentials(t *testing.T) {
	t.Parallel()

	configured := broker.New(broker.Config{
		URL:       "wss://broker.test",
		APIKey:    "k",
		APISecret: "s",
	})
	svc, _ := newService(configured)
	created, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	creds, err := svc.MintRoomCredentials(context.Background(), created.Session.ID, "candidate")
	if err != nil {
		t.Fatalf("MintRoomCredentials: %v", err)
	}
	if creds.RoomName != broker.RoomName(created.Session.ID) {
		t.Errorf("RoomName = %q", creds.RoomName)
	}
	if creds.Token == "" || creds.URL == "" {
		t.Errorf("incomplete credentials: %+v", creds)
	}

	t.Run("unknown session", func(t *testing.T) {
		_, err := svc.MintRoomCredentials(context.Background(), "missing", "candidate")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("empty participant", func(t *testing.T) {
		_, err := svc.MintRoomCredentials(context.Background(), created.Session.ID, " ")
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})
}

func TestMintRoomCredentialsUnconfigured(t *testing.T) {
	t.Parallel()

	svc, _ := newService(nil)
	created, err := svc.CreateSession(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err = svc.MintRoomCredentials(context.Background(), created.Session.ID, "candidate")
	if !errors.Is(err, broker.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
