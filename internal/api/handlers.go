package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intervox/intervox/internal/broker"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/orchestrator"
	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/pkg/interview"
)

// ─── Request / response payloads ──────────────────────────────────────────────

type startRequest struct {
	JobTitle     string `json:"job_title"`
	Seniority    string `json:"seniority"`
	Language     string `json:"language"`
	NumQuestions int    `json:"num_questions"`
	Mode         string `json:"mode"`
}

type questionPayload struct {
	ID         string `json:"id"`
	Index      int    `json:"index"`
	Kind       string `json:"kind"`
	Competency string `json:"competency"`
	Text       string `json:"text"`
}

type startResponse struct {
	SessionID     string           `json:"session_id"`
	Mode          string           `json:"mode"`
	FirstQuestion *questionPayload `json:"first_question,omitempty"`
}

type answerRequest struct {
	SessionID      string `json:"session_id"`
	QuestionID     string `json:"question_id"`
	UserAnswerText string `json:"user_answer_text"`
}

type answerResponse struct {
	ScoreOverall    int              `json:"score_overall"`
	DimensionScores map[string]int   `json:"dimension_scores"`
	CoachNotes      string           `json:"coach_notes"`
	NextQuestion    *questionPayload `json:"next_question,omitempty"`
	IsLastQuestion  bool             `json:"is_last_question"`
}

type finishRequest struct {
	SessionID string `json:"session_id"`
}

type reportResponse struct {
	SessionID string           `json:"session_id"`
	Summary   interview.Report `json:"summary"`
}

type tokenRequest struct {
	SessionID       string `json:"session_id"`
	ParticipantName string `json:"participant_name"`
}

func toQuestionPayload(q *interview.Question) *questionPayload {
	if q == nil {
		return nil
	}
	return &questionPayload{
		ID:         q.ID,
		Index:      q.Index,
		Kind:       string(q.Kind),
		Competency: q.Competency,
		Text:       q.Text,
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) startInterview(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body: " + err.Error()})
		return
	}

	result, err := s.svc.CreateSession(c.Request.Context(), orchestrator.CreateRequest{
		JobTitle:     req.JobTitle,
		Seniority:    interview.Seniority(req.Seniority),
		Language:     req.Language,
		NumQuestions: req.NumQuestions,
		Mode:         interview.Mode(req.Mode),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, startResponse{
		SessionID:     result.Session.ID,
		Mode:          string(result.Session.Mode),
		FirstQuestion: toQuestionPayload(result.FirstQuestion),
	})
}

func (s *Server) submitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body: " + err.Error()})
		return
	}

	result, err := s.svc.SubmitTextAnswer(c.Request.Context(), req.SessionID, req.QuestionID, req.UserAnswerText)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, answerResponse{
		ScoreOverall: result.Answer.OverallScore,
		DimensionScores: map[string]int{
			"relevance": result.Answer.Relevance,
			"clarity":   result.Answer.Clarity,
			"structure": result.Answer.Structure,
			"impact":    result.Answer.Impact,
		},
		CoachNotes:     result.Answer.CoachNotes,
		NextQuestion:   toQuestionPayload(result.NextQuestion),
		IsLastQuestion: result.IsLast,
	})
}

func (s *Server) finishInterview(c *gin.Context) {
	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body: " + err.Error()})
		return
	}

	report, err := s.svc.FinishScripted(c.Request.Context(), req.SessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, reportResponse{SessionID: req.SessionID, Summary: report})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) getReport(c *gin.Context) {
	sessionID := c.Param("id")
	report, err := s.svc.GenerateReport(c.Request.Context(), sessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reportResponse{SessionID: sessionID, Summary: report})
}

func (s *Server) mintToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body: " + err.Error()})
		return
	}

	creds, err := s.svc.MintRoomCredentials(c.Request.Context(), req.SessionID, req.ParticipantName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, creds)
}

// ─── Error mapping ────────────────────────────────────────────────────────────

// writeError maps service errors onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, broker.ErrNotConfigured) || resilience.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		observe.Logger(c.Request.Context(), s.log).Error("request failed", "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
