package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/freeexam/examdesk/internal/model"
	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/service"
	"github.com/freeexam/examdesk/internal/validator"
)

// ExamGate decides whether a student may enter an exam.
type ExamGate interface {
	Check(ctx context.Context, claims *service.Claims, examID string) *service.GateView
	Start(ctx context.Context, claims *service.Claims, examID string) (*service.SessionView, error)
}

// ExamSessions runs the exam interface and submission controller.
type ExamSessions interface {
	Open(ctx context.Context, claims *service.Claims, examID string) (*service.SessionView, error)
	SelectAnswer(ctx context.Context, claims *service.Claims, examID, questionID, optionID string) (model.ProgressStats, error)
	PreviewSubmit(claims *service.Claims, examID string) (*model.SubmitPreview, error)
	Submit(ctx context.Context, claims *service.Claims, examID string, trigger model.SubmitTrigger) (*model.SubmitResult, error)
}

// ExamResults serves post-submission views.
type ExamResults interface {
	Leaderboard(ctx context.Context, claims *service.Claims, examID string, page, limit int) (*model.LeaderboardPage, error)
	AnswerSheet(ctx context.Context, claims *service.Claims, examID string) (*model.AnswerSheet, error)
}

// StudentPortalHandler handles student-facing endpoints (gate, exam taking, results).
type StudentPortalHandler struct {
	gate     ExamGate
	sessions ExamSessions
	results  ExamResults
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(gate ExamGate, sessions ExamSessions, results ExamResults) *StudentPortalHandler {
	return &StudentPortalHandler{
		gate:     gate,
		sessions: sessions,
		results:  results,
	}
}

// GetGate godoc
// GET /api/v1/student/exams/:exam_id/gate
// Returns the access gate view. Backend failures yield a denied view, not an error.
func (h *StudentPortalHandler) GetGate(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, h.gate.Check(c.Request.Context(), claims, examID))
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Starts the exam on the backend and opens the session. Safe to retry.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.gate.Start(c.Request.Context(), claims, examID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// GetSession godoc
// GET /api/v1/student/exams/:exam_id/session
// Opens or resumes the session. Covers page reloads: answers and the
// remaining time come back with the view.
func (h *StudentPortalHandler) GetSession(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.sessions.Open(c.Request.Context(), claims, examID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyCompleted) {
			response.Success(c, http.StatusOK, gin.H{
				"completed":   true,
				"resultsPath": service.ResultsPath(examID),
			})
			return
		}
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SelectAnswer godoc
// POST /api/v1/student/exams/:exam_id/answers
// Records an answer and returns the updated progress counts.
func (h *StudentPortalHandler) SelectAnswer(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	stats, err := h.sessions.SelectAnswer(c.Request.Context(), claims, examID, req.QuestionID, req.OptionID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}

// PreviewSubmit godoc
// GET /api/v1/student/exams/:exam_id/submit/preview
// Returns the data for the submit confirmation dialog.
func (h *StudentPortalHandler) PreviewSubmit(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	preview, err := h.sessions.PreviewSubmit(claims, examID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, preview)
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// Manual submit, sent after the student confirms the dialog.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	result, err := h.sessions.Submit(c.Request.Context(), claims, examID, model.TriggerManual)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetLeaderboard godoc
// GET /api/v1/student/exams/:exam_id/leaderboard?page=&limit=
func (h *StudentPortalHandler) GetLeaderboard(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	page, limit := service.ClampPage(queryInt(c, "page", 1), queryInt(c, "limit", 0))
	board, err := h.results.Leaderboard(c.Request.Context(), claims, examID, page, limit)
	if err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, board, &response.Pagination{
		Page:       page,
		PerPage:    limit,
		TotalPages: board.TotalPages,
	})
}

// GetResults godoc
// GET /api/v1/student/exams/:exam_id/results
// Returns the caller's answer sheet once the exam is submitted.
func (h *StudentPortalHandler) GetResults(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	sheet, err := h.results.AnswerSheet(c.Request.Context(), claims, examID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, sheet)
}
