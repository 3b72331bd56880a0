package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/freeexam/examdesk/internal/model"
	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/service"
	"github.com/freeexam/examdesk/internal/validator"
)

// Authoring is the admin surface over packages, exams and questions.
type Authoring interface {
	ListPackages(ctx context.Context) ([]model.Package, error)
	CreatePackage(ctx context.Context, req model.CreatePackageRequest) (*model.Package, error)
	ListExams(ctx context.Context, packageID string) ([]model.Exam, error)
	CreateExam(ctx context.Context, claims *service.Claims, req model.CreateExamRequest) (*model.Exam, error)
	CreateQuestion(ctx context.Context, examID string, req model.CreateQuestionRequest) (*model.Question, error)
	ImportQuestions(ctx context.Context, examID, filename string, r io.Reader) (*model.ImportReport, error)
	ListSessionEvents(ctx context.Context, filter model.SessionEventFilter) ([]model.SessionEvent, int64, error)
}

// AdminHandler handles admin authoring endpoints.
type AdminHandler struct {
	admin          Authoring
	maxUploadBytes int64
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin Authoring, maxUploadBytes int64) *AdminHandler {
	return &AdminHandler{admin: admin, maxUploadBytes: maxUploadBytes}
}

// ListPackages godoc
// GET /api/v1/admin/packages
func (h *AdminHandler) ListPackages(c *gin.Context) {
	packages, err := h.admin.ListPackages(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if packages == nil {
		packages = []model.Package{}
	}
	response.Success(c, http.StatusOK, gin.H{"packages": packages})
}

// CreatePackage godoc
// POST /api/v1/admin/packages
func (h *AdminHandler) CreatePackage(c *gin.Context) {
	var req model.CreatePackageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	pkg, err := h.admin.CreatePackage(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"package": pkg})
}

// ListExams godoc
// GET /api/v1/admin/packages/:package_id/exams
func (h *AdminHandler) ListExams(c *gin.Context) {
	packageID, ok := pathID(c, "package_id")
	if !ok {
		return
	}

	exams, err := h.admin.ListExams(c.Request.Context(), packageID)
	if err != nil {
		fail(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// CreateExam godoc
// POST /api/v1/admin/exams
func (h *AdminHandler) CreateExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.admin.CreateExam(c.Request.Context(), claims, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// CreateQuestion godoc
// POST /api/v1/admin/exams/:exam_id/questions
func (h *AdminHandler) CreateQuestion(c *gin.Context) {
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.admin.CreateQuestion(c.Request.Context(), examID, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// UploadQuestions godoc
// POST /api/v1/admin/exams/:exam_id/questions/upload (multipart, field "file")
// Accepts .xlsx, .yaml, .yml or .json and returns a per-row import report.
func (h *AdminHandler) UploadQuestions(c *gin.Context) {
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	report, err := h.admin.ImportQuestions(c.Request.Context(), examID, header.Filename, file)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// ListSessionEvents godoc
// GET /api/v1/admin/session-events?user_id=&exam_id=&event=&since=&page=&per_page=
func (h *AdminHandler) ListSessionEvents(c *gin.Context) {
	var filter model.SessionEventFilter
	if fields := validator.BindQuery(c, &filter); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	events, total, err := h.admin.ListSessionEvents(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"events": events}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: int((total + int64(perPage) - 1) / int64(perPage)),
	})
}
