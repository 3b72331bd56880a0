package service

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/model"
)

// AdminAPI is the authoring slice of the backend.
type AdminAPI interface {
	ListPackages(ctx context.Context) ([]model.Package, error)
	CreatePackage(ctx context.Context, req model.CreatePackageRequest) (*model.Package, error)
	ListExamsByPackage(ctx context.Context, packageID string) ([]model.Exam, error)
	CreateExam(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error)
	CreateQuestion(ctx context.Context, examID string, req model.CreateQuestionRequest) (*model.Question, error)
	BulkCreateQuestions(ctx context.Context, examID string, questions []model.CreateQuestionRequest) error
}

// SessionEventReader lists ledger rows.
type SessionEventReader interface {
	List(ctx context.Context, filter model.SessionEventFilter) ([]model.SessionEvent, int64, error)
}

// AdminService proxies authoring operations and validates them before any
// network call.
type AdminService struct {
	api    AdminAPI
	events SessionEventReader
	cache  *QueryCache
	log    zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(api AdminAPI, events SessionEventReader, cache *QueryCache, log zerolog.Logger) *AdminService {
	return &AdminService{
		api:    api,
		events: events,
		cache:  cache,
		log:    log.With().Str("component", "admin_service").Logger(),
	}
}

func (s *AdminService) ListPackages(ctx context.Context) ([]model.Package, error) {
	return s.api.ListPackages(ctx)
}

func (s *AdminService) CreatePackage(ctx context.Context, req model.CreatePackageRequest) (*model.Package, error) {
	pkg, err := s.api.CreatePackage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	s.log.Info().Str("package_id", pkg.ID).Msg("Package created")
	return pkg, nil
}

func (s *AdminService) ListExams(ctx context.Context, packageID string) ([]model.Exam, error) {
	return s.api.ListExamsByPackage(ctx, packageID)
}

// CreateExam creates an exam on behalf of the calling admin. New exams start as drafts.
func (s *AdminService) CreateExam(ctx context.Context, claims *Claims, req model.CreateExamRequest) (*model.Exam, error) {
	if req.Status == "" {
		req.Status = model.ExamStatusDraft
	}
	req.CreatedBy = claims.UserID

	exam, err := s.api.CreateExam(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", exam.ID).Str("package_id", req.PackageID).Msg("Exam created")
	return exam, nil
}

// CreateQuestion adds one question to an exam.
func (s *AdminService) CreateQuestion(ctx context.Context, examID string, req model.CreateQuestionRequest) (*model.Question, error) {
	if err := ValidateQuestion(&req); err != nil {
		return nil, err
	}
	q, err := s.api.CreateQuestion(ctx, examID, req)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	s.invalidateExam(ctx, examID)
	return q, nil
}

// ImportQuestions parses an uploaded file and sends its valid rows in one
// bulk call. Invalid rows are reported, not sent.
func (s *AdminService) ImportQuestions(ctx context.Context, examID, filename string, r io.Reader) (*model.ImportReport, error) {
	valid, report, err := BuildImport(filename, r)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return report, nil
	}

	if err := s.api.BulkCreateQuestions(ctx, examID, valid); err != nil {
		return nil, fmt.Errorf("bulk create questions: %w", err)
	}
	s.invalidateExam(ctx, examID)

	s.log.Info().
		Str("exam_id", examID).
		Int("imported", report.SuccessRows).
		Int("rejected", report.FailedRows).
		Msg("Questions imported")
	return report, nil
}

// ListSessionEvents returns one page of the session ledger.
func (s *AdminService) ListSessionEvents(ctx context.Context, filter model.SessionEventFilter) ([]model.SessionEvent, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 50
	}
	return s.events.List(ctx, filter)
}

func (s *AdminService) invalidateExam(ctx context.Context, examID string) {
	s.cache.Invalidate(ctx,
		config.CacheKey.ExamQuestionsKey(examID),
		config.CacheKey.ExamMetaKey(examID),
	)
}
