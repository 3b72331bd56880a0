package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/model"
)

// GateState is the outcome of the access gate.
type GateState string

const (
	GateDenied              GateState = "denied"
	GateNotStarted          GateState = "not_started"
	GateAlreadyParticipated GateState = "already_participated"
	GateEnded               GateState = "ended"
	GateActive              GateState = "active"
)

// GateAction is something the student may do from the gate.
type GateAction string

const (
	ActionGoBack      GateAction = "go_back"
	ActionRetry       GateAction = "retry"
	ActionViewResults GateAction = "view_results"
	ActionStartExam   GateAction = "start_exam"
)

// ErrStartFailed wraps an upstream failure to start an exam. The gate stays
// active so the student can try again.
var ErrStartFailed = errors.New("start exam failed")

// GateClosedError is returned by Start when the gate is not active.
type GateClosedError struct {
	State GateState
}

func (e *GateClosedError) Error() string {
	return fmt.Sprintf("exam gate is %s", e.State)
}

// GateView is what the student sees before entering an exam.
type GateView struct {
	State       GateState          `json:"state"`
	Exam        *model.ExamSummary `json:"exam,omitempty"`
	StartTime   *time.Time         `json:"startTime,omitempty"`
	EndTime     *time.Time         `json:"endTime,omitempty"`
	Rules       string             `json:"rules,omitempty"`
	Actions     []GateAction       `json:"actions"`
	ResultsPath string             `json:"resultsPath,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// EvaluateGate decides the gate state. Participation wins over timing, then
// upcoming, then ended. Missing access data denies.
//
// The window is judged against now whenever the exam carries its bounds. The
// server's timeStatus flags only stand in for a missing bound.
func EvaluateGate(access *model.ExamAccessData, exam *model.Exam, now time.Time) GateState {
	if access == nil {
		return GateDenied
	}
	if access.HasParticipated {
		return GateAlreadyParticipated
	}

	upcoming := access.TimeStatus.IsUpcoming
	ended := access.TimeStatus.IsAfterEnd
	if exam != nil && exam.StartTime != nil {
		upcoming = now.Before(*exam.StartTime)
	}
	if exam != nil && exam.EndTime != nil {
		ended = now.After(*exam.EndTime)
	}

	if upcoming {
		return GateNotStarted
	}
	if ended {
		return GateEnded
	}
	return GateActive
}

// AccessAPI is the slice of the backend the gate needs.
type AccessAPI interface {
	CheckAccess(ctx context.Context, examID, userID string) (*model.ExamAccessData, error)
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	StartExam(ctx context.Context, examID, userID string) error
}

// SessionOpener opens the exam interface once access is granted.
type SessionOpener interface {
	Open(ctx context.Context, claims *Claims, examID string) (*SessionView, error)
}

// AccessService runs the access gate.
type AccessService struct {
	api    AccessAPI
	cache  *QueryCache
	opener SessionOpener
	ledger LedgerRecorder
	now    func() time.Time
	starts singleflight.Group
	log    zerolog.Logger
}

// NewAccessService creates a new AccessService.
func NewAccessService(api AccessAPI, cache *QueryCache, opener SessionOpener, ledger LedgerRecorder, log zerolog.Logger) *AccessService {
	return &AccessService{
		api:    api,
		cache:  cache,
		opener: opener,
		ledger: ledger,
		now:    time.Now,
		log:    log.With().Str("component", "access_service").Logger(),
	}
}

// Check evaluates the gate for the caller. Fetch failures produce a denied
// view with go-back and retry actions rather than an error.
func (s *AccessService) Check(ctx context.Context, claims *Claims, examID string) *GateView {
	access, exam, err := s.load(ctx, claims.UserID, examID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", claims.UserID).Str("exam_id", examID).Msg("Gate data unavailable")
		return &GateView{
			State:   GateDenied,
			Actions: []GateAction{ActionGoBack, ActionRetry},
			Message: "পরীক্ষার তথ্য লোড করা যায়নি। আবার চেষ্টা করুন।",
		}
	}
	return buildGateView(EvaluateGate(access, exam, s.now()), exam)
}

func buildGateView(state GateState, exam *model.Exam) *GateView {
	view := &GateView{State: state}
	if exam != nil {
		summary := exam.Summary()
		view.Exam = &summary
		view.StartTime = exam.StartTime
		view.EndTime = exam.EndTime
	}

	switch state {
	case GateActive:
		if exam != nil {
			view.Rules = exam.Instructions
		}
		view.Actions = []GateAction{ActionStartExam, ActionGoBack}
	case GateAlreadyParticipated:
		if exam != nil {
			view.ResultsPath = ResultsPath(exam.ID)
		}
		view.Actions = []GateAction{ActionViewResults, ActionGoBack}
	case GateDenied:
		view.Actions = []GateAction{ActionGoBack, ActionRetry}
	default:
		view.Actions = []GateAction{ActionGoBack}
	}
	return view
}

func (s *AccessService) load(ctx context.Context, userID, examID string) (*model.ExamAccessData, *model.Exam, error) {
	access, err := cached(ctx, s.cache, config.CacheKey.ExamAccessKey(examID, userID), "", func(ctx context.Context) (*model.ExamAccessData, error) {
		return s.api.CheckAccess(ctx, examID, userID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("check access: %w", err)
	}
	exam, err := cached(ctx, s.cache, config.CacheKey.ExamMetaKey(examID), "", func(ctx context.Context) (*model.Exam, error) {
		return s.api.GetExam(ctx, examID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	return access, exam, nil
}

// Start re-checks the gate, starts the exam upstream and opens the session.
// Concurrent starts by the same user collapse into one upstream call.
func (s *AccessService) Start(ctx context.Context, claims *Claims, examID string) (*SessionView, error) {
	key := claims.UserID + "/" + examID
	v, err, _ := s.starts.Do(key, func() (interface{}, error) {
		return s.start(context.WithoutCancel(ctx), claims, examID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SessionView), nil
}

func (s *AccessService) start(ctx context.Context, claims *Claims, examID string) (*SessionView, error) {
	// Always decide on fresh access data.
	s.cache.Invalidate(ctx, config.CacheKey.ExamAccessKey(examID, claims.UserID))

	access, exam, err := s.load(ctx, claims.UserID, examID)
	if err != nil {
		return nil, err
	}
	if state := EvaluateGate(access, exam, s.now()); state != GateActive {
		return nil, &GateClosedError{State: state}
	}

	if err := s.api.StartExam(ctx, examID, claims.UserID); err != nil {
		s.log.Warn().Err(err).Str("user_id", claims.UserID).Str("exam_id", examID).Msg("Start exam failed")
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	s.cache.Invalidate(ctx, config.CacheKey.ExamAccessKey(examID, claims.UserID))
	s.ledger.Record(ctx, newSessionEvent(claims.UserID, examID, model.EventExamStarted, nil))
	s.log.Info().Str("user_id", claims.UserID).Str("exam_id", examID).Msg("Exam started")

	return s.opener.Open(ctx, claims, examID)
}
