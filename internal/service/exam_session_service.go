package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/model"
	"github.com/freeexam/examdesk/internal/timer"
	ws "github.com/freeexam/examdesk/internal/websocket"
)

// Exam session errors.
var (
	ErrAlreadyCompleted = errors.New("exam already completed")
	ErrExamNotStarted   = errors.New("exam not started")
	ErrSessionNotFound  = errors.New("no open session for this exam")
	ErrSessionInactive  = errors.New("session is no longer active")
	ErrUnknownQuestion  = errors.New("question is not part of this exam")
	ErrUnknownOption    = errors.New("option does not belong to this question")
	ErrSubmitInProgress = errors.New("submit already in progress")
	ErrSubmitFailed     = errors.New("submit failed")
)

const (
	defaultFlushTimeout  = 10 * time.Second
	defaultSubmitTimeout = 30 * time.Second
)

// SessionAPI is the slice of the backend an exam session needs.
type SessionAPI interface {
	UserExamStatus(ctx context.Context, userID, examID string) (*model.UserExamStatus, error)
	ExamQuestions(ctx context.Context, examID string) (*model.ExamPaper, error)
	SubmitExam(ctx context.Context, userID, examID string) error
}

// AnswerQueue delivers answer saves in the background.
type AnswerQueue interface {
	Enqueue(ctx context.Context, req model.SaveAnswerRequest) error
	Pending(ctx context.Context, examID, userID string) (map[string]model.PendingSave, error)
	PendingCount(ctx context.Context, examID, userID string) (int, error)
	Flush(ctx context.Context, examID, userID string) error
	Discard(ctx context.Context, examID, userID string) (int, error)
}

// ResultsPath is where a finished attempt's results are served.
func ResultsPath(examID string) string {
	return fmt.Sprintf("/api/v1/student/exams/%s/results", examID)
}

// SessionView is the exam interface as rendered to the student.
type SessionView struct {
	ExamID         string                      `json:"examId"`
	Exam           model.ExamSummary           `json:"exam"`
	Questions      []model.ExamQuestion        `json:"questions"`
	Answers        map[string]model.UserAnswer `json:"answers"`
	Stats          model.ProgressStats         `json:"stats"`
	Timer          timer.Snapshot              `json:"timer"`
	StartedAt      time.Time                   `json:"startedAt"`
	Active         bool                        `json:"active"`
	ConfirmOnLeave bool                        `json:"confirmOnLeave"`
	SyncPending    int                         `json:"syncPending"`
	ResultsPath    string                      `json:"resultsPath,omitempty"`
}

// Session is one student's attempt at one exam. The answer map is only
// mutated through SelectAnswer under mu.
type Session struct {
	mu sync.Mutex

	userID    string
	examID    string
	exam      model.ExamSummary
	questions []model.ExamQuestion
	options   map[string]map[string]struct{}
	answers   map[string]model.UserAnswer
	startedAt time.Time
	countdown *timer.Countdown

	// saves counts SelectAnswer calls that passed the active check and have
	// not finished queueing yet. Submit waits for them before settling.
	saves sync.WaitGroup

	active     bool
	submitting bool
	result     *model.SubmitResult
	closedAt   time.Time
}

func (s *Session) statsLocked() model.ProgressStats {
	total := len(s.questions)
	answered := 0
	for _, a := range s.answers {
		if a.IsAnswered {
			answered++
		}
	}
	return model.ProgressStats{Answered: answered, Unanswered: total - answered, Total: total}
}

func (s *Session) viewLocked() *SessionView {
	answers := make(map[string]model.UserAnswer, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	view := &SessionView{
		ExamID:         s.examID,
		Exam:           s.exam,
		Questions:      s.questions,
		Answers:        answers,
		Stats:          s.statsLocked(),
		Timer:          s.countdown.Snapshot(),
		StartedAt:      s.startedAt,
		Active:         s.active,
		ConfirmOnLeave: s.active,
	}
	if !s.active && s.result != nil {
		view.ResultsPath = s.result.ResultsPath
	}
	return view
}

// SessionOptions tunes an ExamSessionService.
type SessionOptions struct {
	FlushTimeout  time.Duration
	SubmitTimeout time.Duration
	TimerOptions  []timer.Option
	Now           func() time.Time
}

// ExamSessionService owns the exam interface and submission controller for
// every open session on this instance.
type ExamSessionService struct {
	api    SessionAPI
	queue  AnswerQueue
	ledger LedgerRecorder
	events EventPublisher
	cache  *QueryCache
	opts   SessionOptions
	log    zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	api SessionAPI,
	queue AnswerQueue,
	ledger LedgerRecorder,
	events EventPublisher,
	cache *QueryCache,
	opts SessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ExamSessionService{
		api:      api,
		queue:    queue,
		ledger:   ledger,
		events:   events,
		cache:    cache,
		opts:     opts,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

func sessionKey(userID, examID string) string {
	return userID + "\x00" + examID
}

func (s *ExamSessionService) lookup(userID, examID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey(userID, examID)]
}

// Open resumes the caller's session or builds one from the backend's status
// and question paper, seeding answers from existing and still-pending saves.
func (s *ExamSessionService) Open(ctx context.Context, claims *Claims, examID string) (*SessionView, error) {
	if sess := s.lookup(claims.UserID, examID); sess != nil {
		sess.mu.Lock()
		if sess.active {
			view := sess.viewLocked()
			sess.mu.Unlock()
			view.SyncPending = s.pendingCount(ctx, examID, claims.UserID)
			return view, nil
		}
		sess.mu.Unlock()
		return nil, ErrAlreadyCompleted
	}

	status, err := s.api.UserExamStatus(ctx, claims.UserID, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam status: %w", err)
	}
	if status.HasCompleted {
		return nil, ErrAlreadyCompleted
	}
	if !status.HasStarted {
		return nil, ErrExamNotStarted
	}

	paper, err := cached(ctx, s.cache, config.CacheKey.ExamQuestionsKey(examID), "", func(ctx context.Context) (*model.ExamPaper, error) {
		return s.api.ExamQuestions(ctx, examID)
	})
	if err != nil {
		return nil, fmt.Errorf("get exam questions: %w", err)
	}

	pending, err := s.queue.Pending(ctx, examID, claims.UserID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", claims.UserID).Str("exam_id", examID).Msg("Pending saves unavailable")
	}

	sess := s.buildSession(claims.UserID, examID, status, paper, pending)

	s.mu.Lock()
	key := sessionKey(claims.UserID, examID)
	if existing, ok := s.sessions[key]; ok {
		// A concurrent Open won the race.
		s.mu.Unlock()
		existing.mu.Lock()
		view := existing.viewLocked()
		existing.mu.Unlock()
		view.SyncPending = s.pendingCount(ctx, examID, claims.UserID)
		return view, nil
	}
	s.sessions[key] = sess
	s.mu.Unlock()

	sess.countdown.Start(s.baseCtx)

	s.ledger.Record(ctx, newSessionEvent(claims.UserID, examID, model.EventSessionOpened, map[string]interface{}{
		"answered":  len(sess.answers),
		"remaining": sess.countdown.Remaining(),
	}))
	s.log.Info().
		Str("user_id", claims.UserID).
		Str("exam_id", examID).
		Int("questions", len(sess.questions)).
		Msg("Session opened")

	sess.mu.Lock()
	view := sess.viewLocked()
	sess.mu.Unlock()
	view.SyncPending = len(pending)
	return view, nil
}

func (s *ExamSessionService) buildSession(userID, examID string, status *model.UserExamStatus, paper *model.ExamPaper, pending map[string]model.PendingSave) *Session {
	questions := make([]model.ExamQuestion, len(paper.Questions))
	copy(questions, paper.Questions)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	options := make(map[string]map[string]struct{}, len(questions))
	for i := range questions {
		q := &questions[i]
		// Never leak the key to the student.
		q.Question.CorrectOption = ""
		q.Question.Explanation = ""
		opts := make([]model.Option, len(q.Question.Options))
		set := make(map[string]struct{}, len(opts))
		for j, o := range q.Question.Options {
			o.IsCorrect = false
			opts[j] = o
			set[o.ID] = struct{}{}
		}
		q.Question.Options = opts
		options[q.Question.ID] = set
	}

	// Answers for questions or options outside this paper are dropped.
	known := func(qid, oid string) bool {
		set, ok := options[qid]
		if !ok {
			return false
		}
		_, ok = set[oid]
		return ok
	}
	answers := make(map[string]model.UserAnswer, len(status.ExistingAnswers)+len(pending))
	for _, a := range status.ExistingAnswers {
		if !known(a.QuestionID, a.OptionID) {
			continue
		}
		answers[a.QuestionID] = model.UserAnswer{QuestionID: a.QuestionID, OptionID: a.OptionID, IsAnswered: true, TimeTaken: a.TimeTaken}
	}
	for qid, p := range pending {
		if !known(qid, p.OptionID) {
			continue
		}
		answers[qid] = model.UserAnswer{QuestionID: qid, OptionID: p.OptionID, IsAnswered: true, TimeTaken: p.TimeTaken}
	}

	startedAt := s.opts.Now()
	if status.StartedAt != nil && !status.StartedAt.IsZero() {
		startedAt = *status.StartedAt
	}

	sess := &Session{
		userID:    userID,
		examID:    examID,
		exam:      paper.ExamData.Summary(),
		questions: questions,
		options:   options,
		answers:   answers,
		startedAt: startedAt,
		active:    true,
	}

	timerOpts := append([]timer.Option{
		timer.WithClock(s.opts.Now),
		timer.WithOnTick(func(snap timer.Snapshot) {
			s.events.Publish(s.baseCtx, examID, userID, ws.ServerEvent{Event: ws.EventTick, Data: snap})
		}),
	}, s.opts.TimerOptions...)
	sess.countdown = timer.New(paper.ExamData.DurationInMinutes, status.StartedAt, func() {
		s.onTimeUp(userID, examID)
	}, timerOpts...)

	return sess
}

func (s *ExamSessionService) onTimeUp(userID, examID string) {
	s.events.Publish(s.baseCtx, examID, userID, ws.ServerEvent{Event: ws.EventTimeUp})

	ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.SubmitTimeout)
	defer cancel()
	if _, err := s.submit(ctx, userID, examID, model.TriggerTimeout); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("exam_id", examID).Msg("Auto-submit failed")
	}
}

// View returns the current state of an open session without touching the backend.
func (s *ExamSessionService) View(ctx context.Context, claims *Claims, examID string) (*SessionView, error) {
	sess := s.lookup(claims.UserID, examID)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	sess.mu.Lock()
	view := sess.viewLocked()
	sess.mu.Unlock()
	view.SyncPending = s.pendingCount(ctx, examID, claims.UserID)
	return view, nil
}

// SelectAnswer records the caller's choice locally and queues the save. The
// local answer is kept even if queueing fails.
func (s *ExamSessionService) SelectAnswer(ctx context.Context, claims *Claims, examID, questionID, optionID string) (model.ProgressStats, error) {
	sess := s.lookup(claims.UserID, examID)
	if sess == nil {
		return model.ProgressStats{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	if !sess.active || sess.submitting {
		sess.mu.Unlock()
		return model.ProgressStats{}, ErrSessionInactive
	}
	opts, ok := sess.options[questionID]
	if !ok {
		sess.mu.Unlock()
		return model.ProgressStats{}, ErrUnknownQuestion
	}
	if _, ok := opts[optionID]; !ok {
		sess.mu.Unlock()
		return model.ProgressStats{}, ErrUnknownOption
	}

	timeTaken := int(s.opts.Now().Sub(sess.startedAt) / time.Second)
	if timeTaken < 0 {
		timeTaken = 0
	}
	sess.answers[questionID] = model.UserAnswer{
		QuestionID: questionID,
		OptionID:   optionID,
		IsAnswered: true,
		TimeTaken:  timeTaken,
	}
	stats := sess.statsLocked()
	sess.saves.Add(1)
	sess.mu.Unlock()
	defer sess.saves.Done()

	req := model.SaveAnswerRequest{
		UserID:     claims.UserID,
		ExamID:     examID,
		QuestionID: questionID,
		OptionID:   optionID,
		TimeTaken:  timeTaken,
	}
	if err := s.queue.Enqueue(ctx, req); err != nil {
		s.log.Error().Err(err).
			Str("user_id", claims.UserID).
			Str("exam_id", examID).
			Str("question_id", questionID).
			Msg("Queue answer save failed")
		s.events.Publish(ctx, examID, claims.UserID, ws.ServerEvent{
			Event: ws.EventSaveFailed,
			Data:  ws.SaveFailedData{QuestionID: questionID, OptionID: optionID, Reason: err.Error()},
		})
	}
	return stats, nil
}

// Stats returns answered/unanswered counts for an open session.
func (s *ExamSessionService) Stats(claims *Claims, examID string) (model.ProgressStats, error) {
	sess := s.lookup(claims.UserID, examID)
	if sess == nil {
		return model.ProgressStats{}, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.statsLocked(), nil
}

// PreviewSubmit returns the data for the submit confirmation dialog.
func (s *ExamSessionService) PreviewSubmit(claims *Claims, examID string) (*model.SubmitPreview, error) {
	stats, err := s.Stats(claims, examID)
	if err != nil {
		return nil, err
	}
	preview := &model.SubmitPreview{ProgressStats: stats}
	if stats.Unanswered > 0 {
		preview.Warning = fmt.Sprintf("আপনি এখনও %d টি প্রশ্নের উত্তর দেননি। জমা দেওয়ার পর আর পরিবর্তন করা যাবে না।", stats.Unanswered)
	}
	return preview, nil
}

// Submit finalizes the caller's attempt.
func (s *ExamSessionService) Submit(ctx context.Context, claims *Claims, examID string, trigger model.SubmitTrigger) (*model.SubmitResult, error) {
	return s.submit(ctx, claims.UserID, examID, trigger)
}

func (s *ExamSessionService) submit(ctx context.Context, userID, examID string, trigger model.SubmitTrigger) (*model.SubmitResult, error) {
	sess := s.lookup(userID, examID)
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	if !sess.active && sess.result != nil {
		res := *sess.result
		res.AlreadySubmitted = true
		sess.mu.Unlock()
		return &res, nil
	}
	if sess.submitting {
		sess.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	sess.submitting = true
	sess.mu.Unlock()

	// No new saves start once submitting is set; wait out the ones in flight.
	sess.saves.Wait()
	s.settlePendingSaves(ctx, userID, examID)

	log := s.log.With().Str("user_id", userID).Str("exam_id", examID).Str("trigger", string(trigger)).Logger()

	alreadySubmitted := false
	if err := s.api.SubmitExam(ctx, userID, examID); err != nil {
		status, statusErr := s.api.UserExamStatus(ctx, userID, examID)
		if statusErr != nil || !status.HasCompleted {
			sess.mu.Lock()
			sess.submitting = false
			sess.mu.Unlock()

			s.ledger.Record(ctx, newSessionEvent(userID, examID, model.EventSubmitFailed, map[string]interface{}{
				"trigger": trigger,
				"error":   err.Error(),
			}))
			log.Warn().Err(err).Msg("Submit failed, session stays active")
			return nil, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		}
		log.Info().Err(err).Msg("Submit errored but backend reports completion")
		alreadySubmitted = true
	}

	result := &model.SubmitResult{
		ResultsPath:      ResultsPath(examID),
		Trigger:          trigger,
		AlreadySubmitted: alreadySubmitted,
	}

	sess.mu.Lock()
	sess.active = false
	sess.submitting = false
	sess.result = result
	sess.closedAt = s.opts.Now()
	sess.mu.Unlock()
	sess.countdown.Stop()

	event := model.EventSubmitted
	if trigger == model.TriggerTimeout {
		event = model.EventAutoSubmitted
	}
	s.ledger.Record(ctx, newSessionEvent(userID, examID, event, map[string]interface{}{
		"alreadySubmitted": alreadySubmitted,
	}))

	s.cache.InvalidateTag(ctx, config.CacheKey.ExamTag(examID))
	s.cache.Invalidate(ctx,
		config.CacheKey.ExamAccessKey(examID, userID),
		config.CacheKey.AnswerSheetKey(examID, userID),
	)

	s.events.Publish(ctx, examID, userID, ws.ServerEvent{Event: ws.EventSubmitted, Data: result})
	log.Info().Bool("already_submitted", alreadySubmitted).Msg("Exam submitted")

	out := *result
	return &out, nil
}

// settlePendingSaves flushes queued saves within a bound and cancels the rest.
func (s *ExamSessionService) settlePendingSaves(ctx context.Context, userID, examID string) {
	flushCtx, cancel := context.WithTimeout(ctx, s.opts.FlushTimeout)
	defer cancel()

	if err := s.queue.Flush(flushCtx, examID, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("exam_id", examID).Msg("Flush before submit incomplete")
	}
	dropped, err := s.queue.Discard(ctx, examID, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("exam_id", examID).Msg("Discard pending saves failed")
		return
	}
	if dropped > 0 {
		s.log.Warn().Int("dropped", dropped).Str("user_id", userID).Str("exam_id", examID).Msg("Cancelled unsent answer saves")
	}
}

func (s *ExamSessionService) pendingCount(ctx context.Context, examID, userID string) int {
	n, err := s.queue.PendingCount(ctx, examID, userID)
	if err != nil {
		return 0
	}
	return n
}

// RetryExpiredSubmits re-runs the timeout submit for sessions whose countdown
// expired while a previous submit failed. It returns how many succeeded.
func (s *ExamSessionService) RetryExpiredSubmits(ctx context.Context) int {
	type target struct{ userID, examID string }
	var due []target

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		if sess.active && !sess.submitting && sess.countdown.Snapshot().Expired {
			due = append(due, target{sess.userID, sess.examID})
		}
		sess.mu.Unlock()
	}
	s.mu.Unlock()

	done := 0
	for _, t := range due {
		if _, err := s.submit(ctx, t.userID, t.examID, model.TriggerTimeout); err != nil {
			s.log.Warn().Err(err).Str("user_id", t.userID).Str("exam_id", t.examID).Msg("Retry auto-submit failed")
			continue
		}
		done++
	}
	return done
}

// EvictClosed forgets sessions that were closed before cutoff.
func (s *ExamSessionService) EvictClosed(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, sess := range s.sessions {
		sess.mu.Lock()
		stale := !sess.active && !sess.closedAt.IsZero() && sess.closedAt.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			delete(s.sessions, key)
			evicted++
		}
	}
	return evicted
}

// ActiveCount returns how many sessions are still in progress.
func (s *ExamSessionService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		sess.mu.Lock()
		if sess.active {
			n++
		}
		sess.mu.Unlock()
	}
	return n
}

// Shutdown stops every countdown. Sessions are not submitted; students
// resume them by reopening, and the backend's own deadline still applies.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.countdown.Stop()
	}
	s.cancel()
}
