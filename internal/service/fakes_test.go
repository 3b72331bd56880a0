package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/freeexam/examdesk/internal/model"
	ws "github.com/freeexam/examdesk/internal/websocket"
)

type fakeExamAPI struct {
	checkAccessFn func(ctx context.Context, examID, userID string) (*model.ExamAccessData, error)
	getExamFn     func(ctx context.Context, examID string) (*model.Exam, error)
	startExamFn   func(ctx context.Context, examID, userID string) error
	statusFn      func(ctx context.Context, userID, examID string) (*model.UserExamStatus, error)
	questionsFn   func(ctx context.Context, examID string) (*model.ExamPaper, error)
	submitFn      func(ctx context.Context, userID, examID string) error
}

func (f *fakeExamAPI) CheckAccess(ctx context.Context, examID, userID string) (*model.ExamAccessData, error) {
	return f.checkAccessFn(ctx, examID, userID)
}

func (f *fakeExamAPI) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	return f.getExamFn(ctx, examID)
}

func (f *fakeExamAPI) StartExam(ctx context.Context, examID, userID string) error {
	return f.startExamFn(ctx, examID, userID)
}

func (f *fakeExamAPI) UserExamStatus(ctx context.Context, userID, examID string) (*model.UserExamStatus, error) {
	return f.statusFn(ctx, userID, examID)
}

func (f *fakeExamAPI) ExamQuestions(ctx context.Context, examID string) (*model.ExamPaper, error) {
	return f.questionsFn(ctx, examID)
}

func (f *fakeExamAPI) SubmitExam(ctx context.Context, userID, examID string) error {
	return f.submitFn(ctx, userID, examID)
}

// fakeQueue keeps pending saves in memory and records the calls it sees.
type fakeQueue struct {
	mu         sync.Mutex
	pending    map[string]model.PendingSave
	calls      []string
	enqueueErr error

	// When set, Enqueue signals enqueueEntered and blocks until enqueueGate closes.
	enqueueEntered chan struct{}
	enqueueGate    chan struct{}
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{pending: make(map[string]model.PendingSave)}
}

func (q *fakeQueue) record(call string) {
	q.calls = append(q.calls, call)
}

func (q *fakeQueue) Enqueue(_ context.Context, req model.SaveAnswerRequest) error {
	if q.enqueueGate != nil {
		close(q.enqueueEntered)
		<-q.enqueueGate
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.record("enqueue")
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.pending[req.QuestionID] = model.PendingSave{SaveAnswerRequest: req}
	return nil
}

func (q *fakeQueue) Pending(context.Context, string, string) (map[string]model.PendingSave, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]model.PendingSave, len(q.pending))
	for k, v := range q.pending {
		out[k] = v
	}
	return out, nil
}

func (q *fakeQueue) PendingCount(context.Context, string, string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

func (q *fakeQueue) Flush(context.Context, string, string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.record("flush")
	q.pending = make(map[string]model.PendingSave)
	return nil
}

func (q *fakeQueue) Discard(context.Context, string, string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.record("discard")
	n := len(q.pending)
	q.pending = make(map[string]model.PendingSave)
	return n, nil
}

func (q *fakeQueue) Calls() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.calls...)
}

type fakeLedger struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (l *fakeLedger) Record(_ context.Context, ev model.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *fakeLedger) Has(typ model.SessionEventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Event == typ {
			return true
		}
	}
	return false
}

type fakeEvents struct {
	mu     sync.Mutex
	events []ws.ServerEvent
}

func (e *fakeEvents) Publish(_ context.Context, _, _ string, ev ws.ServerEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *fakeEvents) Count(event ws.Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Event == event {
			n++
		}
	}
	return n
}

func timePtr(t time.Time) *time.Time { return &t }

// samplePaper is a three-question exam of the given duration.
func samplePaper(durationMinutes int) *model.ExamPaper {
	q := func(id string, order int, opts ...string) model.ExamQuestion {
		options := make([]model.Option, len(opts))
		for i, o := range opts {
			options[i] = model.Option{ID: o, Order: i, Text: "option " + o, IsCorrect: i == 0}
		}
		return model.ExamQuestion{
			QuestionID: id,
			Marks:      1,
			Order:      order,
			Question:   model.Question{ID: id, Text: "question " + id, Options: options, CorrectOption: opts[0], Explanation: "because"},
		}
	}
	return &model.ExamPaper{
		ExamData: model.Exam{ID: "e1", Title: "Physics mock", DurationInMinutes: durationMinutes, TotalMarks: 3},
		Questions: []model.ExamQuestion{
			q("q3", 3, "o5", "o6"),
			q("q1", 1, "o1", "o2"),
			q("q2", 2, "o3", "o4"),
		},
	}
}

// newTestRedis returns a client for an in-memory Redis that lives as long as t.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
