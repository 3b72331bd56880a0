package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/freeexam"
	"github.com/freeexam/examdesk/internal/model"
	ws "github.com/freeexam/examdesk/internal/websocket"
)

type fakeSaver struct {
	mu     sync.Mutex
	saveFn func(ctx context.Context, req model.SaveAnswerRequest) error
	sent   []model.SaveAnswerRequest
}

func (f *fakeSaver) SaveAnswer(ctx context.Context, req model.SaveAnswerRequest) error {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	fn := f.saveFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, req)
}

func (f *fakeSaver) Sent() []model.SaveAnswerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SaveAnswerRequest(nil), f.sent...)
}

type syncFixture struct {
	sync   *AnswerSync
	saver  *fakeSaver
	ledger *fakeLedger
	events *fakeEvents
}

func newSyncFixture(t *testing.T, maxAttempts int) *syncFixture {
	t.Helper()
	f := &syncFixture{saver: &fakeSaver{}, ledger: &fakeLedger{}, events: &fakeEvents{}}
	f.sync = NewAnswerSync(newTestRedis(t), f.saver, f.ledger, f.events, maxAttempts, time.Millisecond, zerolog.Nop())
	return f
}

func saveReq(questionID, optionID string) model.SaveAnswerRequest {
	return model.SaveAnswerRequest{UserID: "u1", ExamID: "e1", QuestionID: questionID, OptionID: optionID, TimeTaken: 42}
}

func isDirty(t *testing.T, s *AnswerSync) bool {
	t.Helper()
	key := config.CacheKey.PendingAnswersKey("e1", "u1")
	ok, err := s.rdb.SIsMember(context.Background(), config.WorkerKey.DirtySyncSessions, key).Result()
	if err != nil {
		t.Fatalf("dirty lookup: %v", err)
	}
	return ok
}

func TestEnqueueKeepsLatestSelectionPerQuestion(t *testing.T) {
	f := newSyncFixture(t, 3)
	ctx := context.Background()

	for _, req := range []model.SaveAnswerRequest{saveReq("q1", "o1"), saveReq("q1", "o2"), saveReq("q2", "o3")} {
		if err := f.sync.Enqueue(ctx, req); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	pending, err := f.sync.Pending(ctx, "e1", "u1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending["q1"].OptionID != "o2" || pending["q2"].OptionID != "o3" {
		t.Fatalf("unexpected pending saves: %+v", pending)
	}
	if n, _ := f.sync.PendingCount(ctx, "e1", "u1"); n != 2 {
		t.Fatalf("expected 2 pending, got %d", n)
	}
	if !isDirty(t, f.sync) {
		t.Fatal("expected the session to be marked dirty")
	}
}

func TestProcessNextDeliversAndClears(t *testing.T) {
	f := newSyncFixture(t, 3)
	ctx := context.Background()
	if err := f.sync.Enqueue(ctx, saveReq("q1", "o1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	found, failed, err := f.sync.ProcessNext(ctx)
	if err != nil || !found || failed {
		t.Fatalf("ProcessNext() = %v, %v, %v", found, failed, err)
	}
	if sent := f.saver.Sent(); len(sent) != 1 || sent[0].OptionID != "o1" || sent[0].TimeTaken != 42 {
		t.Fatalf("unexpected deliveries: %+v", sent)
	}
	if n, _ := f.sync.PendingCount(ctx, "e1", "u1"); n != 0 {
		t.Fatalf("expected nothing pending, got %d", n)
	}
	if isDirty(t, f.sync) {
		t.Fatal("a drained session must not stay dirty")
	}
	if f.events.Count(ws.EventSaved) != 1 {
		t.Fatal("expected a saved event")
	}

	found, _, err = f.sync.ProcessNext(ctx)
	if err != nil || found {
		t.Fatalf("expected an idle round, got found=%v err=%v", found, err)
	}
}

func TestProcessNextRetriesThenGivesUp(t *testing.T) {
	f := newSyncFixture(t, 2)
	f.saver.saveFn = func(context.Context, model.SaveAnswerRequest) error {
		return &freeexam.APIError{Status: http.StatusServiceUnavailable, Message: "maintenance", Path: "/freeExam/answers"}
	}
	ctx := context.Background()
	if err := f.sync.Enqueue(ctx, saveReq("q1", "o1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	found, failed, err := f.sync.ProcessNext(ctx)
	if err != nil || !found || !failed {
		t.Fatalf("first round = %v, %v, %v", found, failed, err)
	}
	pending, _ := f.sync.Pending(ctx, "e1", "u1")
	if pending["q1"].Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %+v", pending["q1"])
	}
	if !isDirty(t, f.sync) {
		t.Fatal("a session with undelivered saves must stay dirty")
	}
	if f.ledger.Has(model.EventAnswerSyncFailed) {
		t.Fatal("gave up too early")
	}

	if _, _, err := f.sync.ProcessNext(ctx); err != nil {
		t.Fatalf("second round: %v", err)
	}
	if n, _ := f.sync.PendingCount(ctx, "e1", "u1"); n != 0 {
		t.Fatalf("expected the save to be dropped, %d pending", n)
	}
	if !f.ledger.Has(model.EventAnswerSyncFailed) {
		t.Fatal("expected answer_sync_failed ledger event")
	}
	if f.events.Count(ws.EventSaveFailed) != 1 {
		t.Fatalf("expected one save_failed event, got %d", f.events.Count(ws.EventSaveFailed))
	}
	if isDirty(t, f.sync) {
		t.Fatal("session should be clean once everything is dropped")
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	f := newSyncFixture(t, 5)
	f.saver.saveFn = func(context.Context, model.SaveAnswerRequest) error {
		return &freeexam.APIError{Status: http.StatusBadRequest, Message: "invalid option"}
	}
	ctx := context.Background()
	if err := f.sync.Enqueue(ctx, saveReq("q1", "o1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, failed, err := f.sync.ProcessNext(ctx); err != nil || !failed {
		t.Fatalf("ProcessNext() failed=%v err=%v", failed, err)
	}
	if len(f.saver.Sent()) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(f.saver.Sent()))
	}
	if n, _ := f.sync.PendingCount(ctx, "e1", "u1"); n != 0 {
		t.Fatalf("expected the save to be dropped, %d pending", n)
	}
}

func TestDeliveryKeepsSelectionMadeMeanwhile(t *testing.T) {
	f := newSyncFixture(t, 3)
	ctx := context.Background()
	var once sync.Once
	f.saver.saveFn = func(ctx context.Context, req model.SaveAnswerRequest) error {
		// The student changes the answer while o1 is on the wire.
		once.Do(func() {
			if err := f.sync.Enqueue(ctx, saveReq("q1", "o2")); err != nil {
				t.Errorf("enqueue during delivery: %v", err)
			}
		})
		return nil
	}
	if err := f.sync.Enqueue(ctx, saveReq("q1", "o1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, _, err := f.sync.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	pending, _ := f.sync.Pending(ctx, "e1", "u1")
	if len(pending) != 1 || pending["q1"].OptionID != "o2" {
		t.Fatalf("expected the newer selection to stay queued, got %+v", pending)
	}
	if !isDirty(t, f.sync) {
		t.Fatal("expected the session to stay dirty for the newer selection")
	}

	if _, _, err := f.sync.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	sent := f.saver.Sent()
	if len(sent) != 2 || sent[1].OptionID != "o2" {
		t.Fatalf("expected o2 delivered last, got %+v", sent)
	}
}

func TestFlushDeliversEverything(t *testing.T) {
	f := newSyncFixture(t, 3)
	var calls int
	f.saver.saveFn = func(context.Context, model.SaveAnswerRequest) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	}
	ctx := context.Background()
	for _, req := range []model.SaveAnswerRequest{saveReq("q1", "o1"), saveReq("q2", "o3")} {
		if err := f.sync.Enqueue(ctx, req); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := f.sync.Flush(ctx, "e1", "u1"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n, _ := f.sync.PendingCount(ctx, "e1", "u1"); n != 0 {
		t.Fatalf("expected nothing pending after flush, got %d", n)
	}
	if f.events.Count(ws.EventSaved) != 2 {
		t.Fatalf("expected two saved events, got %d", f.events.Count(ws.EventSaved))
	}
}

func TestFlushStopsOnCancel(t *testing.T) {
	f := newSyncFixture(t, 3)
	f.sync.retryDelay = time.Hour
	f.saver.saveFn = func(context.Context, model.SaveAnswerRequest) error {
		return errors.New("connection reset")
	}
	if err := f.sync.Enqueue(context.Background(), saveReq("q1", "o1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.sync.Flush(ctx, "e1", "u1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDiscardDropsPendingSaves(t *testing.T) {
	f := newSyncFixture(t, 3)
	ctx := context.Background()
	for _, req := range []model.SaveAnswerRequest{saveReq("q1", "o1"), saveReq("q2", "o3")} {
		if err := f.sync.Enqueue(ctx, req); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	dropped, err := f.sync.Discard(ctx, "e1", "u1")
	if err != nil || dropped != 2 {
		t.Fatalf("Discard() = %d, %v", dropped, err)
	}
	if n, _ := f.sync.PendingCount(ctx, "e1", "u1"); n != 0 {
		t.Fatalf("expected nothing pending, got %d", n)
	}
	if isDirty(t, f.sync) {
		t.Fatal("discarded session must not stay dirty")
	}
	if found, _, _ := f.sync.ProcessNext(ctx); found {
		t.Fatal("nothing should be left to deliver")
	}
}
