package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/model"
)

type fakeLedgerStore struct {
	mu       sync.Mutex
	batchFn  func(events []model.SessionEvent) error
	insertFn func(ev model.SessionEvent) error
	stored   []model.SessionEvent
}

func (f *fakeLedgerStore) InsertBatch(ctx context.Context, events []model.SessionEvent) error {
	if f.batchFn != nil {
		if err := f.batchFn(events); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.stored = append(f.stored, events...)
	f.mu.Unlock()
	return nil
}

func (f *fakeLedgerStore) Insert(ctx context.Context, ev model.SessionEvent) error {
	if f.insertFn != nil {
		if err := f.insertFn(ev); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.stored = append(f.stored, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeLedgerStore) Stored() []model.SessionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SessionEvent(nil), f.stored...)
}

func newLedgerFixture(t *testing.T, store LedgerStore) (*LedgerWorker, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLedgerWorker(store, rdb, zerolog.Nop()), mr, rdb
}

func ledgerEvent(user string, event model.SessionEventType) model.SessionEvent {
	return model.SessionEvent{UserID: user, ExamID: "e1", Event: event, CreatedAt: time.Now().UTC()}
}

func queued(t *testing.T, rdb *redis.Client) []model.SessionEvent {
	t.Helper()
	raws, err := rdb.LRange(context.Background(), config.WorkerKey.LedgerEventsQueue, 0, -1).Result()
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	out := make([]model.SessionEvent, 0, len(raws))
	for _, raw := range raws {
		var ev model.SessionEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			t.Fatalf("decode queued event: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func TestFlushFallsBackToSingleInserts(t *testing.T) {
	store := &fakeLedgerStore{
		batchFn: func([]model.SessionEvent) error { return errors.New("batch too large") },
		insertFn: func(ev model.SessionEvent) error {
			if ev.UserID == "u2" {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	w, _, rdb := newLedgerFixture(t, store)

	w.flushSafe(context.Background(), []model.SessionEvent{
		ledgerEvent("u1", model.EventSubmitted),
		ledgerEvent("u2", model.EventSubmitted),
	})

	if stored := store.Stored(); len(stored) != 1 || stored[0].UserID != "u1" {
		t.Fatalf("expected only u1 stored, got %+v", stored)
	}
	q := queued(t, rdb)
	if len(q) != 1 || q[0].UserID != "u2" || q[0].Requeues != 1 {
		t.Fatalf("expected u2 requeued once, got %+v", q)
	}
}

func TestFlushDropsEventsTheDatabaseRejects(t *testing.T) {
	store := &fakeLedgerStore{
		batchFn: func([]model.SessionEvent) error { return errors.New("batch failed") },
		insertFn: func(model.SessionEvent) error {
			return &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type json"}
		},
	}
	w, _, rdb := newLedgerFixture(t, store)

	w.flushSafe(context.Background(), []model.SessionEvent{ledgerEvent("u1", model.EventSubmitFailed)})

	if q := queued(t, rdb); len(q) != 0 {
		t.Fatalf("a rejected event must not be requeued, got %+v", q)
	}
}

func TestFlushStopsRequeueingAfterLimit(t *testing.T) {
	store := &fakeLedgerStore{
		batchFn:  func([]model.SessionEvent) error { return errors.New("timeout") },
		insertFn: func(model.SessionEvent) error { return errors.New("timeout") },
	}
	w, _, rdb := newLedgerFixture(t, store)
	ctx := context.Background()

	ev := ledgerEvent("u1", model.EventAutoSubmitted)
	rounds := 0
	for {
		w.flushSafe(ctx, []model.SessionEvent{ev})
		rounds++
		q := queued(t, rdb)
		if len(q) == 0 {
			break
		}
		if rounds > LedgerMaxRequeues+1 {
			t.Fatalf("event still requeued after %d rounds", rounds)
		}
		ev = q[0]
		if err := rdb.Del(ctx, config.WorkerKey.LedgerEventsQueue).Err(); err != nil {
			t.Fatalf("del: %v", err)
		}
	}
	if rounds != LedgerMaxRequeues+1 {
		t.Fatalf("expected %d rounds before dropping, got %d", LedgerMaxRequeues+1, rounds)
	}
}

func TestFlushSurvivesRequeueFailure(t *testing.T) {
	store := &fakeLedgerStore{
		batchFn:  func([]model.SessionEvent) error { return errors.New("down") },
		insertFn: func(model.SessionEvent) error { return errors.New("down") },
	}
	w, mr, _ := newLedgerFixture(t, store)
	mr.Close()

	done := make(chan struct{})
	go func() {
		w.flushSafe(context.Background(), []model.SessionEvent{ledgerEvent("u1", model.EventSubmitted)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("flush hung on an unreachable queue")
	}
}

func TestLedgerWorkerDrainsQueueAndFlushesOnShutdown(t *testing.T) {
	store := &fakeLedgerStore{}
	w, _, rdb := newLedgerFixture(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, ev := range []model.SessionEvent{
		ledgerEvent("u1", model.EventExamStarted),
		ledgerEvent("u2", model.EventSessionOpened),
	} {
		raw, _ := json.Marshal(ev)
		if err := rdb.RPush(ctx, config.WorkerKey.LedgerEventsQueue, raw).Err(); err != nil {
			t.Fatalf("rpush: %v", err)
		}
	}
	if err := rdb.RPush(ctx, config.WorkerKey.LedgerEventsQueue, "{broken").Err(); err != nil {
		t.Fatalf("rpush: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := rdb.LLen(context.Background(), config.WorkerKey.LedgerEventsQueue).Result()
		if err == nil && n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queue was not drained")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	stored := store.Stored()
	if len(stored) != 2 || stored[0].UserID != "u1" || stored[1].Event != model.EventSessionOpened {
		t.Fatalf("expected both events stored in order, got %+v", stored)
	}
}
