package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSweeper struct {
	retried int
	evicted int
	cutoff  time.Time
	sweeps  atomic.Int32
	mu      sync.Mutex
}

func (f *fakeSweeper) RetryExpiredSubmits(ctx context.Context) int {
	f.sweeps.Add(1)
	return f.retried
}

func (f *fakeSweeper) EvictClosed(cutoff time.Time) int {
	f.mu.Lock()
	f.cutoff = cutoff
	f.mu.Unlock()
	return f.evicted
}

func (f *fakeSweeper) ActiveCount() int { return 0 }

func TestSessionJanitorSweepUsesRetention(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sw := &fakeSweeper{retried: 1, evicted: 2}
	j := NewSessionJanitor(sw, "", 2*time.Hour, zerolog.Nop())
	j.now = func() time.Time { return now }

	j.Sweep(context.Background())

	if got := sw.sweeps.Load(); got != 1 {
		t.Fatalf("expected 1 retry pass, got %d", got)
	}
	if want := now.Add(-2 * time.Hour); !sw.cutoff.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, sw.cutoff)
	}
}

func TestSessionJanitorSkipsWhenCancelled(t *testing.T) {
	sw := &fakeSweeper{}
	j := NewSessionJanitor(sw, "", time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j.Sweep(ctx)

	if got := sw.sweeps.Load(); got != 0 {
		t.Errorf("expected no sweep after cancel, got %d", got)
	}
}

func TestSessionJanitorRejectsBadSchedule(t *testing.T) {
	j := NewSessionJanitor(&fakeSweeper{}, "not a schedule", time.Hour, zerolog.Nop())
	if err := j.Start(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestSessionJanitorStopsOnCancel(t *testing.T) {
	j := NewSessionJanitor(&fakeSweeper{}, "@every 1h", time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

type fakeDelivery struct {
	calls  atomic.Int32
	rounds []deliveryRound
	mu     sync.Mutex
}

type deliveryRound struct {
	found, failed bool
	err           error
}

func (f *fakeDelivery) ProcessNext(ctx context.Context) (bool, bool, error) {
	n := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < len(f.rounds) {
		r := f.rounds[n]
		return r.found, r.failed, r.err
	}
	return false, false, nil
}

func (f *fakeDelivery) RetryDelay() time.Duration { return 20 * time.Millisecond }

func TestAnswerSyncWorkerDrainsThenStops(t *testing.T) {
	d := &fakeDelivery{rounds: []deliveryRound{
		{found: true},
		{found: true},
		{found: true, failed: true},
		{err: errors.New("redis down")},
	}}
	w := NewAnswerSyncWorker(d, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for d.calls.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if got := d.calls.Load(); got < 5 {
		t.Errorf("expected at least 5 rounds, got %d", got)
	}
}
