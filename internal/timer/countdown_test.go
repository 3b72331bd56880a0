package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func ptr(t time.Time) *time.Time { return &t }

func TestInitialRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		duration int
		start    *time.Time
		want     int
	}{
		{name: "no start time gives full duration", duration: 60, start: nil, want: 3600},
		{name: "elapsed is subtracted", duration: 60, start: ptr(now.Add(-10 * time.Minute)), want: 3000},
		{name: "fractional seconds are floored", duration: 1, start: ptr(now.Add(-1500 * time.Millisecond)), want: 59},
		{name: "past the duration clamps to zero", duration: 30, start: ptr(now.Add(-2 * time.Hour)), want: 0},
		{name: "start in the future clamps to full", duration: 30, start: ptr(now.Add(time.Minute)), want: 1800},
		{name: "zero duration", duration: 0, start: nil, want: 0},
		{name: "negative duration", duration: -5, start: ptr(now), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InitialRemaining(tt.duration, tt.start, now); got != tt.want {
				t.Errorf("InitialRemaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{61, "01:01"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{-4, "00:00"},
	}
	for _, tt := range tests {
		if got := Format(tt.sec); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestUrgencyOf(t *testing.T) {
	tests := []struct {
		sec  int
		want Urgency
	}{
		{901, UrgencyNormal},
		{900, UrgencyWarning},
		{301, UrgencyWarning},
		{300, UrgencyCritical},
		{0, UrgencyCritical},
	}
	for _, tt := range tests {
		if got := UrgencyOf(tt.sec); got != tt.want {
			t.Errorf("UrgencyOf(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestTickIsMonotonicAndFiresOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var fired int32
	c := New(1, ptr(now.Add(-57*time.Second)), func() { atomic.AddInt32(&fired, 1) },
		WithClock(func() time.Time { return now }),
		WithInterval(time.Hour),
	)
	c.Start(context.Background())
	defer c.Stop()

	prev := c.Remaining()
	if prev != 3 {
		t.Fatalf("expected 3 seconds remaining, got %d", prev)
	}
	for i := 0; i < 5; i++ {
		c.Tick()
		cur := c.Remaining()
		if cur > prev {
			t.Fatalf("remaining increased from %d to %d", prev, cur)
		}
		if cur < 0 {
			t.Fatalf("remaining went negative: %d", cur)
		}
		prev = cur
	}

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("expected onTimeUp once, got %d", got)
	}
	snap := c.Snapshot()
	if !snap.Expired || snap.Active || snap.Remaining != 0 || snap.Formatted != "00:00" {
		t.Fatalf("unexpected snapshot after expiry: %+v", snap)
	}
}

func TestStartWithNoTimeLeftFiresImmediately(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		start    *time.Time
	}{
		{name: "zero duration", duration: 0},
		{name: "start long past", duration: 10, start: ptr(time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			c := New(tt.duration, tt.start, func() { close(done) }, WithInterval(time.Hour))
			c.Start(context.Background())

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("onTimeUp did not fire")
			}
			<-c.Done()
			if !c.Snapshot().Expired {
				t.Fatal("expected expired snapshot")
			}
		})
	}
}

func TestTickerDrivesExpiry(t *testing.T) {
	var ticks int32
	fired := make(chan struct{}, 2)
	start := time.Now().Add(-58 * time.Second)
	c := New(1, &start, func() { fired <- struct{}{} },
		WithInterval(5*time.Millisecond),
		WithOnTick(func(Snapshot) { atomic.AddInt32(&ticks, 1) }),
	)
	c.Start(context.Background())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not expire")
	}
	<-c.Done()

	if atomic.LoadInt32(&ticks) < 1 {
		t.Fatal("expected at least one tick callback")
	}
	select {
	case <-fired:
		t.Fatal("onTimeUp fired twice")
	default:
	}
}

func TestStopHaltsTicking(t *testing.T) {
	var fired int32
	c := New(60, nil, func() { atomic.AddInt32(&fired, 1) }, WithInterval(time.Millisecond))
	c.Start(context.Background())
	c.Stop()
	<-c.Done()

	before := c.Remaining()
	time.Sleep(20 * time.Millisecond)
	if after := c.Remaining(); after != before {
		t.Fatalf("remaining changed after Stop: %d -> %d", before, after)
	}
	if c.Tick() {
		t.Fatal("Tick on a stopped countdown reported active")
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("onTimeUp fired after Stop")
	}
}

func TestContextCancelStopsCountdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(60, nil, nil, WithInterval(time.Millisecond))
	c.Start(ctx)
	cancel()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("goroutine did not exit on cancel")
	}
	if c.Snapshot().Active {
		t.Fatal("expected inactive countdown after cancel")
	}
}

func TestStartIsIdempotentWhileActive(t *testing.T) {
	c := New(60, nil, nil, WithInterval(time.Hour))
	c.Start(context.Background())
	defer c.Stop()
	first := c.Done()
	c.Start(context.Background())
	if c.Done() != first {
		t.Fatal("second Start replaced the running activation")
	}
}
