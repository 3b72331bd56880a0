// Package timer tracks the remaining time of an exam attempt.
//
// The countdown is advisory: the backend validates elapsed time on submit.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Urgency classifies remaining time for display.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

const (
	// WarningSeconds is the threshold at or below which time is shown as a warning.
	WarningSeconds = 15 * 60
	// CriticalSeconds is the threshold at or below which time is shown as critical.
	CriticalSeconds = 5 * 60
)

// InitialRemaining returns the seconds left for an attempt of durationMinutes
// that began at startTime. With no start time the full duration is returned.
// The result is clamped to [0, durationMinutes*60].
func InitialRemaining(durationMinutes int, startTime *time.Time, now time.Time) int {
	total := durationMinutes * 60
	if total <= 0 {
		return 0
	}
	if startTime == nil || startTime.IsZero() {
		return total
	}
	elapsed := int(now.Sub(*startTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := total - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Format renders seconds as HH:MM:SS when at least an hour remains, else MM:SS.
func Format(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, (sec%3600)/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// UrgencyOf maps remaining seconds to an urgency level.
func UrgencyOf(sec int) Urgency {
	switch {
	case sec <= CriticalSeconds:
		return UrgencyCritical
	case sec <= WarningSeconds:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// Snapshot is a point-in-time view of a countdown.
type Snapshot struct {
	Remaining int     `json:"remaining"`
	Formatted string  `json:"formatted"`
	Urgency   Urgency `json:"urgency"`
	Expired   bool    `json:"expired"`
	Active    bool    `json:"active"`
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Countdown) { c.now = now }
}

// WithInterval replaces the one-second tick interval.
func WithInterval(d time.Duration) Option {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithOnTick registers a callback invoked after every tick with the new snapshot.
func WithOnTick(fn func(Snapshot)) Option {
	return func(c *Countdown) { c.onTick = fn }
}

// Countdown decrements remaining seconds once per interval while active and
// invokes onTimeUp at most once per activation when it reaches zero.
// Callbacks run on the countdown's own goroutine, never under its lock.
type Countdown struct {
	mu sync.Mutex

	durationMinutes int
	startTime       *time.Time

	remaining int
	active    bool
	expired   bool
	fired     bool
	// gen identifies the current activation so a stale goroutine cannot
	// touch a newer one.
	gen int

	onTimeUp func()
	onTick   func(Snapshot)
	now      func() time.Time
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped countdown for an attempt that began at startTime
// (nil means "not started yet", i.e. full duration).
func New(durationMinutes int, startTime *time.Time, onTimeUp func(), opts ...Option) *Countdown {
	c := &Countdown{
		durationMinutes: durationMinutes,
		startTime:       startTime,
		onTimeUp:        onTimeUp,
		now:             time.Now,
		interval:        time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.remaining = InitialRemaining(durationMinutes, startTime, c.now())
	return c
}

// Start activates the countdown. It is a no-op while already active.
// If no time remains, onTimeUp fires right away on the countdown goroutine.
func (c *Countdown) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return
	}
	c.remaining = InitialRemaining(c.durationMinutes, c.startTime, c.now())
	c.active = true
	c.expired = false
	c.fired = false
	c.gen++

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.gen, c.done)
}

// Stop deactivates the countdown. It does not wait for the goroutine, so it is
// safe to call from inside onTimeUp.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Done is closed when the current activation's goroutine has exited.
// It returns nil if the countdown was never started.
func (c *Countdown) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Tick advances the countdown by one step and reports whether it is still active.
func (c *Countdown) Tick() bool {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.tick(gen)
}

func (c *Countdown) tick(gen int) bool {
	c.mu.Lock()
	if !c.active || gen != c.gen {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	fire := c.expireLocked()
	snap := c.snapshotLocked()
	onTick, onTimeUp := c.onTick, c.onTimeUp
	c.mu.Unlock()

	if onTick != nil {
		onTick(snap)
	}
	if fire && onTimeUp != nil {
		onTimeUp()
	}
	return snap.Active
}

// Snapshot returns the current state.
func (c *Countdown) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) run(ctx context.Context, gen int, done chan struct{}) {
	defer close(done)

	c.mu.Lock()
	fire := gen == c.gen && c.expireLocked()
	onTimeUp := c.onTimeUp
	c.mu.Unlock()
	if fire {
		if onTimeUp != nil {
			onTimeUp()
		}
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if gen == c.gen {
				c.active = false
			}
			c.mu.Unlock()
			return
		case <-ticker.C:
			if !c.tick(gen) {
				return
			}
		}
	}
}

// expireLocked clamps at zero and reports whether onTimeUp should fire now.
func (c *Countdown) expireLocked() bool {
	if !c.active || c.remaining > 0 {
		return false
	}
	c.remaining = 0
	c.active = false
	c.expired = true
	if c.fired {
		return false
	}
	c.fired = true
	return true
}

func (c *Countdown) snapshotLocked() Snapshot {
	return Snapshot{
		Remaining: c.remaining,
		Formatted: Format(c.remaining),
		Urgency:   UrgencyOf(c.remaining),
		Expired:   c.expired,
		Active:    c.active,
	}
}
