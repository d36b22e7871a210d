// Package clocksync turns a server-stamped round start into a local countdown.
//
// The countdown is always recomputed from the authoritative start instant
// rather than decremented, so a suspended process or a reconnect corrects
// itself on the next tick instead of drifting.
package clocksync

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickInterval is how often Run re-evaluates the countdown.
const TickInterval = time.Second

// Remaining returns the whole seconds left of a timerSeconds budget that
// started at startsAt, as seen at now. It floors at zero and never exceeds
// the budget, so a client clock that lags the server shows a full timer.
func Remaining(timerSeconds int, startsAt, now time.Time) int {
	if timerSeconds <= 0 {
		return 0
	}
	elapsed := int(math.Floor(float64(now.Sub(startsAt).Milliseconds()) / 1000))
	remaining := timerSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	if remaining > timerSeconds {
		return timerSeconds
	}
	return remaining
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithTimeUp registers the callback fired once per sync epoch when the
// countdown first reaches zero.
func WithTimeUp(fn func()) Option {
	return func(c *Countdown) { c.onTimeUp = fn }
}

// WithTick registers a callback invoked with the remaining seconds after every tick.
func WithTick(fn func(remaining int)) Option {
	return func(c *Countdown) { c.onTick = fn }
}

// Countdown tracks one round's timer on a local clock.
type Countdown struct {
	clock    clockwork.Clock
	onTimeUp func()
	onTick   func(int)

	mu           sync.Mutex
	timerSeconds int
	startsAt     time.Time
	armed        bool
	paused       bool
	fired        bool
	remaining    int
}

// New builds an idle countdown.
func New(clock clockwork.Clock, opts ...Option) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Countdown{clock: clock}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resync starts a new epoch from a fresh server start instant. The time-up
// notification is re-armed, so a new round can fire it again.
func (c *Countdown) Resync(timerSeconds int, startsAt time.Time) int {
	c.mu.Lock()
	c.timerSeconds = timerSeconds
	c.startsAt = startsAt
	c.armed = true
	c.paused = false
	c.fired = false
	c.mu.Unlock()
	return c.Sync()
}

// Sync recomputes the remaining time from the clock and fires the time-up
// callback on the first transition to zero.
func (c *Countdown) Sync() int {
	c.mu.Lock()
	if !c.armed || c.paused {
		remaining := c.remaining
		c.mu.Unlock()
		return remaining
	}
	c.remaining = Remaining(c.timerSeconds, c.startsAt, c.clock.Now())
	remaining := c.remaining
	fire := remaining == 0 && !c.fired
	if fire {
		c.fired = true
	}
	onTimeUp, onTick := c.onTimeUp, c.onTick
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if fire && onTimeUp != nil {
		onTimeUp()
	}
	return remaining
}

// Remaining returns the value computed by the last Sync.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Active reports whether the countdown is running and above zero.
func (c *Countdown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed && !c.paused && c.remaining > 0
}

// TimeUp reports whether the time-up notification already fired this epoch.
func (c *Countdown) TimeUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// Pause freezes the displayed value. The server instant keeps running.
func (c *Countdown) Pause() {
	c.Sync()
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume recomputes from the server instant. It does not re-arm time-up.
func (c *Countdown) Resume() int {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	return c.Sync()
}

// Stop disarms the countdown, e.g. when the round ended. The last value is kept.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.armed = false
	c.mu.Unlock()
}

// Run ticks the countdown until ctx is done.
func (c *Countdown) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			c.Sync()
		}
	}
}
