package app

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Countdown is the single source of "seconds remaining" for every session.
// It runs at most one ticker goroutine per session.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration

	onTick   func(sessionID, itemID string, remaining int)
	onExpire func(sessionID, itemID string)

	mu      sync.Mutex
	running map[string]*countdownRun
}

type countdownRun struct {
	itemID   string
	cancel   context.CancelFunc
	deadline time.Time
}

// NewCountdown builds a countdown ticking once per interval on clock. The
// seconds reported on each tick come from the deadline, not the tick count.
func NewCountdown(clock clockwork.Clock, interval time.Duration) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		clock:    clock,
		interval: interval,
		onTick:   func(string, string, int) {},
		onExpire: func(string, string) {},
		running:  make(map[string]*countdownRun),
	}
}

// Start replaces any countdown of the session with a new one for itemID.
// A non-positive duration only cancels the previous countdown.
func (c *Countdown) Start(sessionID, itemID string, seconds int) {
	c.mu.Lock()
	if prev, ok := c.running[sessionID]; ok {
		prev.cancel()
		delete(c.running, sessionID)
	}
	if seconds <= 0 {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &countdownRun{itemID: itemID, cancel: cancel, deadline: c.clock.Now().Add(time.Duration(seconds) * time.Second)}
	c.running[sessionID] = run
	ticker := c.clock.NewTicker(c.interval)
	c.mu.Unlock()

	c.onTick(sessionID, itemID, seconds)
	go c.run(ctx, sessionID, run, ticker)
}

// Stop cancels the session's countdown, if any.
func (c *Countdown) Stop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run, ok := c.running[sessionID]; ok {
		run.cancel()
		delete(c.running, sessionID)
	}
}

// Remaining reports the seconds left for the session's current countdown.
func (c *Countdown) Remaining(sessionID string) (itemID string, remaining int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.running[sessionID]
	if !ok {
		return "", 0, false
	}
	return run.itemID, c.secondsLeft(run), true
}

// secondsLeft rounds up so a countdown shows 0 only once it has elapsed.
func (c *Countdown) secondsLeft(run *countdownRun) int {
	left := run.deadline.Sub(c.clock.Now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func (c *Countdown) run(ctx context.Context, sessionID string, run *countdownRun, ticker clockwork.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		c.mu.Lock()
		if c.running[sessionID] != run {
			c.mu.Unlock()
			return
		}
		remaining := c.secondsLeft(run)
		if remaining <= 0 {
			delete(c.running, sessionID)
		}
		c.mu.Unlock()

		c.onTick(sessionID, run.itemID, remaining)
		if remaining <= 0 {
			log.Debug().Str("session_id", sessionID).Str("item_id", run.itemID).Msg("countdown elapsed")
			c.onExpire(sessionID, run.itemID)
			return
		}
	}
}
