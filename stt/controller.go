package stt

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type Policy int

const (
	// FailOnce gives up on the first provider failure.
	FailOnce Policy = iota
	// Stubborn retries forever with capped exponential backoff.
	Stubborn
)

func (p Policy) String() string {
	if p == Stubborn {
		return "stubborn"
	}
	return "fail-once"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-once", "failonce", "once":
		return FailOnce, nil
	case "stubborn", "retry":
		return Stubborn, nil
	}
	return FailOnce, fmt.Errorf("unknown reconnect policy %q", s)
}

type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	// GrowthCap bounds the exponent; retries continue past it at the
	// same delay.
	GrowthCap int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:      2 * time.Second,
		Max:       10 * time.Second,
		Factor:    1.5,
		GrowthCap: 10,
	}
}

// Delay is min(Base * Factor^min(retries, GrowthCap), Max).
func (b Backoff) Delay(retries int) time.Duration {
	n := retries
	if n > b.GrowthCap {
		n = b.GrowthCap
	}
	if n < 0 {
		n = 0
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Factor, float64(n)))
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

var SystemClock Clock = realClock{}

// Controller decides whether and when a dropped provider session is
// re-established. At most one retry timer is outstanding, and a retry
// never fires while a session is live.
type Controller struct {
	policy  Policy
	backoff Backoff
	clock   Clock
	exec    Executor
	logger  *log.Logger

	// live reports whether a session is connecting or streaming.
	live func() bool
	// reconnect opens a new session.
	reconnect func()

	mu      sync.Mutex
	retries int
	timer   Timer
	manual  bool
	stopped bool
}

func NewController(
	policy Policy,
	backoff Backoff,
	clock Clock,
	exec Executor,
	logger *log.Logger,
	live func() bool,
	reconnect func(),
) *Controller {
	if clock == nil {
		clock = SystemClock
	}
	if exec == nil {
		exec = Inline
	}
	return &Controller{
		policy:    policy,
		backoff:   backoff,
		clock:     clock,
		exec:      exec,
		logger:    logger,
		live:      live,
		reconnect: reconnect,
	}
}

// Connected resets the retry counter after a successful handshake.
func (c *Controller) Connected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries = 0
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Closed handles the end of a session. It reports true when the failure
// is terminal for the stream and the producer must be told.
func (c *Controller) Closed(cause error) (terminal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	if c.manual {
		c.manual = false
		c.logger.Info("closed for reconfigure, not retrying")
		return false
	}
	if c.policy == FailOnce {
		return true
	}
	if c.timer != nil {
		return false
	}

	delay := c.backoff.Delay(c.retries)
	c.logger.Warn(
		"reconnecting",
		"attempt", c.retries+1,
		"delay", delay,
		"cause", cause,
	)
	c.timer = c.clock.AfterFunc(delay, func() {
		c.exec.Do(c.fire)
	})
	return false
}

func (c *Controller) fire() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.retries++
	c.mu.Unlock()

	if c.live != nil && c.live() {
		return
	}
	telemetry.reconnect(context.Background())
	c.reconnect()
}

// Reconfigure marks the next close as intentional.
func (c *Controller) Reconfigure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = true
}

// Stop cancels any pending retry; later closes are ignored.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Controller) Policy() Policy {
	return c.policy
}
