package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/edgent/internal/logging"
	"go.uber.org/zap"
)

// Mode is a state of the connectivity state machine.
type Mode int32

const (
	WaitConfig Mode = iota
	Configuring
	SwitchToSTA
	ConnectingNet
	ConnectingCloud
	Running
	Error
	ResetConfig
)

var modeNames = [...]string{
	WaitConfig:      "WAIT_CONFIG",
	Configuring:     "CONFIGURING",
	SwitchToSTA:     "SWITCH_TO_STA",
	ConnectingNet:   "CONNECTING_NET",
	ConnectingCloud: "CONNECTING_CLOUD",
	Running:         "RUNNING",
	Error:           "ERROR",
	ResetConfig:     "RESET_CONFIG",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "UNKNOWN"
}

// IsConfig reports whether m is one of the configuration modes, in which the
// provisioning session drives a transport.
func (m Mode) IsConfig() bool {
	return m == WaitConfig || m == Configuring
}

// Context is the process-wide provisioning context.
type Context struct {
	mode       atomic.Int32
	buttonHeld atomic.Bool

	// NetRetries and CloudRetries are the remaining attempts before the
	// machine escalates to ERROR. Written by the main loop only.
	NetRetries   int
	CloudRetries int

	mu           sync.Mutex
	restartAfter time.Duration
	restartAt    time.Time
	restartSet   bool
}

// New returns a context in the given mode with both retry budgets set to
// retries.
func New(initial Mode, retries int) *Context {
	c := &Context{NetRetries: retries, CloudRetries: retries}
	c.mode.Store(int32(initial))
	return c
}

// Mode returns the current mode
func (c *Context) Mode() Mode {
	return Mode(c.mode.Load())
}

// Is reports whether the current mode is m.
func (c *Context) Is(m Mode) bool {
	return c.Mode() == m
}

// SetMode switches to m. Setting the current mode is a no-op.
func (c *Context) SetMode(m Mode) {
	prev := Mode(c.mode.Swap(int32(m)))
	if prev != m {
		logging.LogTransition(prev.String(), m.String())
	}
}

// SetButtonHeld records whether the physical button is currently held.
func (c *Context) SetButtonHeld(held bool) {
	c.buttonHeld.Store(held)
}

// ButtonHeld reports the last value passed to SetButtonHeld
func (c *Context) ButtonHeld() bool {
	return c.buttonHeld.Load()
}

// ScheduleRestart asks for a device restart after the given delay. The delay
// starts when the main loop first observes the request. A later request
// replaces an earlier one only if it is due sooner.
func (c *Context) ScheduleRestart(after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.restartSet && c.restartAt.IsZero() && after >= c.restartAfter {
		return
	}
	c.restartSet = true
	c.restartAfter = after
	c.restartAt = time.Time{}
	logging.Info("Restart scheduled", zap.Duration("after", after))
}

// RestartPending reports whether a restart has been requested
func (c *Context) RestartPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartSet
}

// RestartDue reports whether a scheduled restart has come due at now.
func (c *Context) RestartDue(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.restartSet {
		return false
	}
	if c.restartAt.IsZero() {
		c.restartAt = now.Add(c.restartAfter)
	}
	return !now.Before(c.restartAt)
}
