// Package timer implements the shared study countdown.
package timer

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMinutes = 25
	maxMinutes     = 999
)

// Presets are the session lengths offered in minutes.
var Presets = []int{15, 25, 45, 60}

var ErrInvalidDuration = errors.New("invalid timer duration")

// Snapshot is the wire form of the timer exchanged in timer_sync frames.
type Snapshot struct {
	Minutes   int  `json:"minutes"`
	Seconds   int  `json:"seconds"`
	IsRunning bool `json:"isRunning"`
}

// String formats the snapshot as mm:ss.
func (s Snapshot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Minutes, s.Seconds)
}

func (s Snapshot) validate() error {
	if s.Minutes < 0 || s.Minutes > maxMinutes || s.Seconds < 0 || s.Seconds > 59 {
		return fmt.Errorf("%w: %d:%d", ErrInvalidDuration, s.Minutes, s.Seconds)
	}
	return nil
}

// Countdown counts a study session down to zero. It is not safe for
// concurrent use.
type Countdown struct {
	remaining time.Duration
	running   bool
}

// New returns a paused countdown at the default length.
func New() *Countdown {
	return &Countdown{remaining: DefaultMinutes * time.Minute}
}

// Start resumes the countdown. It reports false when already running or
// nothing is left.
func (c *Countdown) Start() bool {
	if c.running || c.remaining <= 0 {
		return false
	}
	c.running = true
	return true
}

func (c *Countdown) Pause() {
	c.running = false
}

// Reset pauses and restores the default length.
func (c *Countdown) Reset() {
	c.running = false
	c.remaining = DefaultMinutes * time.Minute
}

// Set pauses and sets the remaining time.
func (c *Countdown) Set(minutes, seconds int) error {
	s := Snapshot{Minutes: minutes, Seconds: seconds}
	if err := s.validate(); err != nil {
		return err
	}
	c.running = false
	c.remaining = time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	return nil
}

// Tick advances a running countdown by elapsed and reports whether it
// just reached zero. A finished countdown stops.
func (c *Countdown) Tick(elapsed time.Duration) bool {
	if !c.running {
		return false
	}
	c.remaining -= elapsed
	if c.remaining > 0 {
		return false
	}
	c.remaining = 0
	c.running = false
	return true
}

func (c *Countdown) Running() bool { return c.running }

func (c *Countdown) Remaining() time.Duration { return c.remaining }

// Snapshot rounds partial seconds up, so a fresh start still shows the
// full length.
func (c *Countdown) Snapshot() Snapshot {
	total := int((c.remaining + time.Second - 1) / time.Second)
	return Snapshot{
		Minutes:   total / 60,
		Seconds:   total % 60,
		IsRunning: c.running,
	}
}

// Apply adopts a snapshot received from the partner.
func (c *Countdown) Apply(s Snapshot) error {
	if err := s.validate(); err != nil {
		return err
	}
	c.remaining = time.Duration(s.Minutes)*time.Minute + time.Duration(s.Seconds)*time.Second
	c.running = s.IsRunning && c.remaining > 0
	return nil
}

func (c *Countdown) String() string {
	return c.Snapshot().String()
}
