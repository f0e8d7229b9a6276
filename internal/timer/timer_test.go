package timer

import (
	"errors"
	"testing"
	"time"
)

func TestCountdownDefaults(t *testing.T) {
	c := New()
	if got := c.String(); got != "25:00" {
		t.Errorf("String() = %q, want 25:00", got)
	}
	if c.Running() {
		t.Error("new countdown is running")
	}
	if c.Tick(time.Second) {
		t.Error("paused countdown finished")
	}
	if got := c.String(); got != "25:00" {
		t.Errorf("paused countdown moved to %q", got)
	}
}

func TestCountdownTick(t *testing.T) {
	tests := []struct {
		name     string
		minutes  int
		seconds  int
		ticks    int
		want     string
		finished bool
	}{
		{name: "one second", minutes: 25, seconds: 0, ticks: 1, want: "24:59"},
		{name: "minute boundary", minutes: 1, seconds: 0, ticks: 1, want: "00:59"},
		{name: "runs out", minutes: 0, seconds: 3, ticks: 3, want: "00:00", finished: true},
		{name: "overshoot", minutes: 0, seconds: 1, ticks: 5, want: "00:00", finished: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			if err := c.Set(tt.minutes, tt.seconds); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			c.Start()

			finished := false
			for i := 0; i < tt.ticks; i++ {
				if c.Tick(time.Second) {
					finished = true
				}
			}
			if got := c.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if finished != tt.finished {
				t.Errorf("finished = %v, want %v", finished, tt.finished)
			}
			if tt.finished && c.Running() {
				t.Error("finished countdown still running")
			}
		})
	}
}

func TestCountdownStartPauseReset(t *testing.T) {
	c := New()
	if !c.Start() {
		t.Fatal("Start() = false on a fresh countdown")
	}
	if c.Start() {
		t.Error("Start() = true while running")
	}
	c.Tick(90 * time.Second)
	c.Pause()
	if got := c.Snapshot(); got != (Snapshot{Minutes: 23, Seconds: 30}) {
		t.Errorf("Snapshot() = %+v", got)
	}

	c.Reset()
	if got := c.Snapshot(); got != (Snapshot{Minutes: 25}) {
		t.Errorf("after Reset: Snapshot() = %+v", got)
	}

	c.Set(0, 0)
	if c.Start() {
		t.Error("Start() = true with nothing left")
	}
}

func TestSnapshotRoundsUp(t *testing.T) {
	c := New()
	c.Start()
	c.Tick(400 * time.Millisecond)
	if got := c.String(); got != "25:00" {
		t.Errorf("String() = %q, want 25:00", got)
	}
	if got := c.Snapshot(); !got.IsRunning {
		t.Error("snapshot of a running countdown is not running")
	}
}

func TestApply(t *testing.T) {
	c := New()
	if err := c.Apply(Snapshot{Minutes: 10, Seconds: 5, IsRunning: true}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := c.String(); got != "10:05" || !c.Running() {
		t.Errorf("after Apply: %q running=%v", got, c.Running())
	}

	if err := c.Apply(Snapshot{Minutes: 0, Seconds: 0, IsRunning: true}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if c.Running() {
		t.Error("countdown at zero is running")
	}

	for _, bad := range []Snapshot{{Minutes: -1}, {Seconds: 60}, {Minutes: 1000}} {
		if err := c.Apply(bad); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Apply(%+v) error = %v, want ErrInvalidDuration", bad, err)
		}
	}
}
