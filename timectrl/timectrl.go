package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives read access to simulation time and the current
// time-acceleration factor. It satisfies core.WarpClock.
type SimClock interface {
	Now() time.Time
	WarpRate() float64
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces ticks so that one tick of simulation time takes
	// Tick/WarpRate of wall time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// minInterval bounds the wall-clock pacing of RealTime mode.
const minInterval = time.Millisecond

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	warp        float64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller running at warp 1.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
		warp:        1,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps simulation time without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// WarpRate returns the time-acceleration factor.
func (tc *TimeController) WarpRate() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.warp
}

// SetWarpRate changes the time-acceleration factor. Values below 1 are
// clamped to 1.
func (tc *TimeController) SetWarpRate(rate float64) {
	if rate < 1 {
		rate = 1
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.warp = rate
}

// AddListener registers a callback invoked on every tick. Listeners run on
// the controller goroutine, in registration order.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances simulation time by one tick scaled by the warp rate and
// notifies listeners synchronously. It returns the new simulation time.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	step := time.Duration(float64(tc.Tick) * tc.warp)
	tc.currentTime = tc.currentTime.Add(step)
	now := tc.currentTime
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// Start runs the controller until ctx is cancelled or, when duration is
// positive, until that much simulation time has elapsed. It returns a
// channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		start := tc.Now()
		for {
			if duration > 0 && tc.Now().Sub(start) >= duration {
				return
			}
			if tc.Mode == RealTime {
				timer := time.NewTimer(tc.interval())
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.Step()
		}
	}()
	return done
}

// interval is the wall time between two ticks in RealTime mode. The warp
// rate scales the simulated step, so wall pacing stays at one Tick.
func (tc *TimeController) interval() time.Duration {
	if tc.Tick < minInterval {
		return minInterval
	}
	return tc.Tick
}
