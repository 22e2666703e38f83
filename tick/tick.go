// Package tick provides the fixed-period tick that drives the encoder emulation.
package tick

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/gitsim/emulator/encoder"
	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/utils"
)

// Reference timer settings of the emulator board.
const (
	DefaultPrescaler = 20
	DefaultReload    = 65
	DefaultClockHz   = 666666687
)

// A Source calls a function once per period until stopped.
type Source interface {
	Period() time.Duration
	Start(fn func()) error
	Stop()
}

// TimerConfig describes a hardware-style timer: the input clock divided by two, then by the
// prescaler, then counted up to the reload value.
type TimerConfig struct {
	Prescaler uint32  `json:"prescaler"`
	Reload    uint32  `json:"reload"`
	ClockHz   float64 `json:"timer_clock_hz"`
}

// DefaultTimerConfig returns the reference timer settings.
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{Prescaler: DefaultPrescaler, Reload: DefaultReload, ClockHz: DefaultClockHz}
}

// Validate ensures all parts of the config are valid.
func (c TimerConfig) Validate(path string) error {
	if c.Prescaler == 0 {
		return errors.Errorf("%s.prescaler: must be greater than zero", path)
	}
	if c.Reload == 0 {
		return errors.Errorf("%s.reload: must be greater than zero", path)
	}
	if c.ClockHz <= 0 {
		return errors.Errorf("%s.timer_clock_hz: must be greater than zero", path)
	}
	return nil
}

// Seconds returns the tick period in seconds.
func (c TimerConfig) Seconds() float64 {
	return float64(c.Prescaler) * float64(c.Reload) / (c.ClockHz / 2)
}

// Period returns the tick period rounded to the nearest nanosecond.
func (c TimerConfig) Period() time.Duration {
	return time.Duration(math.Round(c.Seconds() * float64(time.Second)))
}

// MaxAliasFreePeriod returns the longest period for which one tick at full speed moves a channel by
// less than two steps, so the single wraparound correction per tick keeps positions in bounds.
func MaxAliasFreePeriod(minStep float64) time.Duration {
	return time.Duration(2 * minStep / encoder.MaxVelocity * float64(time.Second))
}

// MinWakeInterval is the shortest interval at which a ClockSource wakes up. Periods shorter than
// this are served in bursts, one callback per elapsed period.
const MinWakeInterval = time.Millisecond

// maxBacklog bounds how far a ClockSource catches up after a stall.
const maxBacklog = time.Second

// ClockSource ticks on a clock.Clock from a background worker. The number of callbacks follows
// the time elapsed since Start, so a period shorter than the clock's ticker resolution still
// yields one callback per period.
type ClockSource struct {
	clk    clock.Clock
	period time.Duration
	logger logging.Logger

	mu      sync.Mutex
	workers utils.StoppableWorkers
}

// NewClockSource returns a stopped source ticking every period on clk.
func NewClockSource(clk clock.Clock, period time.Duration, logger logging.Logger) (*ClockSource, error) {
	if period <= 0 {
		return nil, errors.Errorf("tick period must be positive, got %v", period)
	}
	return &ClockSource{clk: clk, period: period, logger: logger}, nil
}

// Period returns the tick period.
func (s *ClockSource) Period() time.Duration {
	return s.period
}

// Start calls fn once per period until Stop. A source can only be started once.
func (s *ClockSource) Start(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers != nil {
		return errors.New("tick source already started")
	}

	wake := s.period
	if wake < MinWakeInterval {
		wake = MinWakeInterval
	}
	start := s.clk.Now()
	ticker := s.clk.Ticker(wake)
	s.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		defer ticker.Stop()
		limit := int64(maxBacklog / s.period)
		if limit < 1 {
			limit = 1
		}
		var served int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			due := int64(s.clk.Since(start) / s.period)
			if behind := due - served; behind > limit {
				s.logger.Warnw("tick source fell behind, skipping ticks", "skipped", behind-limit, "period", s.period)
				served = due - limit
			}
			for ; served < due; served++ {
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	})
	s.logger.Debugw("tick source started", "period", s.period, "wake_interval", wake)
	return nil
}

// Stop stops ticking and waits for a running callback to return.
func (s *ClockSource) Stop() {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}

// ManualSource ticks only when Fire is called. It is used to step the emulation deterministically.
type ManualSource struct {
	period time.Duration

	mu sync.Mutex
	fn func()
}

// NewManualSource returns a source that reports period but never ticks on its own.
func NewManualSource(period time.Duration) *ManualSource {
	return &ManualSource{period: period}
}

// Period returns the tick period.
func (s *ManualSource) Period() time.Duration {
	return s.period
}

// Start registers fn to be called by Fire.
func (s *ManualSource) Start(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn != nil {
		return errors.New("tick source already started")
	}
	s.fn = fn
	return nil
}

// Stop unregisters the callback.
func (s *ManualSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = nil
}

// Fire calls the registered callback n times. It does nothing if the source is not started.
func (s *ManualSource) Fire(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn == nil {
		return
	}
	for i := 0; i < n; i++ {
		s.fn()
	}
}
