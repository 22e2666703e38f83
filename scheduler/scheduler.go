// Package scheduler runs the fixed-period emulation step: advance both axles, drive their outputs,
// and on every slow period ask for a response and restart the pulse counts.
package scheduler

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/state"
	"github.com/gitsim/emulator/tick"
)

// DefaultSlowPeriod is the interval between responses.
const DefaultSlowPeriod = 50 * time.Millisecond

// A Responder emits a response for the current state if one is due.
type Responder interface {
	SendResponse(v *state.View) bool
}

// SlowPeriodTicks returns how many ticks make up one slow period, at least one.
func SlowPeriodTicks(slowPeriod, period time.Duration) int {
	if period <= 0 {
		return 1
	}
	n := int(slowPeriod / period)
	if n < 1 {
		return 1
	}
	return n
}

// Scheduler is the tick handler.
type Scheduler struct {
	shared    *state.Shared
	responder Responder
	source    tick.Source
	logger    logging.Logger

	dt              float64
	slowPeriodTicks int

	// Guarded by the shared state lock.
	slowTicksElapsed int
	outputErrLogged  bool

	ticks        atomic.Uint64
	responses    atomic.Uint64
	outputErrors atomic.Uint64
}

// New returns a scheduler stepping the axles of shared by the period of source.
func New(
	shared *state.Shared,
	responder Responder,
	source tick.Source,
	slowPeriod time.Duration,
	logger logging.Logger,
) (*Scheduler, error) {
	period := source.Period()
	if period <= 0 {
		return nil, errors.Errorf("tick period must be positive, got %v", period)
	}
	if slowPeriod <= 0 {
		slowPeriod = DefaultSlowPeriod
	}
	s := &Scheduler{
		shared:          shared,
		responder:       responder,
		source:          source,
		logger:          logger,
		dt:              period.Seconds(),
		slowPeriodTicks: SlowPeriodTicks(slowPeriod, period),
	}
	logger.Debugw("scheduler configured", "period", period, "slow_period_ticks", s.slowPeriodTicks)
	return s, nil
}

// SlowPeriodTicks returns the number of ticks between responses.
func (s *Scheduler) SlowPeriodTicks() int {
	return s.slowPeriodTicks
}

// Start registers OnTick with the tick source.
func (s *Scheduler) Start() error {
	return s.source.Start(s.OnTick)
}

// Stop stops the tick source. No tick runs after Stop returns.
func (s *Scheduler) Stop() {
	s.source.Stop()
}

// OnTick runs one emulation step. It never blocks on I/O.
func (s *Scheduler) OnTick() {
	s.shared.Do(func(v *state.View) {
		if s.slowTicksElapsed == s.slowPeriodTicks-1 {
			if s.responder.SendResponse(v) {
				s.responses.Inc()
			}
			v.ResetPulseCounts()
			s.slowTicksElapsed = 0
			s.outputErrLogged = false
		} else {
			s.slowTicksElapsed++
		}

		if !v.Connected() {
			return
		}
		for i := 0; i < state.NumAxles; i++ {
			v.Encoder(i).Update(s.dt)
		}
		for i := 0; i < state.NumAxles; i++ {
			if err := v.Encoder(i).Emulate(v.Output(i)); err != nil {
				s.outputErrors.Inc()
				if !s.outputErrLogged {
					s.logger.Warnw("failed to drive outputs", "axle", i+1, "error", err)
					s.outputErrLogged = true
				}
			}
		}
	})
	s.ticks.Inc()
}

// Stats is a snapshot of scheduler activity.
type Stats struct {
	Ticks        uint64 `json:"ticks"`
	Responses    uint64 `json:"responses"`
	OutputErrors uint64 `json:"output_errors"`
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:        s.ticks.Load(),
		Responses:    s.responses.Load(),
		OutputErrors: s.outputErrors.Load(),
	}
}
