// Package encoder implements the kinematic and quadrature model of one emulated incremental
// encoder axle.
//
// An Encoder integrates a commanded acceleration into velocity and position, turns the position of
// two virtual sensors (channel A and channel B) into digital levels according to each channel's
// duty cycle, and decodes the resulting Gray code into a x4 pulse count.
//
//	position  -2s        -s(1-dA)      0          s*dA         2s
//	          |-----------|------------|------------|-----------|
//	channel     high         low          high         low
//
// where s is the step length and dA the duty fraction of the channel. Channel B follows the same
// pattern, offset from A by the configured phase.
//
// Encoder is not safe for concurrent use; callers serialize access (see package state).
package encoder

import (
	"math"

	"go.uber.org/multierr"
)

const (
	// MaxVelocity is the largest linear speed the emulator produces, 700 km/h in m/s.
	MaxVelocity = 700 / 3.6

	// DefaultPPR is the pulses-per-revolution an encoder starts with.
	DefaultPPR = 128
	// DefaultWheelDiameter is the wheel diameter in meters an encoder starts with.
	DefaultWheelDiameter = 1.0
	// DefaultDuty is the high-time percentage of both channels.
	DefaultDuty = 50
	// DefaultPhase is the phase of channel B relative to channel A, in degrees.
	DefaultPhase = 90
)

// Faults holds fault-injection attributes. They are carried with the encoder but no emulation path
// reads them yet.
type Faults struct {
	StuckA           bool
	StuckB           bool
	FreqErrorA       bool
	FreqErrorB       bool
	FreqErrorPerStep float32
}

// Encoder is one emulated axle.
type Encoder struct {
	dutyA  int
	dutyB  int
	phase  int
	faults Faults

	ppr           uint16
	wheelDiameter float64
	stepLength    float64

	posA float64
	posB float64

	velocity     float64
	acceleration float64

	pulseCount uint16
	state      State

	// Last emitted channel levels, held when a position falls outside every threshold band.
	levelA bool
	levelB bool
}

// New returns an encoder with every attribute at its default.
func New() *Encoder {
	e := &Encoder{}
	e.Reset()
	return e
}

// Reset restores every attribute to its default value.
func (e *Encoder) Reset() {
	*e = Encoder{
		dutyA:         DefaultDuty,
		dutyB:         DefaultDuty,
		phase:         DefaultPhase,
		ppr:           DefaultPPR,
		wheelDiameter: DefaultWheelDiameter,
		state:         Unknown,
	}
	e.RecomputeStepLength()
}

// Update advances the kinematics by dt seconds.
func (e *Encoder) Update(dt float64) {
	e.velocity += e.acceleration * dt
	if e.velocity > MaxVelocity {
		e.velocity = MaxVelocity
	} else if e.velocity < -MaxVelocity {
		e.velocity = -MaxVelocity
	}

	e.posA += e.velocity * dt

	span := 2 * e.stepLength
	k := -float64(e.phase) / 360
	e.posB = e.posA + span*k

	lesser, greater := e.posB, e.posA
	if k > 0 {
		lesser, greater = e.posA, e.posB
	}

	// Both channels move together so the phase offset between them is preserved.
	if lesser <= -span {
		e.posA += span
		e.posB += span
	} else if greater >= span {
		e.posA -= span
		e.posB -= span
	}
}

// Emulate computes the level of both channels from the current positions, writes them to out and
// feeds them to the quadrature decoder. Decoding happens even if writing to out fails.
func (e *Encoder) Emulate(out Output) error {
	e.levelA = channelLevel(e.posA, e.dutyA, e.stepLength, e.levelA)
	e.levelB = channelLevel(e.posB, e.dutyB, e.stepLength, e.levelB)

	var err error
	if out != nil {
		err = multierr.Combine(
			out.Set(ChannelA, e.levelA),
			out.Set(ChannelB, e.levelB),
		)
	}
	e.Decode(e.levelA, e.levelB)
	return err
}

func channelLevel(pos float64, dutyPct int, step float64, prev bool) bool {
	k := float64(dutyPct) * 0.01
	posMax := 2 * step
	posMin := -posMax
	posPos := k * posMax
	posNeg := (1 - k) * posMin

	switch {
	case pos >= posMin && pos < posNeg:
		return true
	case pos >= posNeg && pos < 0:
		return false
	case pos >= 0 && pos < posPos:
		return true
	case pos >= posPos && pos < posMax:
		return false
	default:
		return prev
	}
}

// Decode feeds one pair of channel levels to the quadrature state machine. Every state change
// increments the pulse count, except the first one out of Unknown.
func (e *Encoder) Decode(levelA, levelB bool) {
	next := StateFromLevels(levelA, levelB)
	if next == e.state {
		return
	}
	if e.state != Unknown {
		e.pulseCount++
	}
	e.state = next
}

// RecomputeStepLength derives the x2 step length from the wheel diameter and ppr. It must be
// called after SetPPR or SetWheelDiameter before the next Update.
func (e *Encoder) RecomputeStepLength() {
	e.stepLength = (e.wheelDiameter * math.Pi) / (float64(e.ppr) * 2)
}

// SetPPR sets the pulses per revolution.
func (e *Encoder) SetPPR(ppr uint16) {
	e.ppr = ppr
}

// SetWheelDiameter sets the wheel diameter in meters.
func (e *Encoder) SetWheelDiameter(diameter float32) {
	e.wheelDiameter = float64(diameter)
}

// SetVelocity sets the linear velocity in m/s.
func (e *Encoder) SetVelocity(velocity float32) {
	e.velocity = float64(velocity)
}

// SetAcceleration sets the linear acceleration in m/s^2.
func (e *Encoder) SetAcceleration(acceleration float32) {
	e.acceleration = float64(acceleration)
}

// SetDuty sets the high-time percentage of each channel.
func (e *Encoder) SetDuty(dutyA, dutyB int) {
	e.dutyA, e.dutyB = dutyA, dutyB
}

// SetPhase sets the phase of channel B relative to channel A, in degrees.
func (e *Encoder) SetPhase(degrees int) {
	e.phase = degrees
}

// SetFaults replaces the fault-injection attributes.
func (e *Encoder) SetFaults(f Faults) {
	e.faults = f
}

// ResetPulseCount zeroes the pulse count without touching the decoder state.
func (e *Encoder) ResetPulseCount() {
	e.pulseCount = 0
}

// PPR returns the pulses per revolution.
func (e *Encoder) PPR() uint16 { return e.ppr }

// WheelDiameter returns the wheel diameter in meters.
func (e *Encoder) WheelDiameter() float64 { return e.wheelDiameter }

// StepLength returns the x2 step length in meters.
func (e *Encoder) StepLength() float64 { return e.stepLength }

// Velocity returns the velocity in m/s.
func (e *Encoder) Velocity() float64 { return e.velocity }

// Acceleration returns the acceleration in m/s^2.
func (e *Encoder) Acceleration() float64 { return e.acceleration }

// Positions returns the positions of the channel A and channel B sensors in meters.
func (e *Encoder) Positions() (float64, float64) { return e.posA, e.posB }

// PulseCount returns the x4 pulse count since the last reset.
func (e *Encoder) PulseCount() uint16 { return e.pulseCount }

// QuadratureState returns the last decoded state.
func (e *Encoder) QuadratureState() State { return e.state }

// Duty returns the high-time percentage of each channel.
func (e *Encoder) Duty() (int, int) { return e.dutyA, e.dutyB }

// Phase returns the phase of channel B relative to channel A, in degrees.
func (e *Encoder) Phase() int { return e.phase }

// Faults returns the fault-injection attributes.
func (e *Encoder) Faults() Faults { return e.faults }

// Levels returns the last emitted level of each channel.
func (e *Encoder) Levels() (bool, bool) { return e.levelA, e.levelB }
