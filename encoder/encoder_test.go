package encoder

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
)

type recordingOutput struct {
	a, b []bool
	err  error
}

func (r *recordingOutput) Set(channel Channel, high bool) error {
	if channel == ChannelA {
		r.a = append(r.a, high)
	} else {
		r.b = append(r.b, high)
	}
	return r.err
}

func TestDefaults(t *testing.T) {
	e := New()
	test.That(t, e.PPR(), test.ShouldEqual, 128)
	test.That(t, e.WheelDiameter(), test.ShouldEqual, 1.0)
	test.That(t, e.StepLength(), test.ShouldAlmostEqual, math.Pi/256)
	test.That(t, e.Velocity(), test.ShouldEqual, 0)
	test.That(t, e.Acceleration(), test.ShouldEqual, 0)
	test.That(t, e.PulseCount(), test.ShouldEqual, 0)
	test.That(t, e.QuadratureState(), test.ShouldEqual, Unknown)
	test.That(t, e.Phase(), test.ShouldEqual, 90)
	dutyA, dutyB := e.Duty()
	test.That(t, dutyA, test.ShouldEqual, 50)
	test.That(t, dutyB, test.ShouldEqual, 50)
	posA, posB := e.Positions()
	test.That(t, posA, test.ShouldEqual, 0)
	test.That(t, posB, test.ShouldEqual, 0)
	test.That(t, e.Faults(), test.ShouldResemble, Faults{})
}

func TestReset(t *testing.T) {
	e := New()
	e.SetPPR(100)
	e.SetWheelDiameter(1.2)
	e.RecomputeStepLength()
	e.SetVelocity(12)
	e.SetAcceleration(-2)
	e.SetFaults(Faults{StuckA: true})
	e.Update(0.01)
	e.Emulate(nil)
	e.Decode(true, true)

	e.Reset()
	test.That(t, e.PPR(), test.ShouldEqual, DefaultPPR)
	test.That(t, e.StepLength(), test.ShouldAlmostEqual, math.Pi/256)
	test.That(t, e.Velocity(), test.ShouldEqual, 0)
	test.That(t, e.Acceleration(), test.ShouldEqual, 0)
	test.That(t, e.PulseCount(), test.ShouldEqual, 0)
	test.That(t, e.QuadratureState(), test.ShouldEqual, Unknown)
	test.That(t, e.Faults(), test.ShouldResemble, Faults{})
}

func TestRecomputeStepLength(t *testing.T) {
	for _, diameter := range []float32{0.05, 0.8, 1, 1.25, 7.5} {
		for ppr := 1; ppr <= math.MaxUint16; ppr += 97 {
			e := New()
			e.SetWheelDiameter(diameter)
			e.SetPPR(uint16(ppr))
			e.RecomputeStepLength()
			want := float64(diameter) * math.Pi / (2 * float64(ppr))
			test.That(t, e.StepLength(), test.ShouldAlmostEqual, want)

			first := e.StepLength()
			e.RecomputeStepLength()
			e.RecomputeStepLength()
			test.That(t, e.StepLength(), test.ShouldEqual, first)
			test.That(t, e.StepLength(), test.ShouldBeGreaterThan, 0)
		}
	}
}

func TestVelocityIntegration(t *testing.T) {
	clamp := func(v float64) float64 {
		return math.Max(-MaxVelocity, math.Min(MaxVelocity, v))
	}

	for _, tc := range []struct {
		name string
		v0   float32
		a    float32
		dt   float64
		n    int
	}{
		{"constant speed", 10, 0, 1e-3, 500},
		{"accelerate", 0, 2.5, 1e-3, 2000},
		{"brake through zero", 5, -3, 1e-3, 4000},
		{"saturate forward", 190, 50, 1e-3, 2000},
		{"saturate backward", -190, -50, 1e-3, 2000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := New()
			e.SetVelocity(tc.v0)
			e.SetAcceleration(tc.a)
			for i := 0; i < tc.n; i++ {
				e.Update(tc.dt)
			}
			want := clamp(float64(tc.v0) + float64(tc.n)*float64(tc.a)*tc.dt)
			test.That(t, e.Velocity(), test.ShouldAlmostEqual, want, 1e-6)
			test.That(t, math.Abs(e.Velocity()), test.ShouldBeLessThanOrEqualTo, MaxVelocity)
		})
	}
}

func TestPositionsStayInBounds(t *testing.T) {
	//nolint:gosec
	rng := rand.New(rand.NewSource(42))
	const dt = 1e-4

	for _, cfg := range []struct {
		diameter float32
		ppr      uint16
	}{
		{0.8, 128},
		{1, 100},
		{1.25, 80},
	} {
		e := New()
		e.SetWheelDiameter(cfg.diameter)
		e.SetPPR(cfg.ppr)
		e.RecomputeStepLength()
		limit := 2 * e.StepLength()

		for i := 0; i < 20000; i++ {
			if i%500 == 0 {
				e.SetVelocity(float32((rng.Float64()*2 - 1) * MaxVelocity))
				e.SetAcceleration(float32((rng.Float64()*2 - 1) * 400))
			}
			e.Update(dt)
			posA, posB := e.Positions()
			test.That(t, posA, test.ShouldBeBetweenOrEqual, -limit, limit)
			test.That(t, posB, test.ShouldBeBetweenOrEqual, -limit, limit)
		}
	}
}

func TestPhaseOffsetPreserved(t *testing.T) {
	e := New()
	e.SetVelocity(3)
	for i := 0; i < 5000; i++ {
		e.Update(1e-4)
		posA, posB := e.Positions()
		test.That(t, posA-posB, test.ShouldAlmostEqual, e.StepLength()/2, 1e-12)
	}
}

func TestChannelLevels(t *testing.T) {
	const step = 1.0
	for _, tc := range []struct {
		pos  float64
		duty int
		want bool
	}{
		{-2, 50, true},
		{-1.01, 50, true},
		{-1, 50, false},
		{-0.01, 50, false},
		{0, 50, true},
		{0.99, 50, true},
		{1, 50, false},
		{1.99, 50, false},
		// With a 25% duty cycle the high bands are [-2,-1.5) and [0,0.5).
		{-1.6, 25, true},
		{-1.5, 25, false},
		{0.49, 25, true},
		{0.5, 25, false},
	} {
		test.That(t, channelLevel(tc.pos, tc.duty, step, !tc.want), test.ShouldEqual, tc.want)
	}

	// Outside every band the previous level is held.
	test.That(t, channelLevel(2, 50, step, true), test.ShouldBeTrue)
	test.That(t, channelLevel(-2.5, 50, step, false), test.ShouldBeFalse)
}

func TestDecode(t *testing.T) {
	e := New()

	// First transition out of Unknown is not counted.
	e.Decode(false, false)
	test.That(t, e.QuadratureState(), test.ShouldEqual, S00)
	test.That(t, e.PulseCount(), test.ShouldEqual, 0)

	// Repeating a state is not a transition.
	e.Decode(false, false)
	test.That(t, e.PulseCount(), test.ShouldEqual, 0)

	for _, levels := range [][2]bool{{false, true}, {true, true}, {true, false}, {false, false}} {
		e.Decode(levels[0], levels[1])
	}
	test.That(t, e.PulseCount(), test.ShouldEqual, 4)
	test.That(t, e.QuadratureState(), test.ShouldEqual, S00)

	// The count wraps silently.
	e.pulseCount = math.MaxUint16
	e.Decode(true, false)
	test.That(t, e.PulseCount(), test.ShouldEqual, 0)

	e.ResetPulseCount()
	test.That(t, e.QuadratureState(), test.ShouldEqual, S10)
}

func TestFullQuadratureCycle(t *testing.T) {
	e := New()
	e.SetWheelDiameter(1)
	e.SetPPR(100)
	e.RecomputeStepLength()

	const dt = 1e-3
	const increments = 100
	e.SetVelocity(float32(e.StepLength() / increments / dt))

	states := []State{}
	// 2.25 steps: one full cycle of both channels plus a margin before the next edge at 2.5.
	for i := 0; i < 225; i++ {
		e.Update(dt)
		test.That(t, e.Emulate(nil), test.ShouldBeNil)
		if len(states) == 0 || states[len(states)-1] != e.QuadratureState() {
			states = append(states, e.QuadratureState())
		}
	}

	test.That(t, states, test.ShouldResemble, []State{S10, S11, S01, S00, S10})
	test.That(t, e.PulseCount(), test.ShouldEqual, 4)
}

func TestReverseQuadratureCycle(t *testing.T) {
	e := New()
	e.SetWheelDiameter(1)
	e.SetPPR(100)
	e.RecomputeStepLength()

	const dt = 1e-3
	const increments = 100
	e.SetVelocity(float32(-e.StepLength() / increments / dt))

	states := []State{}
	// Backwards A leaves its high band at once, so the cycle starts in S00. The positions wrap at
	// 1.5 steps and the next edge after the cycle is at 2.5 steps.
	for i := 0; i < 225; i++ {
		e.Update(dt)
		test.That(t, e.Emulate(nil), test.ShouldBeNil)
		if len(states) == 0 || states[len(states)-1] != e.QuadratureState() {
			states = append(states, e.QuadratureState())
		}
	}

	test.That(t, states, test.ShouldResemble, []State{S00, S01, S11, S10, S00})
	test.That(t, e.PulseCount(), test.ShouldEqual, 4)
}

func TestEmulateWritesOutput(t *testing.T) {
	e := New()
	out := &recordingOutput{}
	e.Update(1e-3)
	test.That(t, e.Emulate(out), test.ShouldBeNil)
	// At rest A sits at 0 (high band) and B a quarter cycle behind (low band).
	test.That(t, out.a, test.ShouldResemble, []bool{true})
	test.That(t, out.b, test.ShouldResemble, []bool{false})
	levelA, levelB := e.Levels()
	test.That(t, levelA, test.ShouldBeTrue)
	test.That(t, levelB, test.ShouldBeFalse)

	out.err = errors.New("pin unavailable")
	e.SetVelocity(float32(e.StepLength() / 1e-3))
	e.Update(1e-3)
	err := e.Emulate(out)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pin unavailable")
	// Decoding still happened.
	test.That(t, e.QuadratureState(), test.ShouldNotEqual, Unknown)
}
