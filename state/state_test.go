package state

import (
	"errors"
	"testing"

	"go.viam.com/test"

	"github.com/gitsim/emulator/encoder"
)

type lowOutput struct {
	lows int
	err  error
}

func (o *lowOutput) Set(encoder.Channel, bool) error { return nil }

func (o *lowOutput) Low() error {
	o.lows++
	return o.err
}

func TestShared(t *testing.T) {
	out0 := &lowOutput{}
	out1 := &lowOutput{err: errors.New("pin gone")}
	s := New([NumAxles]Output{out0, out1})

	s.Do(func(v *View) {
		test.That(t, v.Connected(), test.ShouldBeFalse)
		test.That(t, v.HandshakePending(), test.ShouldBeFalse)
		test.That(t, v.Encoder(0) != v.Encoder(1), test.ShouldBeTrue)
		test.That(t, v.Output(0), test.ShouldEqual, out0)

		v.SetConnected(true)
		v.SetHandshakePending(true)
		v.Encoder(0).SetVelocity(4)
		v.Encoder(1).Decode(true, true)
		v.Encoder(1).Decode(false, true)
	})

	s.Do(func(v *View) {
		test.That(t, v.Connected(), test.ShouldBeTrue)
		test.That(t, v.HandshakePending(), test.ShouldBeTrue)
		test.That(t, v.Encoder(1).PulseCount(), test.ShouldEqual, 1)

		v.ResetPulseCounts()
		test.That(t, v.Encoder(1).PulseCount(), test.ShouldEqual, 0)
		test.That(t, v.Encoder(0).Velocity(), test.ShouldEqual, 4)

		v.ResetEncoders()
		test.That(t, v.Encoder(0).Velocity(), test.ShouldEqual, 0)
		test.That(t, v.Encoder(1).QuadratureState(), test.ShouldEqual, encoder.Unknown)

		err := v.OutputsLow()
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "pin gone")
	})
	test.That(t, out0.lows, test.ShouldEqual, 1)
	test.That(t, out1.lows, test.ShouldEqual, 1)
}

func TestSharedWithoutOutputs(t *testing.T) {
	s := New([NumAxles]Output{})
	s.Do(func(v *View) {
		test.That(t, v.Output(0), test.ShouldBeNil)
		test.That(t, v.OutputsLow(), test.ShouldBeNil)
	})
}
