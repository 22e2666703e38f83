package pins

import (
	"testing"

	"go.viam.com/test"

	"github.com/gitsim/emulator/encoder"
	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/pins/fake"
)

func TestPairRoutesChannels(t *testing.T) {
	pair, err := OpenPair("a", "b", true, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	a, b := pair.A.(*fake.Pin), pair.B.(*fake.Pin)

	test.That(t, pair.Set(encoder.ChannelA, true), test.ShouldBeNil)
	test.That(t, a.Get(), test.ShouldBeTrue)
	test.That(t, b.Get(), test.ShouldBeFalse)

	test.That(t, pair.Set(encoder.ChannelB, true), test.ShouldBeNil)
	test.That(t, b.Get(), test.ShouldBeTrue)

	test.That(t, pair.Set(encoder.Channel(7), true), test.ShouldNotBeNil)

	test.That(t, pair.Low(), test.ShouldBeNil)
	test.That(t, a.Get(), test.ShouldBeFalse)
	test.That(t, b.Get(), test.ShouldBeFalse)
}

func TestPairDrivenByEncoder(t *testing.T) {
	pair, err := OpenPair("a", "b", true, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	e := encoder.New()
	e.SetVelocity(float32(e.StepLength() / 10 / 1e-3))
	for i := 0; i < 37; i++ {
		e.Update(1e-3)
		test.That(t, e.Emulate(pair), test.ShouldBeNil)
	}
	levelA, levelB := e.Levels()
	test.That(t, pair.A.(*fake.Pin).Get(), test.ShouldEqual, levelA)
	test.That(t, pair.B.(*fake.Pin).Get(), test.ShouldEqual, levelB)
	test.That(t, pair.A.(*fake.Pin).Edges()+pair.B.(*fake.Pin).Edges(), test.ShouldEqual, uint64(e.PulseCount())+1)
}
