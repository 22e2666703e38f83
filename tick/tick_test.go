package tick

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/gitsim/emulator/encoder"
	"github.com/gitsim/emulator/logging"
)

func TestTimerConfigPeriod(t *testing.T) {
	cfg := DefaultTimerConfig()
	test.That(t, cfg.Validate("tick"), test.ShouldBeNil)
	test.That(t, cfg.Seconds(), test.ShouldAlmostEqual, 1300/(666666687/2.0))
	test.That(t, cfg.Period(), test.ShouldEqual, 3900*time.Nanosecond)

	cfg = TimerConfig{Prescaler: 1, Reload: 1000, ClockHz: 2e6}
	test.That(t, cfg.Period(), test.ShouldEqual, time.Millisecond)
}

func TestTimerConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		cfg   TimerConfig
		field string
	}{
		{TimerConfig{Reload: 1, ClockHz: 1}, "tick.prescaler"},
		{TimerConfig{Prescaler: 1, ClockHz: 1}, "tick.reload"},
		{TimerConfig{Prescaler: 1, Reload: 1}, "tick.timer_clock_hz"},
	} {
		err := tc.cfg.Validate("tick")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.field)
	}
}

func TestMaxAliasFreePeriod(t *testing.T) {
	minStep := 0.8 * math.Pi / 256
	period := MaxAliasFreePeriod(minStep)
	test.That(t, encoder.MaxVelocity*period.Seconds(), test.ShouldBeLessThanOrEqualTo, 2*minStep)
	test.That(t, DefaultTimerConfig().Period(), test.ShouldBeLessThan, period)
}

func TestClockSource(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewClockSource(clock.NewMock(), 0, logger)
	test.That(t, err, test.ShouldNotBeNil)

	mock := clock.NewMock()
	src, err := NewClockSource(mock, time.Millisecond, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Period(), test.ShouldEqual, time.Millisecond)

	var ticks atomic.Int64
	test.That(t, src.Start(func() { ticks.Inc() }), test.ShouldBeNil)
	test.That(t, src.Start(func() {}), test.ShouldNotBeNil)

	for i := int64(1); i <= 5; i++ {
		mock.Add(time.Millisecond)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, ticks.Load(), test.ShouldEqual, i)
		})
	}

	src.Stop()
	mock.Add(10 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	test.That(t, ticks.Load(), test.ShouldEqual, 5)
	src.Stop()
}

func TestClockSourceFollowsElapsedTime(t *testing.T) {
	for _, tc := range []struct {
		name   string
		period time.Duration
	}{
		{"period at wake interval", time.Millisecond},
		{"period below wake interval", 100 * time.Microsecond},
		{"reference period", DefaultTimerConfig().Period()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mock := clock.NewMock()
			src, err := NewClockSource(mock, tc.period, logging.NewTestLogger(t))
			test.That(t, err, test.ShouldBeNil)

			var ticks atomic.Int64
			test.That(t, src.Start(func() { ticks.Inc() }), test.ShouldBeNil)
			defer src.Stop()

			// One large step of the clock is served as one callback per elapsed period.
			elapsed := 10 * MinWakeInterval
			mock.Add(elapsed)
			want := int64(elapsed / tc.period)
			testutils.WaitForAssertion(t, func(tb testing.TB) {
				tb.Helper()
				test.That(tb, ticks.Load(), test.ShouldEqual, want)
			})
		})
	}
}

func TestManualSource(t *testing.T) {
	src := NewManualSource(time.Microsecond)
	test.That(t, src.Period(), test.ShouldEqual, time.Microsecond)

	count := 0
	src.Fire(3)
	test.That(t, count, test.ShouldEqual, 0)

	test.That(t, src.Start(func() { count++ }), test.ShouldBeNil)
	test.That(t, src.Start(func() {}), test.ShouldNotBeNil)
	src.Fire(3)
	test.That(t, count, test.ShouldEqual, 3)

	src.Stop()
	src.Fire(3)
	test.That(t, count, test.ShouldEqual, 3)
}
