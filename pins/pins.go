// Package pins adapts digital output pins to the per-axle encoder output.
package pins

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gitsim/emulator/encoder"
	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/pins/fake"
	"github.com/gitsim/emulator/pins/periph"
)

// A Pin is a single digital output.
type Pin interface {
	Set(high bool) error
}

// Pair drives the two channels of one axle.
type Pair struct {
	A Pin
	B Pin
}

var _ encoder.Output = Pair{}

// Set writes the level of one channel.
func (p Pair) Set(channel encoder.Channel, high bool) error {
	switch channel {
	case encoder.ChannelA:
		return p.A.Set(high)
	case encoder.ChannelB:
		return p.B.Set(high)
	default:
		return errors.Errorf("unknown channel %d", channel)
	}
}

// Low drives both channels low.
func (p Pair) Low() error {
	return multierr.Combine(p.A.Set(false), p.B.Set(false))
}

// OpenPair returns the pair of pins with the given names. When useFake is set, in-memory pins
// are returned and no hardware is touched.
func OpenPair(nameA, nameB string, useFake bool, logger logging.Logger) (Pair, error) {
	if useFake {
		return Pair{A: fake.NewPin(nameA), B: fake.NewPin(nameB)}, nil
	}
	a, err := periph.Open(nameA, logger)
	if err != nil {
		return Pair{}, err
	}
	b, err := periph.Open(nameB, logger)
	if err != nil {
		return Pair{}, err
	}
	return Pair{A: a, B: b}, nil
}
