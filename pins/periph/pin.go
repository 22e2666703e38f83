// Package periph drives encoder outputs through GPIO lines registered with periph.io.
package periph

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/gitsim/emulator/logging"
)

var (
	initOnce sync.Once
	errInit  error
)

// Init loads the host drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			errInit = errors.Wrap(err, "failed to initialize periph host drivers")
		}
	})
	return errInit
}

// Pin is a GPIO output. Writes that would not change the level are skipped.
type Pin struct {
	name    string
	line    gpio.PinOut
	level   gpio.Level
	written bool
}

// Open initializes the host drivers if needed, looks up the named line and drives it low.
func Open(name string, logger logging.Logger) (*Pin, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	line := gpioreg.ByName(name)
	if line == nil {
		return nil, errors.Errorf("no gpio pin found for %q", name)
	}
	p, err := newPin(name, line)
	if err != nil {
		return nil, err
	}
	logger.Debugw("opened gpio output", "pin", name, "line", line.String())
	return p, nil
}

func newPin(name string, line gpio.PinOut) (*Pin, error) {
	p := &Pin{name: name, line: line}
	if err := p.Set(false); err != nil {
		return nil, errors.Wrapf(err, "failed to drive pin %q low", name)
	}
	return p, nil
}

// Set sets the pin to either low or high.
func (p *Pin) Set(high bool) error {
	l := gpio.Low
	if high {
		l = gpio.High
	}
	if p.written && l == p.level {
		return nil
	}
	if err := p.line.Out(l); err != nil {
		return err
	}
	p.level = l
	p.written = true
	return nil
}

// Name returns the gpio line name.
func (p *Pin) Name() string {
	return p.name
}
