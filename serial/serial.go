// Package serial opens the byte-stream link to the controlling application.
package serial

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
	"go.uber.org/multierr"
)

// Options to be passed to Open(), closely mirroring go.bug.st/serial.Mode.
type Options struct {
	BaudRate int      `json:"baud_rate"`
	DataBits int      `json:"data_bits"`
	StopBits StopBits `json:"stop_bits"`
	Parity   Parity   `json:"parity"`
	// ReadTimeout in milliseconds. Zero or less blocks until data arrives.
	ReadTimeout int `json:"read_timeout_ms"`
}

// DefaultOptions is 115200 baud, 8 data bits, no parity, one stop bit, blocking reads.
func DefaultOptions() Options {
	return Options{BaudRate: 115200, DataBits: 8, StopBits: OneStopBit, Parity: NoParity}
}

// Validate ensures all parts of the options are valid.
func (o Options) Validate(path string) error {
	if o.BaudRate <= 0 {
		return errors.Errorf("%s.baud_rate: must be greater than zero", path)
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return errors.Errorf("%s.data_bits: must be between 5 and 8, got %d", path, o.DataBits)
	}
	if o.StopBits < OneStopBit || o.StopBits > TwoStopBits {
		return errors.Errorf("%s.stop_bits: unknown setting %d", path, o.StopBits)
	}
	if o.Parity < NoParity || o.Parity > SpaceParity {
		return errors.Errorf("%s.parity: unknown setting %d", path, o.Parity)
	}
	return nil
}

// Parity describes a serial port parity setting.
type Parity int

const (
	// NoParity disable parity control (default).
	NoParity Parity = iota
	// OddParity enable odd-parity check.
	OddParity
	// EvenParity enable even-parity check.
	EvenParity
	// MarkParity enable mark-parity (always 1) check.
	MarkParity
	// SpaceParity enable space-parity (always 0) check.
	SpaceParity
)

var parityNames = []string{"none", "odd", "even", "mark", "space"}

// ParityFromString parses a parity name such as "none" or "even".
func ParityFromString(s string) (Parity, error) {
	for i, name := range parityNames {
		if strings.EqualFold(s, name) {
			return Parity(i), nil
		}
	}
	return NoParity, errors.Errorf("unknown parity %q", s)
}

// StopBits describe a serial port stop bits setting.
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default).
	OneStopBit StopBits = iota
	// OnePointFiveStopBits sets 1.5 stop bits.
	OnePointFiveStopBits
	// TwoStopBits sets 2 stop bits.
	TwoStopBits
)

func (o Options) mode() *ser.Mode {
	return &ser.Mode{
		BaudRate: o.BaudRate,
		Parity:   ser.Parity(o.Parity),
		DataBits: o.DataBits,
		StopBits: ser.StopBits(o.StopBits),
	}
}

func (o Options) readTimeout() time.Duration {
	if o.ReadTimeout <= 0 {
		return ser.NoTimeout
	}
	return time.Duration(o.ReadTimeout) * time.Millisecond
}

// Open attempts to open a serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
	if err := options.Validate("serial"); err != nil {
		return nil, err
	}
	device, err := ser.Open(devicePath, options.mode())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial device %q", devicePath)
	}
	if err := device.SetReadTimeout(options.readTimeout()); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "failed to set read timeout"), device.Close())
	}
	return device, nil
}

// listPorts is a variable so tests can fake the available ports.
var listPorts = ser.GetPortsList

// Search returns the serial ports whose path contains filter, sorted. An empty filter matches
// every port.
func Search(filter string) ([]string, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}
	var matched []string
	for _, p := range ports {
		if strings.Contains(p, filter) {
			matched = append(matched, p)
		}
	}
	sort.Strings(matched)
	return matched, nil
}
