// Package state holds the runtime state shared by the telegram reader and the tick handler.
package state

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/gitsim/emulator/encoder"
)

// NumAxles is the number of emulated axles.
const NumAxles = 2

// An Output is the digital sink of one axle. Low drives both channels low.
type Output interface {
	encoder.Output
	Low() error
}

// Axle is one emulated encoder and the outputs it drives.
type Axle struct {
	Encoder *encoder.Encoder
	Output  Output
}

// Shared is the connection state and the axles. Every field is guarded by the embedded mutex;
// readers and writers use Do.
type Shared struct {
	mu sync.Mutex

	connected        bool
	handshakePending bool
	axles            [NumAxles]Axle
}

// New returns a disconnected state with both encoders at their defaults. A nil output disables
// the digital sink of that axle.
func New(outputs [NumAxles]Output) *Shared {
	s := &Shared{}
	for i := range s.axles {
		s.axles[i] = Axle{Encoder: encoder.New(), Output: outputs[i]}
	}
	return s
}

// Do runs fn while holding the state lock. fn must not block.
func (s *Shared) Do(fn func(v *View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&View{s: s})
}

// A View is the access handle passed to Do. It is only valid inside the callback.
type View struct {
	s *Shared
}

// Connected reports whether a valid connection telegram has been applied.
func (v *View) Connected() bool { return v.s.connected }

// SetConnected sets the connection flag.
func (v *View) SetConnected(connected bool) { v.s.connected = connected }

// HandshakePending reports whether a telegram has been read and not yet answered.
func (v *View) HandshakePending() bool { return v.s.handshakePending }

// SetHandshakePending sets the handshake flag.
func (v *View) SetHandshakePending(pending bool) { v.s.handshakePending = pending }

// Encoder returns the encoder of axle i.
func (v *View) Encoder(i int) *encoder.Encoder { return v.s.axles[i].Encoder }

// Output returns the output of axle i. It is nil when the axle drives nothing.
func (v *View) Output(i int) encoder.Output {
	return v.s.axles[i].Output
}

// ResetEncoders restores both encoders to their defaults.
func (v *View) ResetEncoders() {
	for _, a := range v.s.axles {
		a.Encoder.Reset()
	}
}

// ResetPulseCounts zeroes both pulse counts.
func (v *View) ResetPulseCounts() {
	for _, a := range v.s.axles {
		a.Encoder.ResetPulseCount()
	}
}

// OutputsLow drives every output low.
func (v *View) OutputsLow() error {
	var err error
	for _, a := range v.s.axles {
		if a.Output != nil {
			err = multierr.Append(err, a.Output.Low())
		}
	}
	return err
}
