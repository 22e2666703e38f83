// Package protocol implements the binary telegram protocol spoken with the controlling
// application: connection and operation telegrams in, response telegrams out.
//
// While disconnected the engine expects 8 byte connection telegrams. A valid one configures both
// axles and connects; any further telegram is a 14 byte operation telegram until a disconnect
// command arrives. All fields are little-endian and floats are IEEE-754 single precision.
package protocol

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/state"
)

// A ResponseSink accepts encoded responses without blocking.
type ResponseSink interface {
	Enqueue(f Frame) bool
}

// Engine reads telegrams from a transport and applies them to the shared state.
type Engine struct {
	r      io.Reader
	shared *state.Shared
	sink   ResponseSink
	format Format
	stats  *Stats
	logger logging.Logger

	connBuf [ConnectionSize]byte
	opBuf   [OperationSize]byte
}

// NewEngine returns an engine reading from r. Responses are encoded in format and handed to sink.
func NewEngine(
	r io.Reader,
	shared *state.Shared,
	sink ResponseSink,
	format Format,
	stats *Stats,
	logger logging.Logger,
) *Engine {
	return &Engine{
		r:      r,
		shared: shared,
		sink:   sink,
		format: format,
		stats:  stats,
		logger: logger,
	}
}

// Run reads telegrams until the transport fails or ctx is done. It returns nil when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.ReadTelegram(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// ReadTelegram blocks until one full telegram has been read, then applies it. The telegram size
// depends on the connection state. The read itself happens outside the state lock.
func (e *Engine) ReadTelegram(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var connected bool
	e.shared.Do(func(v *state.View) {
		connected = v.Connected()
	})

	if !connected {
		if _, err := io.ReadFull(e.r, e.connBuf[:]); err != nil {
			return errors.Wrap(err, "failed to read connection telegram")
		}
		t, err := DecodeConnection(e.connBuf[:])
		if err != nil {
			return err
		}
		e.shared.Do(func(v *state.View) {
			e.applyConnection(v, t)
		})
		e.stats.TelegramsRead.Inc()
		return nil
	}

	if _, err := io.ReadFull(e.r, e.opBuf[:]); err != nil {
		return errors.Wrap(err, "failed to read operation telegram")
	}
	t, err := DecodeOperation(e.opBuf[:])
	if err != nil {
		return err
	}
	e.shared.Do(func(v *state.View) {
		e.applyOperation(v, t)
	})
	e.stats.TelegramsRead.Inc()
	return nil
}

func (e *Engine) applyConnection(v *state.View, t ConnectionTelegram) {
	v.SetHandshakePending(true)
	if err := t.Validate(); err != nil {
		e.stats.ConnectionsRefused.Inc()
		e.logger.Warnw("connection refused", "error", err)
		return
	}
	for i := 0; i < state.NumAxles; i++ {
		enc := v.Encoder(i)
		enc.SetWheelDiameter(t.WheelDiameter)
		enc.SetPPR(t.PPR[i])
		enc.RecomputeStepLength()
	}
	v.SetConnected(true)
	e.stats.ConnectionsAccepted.Inc()
	e.logger.Infow("connected", "wheel_diameter", t.WheelDiameter, "ppr1", t.PPR[0], "ppr2", t.PPR[1])
}

func (e *Engine) applyOperation(v *state.View, t OperationTelegram) {
	e.logger.Debugw("operation telegram",
		"command", t.Command,
		"value1", t.Values[0],
		"value2", t.Values[1],
		"addon_id", t.Addon.ID,
		"addon_data", t.Addon.Data[:],
	)

	switch t.Command {
	case CmdNone:
	case CmdSetVelocity1:
		setVelocity(v, 0, t.Values[0])
	case CmdSetVelocity2:
		setVelocity(v, 1, t.Values[1])
	case CmdSetVelocities:
		setVelocity(v, 0, t.Values[0])
		setVelocity(v, 1, t.Values[1])
	case CmdSetAcceleration1:
		setAcceleration(v, 0, t.Values[0])
	case CmdSetAcceleration2:
		setAcceleration(v, 1, t.Values[1])
	case CmdSetAccelerations:
		setAcceleration(v, 0, t.Values[0])
		setAcceleration(v, 1, t.Values[1])
	case CmdDisconnect:
		e.disconnect(v)
		return
	case CmdStop:
		for i := 0; i < state.NumAxles; i++ {
			setVelocity(v, i, 0)
			setAcceleration(v, i, 0)
		}
	default:
		e.stats.UnknownCommands.Inc()
		e.logger.Debugw("ignoring unknown command", "command", t.Command)
	}
	v.SetHandshakePending(true)
}

func setVelocity(v *state.View, axle int, velocity float32) {
	v.Encoder(axle).SetVelocity(velocity)
}

func setAcceleration(v *state.View, axle int, acceleration float32) {
	v.Encoder(axle).SetAcceleration(acceleration)
}

func (e *Engine) disconnect(v *state.View) {
	v.ResetEncoders()
	v.SetConnected(false)
	v.SetHandshakePending(false)
	if err := v.OutputsLow(); err != nil {
		e.logger.Warnw("failed to drive outputs low on disconnect", "error", err)
	}
	e.logger.Info("disconnected")
}

// SendResponse queues a response with the velocity and pulse count of both axles and clears the
// handshake. It does nothing unless connected with a handshake pending, and reports whether a
// response was produced. It must be called from within shared.Do.
func (e *Engine) SendResponse(v *state.View) bool {
	if !v.Connected() || !v.HandshakePending() {
		return false
	}
	var r Response
	for i := 0; i < state.NumAxles; i++ {
		enc := v.Encoder(i)
		r.Velocities[i] = float32(enc.Velocity())
		r.Counts[i] = enc.PulseCount()
	}
	if !e.sink.Enqueue(r.Encode(e.format)) {
		e.logger.Debug("response queue full, dropping response")
	}
	v.SetHandshakePending(false)
	return true
}
