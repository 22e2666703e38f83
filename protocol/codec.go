package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Telegram sizes in bytes.
const (
	ConnectionSize     = 8
	OperationSize      = 14
	ValueSize          = 9
	AddonSize          = OperationSize - ValueSize
	ResponseSize       = 13
	LegacyResponseSize = 12
)

// ResponseTrailer terminates every response in the trailer format.
const ResponseTrailer = 0xDA

// Connection telegram bounds, inclusive.
const (
	MinWheelDiameter float32 = 0.8
	MaxWheelDiameter float32 = 1.25
	MinPPR           uint16  = 80
	MaxPPR           uint16  = 128
)

// Command is the id carried at the end of the value sub-telegram.
type Command byte

// The known commands.
const (
	CmdNone Command = iota
	CmdSetVelocity1
	CmdSetVelocity2
	CmdSetVelocities
	CmdSetAcceleration1
	CmdSetAcceleration2
	CmdSetAccelerations
	CmdDisconnect
	CmdStop
)

var commandNames = map[Command]string{
	CmdNone:             "none",
	CmdSetVelocity1:     "set_velocity_1",
	CmdSetVelocity2:     "set_velocity_2",
	CmdSetVelocities:    "set_velocities",
	CmdSetAcceleration1: "set_acceleration_1",
	CmdSetAcceleration2: "set_acceleration_2",
	CmdSetAccelerations: "set_accelerations",
	CmdDisconnect:       "disconnect",
	CmdStop:             "stop",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(c))
}

// Known reports whether c is one of the defined commands.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// ConnectionTelegram configures both axles when the emulator is disconnected.
type ConnectionTelegram struct {
	WheelDiameter float32
	PPR           [2]uint16
}

// DecodeConnection decodes an 8 byte connection telegram.
func DecodeConnection(b []byte) (ConnectionTelegram, error) {
	if len(b) != ConnectionSize {
		return ConnectionTelegram{}, errors.Errorf("connection telegram must be %d bytes, got %d", ConnectionSize, len(b))
	}
	return ConnectionTelegram{
		WheelDiameter: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		PPR: [2]uint16{
			binary.LittleEndian.Uint16(b[4:6]),
			binary.LittleEndian.Uint16(b[6:8]),
		},
	}, nil
}

// Encode returns the wire form of the telegram.
func (t ConnectionTelegram) Encode() [ConnectionSize]byte {
	var b [ConnectionSize]byte
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(t.WheelDiameter))
	binary.LittleEndian.PutUint16(b[4:6], t.PPR[0])
	binary.LittleEndian.PutUint16(b[6:8], t.PPR[1])
	return b
}

// Validate returns an error naming the first field outside its bounds.
func (t ConnectionTelegram) Validate() error {
	// NaN fails both comparisons and is rejected.
	if !(t.WheelDiameter >= MinWheelDiameter && t.WheelDiameter <= MaxWheelDiameter) {
		return errors.Errorf("wheel diameter %v outside [%v, %v]", t.WheelDiameter, MinWheelDiameter, MaxWheelDiameter)
	}
	for i, ppr := range t.PPR {
		if ppr < MinPPR || ppr > MaxPPR {
			return errors.Errorf("ppr of axle %d is %d, outside [%d, %d]", i+1, ppr, MinPPR, MaxPPR)
		}
	}
	return nil
}

// Addon is the trailing sub-telegram of an operation telegram. It is decoded but carries no action.
type Addon struct {
	Data [AddonSize - 1]byte
	ID   byte
}

// OperationTelegram drives the axles once connected.
type OperationTelegram struct {
	Values  [2]float32
	Command Command
	Addon   Addon
}

// DecodeOperation decodes a 14 byte operation telegram.
func DecodeOperation(b []byte) (OperationTelegram, error) {
	if len(b) != OperationSize {
		return OperationTelegram{}, errors.Errorf("operation telegram must be %d bytes, got %d", OperationSize, len(b))
	}
	t := OperationTelegram{
		Values: [2]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
			math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		},
		Command: Command(b[8]),
	}
	copy(t.Addon.Data[:], b[ValueSize:OperationSize-1])
	t.Addon.ID = b[OperationSize-1]
	return t, nil
}

// Encode returns the wire form of the telegram.
func (t OperationTelegram) Encode() [OperationSize]byte {
	var b [OperationSize]byte
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(t.Values[0]))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(t.Values[1]))
	b[8] = byte(t.Command)
	copy(b[ValueSize:OperationSize-1], t.Addon.Data[:])
	b[OperationSize-1] = t.Addon.ID
	return b
}

// Format selects the layout of response telegrams.
type Format int

// The response formats.
const (
	// FormatTrailer is the 13 byte response ending with ResponseTrailer.
	FormatTrailer Format = iota
	// FormatLegacy is the historical 12 byte response without a trailer.
	FormatLegacy
)

// FormatFromString parses a response format name. The empty string selects FormatTrailer.
func FormatFromString(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "trailer":
		return FormatTrailer, nil
	case "legacy":
		return FormatLegacy, nil
	default:
		return FormatTrailer, errors.Errorf("unknown response format %q", s)
	}
}

func (f Format) String() string {
	if f == FormatLegacy {
		return "legacy"
	}
	return "trailer"
}

// Size returns the encoded response length.
func (f Format) Size() int {
	if f == FormatLegacy {
		return LegacyResponseSize
	}
	return ResponseSize
}

// Response reports the velocity and pulse count of both axles.
type Response struct {
	Velocities [2]float32
	Counts     [2]uint16
}

// Frame is an encoded response. It is a value type so it can be queued without allocating.
type Frame struct {
	buf [ResponseSize]byte
	n   int
}

// Bytes returns the encoded telegram.
func (f *Frame) Bytes() []byte {
	return f.buf[:f.n]
}

// Encode encodes the response in the given format.
func (r Response) Encode(format Format) Frame {
	var f Frame
	binary.LittleEndian.PutUint32(f.buf[0:4], math.Float32bits(r.Velocities[0]))
	binary.LittleEndian.PutUint32(f.buf[4:8], math.Float32bits(r.Velocities[1]))
	binary.LittleEndian.PutUint16(f.buf[8:10], r.Counts[0])
	binary.LittleEndian.PutUint16(f.buf[10:12], r.Counts[1])
	f.n = LegacyResponseSize
	if format == FormatTrailer {
		f.buf[12] = ResponseTrailer
		f.n = ResponseSize
	}
	return f
}

// DecodeResponse decodes a response of either format, as a controlling application would.
func DecodeResponse(b []byte) (Response, Format, error) {
	var format Format
	switch {
	case len(b) == ResponseSize && b[12] == ResponseTrailer:
		format = FormatTrailer
	case len(b) == ResponseSize:
		return Response{}, FormatTrailer, errors.Errorf("bad response trailer 0x%02x", b[12])
	case len(b) == LegacyResponseSize:
		format = FormatLegacy
	default:
		return Response{}, FormatTrailer, errors.Errorf("response must be %d or %d bytes, got %d",
			ResponseSize, LegacyResponseSize, len(b))
	}
	return Response{
		Velocities: [2]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
			math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		},
		Counts: [2]uint16{
			binary.LittleEndian.Uint16(b[8:10]),
			binary.LittleEndian.Uint16(b[10:12]),
		},
	}, format, nil
}
