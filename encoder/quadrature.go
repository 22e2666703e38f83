package encoder

import "fmt"

// State is a decoded quadrature state.
type State int

// The quadrature states. The digits name the level of channel A then channel B.
const (
	Unknown State = iota
	S00
	S01
	S10
	S11
)

// StateFromLevels maps a pair of channel levels to its quadrature state.
func StateFromLevels(levelA, levelB bool) State {
	switch {
	case !levelA && !levelB:
		return S00
	case !levelA && levelB:
		return S01
	case levelA && !levelB:
		return S10
	default:
		return S11
	}
}

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case S00:
		return "00"
	case S01:
		return "01"
	case S10:
		return "10"
	case S11:
		return "11"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Channel identifies one of the two quadrature outputs of an axle.
type Channel int

// The two channels of an axle.
const (
	ChannelA Channel = iota
	ChannelB
)

func (c Channel) String() string {
	if c == ChannelA {
		return "a"
	}
	return "b"
}

// Output receives the channel levels of one axle on every emulation step.
type Output interface {
	Set(channel Channel, high bool) error
}
