// Package fake implements in-memory output pins that remember what was written to them.
package fake

import "go.uber.org/atomic"

// A Pin reads back the level last set and counts level changes.
type Pin struct {
	name   string
	high   atomic.Bool
	writes atomic.Uint64
	edges  atomic.Uint64
}

// NewPin returns a low pin.
func NewPin(name string) *Pin {
	return &Pin{name: name}
}

// Set sets the pin to either low or high.
func (p *Pin) Set(high bool) error {
	p.writes.Inc()
	if p.high.Swap(high) != high {
		p.edges.Inc()
	}
	return nil
}

// Get returns the current level.
func (p *Pin) Get() bool {
	return p.high.Load()
}

// Edges returns the number of level changes so far.
func (p *Pin) Edges() uint64 {
	return p.edges.Load()
}

// Writes returns the number of Set calls so far.
func (p *Pin) Writes() uint64 {
	return p.writes.Load()
}

// Name returns the name the pin was created with.
func (p *Pin) Name() string {
	return p.name
}
