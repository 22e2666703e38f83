package protocol

import "go.uber.org/atomic"

// Stats counts protocol activity. All counters are safe for concurrent use.
type Stats struct {
	TelegramsRead       atomic.Uint64
	ConnectionsAccepted atomic.Uint64
	ConnectionsRefused  atomic.Uint64
	UnknownCommands     atomic.Uint64
	ResponsesQueued     atomic.Uint64
	ResponsesSent       atomic.Uint64
	ResponsesDropped    atomic.Uint64
	WriteErrors         atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TelegramsRead       uint64 `json:"telegrams_read"`
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	ConnectionsRefused  uint64 `json:"connections_refused"`
	UnknownCommands     uint64 `json:"unknown_commands"`
	ResponsesQueued     uint64 `json:"responses_queued"`
	ResponsesSent       uint64 `json:"responses_sent"`
	ResponsesDropped    uint64 `json:"responses_dropped"`
	WriteErrors         uint64 `json:"write_errors"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TelegramsRead:       s.TelegramsRead.Load(),
		ConnectionsAccepted: s.ConnectionsAccepted.Load(),
		ConnectionsRefused:  s.ConnectionsRefused.Load(),
		UnknownCommands:     s.UnknownCommands.Load(),
		ResponsesQueued:     s.ResponsesQueued.Load(),
		ResponsesSent:       s.ResponsesSent.Load(),
		ResponsesDropped:    s.ResponsesDropped.Load(),
		WriteErrors:         s.WriteErrors.Load(),
	}
}
