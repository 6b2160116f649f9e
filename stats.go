package fleet

import "go.uber.org/atomic"

// Stats are lock-free counters kept by senders and receivers. The zero
// value is ready to use; all fields are safe to read while the owning
// loop is running.
type Stats struct {
	MessagesSent atomic.Uint64
	BytesSent    atomic.Uint64

	Datagrams      atomic.Uint64 // raw datagrams received, valid or not
	BytesReceived  atomic.Uint64
	Dispatched     atomic.Uint64 // messages handed to the handler
	TooSmall       atomic.Uint64
	InvalidHeader  atomic.Uint64
	LengthMismatch atomic.Uint64
	ReadErrors     atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	MessagesSent   uint64
	BytesSent      uint64
	Datagrams      uint64
	BytesReceived  uint64
	Dispatched     uint64
	TooSmall       uint64
	InvalidHeader  uint64
	LengthMismatch uint64
	ReadErrors     uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		MessagesSent:   s.MessagesSent.Load(),
		BytesSent:      s.BytesSent.Load(),
		Datagrams:      s.Datagrams.Load(),
		BytesReceived:  s.BytesReceived.Load(),
		Dispatched:     s.Dispatched.Load(),
		TooSmall:       s.TooSmall.Load(),
		InvalidHeader:  s.InvalidHeader.Load(),
		LengthMismatch: s.LengthMismatch.Load(),
		ReadErrors:     s.ReadErrors.Load(),
	}
}

// Dropped totals the datagrams rejected before dispatch.
func (s Snapshot) Dropped() uint64 {
	return s.TooSmall + s.InvalidHeader + s.LengthMismatch
}
