package en50221

import (
	"go.uber.org/atomic"
)

// Stats is a point-in-time copy of a resource's counters.
type Stats struct {
	Dispatched uint64 // APDUs passed to Message
	Delivered  uint64 // objects handed to a registered handler
	Rejected   uint64 // APDUs refused (short data, bad length, unexpected tag, policy)
	Clamped    uint64 // embedded lengths adjusted under PolicyClamp
	Sent       uint64 // APDUs accepted by the Sender
}

type counters struct {
	dispatched *atomic.Uint64
	delivered  *atomic.Uint64
	rejected   *atomic.Uint64
	clamped    *atomic.Uint64
	sent       *atomic.Uint64
}

func newCounters() *counters {
	return &counters{
		dispatched: atomic.NewUint64(0),
		delivered:  atomic.NewUint64(0),
		rejected:   atomic.NewUint64(0),
		clamped:    atomic.NewUint64(0),
		sent:       atomic.NewUint64(0),
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Dispatched: c.dispatched.Load(),
		Delivered:  c.delivered.Load(),
		Rejected:   c.rejected.Load(),
		Clamped:    c.clamped.Load(),
		Sent:       c.sent.Load(),
	}
}
