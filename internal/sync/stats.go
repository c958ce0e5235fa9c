package sync

import "sync/atomic"

// Stats counts delivery outcomes for the health endpoint and shutdown log.
type Stats struct {
	sent         atomic.Int64
	sendFailures atomic.Int64
	received     atomic.Int64
	rejected     atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncSent()        { s.sent.Add(1) }
func (s *Stats) IncSendFailure() { s.sendFailures.Add(1) }
func (s *Stats) IncReceived()    { s.received.Add(1) }
func (s *Stats) IncRejected()    { s.rejected.Add(1) }

// Health returns a snapshot of the counters.
func (s *Stats) Health() HealthResponse {
	return HealthResponse{
		Status:       "ok",
		Sent:         s.sent.Load(),
		SendFailures: s.sendFailures.Load(),
		Received:     s.received.Load(),
		Rejected:     s.rejected.Load(),
	}
}
