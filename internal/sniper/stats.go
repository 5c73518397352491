package sniper

import (
	"sync/atomic"
	"time"
)

// Stats counts pipeline progress. All fields are updated atomically and
// may be read while the pipeline runs.
type Stats struct {
	started time.Time

	Received    atomic.Int64 // notifications that reached the listener
	Forwarded   atomic.Int64 // transactions pushed to the detection queue
	Dropped     atomic.Int64 // queue full
	FetchErrors atomic.Int64

	Decoded     atomic.Int64
	Unrelated   atomic.Int64
	Malformed   atomic.Int64
	Skipped     atomic.Int64 // non-SOL pair or already holding
	Accepted    atomic.Int64
	Rejected    atomic.Int64
	RateLimited atomic.Int64
	Bought      atomic.Int64
	BuyFailed   atomic.Int64
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

// Snapshot returns the counters as a log-friendly map.
func (s *Stats) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"received":     s.Received.Load(),
		"forwarded":    s.Forwarded.Load(),
		"dropped":      s.Dropped.Load(),
		"fetch_errors": s.FetchErrors.Load(),
		"decoded":      s.Decoded.Load(),
		"unrelated":    s.Unrelated.Load(),
		"malformed":    s.Malformed.Load(),
		"skipped":      s.Skipped.Load(),
		"accepted":     s.Accepted.Load(),
		"rejected":     s.Rejected.Load(),
		"rate_limited": s.RateLimited.Load(),
		"bought":       s.Bought.Load(),
		"buy_failed":   s.BuyFailed.Load(),
		"uptime":       time.Since(s.started).Truncate(time.Second).String(),
	}
}
