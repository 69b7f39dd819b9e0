// Package oob implements the ping/pong telemetry sub-protocol (C8):
// queuing receiver-side group statistics for opportunistic emission, and
// applying an inbound pong to the sender's loss and delay estimators.
package oob

import (
	"time"

	"github.com/uuorb/shorthair/internal/estimator"
	"github.com/uuorb/shorthair/internal/wire"
)

// Queue accumulates closed-group statistics on the receiver side until
// Tick decides to emit them as pongs. Not safe for concurrent use.
type Queue struct {
	pending []wire.Pong
}

// NewQueue returns an empty pong queue.
func NewQueue() *Queue { return &Queue{} }

// Push records a just-closed group's statistics for later emission,
// per spec.md §4.3 "Statistics contribution".
func (q *Queue) Push(codeGroup uint8, seen, count uint32, rtt time.Duration) {
	q.pending = append(q.pending, wire.Pong{
		CodeGroup: codeGroup,
		Seen:      seen,
		Count:     count,
		RTTMillis: uint32(rtt / time.Millisecond),
	})
}

// Pending reports whether at least one group's statistics are waiting to
// be sent, per spec.md §4.8 ("if the receiver has accumulated statistics
// for at least one closed group since the last pong, a pong is sent").
func (q *Queue) Pending() bool {
	return len(q.pending) > 0
}

// Drain returns all pending pongs and clears the queue. Called from Tick
// when Pending() is true.
func (q *Queue) Drain() []wire.Pong {
	out := q.pending
	q.pending = nil
	return out
}

// Apply folds an inbound pong into the sender's loss and delay estimators,
// per spec.md §4.8: "The sender applies the pong's (seen,count) to C4 and
// the pong's group-id + receive time to C5."
func Apply(loss *estimator.LossEstimator, delay *estimator.DelayEstimator, p wire.Pong, receivedAt time.Time) {
	loss.Observe(p.Seen, p.Count)
	delay.OnPong(p.CodeGroup, receivedAt)
}
