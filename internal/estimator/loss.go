// Package estimator implements the running loss-rate (C4) and
// delay/RTT (C5) estimators described in spec.md §4.4/§4.5.
package estimator

import "sync"

// defaultWindow is the number of most-recently-closed groups the loss
// estimator sums over. spec.md §4.4 suggests 32-64 so the window covers
// roughly one RTT of groups; 48 splits the difference.
const defaultWindow = 48

// LossEstimator maintains a windowed sum of (seen, count) across the most
// recently closed code groups and reports a floored loss estimate.
type LossEstimator struct {
	mu      sync.Mutex
	minLoss float64

	window    int
	seen      []uint32
	count     []uint32
	pos       int
	filled    int
	sumSeen   uint64
	sumCount  uint64
}

// NewLossEstimator creates an estimator with the given floor and default
// window size.
func NewLossEstimator(minLoss float64) *LossEstimator {
	return NewLossEstimatorWithWindow(minLoss, defaultWindow)
}

// NewLossEstimatorWithWindow allows overriding the window size, mainly for
// tests that want deterministic convergence in fewer samples.
func NewLossEstimatorWithWindow(minLoss float64, window int) *LossEstimator {
	if window <= 0 {
		window = defaultWindow
	}
	return &LossEstimator{
		minLoss: minLoss,
		window:  window,
		seen:    make([]uint32, window),
		count:   make([]uint32, window),
	}
}

// Observe contributes one closed group's statistics, per spec.md §4.3
// "Statistics contribution": seen is the number of originals actually
// received, count is the group's original_count.
func (e *LossEstimator) Observe(seen, count uint32) {
	if count == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.filled == e.window {
		e.sumSeen -= uint64(e.seen[e.pos])
		e.sumCount -= uint64(e.count[e.pos])
	} else {
		e.filled++
	}
	e.seen[e.pos] = seen
	e.count[e.pos] = count
	e.sumSeen += uint64(seen)
	e.sumCount += uint64(count)
	e.pos = (e.pos + 1) % e.window
}

// Estimate returns max(1 - seen/count, minLoss) over the current window.
// With no observations yet, it returns minLoss (spec.md's "assume min_loss
// indefinitely" default for a never-reporting remote peer).
func (e *LossEstimator) Estimate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sumCount == 0 {
		return e.minLoss
	}
	raw := 1 - float64(e.sumSeen)/float64(e.sumCount)
	if raw < e.minLoss {
		return e.minLoss
	}
	return raw
}

// Reset clears all accumulated statistics, used by Finalize/re-Initialize.
func (e *LossEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.seen {
		e.seen[i] = 0
		e.count[i] = 0
	}
	e.pos, e.filled, e.sumSeen, e.sumCount = 0, 0, 0, 0
}
