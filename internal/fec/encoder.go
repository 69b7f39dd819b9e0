// Package fec implements the code-group encoder (C2) and decoder (C3)
// described in spec.md §4.2/§4.3: cutting the outbound stream into groups,
// generating recovery via the systematic erasure coder, reassembling
// groups on receive, and invoking decode when possible.
package fec

import (
	"time"

	"go.uber.org/zap"

	"github.com/uuorb/shorthair/internal/bufpool"
	"github.com/uuorb/shorthair/internal/metrics"
	"github.com/uuorb/shorthair/internal/redundancy"
	"github.com/uuorb/shorthair/internal/rscodec"
	"github.com/uuorb/shorthair/internal/wire"
)

// DefaultMaxGroupSymbols is the original count at which Tick closes a group
// regardless of the swap timer. With the redundancy planner's maximum
// (redundancy.MaxRecovery, 64) on top, a full group's shard count
// (originals + recovery) comes to exactly rscodec.MaxDataShards (256). The
// check runs in Tick only, so originals sent between two Ticks can take a
// group past this count.
const DefaultMaxGroupSymbols = 192

// ClosedGroupInfo is reported to the caller (the Endpoint facade) each
// time a sender-side group closes, so it can stamp the delay estimator
// and update metrics.
type ClosedGroupInfo struct {
	CodeGroup     uint8
	OriginalCount uint32
	RecoveryCount uint32
	ClosedAt      time.Time
}

type senderGroup struct {
	raw       [][]byte // raw (unpadded) original payloads, in send order
	maxLen    int
	startedAt time.Time
}

// pendingRecovery holds a closed group's recovery shards, metered out
// across the following group's window per spec.md §4.2 "Recovery pacing".
// shards is nil until available: with no worker it is filled in
// immediately by closeGroup; with a worker, resultCh carries it once the
// background encode finishes and drainDuePending polls it in.
type pendingRecovery struct {
	codeGroup     uint8
	originalCount uint32
	recoveryCount uint32
	shards        [][]byte // L-byte padded recovery data, in emission order
	resultCh      <-chan encodeResult
	nextIdx       int
	interval      time.Duration
	nextEmitAt    time.Time
}

// Encoder builds code groups, emits original symbols immediately, and
// paces recovery symbol emission across the next group's window. Not
// safe for concurrent use (spec.md §5: single-threaded public surface).
type Encoder struct {
	pool            *bufpool.Pool
	planner         *redundancy.Planner
	maxGroupSymbols int
	log             *zap.Logger
	rec             *metrics.Recorder

	codeGroup uint8
	current   *senderGroup
	pending   *pendingRecovery // at most one: older undelivered recovery is dropped on a new close
	worker    *Worker          // optional background encoder, see UseWorker
}

// NewEncoder builds an Encoder. maxGroupSymbols <= 0 selects
// DefaultMaxGroupSymbols.
func NewEncoder(pool *bufpool.Pool, planner *redundancy.Planner, maxGroupSymbols int, log *zap.Logger, rec *metrics.Recorder) *Encoder {
	if maxGroupSymbols <= 0 {
		maxGroupSymbols = DefaultMaxGroupSymbols
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Encoder{
		pool:            pool,
		planner:         planner,
		maxGroupSymbols: maxGroupSymbols,
		log:             log,
		rec:             rec,
	}
}

// UseWorker switches closeGroup to submit a closed group's systematic
// encode to w instead of running it inline, so Tick never blocks on RS
// matrix construction for a large group. w's lifecycle (Stop) remains the
// caller's responsibility. Pass nil to revert to inline encoding.
func (e *Encoder) UseWorker(w *Worker) {
	e.worker = w
}

// Send appends payload to the current code group (opening one if needed)
// and returns the wire-encoded original symbol to transmit immediately.
// Never blocks; the returned slice is independent of payload.
func (e *Encoder) Send(payload []byte, now time.Time) []byte {
	if e.current == nil {
		e.current = &senderGroup{startedAt: now}
	}
	symbolID := uint32(len(e.current.raw))

	raw := e.pool.Get()
	raw = append(raw, payload...)
	e.current.raw = append(e.current.raw, raw)
	if len(raw) > e.current.maxLen {
		e.current.maxLen = len(raw)
	}

	h := wire.SymbolHeader{
		CodeGroup:     e.codeGroup,
		SymbolID:      symbolID,
		OriginalCount: symbolID + 1, // running count; final once the group closes
		RecoveryCount: 0,
	}
	out := e.pool.Get()
	out = wire.EncodeSymbol(out, wire.TypeData, h, payload)

	if e.rec != nil {
		e.rec.PacketSent()
	}
	return out
}

// Tick drives the swap decision and recovery pacing. p is the current
// remote loss estimate (C4, as observed by the peer) and swapInterval is
// the current value of CalculateInterval (C5-derived). It returns any
// recovery symbols now due for transmission and, if a group closed this
// tick, information about it.
func (e *Encoder) Tick(now time.Time, p float64, swapInterval time.Duration) (ready [][]byte, closed *ClosedGroupInfo) {
	if e.current != nil {
		elapsed := now.Sub(e.current.startedAt)
		if elapsed >= swapInterval || len(e.current.raw) >= e.maxGroupSymbols {
			closed = e.closeGroup(now, p, swapInterval)
		}
	}

	ready = e.drainDuePending(now)
	return ready, closed
}

// closeGroup finalizes the current group: plans redundancy, runs the
// systematic encoder (inline, or handed off to e.worker if set via
// UseWorker), schedules the resulting recovery symbols for pacing, and
// starts a fresh group.
func (e *Encoder) closeGroup(now time.Time, p float64, nextSwapInterval time.Duration) *ClosedGroupInfo {
	g := e.current
	e.current = nil

	k := len(g.raw)
	codeGroup := e.codeGroup
	e.codeGroup++ // wraps at 255 -> 0, per spec.md's 8-bit ring

	r := 0
	if k > 0 {
		r = e.planner.Plan(p, k)
	}

	info := &ClosedGroupInfo{
		CodeGroup:     codeGroup,
		OriginalCount: uint32(k),
		RecoveryCount: uint32(r),
		ClosedAt:      now,
	}

	if e.rec != nil {
		e.rec.GroupClosed()
		e.rec.SetRecoveryCount(r)
	}

	if k == 0 || r == 0 {
		// empty or redundancy-free group: nothing to pace, previous
		// pending recovery still drains on its own schedule.
		for _, raw := range g.raw {
			e.pool.Put(raw)
		}
		return info
	}

	L := g.maxLen + 10 // room for the uvarint length prefix (see wire.PadSymbol)
	padded := make([][]byte, k)
	for i, raw := range g.raw {
		padded[i] = wire.PadSymbol(raw, L)
		e.pool.Put(raw)
	}

	interval := nextSwapInterval / time.Duration(r)
	pending := &pendingRecovery{
		codeGroup:     codeGroup,
		originalCount: uint32(k),
		recoveryCount: uint32(r),
		interval:      interval,
		nextEmitAt:    now,
	}

	if e.worker != nil {
		pending.resultCh = e.worker.Submit(codeGroup, padded, r)
		e.pending = pending
		return info
	}

	codec, err := rscodec.New(k, r)
	if err != nil {
		e.log.Warn("fec: failed to build codec for closed group", zap.Uint8("code_group", codeGroup), zap.Error(err))
		return info
	}
	shards, err := codec.Encode(padded)
	if err != nil {
		e.log.Warn("fec: recovery encode failed", zap.Uint8("code_group", codeGroup), zap.Error(err))
		return info
	}
	pending.shards = shards
	e.pending = pending

	return info
}

// drainDuePending emits any recovery symbols from the single pending
// recovery group that have come due, interleaved at the metered rate. If
// the group's encode was handed to a worker and hasn't replied yet, this
// polls the result channel without blocking and skips emission for this
// tick if it's not ready.
func (e *Encoder) drainDuePending(now time.Time) [][]byte {
	if e.pending == nil {
		return nil
	}
	p := e.pending
	if p.shards == nil {
		select {
		case res := <-p.resultCh:
			if res.err != nil {
				e.log.Warn("fec: background recovery encode failed", zap.Uint8("code_group", p.codeGroup), zap.Error(res.err))
				e.pending = nil
				return nil
			}
			p.shards = res.shards
			p.resultCh = nil
		default:
			return nil
		}
	}
	var ready [][]byte
	for p.nextIdx < len(p.shards) && !now.Before(p.nextEmitAt) {
		h := wire.SymbolHeader{
			CodeGroup:     p.codeGroup,
			SymbolID:      p.originalCount + uint32(p.nextIdx),
			OriginalCount: p.originalCount,
			RecoveryCount: p.recoveryCount,
		}
		out := e.pool.Get()
		out = wire.EncodeSymbol(out, wire.TypeRecovery, h, p.shards[p.nextIdx])
		ready = append(ready, out)

		p.nextIdx++
		p.nextEmitAt = p.nextEmitAt.Add(p.interval)

		if e.rec != nil {
			e.rec.RecoveryEmitted()
			e.rec.PacketSent()
		}
	}
	if p.nextIdx >= len(p.shards) {
		e.pending = nil
	}
	return ready
}

// CalculateInterval implements spec.md §4.2: the swap interval is
// proportional to the smoothed one-way delay D, clamped to [minDelay,
// maxDelay]. The proportionality constant (0.75) is this implementation's
// resolution of the spec's open question — see DESIGN.md.
func CalculateInterval(d, minDelay, maxDelay time.Duration) time.Duration {
	interval := time.Duration(float64(d) * 0.75)
	if interval < minDelay {
		return minDelay
	}
	if interval > maxDelay {
		return maxDelay
	}
	return interval
}
