package fec

import (
	"time"

	"go.uber.org/zap"

	"github.com/uuorb/shorthair/internal/metrics"
	"github.com/uuorb/shorthair/internal/oob"
	"github.com/uuorb/shorthair/internal/rscodec"
	"github.com/uuorb/shorthair/internal/wire"
)

// Decoder reassembles code groups from received symbols, delivering
// originals immediately and invoking the erasure decoder once enough
// symbols have arrived to reconstruct the rest (spec.md §4.3).
type Decoder struct {
	ring    ring
	pongs   *oob.Queue
	log     *zap.Logger
	rec     *metrics.Recorder
	deliver func(payload []byte)
}

// NewDecoder builds a Decoder. deliver is called (possibly more than once
// per OnSymbol call, for recovered originals) with each original payload in
// the order it becomes available, per spec.md's OnPacket contract.
func NewDecoder(pongs *oob.Queue, log *zap.Logger, rec *metrics.Recorder, deliver func(payload []byte)) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{pongs: pongs, log: log, rec: rec, deliver: deliver}
}

// OnSymbol processes one authenticated data or recovery symbol.
func (d *Decoder) OnSymbol(typ byte, h wire.SymbolHeader, payload []byte, now time.Time) {
	g, stale := d.ring.locate(h.CodeGroup, d.finalizeGroup)
	if stale {
		if d.rec != nil {
			d.rec.PacketDropped("stale_group")
		}
		return
	}
	if g.done {
		// Still authenticated and well-formed, just arrived too late to
		// matter; spec.md §4.3 step 2: drop but the symbol was already
		// "seen" for auth/replay purposes at the cipher layer.
		if d.rec != nil {
			d.rec.PacketDropped("group_done")
		}
		return
	}

	// Originals carry a running original_count equal to their own send-order
	// position (encoder.go's Send), so two originals from the same group can
	// legitimately arrive out of order on a datagram channel and report
	// counts that appear to "regress" relative to each other. Only ratchet
	// the observed maximum upward; a lower count on a later-arriving symbol
	// is normal reordering, not malformed input.
	if h.OriginalCount > g.maxOriginalCount {
		g.maxOriginalCount = h.OriginalCount
	}
	if h.RecoveryCount > g.maxRecoveryCount {
		g.maxRecoveryCount = h.RecoveryCount
	}

	switch typ {
	case wire.TypeData:
		if g.maxOriginalCount != 0 && h.SymbolID >= g.maxOriginalCount {
			if d.rec != nil {
				d.rec.PacketDropped("malformed")
			}
			return
		}
		if _, dup := g.receivedRaw[h.SymbolID]; !dup {
			cp := append([]byte(nil), payload...)
			g.receivedRaw[h.SymbolID] = cp
			if !g.delivered[h.SymbolID] {
				g.delivered[h.SymbolID] = true
				d.deliver(cp)
			}
		}
	case wire.TypeRecovery:
		upper := g.maxOriginalCount + g.maxRecoveryCount
		if h.SymbolID < g.maxOriginalCount || h.SymbolID >= upper {
			if d.rec != nil {
				d.rec.PacketDropped("malformed")
			}
			return
		}
		if _, dup := g.receivedRecovery[h.SymbolID]; !dup {
			cp := append([]byte(nil), payload...)
			g.receivedRecovery[h.SymbolID] = cp
			if g.symbolLen == 0 {
				g.symbolLen = len(cp)
			}
		}
	default:
		return
	}

	if d.rec != nil {
		d.rec.PacketReceived()
	}

	// Completion is judged only once a recovery symbol has arrived: recovery
	// symbols carry the group's final counts, originals only a running count.
	// A group that never receives a recovery symbol stays open until the ring
	// closes or replaces its slot.
	if g.maxOriginalCount != 0 && g.maxRecoveryCount != 0 && uint32(g.receivedSymbols()) >= g.maxOriginalCount {
		if g.seenOriginals() < int(g.maxOriginalCount) {
			d.tryDecode(g)
		} else {
			g.done = true
		}
		if g.done {
			d.finalizeGroup(g)
		}
	}
}

// tryDecode attempts erasure decoding once received_symbols >=
// original_count and at least one original is still missing, per
// spec.md §4.3 step 4.
func (d *Decoder) tryDecode(g *receiverGroup) {
	k := int(g.maxOriginalCount)
	r := int(g.maxRecoveryCount)
	if r == 0 || g.symbolLen == 0 {
		return // no recovery data available yet to reconstruct with
	}

	total := k + r
	shards := make([][]byte, total)
	present := make([]bool, total)
	have := 0
	for id := 0; id < k; id++ {
		if raw, ok := g.receivedRaw[uint32(id)]; ok {
			shards[id] = wire.PadSymbol(raw, g.symbolLen)
			present[id] = true
			have++
		}
	}
	for id := k; id < total; id++ {
		if b, ok := g.receivedRecovery[uint32(id)]; ok {
			shards[id] = b
			present[id] = true
			have++
		}
	}
	if have < k {
		return
	}

	codec, err := rscodec.New(k, r)
	if err != nil {
		d.log.Warn("fec: codec build failed during decode", zap.Error(err))
		g.done = true
		return
	}
	if err := codec.Reconstruct(shards, present); err != nil {
		// DecodeInfeasible per spec.md §7: mark done, originals already
		// delivered stay delivered, the rest are permanently lost.
		d.log.Debug("fec: decode infeasible", zap.Uint8("code_group", g.id), zap.Error(err))
		g.done = true
		return
	}

	for id := 0; id < k; id++ {
		if g.delivered[uint32(id)] {
			continue
		}
		payload, err := wire.UnpadSymbol(shards[id])
		if err != nil {
			continue
		}
		g.delivered[uint32(id)] = true
		d.deliver(payload)
	}
	g.recovered = true
	g.done = true
	if d.rec != nil {
		d.rec.GroupRecovered()
	}
}

// finalizeGroup contributes the group's final statistics to the pong
// queue, per spec.md §4.3 "Statistics contribution". Safe to call more
// than once per group; only the first call has an effect.
func (d *Decoder) finalizeGroup(g *receiverGroup) {
	if g.statsSent {
		return
	}
	g.statsSent = true
	count := g.maxOriginalCount
	if count == 0 {
		return
	}
	d.pongs.Push(g.id, uint32(g.seenOriginals()), count, 0)
	if d.rec != nil {
		d.rec.GroupClosed()
	}
}
