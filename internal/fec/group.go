package fec

// receiverGroup is the receiver-side state for one code group, per
// spec.md §3 "Code group (receiver side)".
//
// Design decision (see DESIGN.md "open questions"): original_count and
// recovery_count are not knowable in full at the time the first original
// of a group is sent, since groups close on a timer. The encoder embeds,
// on each original symbol, a running count equal to that symbol's
// 1-based position in the group (which is also the group's true size once
// the last original has been sent); recovery symbols always carry the
// final, authoritative counts. The receiver tracks the largest
// original_count/recovery_count observed for the group so far as its
// current best estimate, which is guaranteed to reach the true final
// value once either the last original or any recovery symbol arrives.
// Because originals can arrive out of their send order on a datagram
// channel, a later symbol reporting a smaller running count than one
// already seen is ordinary reordering, not a malformed group: the max is
// only ever ratcheted upward, and the decoder judges a group complete only
// after a recovery symbol has supplied the final counts.
type receiverGroup struct {
	id uint8

	maxOriginalCount uint32
	maxRecoveryCount uint32
	symbolLen        int // L, learned from the first recovery symbol received

	receivedRaw      map[uint32][]byte // symbol_id -> raw (unpadded) payload, originals only
	receivedRecovery map[uint32][]byte // symbol_id -> L-byte recovery shard
	delivered        map[uint32]bool   // symbol_id -> already handed to OnPacket

	done       bool
	superseded bool
	recovered  bool // true if decode was required to complete this group
	statsSent  bool // true once finalizeGroup has contributed to the pong queue
}

func newReceiverGroup(id uint8) *receiverGroup {
	return &receiverGroup{
		id:               id,
		receivedRaw:      make(map[uint32][]byte),
		receivedRecovery: make(map[uint32][]byte),
		delivered:        make(map[uint32]bool),
	}
}

// receivedSymbols is the count the spec calls "received_symbols": the
// total number of distinct originals and recovery symbols seen so far.
func (g *receiverGroup) receivedSymbols() int {
	return len(g.receivedRaw) + len(g.receivedRecovery)
}

// seenOriginals is "received_original_count": originals actually received
// directly, independent of anything recovered via decode.
func (g *receiverGroup) seenOriginals() int {
	return len(g.receivedRaw)
}
