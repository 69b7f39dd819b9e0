// Package rscodec wraps the systematic Reed-Solomon erasure encoder used
// by the FEC engine (spec.md's "systematic erasure code" black box)
// behind the narrow contract the engine actually needs: produce parity
// shards for a set of equal-length data shards, and reconstruct missing
// shards given a subset of surviving ones. Grounded on the same library
// kcp-go's FEC layer uses (github.com/klauspost/reedsolomon).
package rscodec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// MaxDataShards is the shard budget the engine's group-size limit is sized
// against: reedsolomon's Vandermonde-matrix construction degrades past a
// few hundred shards, so the encoder closes groups at
// internal/fec.DefaultMaxGroupSymbols originals. New does not check shapes
// against this constant; only reedsolomon's own limits apply there.
const MaxDataShards = 256

// Codec produces and reconstructs parity shards for one code group. It is
// not safe for concurrent use; callers own one Codec per in-flight group.
type Codec struct {
	dataShards   int
	parityShards int
	enc          reedsolomon.Encoder
}

// New builds a codec for the given (dataShards, parityShards) shape.
// dataShards must be positive and parityShards non-negative; a zero-parity
// codec is accepted and produces no parity. Any other shape limit is the
// one reedsolomon itself imposes.
func New(dataShards, parityShards int) (*Codec, error) {
	if dataShards <= 0 || parityShards < 0 {
		return nil, fmt.Errorf("rscodec: invalid shape data=%d parity=%d", dataShards, parityShards)
	}
	if parityShards == 0 {
		// reedsolomon requires at least one parity shard; a group with
		// zero planned recovery symbols never calls Encode/Reconstruct.
		return &Codec{dataShards: dataShards, parityShards: 0}, nil
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("rscodec: %w", err)
	}
	return &Codec{dataShards: dataShards, parityShards: parityShards, enc: enc}, nil
}

// Encode takes exactly dataShards equal-length symbols and returns
// parityShards newly computed recovery symbols of the same length.
func (c *Codec) Encode(symbols [][]byte) ([][]byte, error) {
	if c.parityShards == 0 {
		return nil, nil
	}
	if len(symbols) != c.dataShards {
		return nil, fmt.Errorf("rscodec: Encode got %d data shards, want %d", len(symbols), c.dataShards)
	}

	shardLen := len(symbols[0])
	all := make([][]byte, c.dataShards+c.parityShards)
	copy(all, symbols)
	for i := c.dataShards; i < len(all); i++ {
		all[i] = make([]byte, shardLen)
	}

	if err := c.enc.Encode(all); err != nil {
		return nil, fmt.Errorf("rscodec: encode: %w", err)
	}
	return all[c.dataShards:], nil
}

// Reconstruct fills in missing entries of shards (nil entries, as marked
// by present) in place, given at least dataShards of the dataShards+
// parityShards total are present. shards must be sized dataShards+
// parityShards; any shard index i with !present[i] must be nil.
func (c *Codec) Reconstruct(shards [][]byte, present []bool) error {
	if c.parityShards == 0 {
		return fmt.Errorf("rscodec: group has no parity shards, cannot reconstruct")
	}
	if len(shards) != c.dataShards+c.parityShards {
		return fmt.Errorf("rscodec: Reconstruct got %d shards, want %d", len(shards), c.dataShards+c.parityShards)
	}

	haveCount := 0
	for _, ok := range present {
		if ok {
			haveCount++
		}
	}
	if haveCount < c.dataShards {
		return fmt.Errorf("rscodec: decode infeasible, have %d of %d required data shards", haveCount, c.dataShards)
	}

	if err := c.enc.ReconstructData(shards); err != nil {
		return fmt.Errorf("rscodec: reconstruct: %w", err)
	}
	return nil
}
