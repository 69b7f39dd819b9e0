package rscodec

import (
	"bytes"
	"math/rand"
	"testing"
)

func makeSymbols(k, shardLen int, seed int64) [][]byte {
	r := rand.New(rand.NewSource(seed))
	symbols := make([][]byte, k)
	for i := range symbols {
		b := make([]byte, shardLen)
		r.Read(b)
		symbols[i] = b
	}
	return symbols
}

func TestEncodeReconstructRoundTrip(t *testing.T) {
	const k, m, shardLen = 8, 3, 256
	codec, err := New(k, m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	originals := makeSymbols(k, shardLen, 1)
	parity, err := codec.Encode(originals)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(parity) != m {
		t.Fatalf("got %d parity shards, want %d", len(parity), m)
	}

	// Drop up to m of the k+m shards (the maximum the code tolerates) and
	// confirm reconstruction recovers every original.
	all := append(append([][]byte{}, originals...), parity...)
	present := make([]bool, k+m)
	for i := range present {
		present[i] = true
	}
	dropped := []int{0, 2, k} // two data shards and one parity shard
	shards := make([][]byte, k+m)
	copy(shards, all)
	for _, idx := range dropped {
		shards[idx] = nil
		present[idx] = false
	}

	if err := codec.Reconstruct(shards, present); err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	for i := 0; i < k; i++ {
		if !bytes.Equal(shards[i], originals[i]) {
			t.Errorf("data shard %d mismatch after reconstruct", i)
		}
	}
}

func TestReconstructInfeasibleWhenTooFewShards(t *testing.T) {
	const k, m, shardLen = 8, 2, 64
	codec, err := New(k, m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	originals := makeSymbols(k, shardLen, 2)
	parity, err := codec.Encode(originals)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	shards := append(append([][]byte{}, originals...), parity...)
	present := make([]bool, k+m)
	for i := range present {
		present[i] = true
	}
	// Drop three data shards with only two parity shards available: infeasible.
	for _, idx := range []int{0, 1, 2} {
		shards[idx] = nil
		present[idx] = false
	}

	if err := codec.Reconstruct(shards, present); err == nil {
		t.Fatal("expected infeasibility error, got nil")
	}
}

func TestNewRejectsInvalidShape(t *testing.T) {
	if _, err := New(0, 4); err == nil {
		t.Fatal("expected error for zero data shards")
	}
}
