// Package wire encodes and decodes the plaintext payload carried inside
// the cipher envelope: data/recovery symbol headers and OOB messages.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Type codes for the first byte of every decrypted plaintext. Values below
// TypeOOBBase are reserved for the core; TypeOOBBase and above are
// application-opaque OOB messages forwarded unchanged.
const (
	TypeData     byte = 0x01 // original data symbol
	TypeRecovery byte = 0x02 // recovery symbol
	TypePong     byte = 0x03 // OOB pong carrying loss/rtt telemetry

	// TypeOOBBase is the first type code the core never interprets
	// itself; it and everything above is forwarded to OnOOB.
	TypeOOBBase byte = 0x10
)

// SymbolHeader is the common header shared by data and recovery symbols.
type SymbolHeader struct {
	CodeGroup      uint8
	SymbolID       uint32
	OriginalCount  uint32
	RecoveryCount  uint32
}

// MaxHeaderSize bounds the worst-case encoded size of a SymbolHeader plus
// its 1-byte type tag, used by callers sizing scratch buffers.
const MaxHeaderSize = 1 + 1 + binary.MaxVarintLen32*3

// EncodeSymbol writes [type][code_group][symbol_id][original_count]
// [recovery_count][payload...] into dst, which must have at least
// MaxHeaderSize+len(payload) bytes of capacity, and returns the slice
// written.
func EncodeSymbol(dst []byte, typ byte, h SymbolHeader, payload []byte) []byte {
	buf := dst[:0]
	buf = append(buf, typ, h.CodeGroup)
	buf = appendUvarint(buf, uint64(h.SymbolID))
	buf = appendUvarint(buf, uint64(h.OriginalCount))
	buf = appendUvarint(buf, uint64(h.RecoveryCount))
	buf = append(buf, payload...)
	return buf
}

// DecodeSymbol parses a plaintext produced by EncodeSymbol. payload aliases
// into src and must not be retained past src's lifetime by the caller
// without copying.
func DecodeSymbol(src []byte) (typ byte, h SymbolHeader, payload []byte, err error) {
	if len(src) < 2 {
		return 0, SymbolHeader{}, nil, fmt.Errorf("wire: symbol too short (%d bytes)", len(src))
	}
	typ = src[0]
	h.CodeGroup = src[1]
	rest := src[2:]

	symbolID, n := binary.Uvarint(rest)
	if n <= 0 {
		return 0, SymbolHeader{}, nil, fmt.Errorf("wire: bad symbol_id varint")
	}
	rest = rest[n:]

	origCount, n := binary.Uvarint(rest)
	if n <= 0 {
		return 0, SymbolHeader{}, nil, fmt.Errorf("wire: bad original_count varint")
	}
	rest = rest[n:]

	recCount, n := binary.Uvarint(rest)
	if n <= 0 {
		return 0, SymbolHeader{}, nil, fmt.Errorf("wire: bad recovery_count varint")
	}
	rest = rest[n:]

	h.SymbolID = uint32(symbolID)
	h.OriginalCount = uint32(origCount)
	h.RecoveryCount = uint32(recCount)
	return typ, h, rest, nil
}

// Pong is the OOB telemetry payload described in spec.md §6/§4.8.
type Pong struct {
	CodeGroup uint8
	Seen      uint32
	Count     uint32
	RTTMillis uint32
}

// EncodePong writes [TypePong][group][seen][count][rtt_ms].
func EncodePong(dst []byte, p Pong) []byte {
	buf := dst[:0]
	buf = append(buf, TypePong, p.CodeGroup)
	buf = appendUvarint(buf, uint64(p.Seen))
	buf = appendUvarint(buf, uint64(p.Count))
	buf = appendUvarint(buf, uint64(p.RTTMillis))
	return buf
}

// DecodePong parses a plaintext produced by EncodePong. The leading type
// byte must already be confirmed to be TypePong by the caller.
func DecodePong(src []byte) (Pong, error) {
	if len(src) < 2 {
		return Pong{}, fmt.Errorf("wire: pong too short (%d bytes)", len(src))
	}
	group := src[1]
	rest := src[2:]

	seen, n := binary.Uvarint(rest)
	if n <= 0 {
		return Pong{}, fmt.Errorf("wire: bad seen varint")
	}
	rest = rest[n:]

	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return Pong{}, fmt.Errorf("wire: bad count varint")
	}
	rest = rest[n:]

	rtt, n := binary.Uvarint(rest)
	if n <= 0 {
		return Pong{}, fmt.Errorf("wire: bad rtt_ms varint")
	}

	return Pong{CodeGroup: group, Seen: uint32(seen), Count: uint32(count), RTTMillis: uint32(rtt)}, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// PadSymbol returns a copy of payload, prefixed with its own length as a
// uvarint and zero-padded to exactly length bytes. length must be at least
// the space needed for the prefix plus len(payload); callers (the encoder)
// guarantee this since length is the max over the group.
func PadSymbol(payload []byte, length int) []byte {
	var lenPrefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenPrefix[:], uint64(len(payload)))

	out := make([]byte, length)
	copy(out, lenPrefix[:n])
	copy(out[n:], payload)
	return out
}

// UnpadSymbol reverses PadSymbol: it reads the length prefix and returns
// the original, unpadded payload (a subslice of padded).
func UnpadSymbol(padded []byte) ([]byte, error) {
	n, nread := binary.Uvarint(padded)
	if nread <= 0 {
		return nil, fmt.Errorf("wire: bad length prefix")
	}
	end := nread + int(n)
	if end > len(padded) {
		return nil, fmt.Errorf("wire: length prefix %d exceeds padded size %d", n, len(padded))
	}
	return padded[nread:end], nil
}
