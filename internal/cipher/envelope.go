// Package cipher implements the authenticated-encryption envelope (C7)
// wrapped around every outbound/inbound packet: per-direction key
// schedule, monotonic nonce, and packet-granularity replay protection.
// Grounded on the WireGuard-style chacha20poly1305 transport pattern in
// the retrieved examples (monotonic sendNonce counter, AEAD per packet).
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SKEYBytes is the required length of the shared secret passed to
// Initialize, per spec.md §6 "Key material".
const SKEYBytes = 32

// Overhead is the fixed ciphertext expansion added to every packet: a
// 24-byte XChaCha20 nonce carried in the clear, plus chacha20poly1305's
// 16-byte tag.
const Overhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

const nonceSize = chacha20poly1305.NonceSizeX

// replayWindow is the width of the sliding bitmap used to reject replayed
// or wildly reordered packets, expressed as a count of trailing counter
// values still considered acceptable.
const replayWindow = 1024

// Envelope wraps outbound plaintexts into authenticated ciphertexts and
// unwraps inbound ones, using two independent AEAD instances (one per
// direction) derived from a shared secret and the `initiator` role flag.
// Not safe for concurrent use — callers serialize access per spec.md §5.
type Envelope struct {
	send stdcipher.AEAD // wraps outbound
	recv stdcipher.AEAD // unwraps inbound

	sendCounter uint64

	mu         sync.Mutex
	recvHighest uint64
	recvMask    [replayWindow / 64]uint64
	haveRecv    bool
}

// New derives the two directional AEAD contexts from key and the
// initiator role. Peers MUST pass opposite initiator values for the same
// key so the two key-schedule halves line up (spec.md §4.1).
func New(key []byte, initiator bool) (*Envelope, error) {
	if len(key) != SKEYBytes {
		return nil, fmt.Errorf("cipher: key must be %d bytes, got %d", SKEYBytes, len(key))
	}

	initiatorKey, responderKey, err := deriveDirectionalKeys(key)
	if err != nil {
		return nil, err
	}

	var sendKey, recvKey []byte
	if initiator {
		sendKey, recvKey = initiatorKey, responderKey
	} else {
		sendKey, recvKey = responderKey, initiatorKey
	}

	send, err := chacha20poly1305.NewX(sendKey)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	recv, err := chacha20poly1305.NewX(recvKey)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}

	return &Envelope{send: send, recv: recv}, nil
}

// deriveDirectionalKeys expands the shared secret into two independent
// 32-byte keys via HKDF-SHA256, one per role, so that same-initiator
// misconfiguration (both peers "initiator") produces two endpoints that
// both encrypt with the initiator key and decrypt with the responder key
// — i.e. never agree, which is the spec's required 100% auth failure mode.
func deriveDirectionalKeys(secret []byte) (initiatorKey, responderKey []byte, err error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("shorthair initiator"))
	initiatorKey = make([]byte, chacha20poly1305.KeySize)
	if _, err = io.ReadFull(r, initiatorKey); err != nil {
		return nil, nil, fmt.Errorf("cipher: derive initiator key: %w", err)
	}

	r2 := hkdf.New(sha256.New, secret, nil, []byte("shorthair responder"))
	responderKey = make([]byte, chacha20poly1305.KeySize)
	if _, err = io.ReadFull(r2, responderKey); err != nil {
		return nil, nil, fmt.Errorf("cipher: derive responder key: %w", err)
	}
	return initiatorKey, responderKey, nil
}

// Seal appends the sealed form of plaintext to dst: a 24-byte nonce
// (encoding the monotonic send counter) followed by ciphertext+tag.
func (e *Envelope) Seal(dst, plaintext []byte) []byte {
	var nonce [nonceSize]byte
	putUint64(nonce[:8], e.sendCounter)
	e.sendCounter++

	out := append(dst, nonce[:]...)
	return e.send.Seal(out, nonce[:], plaintext, nil)
}

// Open authenticates and decrypts a packet produced by Seal. It returns
// an error (never panics) for short envelopes, failed authentication, or
// a replayed/stale counter — all of which the caller must drop silently
// per spec.md §7 EnvelopeInvalid.
func (e *Envelope) Open(dst, packet []byte) ([]byte, error) {
	if len(packet) < nonceSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("cipher: envelope too short (%d bytes)", len(packet))
	}
	nonce := packet[:nonceSize]
	ciphertext := packet[nonceSize:]

	counter := getUint64(nonce[:8])

	e.mu.Lock()
	if e.haveRecv && !e.acceptCounterLocked(counter) {
		e.mu.Unlock()
		return nil, fmt.Errorf("cipher: replayed or stale counter %d", counter)
	}
	e.mu.Unlock()

	plaintext, err := e.recv.Open(dst, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: authentication failed: %w", err)
	}

	e.mu.Lock()
	e.markCounterLocked(counter)
	e.mu.Unlock()

	return plaintext, nil
}

// acceptCounterLocked reports whether counter falls within the replay
// window and has not already been marked seen. Callers hold e.mu.
func (e *Envelope) acceptCounterLocked(counter uint64) bool {
	if counter+replayWindow <= e.recvHighest {
		return false // too far behind the window, treat as stale/replayed
	}
	if counter <= e.recvHighest {
		word := (counter % replayWindow) / 64
		bit := uint(counter % 64)
		return e.recvMask[word]&(1<<bit) == 0
	}
	return true
}

// markCounterLocked records counter as seen and, if it advances the
// high-water mark, clears the bits that fall out of the window. Callers
// hold e.mu.
func (e *Envelope) markCounterLocked(counter uint64) {
	if !e.haveRecv {
		e.haveRecv = true
		e.recvHighest = counter
	}
	if counter > e.recvHighest {
		for gap := e.recvHighest + 1; gap <= counter; gap++ {
			word := (gap % replayWindow) / 64
			bit := uint(gap % 64)
			e.recvMask[word] &^= 1 << bit
		}
		e.recvHighest = counter
	}
	word := (counter % replayWindow) / 64
	bit := uint(counter % 64)
	e.recvMask[word] |= 1 << bit
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
