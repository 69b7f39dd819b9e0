package shorthair

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uuorb/shorthair/internal/cipher"
	"github.com/uuorb/shorthair/internal/metrics"
	"github.com/uuorb/shorthair/internal/wire"
)

// Interface is the capability set the caller implements and the engine
// drives, per spec.md §6: a boxed-function-trio rather than an interface
// with three methods, so it composes cheaply and carries no identity.
type Interface struct {
	// OnPacket delivers a recovered or originally-received data payload.
	OnPacket func(payload []byte)

	// OnOOB delivers an OOB payload whose first byte is an
	// application-chosen type code (>= wire.TypeOOBBase).
	OnOOB func(payload []byte)

	// SendData transmits an already-encrypted datagram. The engine never
	// retries a failed send; errors are the caller's concern.
	SendData func(datagram []byte)
}

// Settings configures one Endpoint, per spec.md §6.
type Settings struct {
	// Initiator selects which half of the key schedule this endpoint
	// uses. The two peers sharing a key MUST pass opposite values.
	Initiator bool

	// Key is the SKEY_BYTES-byte shared secret. No negotiation is
	// performed; both peers must already agree on it out of band.
	Key []byte

	// TargetLoss is the residual per-packet loss the redundancy planner
	// aims to leave after FEC (e.g. 1e-4).
	TargetLoss float64

	// MinLoss floors the loss estimate consulted by the redundancy
	// planner, so FEC never collapses to zero in a transiently quiet
	// window.
	MinLoss float64

	// MinDelay and MaxDelay clamp the smoothed one-way delay estimate
	// used to size the swap interval.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxDataSize ceilings the outbound datagram size after encryption.
	MaxDataSize int

	// Iface is the callback trio the engine drives.
	Iface Interface

	// MaxGroupSymbols overrides the encoder's implementation-chosen
	// maximum group size (spec.md §4.2 rule 2). Zero selects the
	// package default.
	MaxGroupSymbols int

	// Log receives structured diagnostics. Nil selects a no-op logger,
	// following the teacher's zap.NewNop() default.
	Log *zap.Logger

	// Metrics receives operational counters/gauges. Nil (or
	// metrics.Noop()) disables metrics entirely.
	Metrics *metrics.Recorder
}

// minMaxDataSize is the smallest MaxDataSize that can hold the largest
// possible symbol header plus one payload byte plus cipher overhead —
// below this, no configuration can ever succeed in sending anything.
const minMaxDataSize = wire.MaxHeaderSize + 1 + cipher.Overhead

// Validate checks Settings against spec.md §4.1's Initialize failure
// conditions, in the teacher's TestConfig.Validate() style
// (_examples/twogc-quic-test/internal/config.go): a plain method
// returning wrapped errors, independent of the rest of Initialize.
func (s Settings) Validate() error {
	if len(s.Key) != cipher.SKEYBytes {
		return fmt.Errorf("%w: key must be %d bytes, got %d", ErrConfigInvalid, cipher.SKEYBytes, len(s.Key))
	}
	if s.MinLoss < 0 || s.MinLoss > 1 {
		return fmt.Errorf("%w: min_loss %v out of [0,1]", ErrConfigInvalid, s.MinLoss)
	}
	if s.TargetLoss < 0 || s.TargetLoss > 1 {
		return fmt.Errorf("%w: target_loss %v out of [0,1]", ErrConfigInvalid, s.TargetLoss)
	}
	if s.MinDelay > s.MaxDelay {
		return fmt.Errorf("%w: min_delay %v exceeds max_delay %v", ErrConfigInvalid, s.MinDelay, s.MaxDelay)
	}
	if s.MaxDataSize < minMaxDataSize {
		return fmt.Errorf("%w: max_data_size %d below minimum %d", ErrConfigInvalid, s.MaxDataSize, minMaxDataSize)
	}
	if s.Iface.SendData == nil {
		return fmt.Errorf("%w: Interface.SendData must be set", ErrConfigInvalid)
	}
	return nil
}
