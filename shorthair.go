// Package shorthair implements a datagram-oriented transport shim that
// layers adaptive forward error correction, loss/delay estimation, and an
// authenticated-encryption envelope over an unreliable packet channel
// (e.g. UDP). It never performs I/O itself: the caller supplies an
// Interface for sending datagrams and drives Recv/Tick from its own event
// loop, in the teacher's connection-shim style
// (_examples/twogc-quic-test/client/client.go).
package shorthair

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uuorb/shorthair/internal/bufpool"
	"github.com/uuorb/shorthair/internal/cipher"
	"github.com/uuorb/shorthair/internal/estimator"
	"github.com/uuorb/shorthair/internal/fec"
	"github.com/uuorb/shorthair/internal/metrics"
	"github.com/uuorb/shorthair/internal/oob"
	"github.com/uuorb/shorthair/internal/redundancy"
	"github.com/uuorb/shorthair/internal/wire"
)

// slabHeadroom covers the symbol header, the cipher envelope overhead, and
// some slack so encryption never needs to reallocate past the pool's slab.
const slabHeadroom = wire.MaxHeaderSize + cipher.Overhead + 32

// Endpoint is one side of a shorthair connection (C1, spec.md §4.1). It
// owns the encoder/decoder pair, the loss and delay estimators, the
// redundancy planner, the OOB queue, and the cipher envelope, and wires
// them together exactly as spec.md §4.1-§4.8 describe. Not safe for
// concurrent use: callers serialize Send/SendOOB/Recv/Tick/Finalize, per
// spec.md §5.
type Endpoint struct {
	settings Settings
	log      *zap.Logger
	rec      *metrics.Recorder

	env     *cipher.Envelope
	pool    *bufpool.Pool
	planner *redundancy.Planner
	loss    *estimator.LossEstimator
	delay   *estimator.DelayEstimator
	pongs   *oob.Queue
	enc     *fec.Encoder
	dec     *fec.Decoder

	initialized bool
}

// New builds and initializes an Endpoint. This corresponds to spec.md
// §4.1's Initialize operation: an Endpoint is ready to use the moment New
// returns without error.
func New(settings Settings) (*Endpoint, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	env, err := cipher.New(settings.Key, settings.Initiator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	log := settings.Log
	if log == nil {
		log = zap.NewNop()
	}
	rec := settings.Metrics

	e := &Endpoint{
		settings: settings,
		log:      log,
		rec:      rec,
		env:      env,
		pool:     bufpool.New(settings.MaxDataSize + slabHeadroom),
		planner:  redundancy.New(settings.TargetLoss),
		loss:     estimator.NewLossEstimator(settings.MinLoss),
		delay:    estimator.NewDelayEstimator(settings.MinDelay, settings.MaxDelay),
		pongs:    oob.NewQueue(),
	}
	e.enc = fec.NewEncoder(e.pool, e.planner, settings.MaxGroupSymbols, log, rec)
	e.dec = fec.NewDecoder(e.pongs, log, rec, e.deliverPacket)
	e.initialized = true
	return e, nil
}

// deliverPacket is the decoder's delivery callback: it forwards a
// reassembled or recovered original payload to the application.
func (e *Endpoint) deliverPacket(payload []byte) {
	if e.settings.Iface.OnPacket != nil {
		e.settings.Iface.OnPacket(payload)
	}
}

// maxOriginalPayload is the largest application payload Send will accept,
// given the room left by the symbol header and cipher overhead.
func (e *Endpoint) maxOriginalPayload() int {
	room := e.settings.MaxDataSize - wire.MaxHeaderSize - cipher.Overhead
	if room < 0 {
		return 0
	}
	return room
}

// Send submits payload for transport: it is appended to the current code
// group and transmitted immediately as an original symbol (spec.md §4.1
// Send, §4.2).
func (e *Endpoint) Send(payload []byte, now time.Time) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if len(payload) > e.maxOriginalPayload() {
		return ErrPayloadTooLarge
	}

	wireBytes := e.enc.Send(payload, now)
	return e.sealAndSend(wireBytes)
}

// SendOOB transmits an out-of-band application message unchanged, outside
// the FEC group entirely (spec.md §4.1 SendOOB, §6). msg must begin with
// an application-chosen type byte >= wire.TypeOOBBase; the core never
// interprets the rest.
func (e *Endpoint) SendOOB(msg []byte) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if len(msg) == 0 || msg[0] < wire.TypeOOBBase {
		return fmt.Errorf("%w: OOB message must start with a type byte >= 0x%x", errPayloadMalformed, wire.TypeOOBBase)
	}
	if len(msg)+cipher.Overhead > e.settings.MaxDataSize {
		return ErrPayloadTooLarge
	}
	return e.sealAndSend(msg)
}

// sealAndSend encrypts plaintext and hands the resulting datagram to the
// caller's SendData, reusing a pool buffer for the ciphertext.
func (e *Endpoint) sealAndSend(plaintext []byte) error {
	out := e.pool.Get()
	out = e.env.Seal(out, plaintext)
	e.settings.Iface.SendData(out)
	e.pool.Put(out)
	return nil
}

// Recv processes one inbound datagram: it authenticates and decrypts the
// envelope, then dispatches the plaintext by type code, per spec.md §4.1
// Recv and §7's drop-silently failure handling.
func (e *Endpoint) Recv(packet []byte, now time.Time) error {
	if !e.initialized {
		return ErrNotInitialized
	}

	plain := e.pool.Get()
	plain, err := e.env.Open(plain, packet)
	if err != nil {
		e.log.Debug("shorthair: dropping envelope", zap.Error(fmt.Errorf("%w: %v", errEnvelopeInvalid, err)))
		if e.rec != nil {
			e.rec.PacketDropped("envelope_invalid")
		}
		return nil
	}
	defer e.pool.Put(plain)

	if len(plain) == 0 {
		if e.rec != nil {
			e.rec.PacketDropped("malformed")
		}
		return nil
	}

	switch typ := plain[0]; {
	case typ == wire.TypeData || typ == wire.TypeRecovery:
		_, h, payload, err := wire.DecodeSymbol(plain)
		if err != nil {
			e.log.Debug("shorthair: malformed symbol", zap.Error(err))
			if e.rec != nil {
				e.rec.PacketDropped("malformed")
			}
			return nil
		}
		e.dec.OnSymbol(typ, h, payload, now)

	case typ == wire.TypePong:
		p, err := wire.DecodePong(plain)
		if err != nil {
			e.log.Debug("shorthair: malformed pong", zap.Error(err))
			if e.rec != nil {
				e.rec.PacketDropped("malformed")
			}
			return nil
		}
		oob.Apply(e.loss, e.delay, p, now)

	case typ >= wire.TypeOOBBase:
		if e.settings.Iface.OnOOB != nil {
			cp := append([]byte(nil), plain...)
			e.settings.Iface.OnOOB(cp)
		}

	default:
		e.log.Debug("shorthair: unknown type code, dropping", zap.Uint8("type", typ))
		if e.rec != nil {
			e.rec.PacketDropped("malformed")
		}
	}
	return nil
}

// Tick drives the periodic work described across spec.md §4.2 (group
// swap), §4.2 recovery pacing, and §4.8 (pong emission). Callers invoke it
// on a steady cadence (e.g. every few milliseconds), per spec.md §5.
func (e *Endpoint) Tick(now time.Time) error {
	if !e.initialized {
		return ErrNotInitialized
	}

	p := e.loss.Estimate()
	d := e.delay.Estimate()
	swapInterval := fec.CalculateInterval(d, e.settings.MinDelay, e.settings.MaxDelay)

	if e.rec != nil {
		e.rec.SetLossEstimate(p)
		e.rec.SetDelayEstimate(d)
		e.rec.SetSwapInterval(swapInterval)
	}

	ready, closed := e.enc.Tick(now, p, swapInterval)
	for _, symbol := range ready {
		if err := e.sealAndSend(symbol); err != nil {
			return err
		}
	}
	if closed != nil {
		e.delay.StampGroup(closed.CodeGroup, closed.ClosedAt)
	}

	if e.pongs.Pending() {
		for _, pg := range e.pongs.Drain() {
			buf := e.pool.Get()
			buf = wire.EncodePong(buf, pg)
			if err := e.sealAndSend(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finalize releases the Endpoint's resources and resets its adaptive
// state, per spec.md §4.1 Finalize. The Endpoint must not be used
// afterward.
func (e *Endpoint) Finalize() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	e.loss.Reset()
	e.delay.Reset()
	e.initialized = false
	return nil
}
